package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// ActivityRepository handles the append-only attempt activity log.
type ActivityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

// Insert appends a single entry.
func (r *ActivityRepository) Insert(ctx context.Context, e model.ActivityLogEntry) error {
	meta, err := encodeMeta(e.Meta)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO attempt_activity_logs (attempt_id, type, meta, occurred_at)
		 VALUES ($1, $2, $3, $4)`,
		e.AttemptID, e.Type, meta, e.At,
	)
	return err
}

// InsertBatch appends entries with COPY.
func (r *ActivityRepository) InsertBatch(ctx context.Context, entries []model.ActivityLogEntry) error {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		meta, err := encodeMeta(e.Meta)
		if err != nil {
			return err
		}
		rows = append(rows, []any{e.AttemptID, string(e.Type), meta, e.At})
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"attempt_activity_logs"},
		[]string{"attempt_id", "type", "meta", "occurred_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// ListByAttempt returns the entries of an attempt in occurrence order.
func (r *ActivityRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.ActivityLogEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT attempt_id, type, meta, occurred_at
		 FROM attempt_activity_logs
		 WHERE attempt_id = $1
		 ORDER BY occurred_at ASC, id ASC`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.ActivityLogEntry
	for rows.Next() {
		var (
			e    model.ActivityLogEntry
			meta []byte
		)
		if err := rows.Scan(&e.AttemptID, &e.Type, &meta, &e.At); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return nil, fmt.Errorf("decode activity meta: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func encodeMeta(meta map[string]any) ([]byte, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode activity meta: %w", err)
	}
	return b, nil
}
