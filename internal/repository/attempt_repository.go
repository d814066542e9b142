package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempt/internal/model"
)

const attemptColumns = `id, exam_id, user_id, mode, status, started_at, submitted_at,
	snapshot, answers, total_score, max_score, result_published, version, created_at, updated_at`

// AttemptRepository persists attempts as one row per (exam, user) with JSONB documents.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create inserts the attempt unless one already exists for the same exam and user.
// On conflict a is overwritten with the stored attempt and created is false.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) (bool, error) {
	snapshot, err := json.Marshal(a.Snapshot)
	if err != nil {
		return false, fmt.Errorf("encode snapshot: %w", err)
	}
	answers, err := encodeAnswers(a.Answers)
	if err != nil {
		return false, err
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO attempts (id, exam_id, user_id, mode, status, started_at, snapshot, answers, max_score)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (exam_id, user_id) DO NOTHING
		 RETURNING version, created_at, updated_at`,
		a.ID, a.ExamID, a.UserID, a.Mode, a.Status, a.StartedAt, snapshot, answers, a.MaxScore,
	).Scan(&a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("insert attempt: %w", err)
	}

	// Lost the race against a concurrent start.
	existing, err := r.GetByExamAndUser(ctx, a.ExamID, a.UserID)
	if err != nil {
		return false, fmt.Errorf("concurrent start detected, but fetch failed: %w", err)
	}
	*a = *existing
	return false, nil
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id)
	return scanAttempt(row)
}

// GetByExamAndUser retrieves the attempt for an exam-user combination.
func (r *AttemptRepository) GetByExamAndUser(ctx context.Context, examID uuid.UUID, userID string) (*model.Attempt, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE exam_id = $1 AND user_id = $2`, examID, userID)
	return scanAttempt(row)
}

// Update writes every mutable field if the stored version still equals a.Version.
// On success a.Version is advanced.
func (r *AttemptRepository) Update(ctx context.Context, a *model.Attempt) error {
	snapshot, err := json.Marshal(a.Snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	answers, err := encodeAnswers(a.Answers)
	if err != nil {
		return err
	}

	err = r.pool.QueryRow(ctx,
		`UPDATE attempts
		 SET status = $1, submitted_at = $2, snapshot = $3, answers = $4,
		     total_score = $5, max_score = $6, result_published = $7,
		     version = version + 1, updated_at = NOW()
		 WHERE id = $8 AND version = $9
		 RETURNING version, updated_at`,
		a.Status, a.SubmittedAt, snapshot, answers,
		a.TotalScore, a.MaxScore, a.ResultPublished,
		a.ID, a.Version,
	).Scan(&a.Version, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	return nil
}

// ListByExam returns attempt summaries for an exam with pagination.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.AttemptSummary, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE exam_id = $1`, examID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, user_id, status, started_at, submitted_at, total_score, max_score, result_published
		 FROM attempts
		 WHERE exam_id = $1
		 ORDER BY started_at ASC NULLS LAST, user_id ASC
		 LIMIT $2 OFFSET $3`,
		examID, perPage, (page-1)*perPage,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	summaries := make([]model.AttemptSummary, 0, perPage)
	for rows.Next() {
		var s model.AttemptSummary
		if err := rows.Scan(&s.ID, &s.ExamID, &s.UserID, &s.Status, &s.StartedAt, &s.SubmittedAt,
			&s.TotalScore, &s.MaxScore, &s.ResultPublished); err != nil {
			return nil, 0, err
		}
		summaries = append(summaries, s)
	}
	return summaries, total, rows.Err()
}

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	var (
		a        model.Attempt
		snapshot []byte
		answers  []byte
		start    *time.Time
		submit   *time.Time
	)
	err := row.Scan(&a.ID, &a.ExamID, &a.UserID, &a.Mode, &a.Status, &start, &submit,
		&snapshot, &answers, &a.TotalScore, &a.MaxScore, &a.ResultPublished, &a.Version,
		&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.StartedAt, a.SubmittedAt = start, submit

	if err := json.Unmarshal(snapshot, &a.Snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot of attempt %s: %w", a.ID, err)
	}
	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return nil, fmt.Errorf("decode answers of attempt %s: %w", a.ID, err)
	}
	return &a, nil
}

func encodeAnswers(answers []model.AnswerItem) ([]byte, error) {
	if answers == nil {
		answers = []model.AnswerItem{}
	}
	b, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}
	return b, nil
}
