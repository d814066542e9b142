package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// ActivityQueue pushes activity entries onto a Redis list drained by the activity worker.
// Reads go straight to Postgres.
type ActivityQueue struct {
	rdb  *redis.Client
	repo *ActivityRepository
	log  zerolog.Logger
}

// NewActivityQueue creates a new ActivityQueue.
func NewActivityQueue(rdb *redis.Client, repo *ActivityRepository, log zerolog.Logger) *ActivityQueue {
	return &ActivityQueue{
		rdb:  rdb,
		repo: repo,
		log:  log.With().Str("component", "activity_queue").Logger(),
	}
}

// Append enqueues the entry, writing it directly when Redis is unavailable.
func (q *ActivityQueue) Append(ctx context.Context, e model.ActivityLogEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode activity entry: %w", err)
	}

	if err := q.rdb.RPush(ctx, config.WorkerKey.PersistActivityQueue, data).Err(); err != nil {
		q.log.Warn().Err(err).Str("attempt_id", e.AttemptID.String()).Msg("Queue push failed, writing activity directly")
		return q.repo.Insert(ctx, e)
	}
	return nil
}

// ListByAttempt returns the persisted entries. Entries still queued are not included.
func (q *ActivityQueue) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.ActivityLogEntry, error) {
	return q.repo.ListByAttempt(ctx, attemptID)
}
