package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ActivitySink persists activity entries.
type ActivitySink interface {
	InsertBatch(ctx context.Context, entries []model.ActivityLogEntry) error
	Insert(ctx context.Context, e model.ActivityLogEntry) error
}

// ActivityWorker drains the activity queue into Postgres in batches.
type ActivityWorker struct {
	sink ActivitySink
	rdb  *redis.Client
	log  zerolog.Logger
	// requeueBackoff is waited out after pushing failed entries back.
	requeueBackoff time.Duration
}

func NewActivityWorker(sink ActivitySink, rdb *redis.Client, log zerolog.Logger) *ActivityWorker {
	return &ActivityWorker{
		sink:           sink,
		rdb:            rdb,
		log:            log.With().Str("component", "activity_worker").Logger(),
		requeueBackoff: 2 * time.Second,
	}
}

// Start blocks until ctx is cancelled, then flushes what it holds.
func (w *ActivityWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ActivityWorker started")

	buffer := make([]model.ActivityLogEntry, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistActivityQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var entry model.ActivityLogEntry
		if err := json.Unmarshal([]byte(result[1]), &entry); err != nil {
			// Malformed payloads can never succeed; drop them.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed activity entry")
			continue
		}
		buffer = append(buffer, entry)
	}
}

// flushSafe tries COPY, then row-by-row inserts, then requeues what still failed.
func (w *ActivityWorker) flushSafe(ctx context.Context, batch []model.ActivityLogEntry) {
	err := w.sink.InsertBatch(ctx, batch)
	if err == nil {
		w.log.Debug().Int("count", len(batch)).Msg("Activity batch persisted")
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")

	var failed []model.ActivityLogEntry
	for _, e := range batch {
		if err := w.sink.Insert(ctx, e); err != nil {
			w.log.Error().Err(err).Str("attempt_id", e.AttemptID.String()).Msg("Insert failed, requeueing")
			failed = append(failed, e)
		}
	}
	if len(failed) > 0 {
		w.requeue(ctx, failed)
	}
}

func (w *ActivityWorker) requeue(ctx context.Context, items []model.ActivityLogEntry) {
	pipe := w.rdb.Pipeline()
	for _, e := range items {
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		pipe.RPush(ctx, config.WorkerKey.PersistActivityQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue activity entries. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed activity entries")
	w.backoff(ctx)
}

// backoff pauses after a requeue so a database outage does not spin the loop.
// It returns early when ctx ends so shutdown is never held up.
func (w *ActivityWorker) backoff(ctx context.Context) {
	t := time.NewTimer(w.requeueBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *ActivityWorker) shutdown(buffer []model.ActivityLogEntry) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")
	if len(buffer) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.flushSafe(ctx, buffer)
}
