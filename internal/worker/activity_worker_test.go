package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/model"
)

type fakeSink struct {
	batchErr  error
	rejected  map[uuid.UUID]bool
	batches   int
	persisted []model.ActivityLogEntry
}

func (f *fakeSink) InsertBatch(_ context.Context, entries []model.ActivityLogEntry) error {
	f.batches++
	if f.batchErr != nil {
		return f.batchErr
	}
	f.persisted = append(f.persisted, entries...)
	return nil
}

func (f *fakeSink) Insert(_ context.Context, e model.ActivityLogEntry) error {
	if f.rejected[e.AttemptID] {
		return errors.New("insert failed")
	}
	f.persisted = append(f.persisted, e)
	return nil
}

func entries(n int) []model.ActivityLogEntry {
	out := make([]model.ActivityLogEntry, n)
	for i := range out {
		out[i] = model.ActivityLogEntry{
			AttemptID: uuid.New(),
			At:        time.Date(2026, 3, 2, 8, 0, i, 0, time.UTC),
			Type:      model.ActivityFocusLost,
		}
	}
	return out
}

func TestFlushSafe(t *testing.T) {
	tests := []struct {
		name          string
		sink          *fakeSink
		wantPersisted int
	}{
		{"bulk path", &fakeSink{}, 3},
		{"row fallback", &fakeSink{batchErr: errors.New("copy failed")}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewActivityWorker(tt.sink, nil, zerolog.Nop())
			w.flushSafe(context.Background(), entries(3))

			if tt.sink.batches != 1 {
				t.Errorf("InsertBatch called %d times, want 1", tt.sink.batches)
			}
			if len(tt.sink.persisted) != tt.wantPersisted {
				t.Errorf("persisted %d entries, want %d", len(tt.sink.persisted), tt.wantPersisted)
			}
		})
	}
}

func TestShutdownFlushesBuffer(t *testing.T) {
	sink := &fakeSink{}
	w := NewActivityWorker(sink, nil, zerolog.Nop())

	w.shutdown(nil)
	if sink.batches != 0 {
		t.Fatal("empty buffer should not hit the sink")
	}

	w.shutdown(entries(2))
	if len(sink.persisted) != 2 {
		t.Fatalf("persisted %d entries on shutdown, want 2", len(sink.persisted))
	}
}

func TestBackoffStopsOnCancel(t *testing.T) {
	w := NewActivityWorker(&fakeSink{}, nil, zerolog.Nop())
	w.requeueBackoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		w.backoff(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("backoff ignored a cancelled context")
	}
}

func TestBackoffWaits(t *testing.T) {
	w := NewActivityWorker(&fakeSink{}, nil, zerolog.Nop())
	w.requeueBackoff = 20 * time.Millisecond

	start := time.Now()
	w.backoff(context.Background())
	if elapsed := time.Since(start); elapsed < w.requeueBackoff {
		t.Fatalf("backoff returned after %v, want at least %v", elapsed, w.requeueBackoff)
	}
}
