package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// Monitor event types.
const (
	EventStarted   = "started"
	EventAnswered  = "answered"
	EventSubmitted = "submitted"
	EventActivity  = "activity"
	EventPublished = "published"
)

// MonitorEvent is broadcast to teachers watching an exam.
type MonitorEvent struct {
	Type      string              `json:"type"`
	AttemptID uuid.UUID           `json:"attempt_id"`
	UserID    string              `json:"user_id"`
	Status    model.AttemptStatus `json:"status,omitempty"`
	Answered  int                 `json:"answered_count,omitempty"`
	Activity  model.ActivityType  `json:"activity,omitempty"`
	At        time.Time           `json:"at"`
}

// EventPublisher fans attempt events out to live monitors. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, examID uuid.UUID, ev MonitorEvent)
}

// RedisEventPublisher publishes on the exam's monitor channel.
type RedisEventPublisher struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewRedisEventPublisher(rdb *redis.Client, log zerolog.Logger) *RedisEventPublisher {
	return &RedisEventPublisher{
		rdb: rdb,
		log: log.With().Str("component", "monitor_publisher").Logger(),
	}
}

func (p *RedisEventPublisher) Publish(ctx context.Context, examID uuid.UUID, ev MonitorEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Msg("Failed to encode monitor event")
		return
	}
	if err := p.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID), data).Err(); err != nil {
		p.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to publish monitor event")
	}
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, uuid.UUID, MonitorEvent) {}

func answeredCount(a *model.Attempt) int {
	n := 0
	for i := range a.Answers {
		if a.Answers[i].HasResponse() {
			n++
		}
	}
	return n
}
