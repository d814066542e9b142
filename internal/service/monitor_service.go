package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

// monitorSnapshotLimit caps the attempts included in a monitor snapshot.
const monitorSnapshotLimit = 1000

// MonitorService feeds the live exam monitor.
type MonitorService struct {
	attempts AttemptStore
	catalog  Catalog
	rdb      *redis.Client
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(attempts AttemptStore, catalog Catalog, rdb *redis.Client) *MonitorService {
	return &MonitorService{attempts: attempts, catalog: catalog, rdb: rdb}
}

// MonitorStats counts attempts by lifecycle state.
type MonitorStats struct {
	TotalStarted    int `json:"total_started"`
	TotalInProgress int `json:"total_in_progress"`
	TotalSubmitted  int `json:"total_submitted"`
	TotalGraded     int `json:"total_graded"`
	TotalQuestions  int `json:"total_questions"`
}

// MonitorSnapshot is the first message a monitor receives.
type MonitorSnapshot struct {
	Exam     model.ExamSummary      `json:"exam"`
	Stats    MonitorStats           `json:"stats"`
	Attempts []model.AttemptSummary `json:"attempts"`
}

// Snapshot summarises the current attempts of an exam.
func (s *MonitorService) Snapshot(ctx context.Context, examID uuid.UUID) (*MonitorSnapshot, error) {
	exam, err := s.catalog.GetExam(ctx, examID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("exam %s: %w", examID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load exam: %w", err)
	}
	attempts, total, err := s.attempts.ListByExam(ctx, examID, 1, monitorSnapshotLimit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	snap := &MonitorSnapshot{
		Exam: model.ExamSummary{
			ID:                exam.ID,
			Title:             exam.Title,
			Mode:              exam.Mode,
			TotalDurationMins: exam.TotalDurationMins,
			Schedule:          exam.Schedule,
		},
		Stats:    MonitorStats{TotalStarted: int(total), TotalQuestions: exam.QuestionCount()},
		Attempts: attempts,
	}
	for _, a := range attempts {
		switch a.Status {
		case model.AttemptStatusInProgress, model.AttemptStatusCreated:
			snap.Stats.TotalInProgress++
		case model.AttemptStatusSubmitted, model.AttemptStatusAutoSubmitted:
			snap.Stats.TotalSubmitted++
		case model.AttemptStatusGraded:
			snap.Stats.TotalGraded++
		}
	}
	return snap, nil
}

// Subscribe attaches to the exam's event channel. The caller closes the subscription.
func (s *MonitorService) Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID))
}
