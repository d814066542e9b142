package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt/internal/aigrader"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// AttemptStore persists attempts. Create must enforce one attempt per (exam, user)
// and Update must compare-and-set on Version.
type AttemptStore interface {
	Create(ctx context.Context, a *model.Attempt) (created bool, err error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	GetByExamAndUser(ctx context.Context, examID uuid.UUID, userID string) (*model.Attempt, error)
	Update(ctx context.Context, a *model.Attempt) error
	ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.AttemptSummary, int64, error)
}

// Catalog is the read-only source of exams and questions.
type Catalog interface {
	GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	GetQuestions(ctx context.Context, ids []model.QuestionID) (map[model.QuestionID]model.Question, error)
}

// ActivityLog stores proctoring events.
type ActivityLog interface {
	Append(ctx context.Context, e model.ActivityLogEntry) error
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.ActivityLogEntry, error)
}

// AIGrader scores subjective answers against a rubric.
type AIGrader interface {
	Grade(ctx context.Context, req aigrader.Request) (aigrader.Result, error)
}

// Random is the source used for shuffling and adaptive picks.
type Random interface {
	IntN(n int) int
}
