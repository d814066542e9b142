package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt/internal/model"
)

type examUserKey struct {
	examID uuid.UUID
	userID string
}

// MemoryStore keeps the catalog, attempts and activity logs in process memory.
// It honours the same uniqueness and compare-and-set rules as the Postgres repositories.
type MemoryStore struct {
	mu        sync.Mutex
	exams     map[uuid.UUID]model.Exam
	questions map[model.QuestionID]model.Question
	attempts  map[uuid.UUID]*model.Attempt
	byExam    map[examUserKey]uuid.UUID
	activity  map[uuid.UUID][]model.ActivityLogEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		exams:     make(map[uuid.UUID]model.Exam),
		questions: make(map[model.QuestionID]model.Question),
		attempts:  make(map[uuid.UUID]*model.Attempt),
		byExam:    make(map[examUserKey]uuid.UUID),
		activity:  make(map[uuid.UUID][]model.ActivityLogEntry),
	}
}

// PutExam stores an exam definition.
func (s *MemoryStore) PutExam(e model.Exam) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exams[e.ID] = e
}

// PutQuestions stores questions by ID.
func (s *MemoryStore) PutQuestions(qs ...model.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range qs {
		s.questions[q.ID] = q
	}
}

// Load stores every exam and question of a catalog file.
func (s *MemoryStore) Load(c *CatalogFile) {
	for _, e := range c.Exams {
		s.PutExam(e)
	}
	s.PutQuestions(c.Questions...)
}

func (s *MemoryStore) GetExam(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exams[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (s *MemoryStore) GetQuestions(_ context.Context, ids []model.QuestionID) (map[model.QuestionID]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.QuestionID]model.Question, len(ids))
	for _, id := range ids {
		if q, ok := s.questions[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, a *model.Attempt) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := examUserKey{a.ExamID, a.UserID}
	if id, ok := s.byExam[key]; ok {
		existing, err := cloneAttempt(s.attempts[id])
		if err != nil {
			return false, err
		}
		*a = *existing
		return false, nil
	}

	now := time.Now()
	a.Version = 1
	a.CreatedAt, a.UpdatedAt = now, now
	stored, err := cloneAttempt(a)
	if err != nil {
		return false, err
	}
	s.attempts[a.ID] = stored
	s.byExam[key] = a.ID
	return true, nil
}

func (s *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAttempt(a)
}

func (s *MemoryStore) GetByExamAndUser(_ context.Context, examID uuid.UUID, userID string) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExam[examUserKey{examID, userID}]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAttempt(s.attempts[id])
}

func (s *MemoryStore) Update(_ context.Context, a *model.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.attempts[a.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != a.Version {
		return ErrVersionConflict
	}

	a.Version++
	a.UpdatedAt = time.Now()
	stored, err := cloneAttempt(a)
	if err != nil {
		return err
	}
	s.attempts[a.ID] = stored
	return nil
}

func (s *MemoryStore) ListByExam(_ context.Context, examID uuid.UUID, page, perPage int) ([]model.AttemptSummary, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []model.AttemptSummary
	for _, a := range s.attempts {
		if a.ExamID != examID {
			continue
		}
		all = append(all, model.AttemptSummary{
			ID: a.ID, ExamID: a.ExamID, UserID: a.UserID, Status: a.Status,
			StartedAt: a.StartedAt, SubmittedAt: a.SubmittedAt,
			TotalScore: a.TotalScore, MaxScore: a.MaxScore, ResultPublished: a.ResultPublished,
		})
	}
	slices.SortFunc(all, compareSummaries)

	total := int64(len(all))
	start := (page - 1) * perPage
	if start >= len(all) {
		return []model.AttemptSummary{}, total, nil
	}
	end := min(start+perPage, len(all))
	return all[start:end], total, nil
}

func (s *MemoryStore) Append(_ context.Context, e model.ActivityLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity[e.AttemptID] = append(s.activity[e.AttemptID], e)
	return nil
}

func (s *MemoryStore) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]model.ActivityLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ActivityLogEntry(nil), s.activity[attemptID]...), nil
}

// compareSummaries orders like the Postgres listing:
// started_at ascending with unstarted attempts last, then user_id.
func compareSummaries(a, b model.AttemptSummary) int {
	switch {
	case a.StartedAt == nil && b.StartedAt != nil:
		return 1
	case a.StartedAt != nil && b.StartedAt == nil:
		return -1
	case a.StartedAt != nil:
		if c := a.StartedAt.Compare(*b.StartedAt); c != 0 {
			return c
		}
	}
	return strings.Compare(a.UserID, b.UserID)
}

// cloneAttempt deep-copies through JSON so callers never share nested maps or slices.
func cloneAttempt(a *model.Attempt) (*model.Attempt, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("clone attempt: %w", err)
	}
	var out model.Attempt
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("clone attempt: %w", err)
	}
	return &out, nil
}
