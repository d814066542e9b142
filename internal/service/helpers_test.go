package service

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/aigrader"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

var baseTime = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeAI struct {
	mu     sync.Mutex
	result aigrader.Result
	err    error
	delay  time.Duration
	calls  int
}

func (f *fakeAI) Grade(ctx context.Context, _ aigrader.Request) (aigrader.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return aigrader.Result{}, ctx.Err()
		}
	}
	return f.result, f.err
}

// lockedRand makes a seeded source safe for the concurrency tests.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

func seeded() *lockedRand {
	return &lockedRand{r: rand.New(rand.NewPCG(7, 11))}
}

type harness struct {
	svc   *AttemptService
	store *repository.MemoryStore
	clock *testClock
	ai    *fakeAI
}

func newHarness(t *testing.T, exams []model.Exam, questions []model.Question, opts ...Option) *harness {
	t.Helper()
	store := repository.NewMemoryStore()
	for _, e := range exams {
		store.PutExam(e)
	}
	store.PutQuestions(questions...)

	h := &harness{store: store, clock: &testClock{t: baseTime}, ai: &fakeAI{}}
	grader := NewGrader(h.ai, time.Second, zerolog.Nop())
	opts = append([]Option{WithClock(h.clock.Now), WithRandom(seeded())}, opts...)
	h.svc = NewAttemptService(store, store, store, NopPublisher{}, grader, zerolog.Nop(), opts...)
	return h
}

func ptr[T any](v T) *T { return &v }

func mcq(id string, correct string, ids ...string) model.Question {
	opts := make([]model.Option, len(ids))
	for i, o := range ids {
		opts[i] = model.Option{ID: model.OptionID(o), Text: "option " + o, IsCorrect: o == correct}
	}
	return model.Question{
		ID:          model.QuestionID(id),
		Text:        "question " + id,
		Tags:        model.Tags{Difficulty: model.DifficultyMedium},
		Explanation: "because " + id,
		Body:        model.MCQBody{Options: opts},
	}
}

func withDifficulty(q model.Question, d model.Difficulty, topic string) model.Question {
	q.Tags.Difficulty = d
	q.Tags.Topic = topic
	return q
}

func shortQ(id, rubric string) model.Question {
	return model.Question{
		ID:   model.QuestionID(id),
		Text: "explain " + id,
		Tags: model.Tags{Difficulty: model.DifficultyMedium},
		Body: model.ShortBody{CorrectAnswerText: rubric},
	}
}

func newExam(mode model.ExamMode, sections ...model.Section) model.Exam {
	return model.Exam{
		ID:          uuid.New(),
		Title:       "Physics midterm",
		Mode:        mode,
		Sections:    sections,
		IsPublished: true,
	}
}

func section(id string, shuffle bool, qids ...string) model.Section {
	ids := make([]model.QuestionID, len(qids))
	for i, q := range qids {
		ids[i] = model.QuestionID(q)
	}
	return model.Section{
		ID:               model.SectionID(id),
		Title:            "Section " + id,
		QuestionIDs:      ids,
		ShuffleQuestions: shuffle,
		ShuffleOptions:   shuffle,
	}
}

var student = model.Caller{UserID: "student-1", Role: model.RoleStudent, Groups: []string{"XII-IPA-1"}}
