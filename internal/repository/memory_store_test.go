package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt/internal/model"
)

func newAttempt(examID uuid.UUID, user string) *model.Attempt {
	return &model.Attempt{
		ID:     uuid.New(),
		ExamID: examID,
		UserID: user,
		Mode:   model.ExamModeLive,
		Status: model.AttemptStatusInProgress,
		Snapshot: model.Snapshot{
			QuestionOrderBySection: map[model.SectionID][]model.QuestionID{"s1": {"q1"}},
		},
	}
}

func TestMemoryStoreCreateIsUniquePerExamAndUser(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	examID := uuid.New()

	first := newAttempt(examID, "u1")
	created, err := s.Create(ctx, first)
	if err != nil || !created {
		t.Fatalf("Create() = %v, %v", created, err)
	}

	second := newAttempt(examID, "u1")
	created, err = s.Create(ctx, second)
	if err != nil || created {
		t.Fatalf("duplicate Create() = %v, %v", created, err)
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate Create() returned %s, want existing %s", second.ID, first.ID)
	}

	other := newAttempt(examID, "u2")
	if created, _ := s.Create(ctx, other); !created {
		t.Fatal("Create() for another user should insert")
	}
}

func TestMemoryStoreUpdateComparesVersion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := newAttempt(uuid.New(), "u1")
	if _, err := s.Create(ctx, a); err != nil {
		t.Fatal(err)
	}

	stale, _ := s.GetByID(ctx, a.ID)
	fresh, _ := s.GetByID(ctx, a.ID)

	fresh.Status = model.AttemptStatusSubmitted
	if err := s.Update(ctx, fresh); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if fresh.Version != 2 {
		t.Fatalf("Version = %d, want 2", fresh.Version)
	}

	stale.Status = model.AttemptStatusAutoSubmitted
	if err := s.Update(ctx, stale); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale Update() error = %v, want ErrVersionConflict", err)
	}

	got, _ := s.GetByID(ctx, a.ID)
	if got.Status != model.AttemptStatusSubmitted {
		t.Fatalf("Status = %s, want submitted", got.Status)
	}

	if err := s.Update(ctx, newAttempt(uuid.New(), "ghost")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update() on missing attempt error = %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := newAttempt(uuid.New(), "u1")
	if _, err := s.Create(ctx, a); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetByID(ctx, a.ID)
	got.Snapshot.QuestionOrderBySection["s1"][0] = "tampered"
	got.Answers = append(got.Answers, model.AnswerItem{QuestionID: "q1"})

	again, _ := s.GetByID(ctx, a.ID)
	if again.Snapshot.QuestionOrderBySection["s1"][0] != "q1" || len(again.Answers) != 0 {
		t.Fatalf("stored attempt was mutated through a returned copy: %+v", again)
	}
}

func TestMemoryStoreListByExamPaginates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	examID := uuid.New()
	for _, u := range []string{"c", "a", "b"} {
		if _, err := s.Create(ctx, newAttempt(examID, u)); err != nil {
			t.Fatal(err)
		}
	}
	_, _ = s.Create(ctx, newAttempt(uuid.New(), "elsewhere"))

	tests := []struct {
		page, perPage int
		want          []string
	}{
		{1, 2, []string{"a", "b"}},
		{2, 2, []string{"c"}},
		{3, 2, nil},
	}
	for _, tt := range tests {
		got, total, err := s.ListByExam(ctx, examID, tt.page, tt.perPage)
		if err != nil {
			t.Fatal(err)
		}
		if total != 3 {
			t.Fatalf("total = %d, want 3", total)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("page %d: got %d items, want %d", tt.page, len(got), len(tt.want))
		}
		for i, sum := range got {
			if sum.UserID != tt.want[i] {
				t.Fatalf("page %d item %d = %s, want %s", tt.page, i, sum.UserID, tt.want[i])
			}
		}
	}
}

func TestLoadCatalogFile(t *testing.T) {
	dir := t.TempDir()
	examID := uuid.NewString()

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{
			name: "valid",
			body: `{"questions":[{"id":"q1","type":"fill","text":"?","tags":{"difficulty":"easy"},"body":{"correct_answer_text":"x"}}],
				"exams":[{"id":"` + examID + `","title":"t","mode":"practice","is_published":true,
				"sections":[{"id":"s1","question_ids":["q1"]}]}]}`,
		},
		{
			name: "dangling question reference",
			body: `{"questions":[],"exams":[{"id":"` + examID + `","title":"t","mode":"practice",
				"sections":[{"id":"s1","question_ids":["missing"]}]}]}`,
			wantErr: true,
		},
		{name: "malformed", body: `{"exams":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			if err := os.WriteFile(path, []byte(tt.body), 0o600); err != nil {
				t.Fatal(err)
			}
			c, err := LoadCatalogFile(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadCatalogFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				s := NewMemoryStore()
				s.Load(c)
				qs, _ := s.GetQuestions(context.Background(), []model.QuestionID{"q1"})
				if _, ok := qs["q1"]; !ok {
					t.Fatal("question q1 not loaded")
				}
			}
		})
	}
}

func TestMemoryStoreListByExamOrdersByStartTime(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	examID := uuid.New()
	t0 := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	seed := []struct {
		user    string
		started *time.Time
	}{
		{"a-late", ptrTime(t0.Add(2 * time.Minute))},
		{"z-early", ptrTime(t0)},
		{"b-never", nil},
		{"m-tied", ptrTime(t0.Add(2 * time.Minute))},
	}
	for _, sd := range seed {
		a := newAttempt(examID, sd.user)
		a.StartedAt = sd.started
		if _, err := s.Create(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	got, _, err := s.ListByExam(ctx, examID, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"z-early", "a-late", "m-tied", "b-never"}
	if len(got) != len(want) {
		t.Fatalf("got %d summaries, want %d", len(got), len(want))
	}
	for i, sum := range got {
		if sum.UserID != want[i] {
			t.Fatalf("order = %v, want %v", userIDs(got), want)
		}
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

func userIDs(sums []model.AttemptSummary) []string {
	out := make([]string, len(sums))
	for i, s := range sums {
		out[i] = s.UserID
	}
	return out
}
