package aigrader

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseResult(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantScore float64
		wantErr   bool
	}{
		{"plain", `{"rubric_score": 0.75, "feedback": "good"}`, 0.75, false},
		{"fenced", "```json\n{\"rubric_score\": 0.5, \"feedback\": \"ok\"}\n```", 0.5, false},
		{"clamped high", `{"rubric_score": 3, "feedback": ""}`, 1, false},
		{"clamped low", `{"rubric_score": -0.2, "feedback": ""}`, 0, false},
		{"garbage", `the answer is fine`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseResult(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseResult() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got.RubricScore != tt.wantScore {
				t.Errorf("RubricScore = %v, want %v", got.RubricScore, tt.wantScore)
			}
		})
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	req := Request{
		QuestionType:  "short",
		QuestionText:  "What is a goroutine?",
		StudentAnswer: "a thread",
		Rubric:        "Lightweight thread managed by the Go runtime",
	}

	t.Run("with rubric", func(t *testing.T) {
		prompt := buildSystemPrompt(req)
		if !strings.Contains(prompt, req.QuestionText) {
			t.Error("prompt should contain question text")
		}
		if !strings.Contains(prompt, req.Rubric) {
			t.Error("prompt should contain rubric")
		}
		if strings.Contains(prompt, req.StudentAnswer) {
			t.Error("student answer belongs in the user message, not the system prompt")
		}
	})

	t.Run("without rubric", func(t *testing.T) {
		r := req
		r.Rubric = ""
		prompt := buildSystemPrompt(r)
		if !strings.Contains(prompt, "No reference answer") {
			t.Error("prompt should note the missing rubric")
		}
	})
}

func chatServer(t *testing.T, content string, delay time.Duration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		})
	}))
}

func TestClientGrade(t *testing.T) {
	srv := chatServer(t, `{"rubric_score": 0.8, "feedback": "Mentions the runtime."}`, 0)
	defer srv.Close()

	c := New(srv.URL+"/v1", "test-key", "test-model", zerolog.Nop())
	got, err := c.Grade(context.Background(), Request{QuestionType: "short", QuestionText: "q", StudentAnswer: "a"})
	if err != nil {
		t.Fatalf("Grade() error = %v", err)
	}
	if got.RubricScore != 0.8 {
		t.Errorf("RubricScore = %v, want 0.8", got.RubricScore)
	}
	if got.Feedback != "Mentions the runtime." {
		t.Errorf("Feedback = %q", got.Feedback)
	}
}

func TestClientGradeTimeout(t *testing.T) {
	srv := chatServer(t, `{"rubric_score": 1, "feedback": ""}`, 2*time.Second)
	defer srv.Close()

	c := New(srv.URL+"/v1", "test-key", "test-model", zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := c.Grade(ctx, Request{QuestionText: "q", StudentAnswer: "a"}); err == nil {
		t.Fatal("Grade() should fail when the context deadline passes")
	}
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Grade(context.Background(), Request{})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("err = %v, want ErrDisabled", err)
	}
}
