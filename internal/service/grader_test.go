package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/aigrader"
	"github.com/stemsi/exstem-attempt/internal/model"
)

func TestGradeObjective(t *testing.T) {
	tfOptions := []model.Option{{ID: "T", Text: "True", IsCorrect: true}, {ID: "F", Text: "False"}}
	arA := model.AssertionReasonBody{AssertionIsTrue: true, ReasonIsTrue: true, ReasonExplainsAssertion: true}
	arD := model.AssertionReasonBody{AssertionIsTrue: false, ReasonIsTrue: true}

	tests := []struct {
		name string
		body model.QuestionBody
		ans  model.AnswerItem
		want bool
	}{
		{"mcq correct", mcq("q", "D", "A", "B", "C", "D").Body, model.AnswerItem{ChosenOptionID: ptr(model.OptionID("D"))}, true},
		{"mcq wrong", mcq("q", "D", "A", "B", "C", "D").Body, model.AnswerItem{ChosenOptionID: ptr(model.OptionID("A"))}, false},
		{"mcq unanswered", mcq("q", "D", "A", "B", "C", "D").Body, model.AnswerItem{}, false},
		{"truefalse option", model.TrueFalseBody{Options: tfOptions}, model.AnswerItem{ChosenOptionID: ptr(model.OptionID("T"))}, true},
		{"truefalse option wrong", model.TrueFalseBody{Options: tfOptions}, model.AnswerItem{ChosenOptionID: ptr(model.OptionID("F"))}, false},
		{"truefalse text", model.TrueFalseBody{CorrectAnswerText: "True"}, model.AnswerItem{TextAnswer: ptr(" TRUE ")}, true},
		{"truefalse text wrong", model.TrueFalseBody{CorrectAnswerText: "True"}, model.AnswerItem{TextAnswer: ptr("false")}, false},
		{"fill trimmed and lowered", model.FillBody{CorrectAnswerText: "Photosynthesis"}, model.AnswerItem{TextAnswer: ptr("  photosynthesis ")}, true},
		{"fill no fuzzy match", model.FillBody{CorrectAnswerText: "Photosynthesis"}, model.AnswerItem{TextAnswer: ptr("photosynthesys")}, false},
		{"fill empty", model.FillBody{CorrectAnswerText: "x"}, model.AnswerItem{TextAnswer: ptr("  ")}, false},
		{"assertion reason text", arA, model.AnswerItem{TextAnswer: ptr("a")}, true},
		{"assertion reason option", arD, model.AnswerItem{ChosenOptionID: ptr(model.OptionID("d"))}, true},
		{"assertion reason wrong", arD, model.AnswerItem{TextAnswer: ptr("C")}, false},
		{"assertion reason both false", model.AssertionReasonBody{}, model.AnswerItem{TextAnswer: ptr("E")}, false},
		{"integer", model.IntegerBody{IntegerAnswer: 42}, model.AnswerItem{TextAnswer: ptr(" 42 ")}, true},
		{"integer wrong", model.IntegerBody{IntegerAnswer: 42}, model.AnswerItem{TextAnswer: ptr("41")}, false},
		{"integer text fallback", model.IntegerBody{CorrectAnswerText: "1e3"}, model.AnswerItem{TextAnswer: ptr("1e3")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := model.Question{ID: "q", Body: tt.body}
			if got := gradeObjective(q, &tt.ans); got != tt.want {
				t.Errorf("gradeObjective() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAssertionReasonLetter(t *testing.T) {
	tests := []struct {
		a, r, explains bool
		want           string
	}{
		{true, true, true, "A"},
		{true, true, false, "B"},
		{true, false, false, "C"},
		{false, true, false, "D"},
		{false, false, false, ""},
	}
	for _, tt := range tests {
		got := assertionReasonLetter(model.AssertionReasonBody{
			AssertionIsTrue: tt.a, ReasonIsTrue: tt.r, ReasonExplainsAssertion: tt.explains,
		})
		if got != tt.want {
			t.Errorf("letter(%v, %v, %v) = %q, want %q", tt.a, tt.r, tt.explains, got, tt.want)
		}
	}
}

func TestGradeAnswersIsDeterministic(t *testing.T) {
	questions := map[model.QuestionID]model.Question{
		"q1": mcq("q1", "B", "A", "B"),
		"q2": {ID: "q2", Body: model.FillBody{CorrectAnswerText: "Newton"}},
	}
	answers := func() []model.AnswerItem {
		return []model.AnswerItem{
			{QuestionID: "q1", ChosenOptionID: ptr(model.OptionID("B"))},
			{QuestionID: "q2", TextAnswer: ptr("newton")},
			{QuestionID: "gone", TextAnswer: ptr("orphan")},
		}
	}

	g := NewGrader(&fakeAI{}, time.Second, zerolog.Nop())
	first, second := answers(), answers()
	t1 := g.GradeAnswers(context.Background(), first, questions)
	t2 := g.GradeAnswers(context.Background(), second, questions)

	if t1 != 2 || t2 != 2 {
		t.Fatalf("totals = %v, %v, want 2", t1, t2)
	}
	for i := range first {
		if *first[i].ScoreAwarded != *second[i].ScoreAwarded {
			t.Errorf("answer %d scored differently across runs", i)
		}
	}
	if *first[2].ScoreAwarded != 0 {
		t.Error("answer to unknown question should score zero")
	}
}

func TestGradeSubjectiveSkipsEmptyAnswers(t *testing.T) {
	ai := &fakeAI{result: aigrader.Result{RubricScore: 1}}
	g := NewGrader(ai, time.Second, zerolog.Nop())
	answers := []model.AnswerItem{{QuestionID: "q1", IsMarkedForReview: true}}

	total := g.GradeAnswers(context.Background(), answers, map[model.QuestionID]model.Question{"q1": shortQ("q1", "")})
	if total != 0 || ai.calls != 0 {
		t.Errorf("total = %v calls = %d, want 0 and no AI call", total, ai.calls)
	}
	if answers[0].IsCorrect != nil {
		t.Error("subjective answers should not carry isCorrect")
	}
}

func TestGradeMemoReusesUnchangedResponses(t *testing.T) {
	ai := &fakeAI{result: aigrader.Result{RubricScore: 0.7, Feedback: "ok"}}
	g := NewGrader(ai, time.Second, zerolog.Nop())
	questions := map[model.QuestionID]model.Question{
		"q1": shortQ("q1", ""),
		"q2": mcq("q2", "A", "A", "B"),
	}
	answers := func(text string, opt model.OptionID) []model.AnswerItem {
		return []model.AnswerItem{
			{QuestionID: "q1", TextAnswer: ptr(text)},
			{QuestionID: "q2", ChosenOptionID: ptr(opt)},
		}
	}

	memo := gradeMemo{}
	if total := g.gradeAnswers(context.Background(), answers("essay", "A"), questions, memo); total != 1.7 {
		t.Fatalf("first total = %v, want 1.7", total)
	}

	again := answers("essay", "B")
	if total := g.gradeAnswers(context.Background(), again, questions, memo); total != 0.7 {
		t.Errorf("second total = %v, want 0.7", total)
	}
	if ai.calls != 1 {
		t.Errorf("AI calls = %d, want 1 for an unchanged essay", ai.calls)
	}
	if *again[1].IsCorrect {
		t.Error("changed objective answer kept its stale grading")
	}

	g.gradeAnswers(context.Background(), answers("rewritten", "B"), questions, memo)
	if ai.calls != 2 {
		t.Errorf("AI calls = %d, want 2 after the essay changed", ai.calls)
	}
}
