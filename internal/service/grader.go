package service

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/aigrader"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// AIUnavailableFeedback is stored on subjective answers the AI grader could not score.
const AIUnavailableFeedback = "AI grading unavailable"

// Grader scores the answers of an attempt. Objective types are graded in-process,
// short and long answers are delegated to the AI grader one at a time.
type Grader struct {
	ai      AIGrader
	timeout time.Duration
	log     zerolog.Logger
}

// NewGrader creates a Grader. timeout bounds each AI call.
func NewGrader(ai AIGrader, timeout time.Duration, log zerolog.Logger) *Grader {
	return &Grader{
		ai:      ai,
		timeout: timeout,
		log:     log.With().Str("component", "grader").Logger(),
	}
}

// gradeMemo holds graded answers by question id. An answer whose response is
// unchanged reuses the stored grading instead of calling the AI grader again.
type gradeMemo map[model.QuestionID]model.AnswerItem

// GradeAnswers fills the grading fields of every answer and returns the total score.
func (g *Grader) GradeAnswers(ctx context.Context, answers []model.AnswerItem, questions map[model.QuestionID]model.Question) float64 {
	return g.gradeAnswers(ctx, answers, questions, nil)
}

func (g *Grader) gradeAnswers(ctx context.Context, answers []model.AnswerItem, questions map[model.QuestionID]model.Question, memo gradeMemo) float64 {
	total := 0.0
	for i := range answers {
		ans := &answers[i]
		if prev, ok := memo[ans.QuestionID]; ok && sameResponse(prev, *ans) {
			copyGrading(ans, prev)
			total += *ans.ScoreAwarded
			continue
		}

		q, ok := questions[ans.QuestionID]
		switch {
		case !ok:
			g.log.Warn().Str("question_id", string(ans.QuestionID)).Msg("Answer references unknown question, awarding zero")
			setObjective(ans, false)
		case q.IsSubjective():
			g.gradeSubjective(ctx, q, ans)
		default:
			setObjective(ans, gradeObjective(q, ans))
		}
		if memo != nil {
			memo[ans.QuestionID] = *ans
		}
		total += *ans.ScoreAwarded
	}
	return round2(total)
}

func sameResponse(a, b model.AnswerItem) bool {
	return equalPtr(a.ChosenOptionID, b.ChosenOptionID) && equalPtr(a.TextAnswer, b.TextAnswer)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func copyGrading(dst *model.AnswerItem, src model.AnswerItem) {
	dst.IsCorrect = src.IsCorrect
	dst.ScoreAwarded = src.ScoreAwarded
	dst.RubricScore = src.RubricScore
	dst.AIFeedback = src.AIFeedback
}

func (g *Grader) gradeSubjective(ctx context.Context, q model.Question, ans *model.AnswerItem) {
	ans.IsCorrect = nil
	text := ""
	if ans.TextAnswer != nil {
		text = strings.TrimSpace(*ans.TextAnswer)
	}
	if text == "" {
		setSubjective(ans, 0, "")
		return
	}

	res, err := g.callAI(ctx, q, text)
	if err != nil {
		g.log.Warn().Err(err).Str("question_id", string(q.ID)).Msg("AI grading failed, awarding zero")
		setSubjective(ans, 0, AIUnavailableFeedback)
		return
	}
	setSubjective(ans, res.RubricScore, res.Feedback)
}

func (g *Grader) callAI(ctx context.Context, q model.Question, text string) (aigrader.Result, error) {
	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	res, err := g.ai.Grade(callCtx, aigrader.Request{
		QuestionType:  string(q.Type()),
		QuestionText:  q.Text,
		StudentAnswer: text,
		Rubric:        rubricOf(q),
	})
	if err != nil {
		return aigrader.Result{}, errors.Join(ErrGradingUnavailable, err)
	}
	if math.IsNaN(res.RubricScore) {
		return aigrader.Result{}, ErrGradingUnavailable
	}
	return res, nil
}

func rubricOf(q model.Question) string {
	switch b := q.Body.(type) {
	case model.ShortBody:
		return b.CorrectAnswerText
	case model.LongBody:
		return b.CorrectAnswerText
	}
	return ""
}

// gradeObjective decides correctness for every non-AI question type.
func gradeObjective(q model.Question, ans *model.AnswerItem) bool {
	switch b := q.Body.(type) {
	case model.MCQBody:
		return chosenIsCorrect(b.Options, ans.ChosenOptionID)
	case model.TrueFalseBody:
		if len(b.Options) > 0 {
			return chosenIsCorrect(b.Options, ans.ChosenOptionID)
		}
		text, ok := textOf(ans)
		return ok && b.CorrectAnswerText != "" && strings.EqualFold(text, strings.TrimSpace(b.CorrectAnswerText))
	case model.FillBody:
		text, ok := textOf(ans)
		return ok && strings.ToLower(text) == strings.ToLower(strings.TrimSpace(b.CorrectAnswerText))
	case model.AssertionReasonBody:
		want := assertionReasonLetter(b)
		if want == "" {
			return false
		}
		if text, ok := textOf(ans); ok && strings.EqualFold(text, want) {
			return true
		}
		return ans.ChosenOptionID != nil && strings.EqualFold(strings.TrimSpace(string(*ans.ChosenOptionID)), want)
	case model.IntegerBody:
		text, ok := textOf(ans)
		if !ok {
			return false
		}
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return n == b.IntegerAnswer
		}
		return b.CorrectAnswerText != "" && text == strings.TrimSpace(b.CorrectAnswerText)
	case model.ShortBody, model.LongBody:
		return false
	}
	return false
}

// assertionReasonLetter maps the three truth flags to the canonical answer letter.
// Both statements false has no letter.
func assertionReasonLetter(b model.AssertionReasonBody) string {
	switch {
	case b.AssertionIsTrue && b.ReasonIsTrue && b.ReasonExplainsAssertion:
		return "A"
	case b.AssertionIsTrue && b.ReasonIsTrue:
		return "B"
	case b.AssertionIsTrue:
		return "C"
	case b.ReasonIsTrue:
		return "D"
	}
	return ""
}

func chosenIsCorrect(opts []model.Option, chosen *model.OptionID) bool {
	if chosen == nil || *chosen == "" {
		return false
	}
	for _, o := range opts {
		if o.IsCorrect {
			return o.ID == *chosen
		}
	}
	return false
}

func textOf(ans *model.AnswerItem) (string, bool) {
	if ans.TextAnswer == nil {
		return "", false
	}
	t := strings.TrimSpace(*ans.TextAnswer)
	return t, t != ""
}

func setObjective(ans *model.AnswerItem, correct bool) {
	score := 0.0
	if correct {
		score = 1
	}
	ans.IsCorrect = &correct
	ans.ScoreAwarded = &score
	ans.RubricScore = nil
	ans.AIFeedback = nil
}

func setSubjective(ans *model.AnswerItem, rubric float64, feedback string) {
	rubric = min(max(rubric, 0), 1)
	score := round2(rubric)
	ans.RubricScore = &rubric
	ans.ScoreAwarded = &score
	if feedback != "" {
		ans.AIFeedback = &feedback
	} else {
		ans.AIFeedback = nil
	}
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
