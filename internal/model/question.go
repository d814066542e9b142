package model

import (
	"encoding/json"
	"fmt"
)

// QuestionID identifies a catalog question.
type QuestionID string

// OptionID identifies an option within a question.
type OptionID string

// QuestionType is the discriminator of the question variants.
type QuestionType string

const (
	QuestionTypeMCQ             QuestionType = "mcq"
	QuestionTypeTrueFalse       QuestionType = "truefalse"
	QuestionTypeFill            QuestionType = "fill"
	QuestionTypeShort           QuestionType = "short"
	QuestionTypeLong            QuestionType = "long"
	QuestionTypeAssertionReason QuestionType = "assertionreason"
	QuestionTypeInteger         QuestionType = "integer"
)

// Difficulty is a rung of the adaptive ladder.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Tags classify a question for selection and reporting.
type Tags struct {
	Subject    string     `json:"subject,omitempty"`
	Topic      string     `json:"topic,omitempty"`
	Difficulty Difficulty `json:"difficulty"`
}

// Option is a selectable answer. IsCorrect never leaves the server on student views.
type Option struct {
	ID        OptionID `json:"id"`
	Text      string   `json:"text"`
	IsCorrect bool     `json:"is_correct"`
}

// QuestionBody is implemented by each question variant.
type QuestionBody interface {
	Type() QuestionType
	isQuestionBody()
}

type MCQBody struct {
	Options []Option `json:"options"`
}

type TrueFalseBody struct {
	Options           []Option `json:"options,omitempty"`
	CorrectAnswerText string   `json:"correct_answer_text,omitempty"`
}

type FillBody struct {
	CorrectAnswerText string `json:"correct_answer_text"`
}

// ShortBody and LongBody carry an optional reference answer used as the rubric.
type ShortBody struct {
	CorrectAnswerText string `json:"correct_answer_text,omitempty"`
}

type LongBody struct {
	CorrectAnswerText string `json:"correct_answer_text,omitempty"`
}

type AssertionReasonBody struct {
	Assertion               string `json:"assertion"`
	Reason                  string `json:"reason"`
	AssertionIsTrue         bool   `json:"assertion_is_true"`
	ReasonIsTrue            bool   `json:"reason_is_true"`
	ReasonExplainsAssertion bool   `json:"reason_explains_assertion"`
}

type IntegerBody struct {
	IntegerAnswer     int64  `json:"integer_answer"`
	CorrectAnswerText string `json:"correct_answer_text,omitempty"`
}

func (MCQBody) Type() QuestionType             { return QuestionTypeMCQ }
func (TrueFalseBody) Type() QuestionType       { return QuestionTypeTrueFalse }
func (FillBody) Type() QuestionType            { return QuestionTypeFill }
func (ShortBody) Type() QuestionType           { return QuestionTypeShort }
func (LongBody) Type() QuestionType            { return QuestionTypeLong }
func (AssertionReasonBody) Type() QuestionType { return QuestionTypeAssertionReason }
func (IntegerBody) Type() QuestionType         { return QuestionTypeInteger }

func (MCQBody) isQuestionBody()             {}
func (TrueFalseBody) isQuestionBody()       {}
func (FillBody) isQuestionBody()            {}
func (ShortBody) isQuestionBody()           {}
func (LongBody) isQuestionBody()            {}
func (AssertionReasonBody) isQuestionBody() {}
func (IntegerBody) isQuestionBody()         {}

// Question is a catalog entry: common fields plus exactly one variant body.
type Question struct {
	ID          QuestionID
	Text        string
	Tags        Tags
	Explanation string
	Body        QuestionBody
}

// Type returns the variant discriminator, or "" if the body is unset.
func (q *Question) Type() QuestionType {
	if q.Body == nil {
		return ""
	}
	return q.Body.Type()
}

// Options returns the catalog-ordered options for variants that have them.
func (q *Question) Options() []Option {
	switch b := q.Body.(type) {
	case MCQBody:
		return b.Options
	case TrueFalseBody:
		return b.Options
	}
	return nil
}

// IsSubjective reports whether the question is graded by the AI grader.
func (q *Question) IsSubjective() bool {
	t := q.Type()
	return t == QuestionTypeShort || t == QuestionTypeLong
}

type questionEnvelope struct {
	ID          QuestionID      `json:"id"`
	Type        QuestionType    `json:"type"`
	Text        string          `json:"text"`
	Tags        Tags            `json:"tags"`
	Explanation string          `json:"explanation,omitempty"`
	Body        json.RawMessage `json:"body"`
}

// MarshalJSON writes the body under "body" with the variant in "type".
func (q Question) MarshalJSON() ([]byte, error) {
	if q.Body == nil {
		return nil, fmt.Errorf("question %s: missing body", q.ID)
	}
	body, err := json.Marshal(q.Body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(questionEnvelope{
		ID:          q.ID,
		Type:        q.Body.Type(),
		Text:        q.Text,
		Tags:        q.Tags,
		Explanation: q.Explanation,
		Body:        body,
	})
}

func (q *Question) UnmarshalJSON(data []byte) error {
	var env questionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	body, err := DecodeQuestionBody(env.Type, env.Body)
	if err != nil {
		return fmt.Errorf("question %s: %w", env.ID, err)
	}

	*q = Question{
		ID:          env.ID,
		Text:        env.Text,
		Tags:        env.Tags,
		Explanation: env.Explanation,
		Body:        body,
	}
	return nil
}

// DecodeQuestionBody decodes a variant body stored separately from its discriminator.
func DecodeQuestionBody(t QuestionType, raw json.RawMessage) (QuestionBody, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	switch t {
	case QuestionTypeMCQ:
		return decodeAs[MCQBody](raw)
	case QuestionTypeTrueFalse:
		return decodeAs[TrueFalseBody](raw)
	case QuestionTypeFill:
		return decodeAs[FillBody](raw)
	case QuestionTypeShort:
		return decodeAs[ShortBody](raw)
	case QuestionTypeLong:
		return decodeAs[LongBody](raw)
	case QuestionTypeAssertionReason:
		return decodeAs[AssertionReasonBody](raw)
	case QuestionTypeInteger:
		return decodeAs[IntegerBody](raw)
	}
	return nil, fmt.Errorf("unknown question type %q", t)
}

func decodeAs[T QuestionBody](raw json.RawMessage) (QuestionBody, error) {
	var b T
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, err
	}
	return b, nil
}
