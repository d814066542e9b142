package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt lifecycle states.
type AttemptStatus string

const (
	AttemptStatusCreated       AttemptStatus = "created"
	AttemptStatusInProgress    AttemptStatus = "in-progress"
	AttemptStatusSubmitted     AttemptStatus = "submitted"
	AttemptStatusAutoSubmitted AttemptStatus = "auto-submitted"
	AttemptStatusGraded        AttemptStatus = "graded"
)

// AdaptiveState drives question selection for adaptive attempts.
type AdaptiveState struct {
	Asked             []QuestionID   `json:"asked"`
	CurrentDifficulty Difficulty     `json:"current_difficulty"`
	TopicMix          map[string]int `json:"topic_mix,omitempty"`
	// LastEvaluatedQuestionID is the answer that last moved the ladder.
	LastEvaluatedQuestionID QuestionID `json:"last_evaluated_question_id,omitempty"`
}

// HasAsked reports whether qid was already served.
func (s *AdaptiveState) HasAsked(qid QuestionID) bool {
	for _, a := range s.Asked {
		if a == qid {
			return true
		}
	}
	return false
}

// Snapshot freezes the per-attempt ordering decided at start.
// Only AdaptiveState changes after creation.
type Snapshot struct {
	SectionOrder           []SectionID                `json:"section_order"`
	QuestionOrderBySection map[SectionID][]QuestionID `json:"question_order_by_section"`
	OptionOrderByQuestion  map[QuestionID][]OptionID  `json:"option_order_by_question"`
	AdaptiveState          *AdaptiveState             `json:"adaptive_state,omitempty"`
}

// Contains reports whether the question is part of this attempt.
func (s *Snapshot) Contains(qid QuestionID) bool {
	for _, ids := range s.QuestionOrderBySection {
		for _, id := range ids {
			if id == qid {
				return true
			}
		}
	}
	return false
}

// WasAsked reports whether the adaptive selector has served qid.
func (s *Snapshot) WasAsked(qid QuestionID) bool {
	return s.AdaptiveState != nil && slices.Contains(s.AdaptiveState.Asked, qid)
}

// AnswerItem is a student's response to one question plus its grading outcome.
type AnswerItem struct {
	QuestionID        QuestionID `json:"question_id"`
	ChosenOptionID    *OptionID  `json:"chosen_option_id,omitempty"`
	TextAnswer        *string    `json:"text_answer,omitempty"`
	IsMarkedForReview bool       `json:"is_marked_for_review"`
	TimeSpentSec      int        `json:"time_spent_sec"`
	IsCorrect         *bool      `json:"is_correct,omitempty"`
	ScoreAwarded      *float64   `json:"score_awarded,omitempty"`
	RubricScore       *float64   `json:"rubric_score,omitempty"`
	AIFeedback        *string    `json:"ai_feedback,omitempty"`
}

// HasResponse reports whether the student actually answered, as opposed to only marking.
func (a *AnswerItem) HasResponse() bool {
	return (a.ChosenOptionID != nil && *a.ChosenOptionID != "") ||
		(a.TextAnswer != nil && *a.TextAnswer != "")
}

// Attempt is one student's sitting of one exam.
type Attempt struct {
	ID              uuid.UUID          `json:"id"`
	ExamID          uuid.UUID          `json:"exam_id"`
	UserID          string             `json:"user_id"`
	Mode            ExamMode           `json:"mode"`
	Status          AttemptStatus      `json:"status"`
	StartedAt       *time.Time         `json:"started_at,omitempty"`
	SubmittedAt     *time.Time         `json:"submitted_at,omitempty"`
	Snapshot        Snapshot           `json:"snapshot"`
	Answers         []AnswerItem       `json:"answers"`
	TotalScore      *float64           `json:"total_score,omitempty"`
	MaxScore        *float64           `json:"max_score,omitempty"`
	ResultPublished bool               `json:"result_published"`
	ActivityLogs    []ActivityLogEntry `json:"activity_logs,omitempty"`
	Version         int64              `json:"version"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// IsEditable reports whether answers may still change.
func (a *Attempt) IsEditable() bool {
	return a.Status == AttemptStatusInProgress
}

// IsSubmittable reports whether submit may still run.
func (a *Attempt) IsSubmittable() bool {
	return a.Status == AttemptStatusInProgress || a.Status == AttemptStatusCreated
}

// Answer returns the stored answer for qid, or nil.
func (a *Attempt) Answer(qid QuestionID) *AnswerItem {
	for i := range a.Answers {
		if a.Answers[i].QuestionID == qid {
			return &a.Answers[i]
		}
	}
	return nil
}

// UpsertAnswer replaces the item with the same question ID or appends it.
func (a *Attempt) UpsertAnswer(item AnswerItem) {
	if existing := a.Answer(item.QuestionID); existing != nil {
		*existing = item
		return
	}
	a.Answers = append(a.Answers, item)
}

// AttemptSummary is a row of the teacher-facing attempt listing.
type AttemptSummary struct {
	ID              uuid.UUID     `json:"id"`
	ExamID          uuid.UUID     `json:"exam_id"`
	UserID          string        `json:"user_id"`
	Status          AttemptStatus `json:"status"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	SubmittedAt     *time.Time    `json:"submitted_at,omitempty"`
	TotalScore      *float64      `json:"total_score,omitempty"`
	MaxScore        *float64      `json:"max_score,omitempty"`
	ResultPublished bool          `json:"result_published"`
}

// AttemptResult is the student-facing result summary. Scores are nil until published.
type AttemptResult struct {
	AttemptID       uuid.UUID     `json:"attempt_id"`
	Status          AttemptStatus `json:"status"`
	SubmittedAt     *time.Time    `json:"submitted_at,omitempty"`
	ResultPublished bool          `json:"result_published"`
	TotalScore      *float64      `json:"total_score,omitempty"`
	MaxScore        *float64      `json:"max_score,omitempty"`
	Answers         []AnswerItem  `json:"answers,omitempty"`
}

// ─── Requests ───────────────────────────────────────────────────────────────

// SaveAnswerRequest carries a partial answer; nil fields keep their stored value.
type SaveAnswerRequest struct {
	QuestionID        QuestionID `json:"question_id" binding:"required,max=128"`
	ChosenOptionID    *OptionID  `json:"chosen_option_id" binding:"omitempty,max=128"`
	TextAnswer        *string    `json:"text_answer" binding:"omitempty,max=20000"`
	IsMarkedForReview *bool      `json:"is_marked_for_review"`
	TimeSpentSec      *int       `json:"time_spent_sec" binding:"omitempty,min=0"`
}

// MarkForReviewRequest toggles the review flag of one question.
type MarkForReviewRequest struct {
	QuestionID QuestionID `json:"question_id" binding:"required,max=128"`
	Marked     *bool      `json:"marked" binding:"required"`
}

// SubmitRequest closes an attempt. The body is optional.
type SubmitRequest struct {
	Auto bool `json:"auto"`
}

// PublishRequest sets or clears the result publication flag.
type PublishRequest struct {
	Publish *bool `json:"publish" binding:"required"`
}

// NextQuestion is the adaptive selector's answer.
type NextQuestion struct {
	QuestionID *QuestionID `json:"question_id,omitempty"`
	Done       bool        `json:"done"`
}
