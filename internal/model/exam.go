package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// ExamMode selects how an attempt is timed and how questions are served.
type ExamMode string

const (
	ExamModePractice ExamMode = "practice"
	ExamModeLive     ExamMode = "live"
	ExamModeAdaptive ExamMode = "adaptive"
)

// SectionID identifies a section inside an exam.
type SectionID string

// Schedule is the window during which an untargeted exam is open.
type Schedule struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

// Contains reports whether t falls inside the window, bounds included.
func (s Schedule) Contains(t time.Time) bool {
	return !t.Before(s.StartAt) && !t.After(s.EndAt)
}

// Assignment targets an exam at specific users or groups.
type Assignment struct {
	UserIDs     []string `json:"user_ids"`
	GroupLabels []string `json:"group_labels"`
}

// Section groups question references and their shuffle policy.
type Section struct {
	ID                  SectionID    `json:"id"`
	Title               string       `json:"title"`
	QuestionIDs         []QuestionID `json:"question_ids"`
	SectionDurationMins *int         `json:"section_duration_mins,omitempty"`
	ShuffleQuestions    bool         `json:"shuffle_questions"`
	ShuffleOptions      bool         `json:"shuffle_options"`
}

// Exam is the immutable definition an attempt is built from.
type Exam struct {
	ID                uuid.UUID  `json:"id"`
	Title             string     `json:"title"`
	Sections          []Section  `json:"sections"`
	TotalDurationMins *int       `json:"total_duration_mins,omitempty"`
	Mode              ExamMode   `json:"mode"`
	Schedule          *Schedule  `json:"schedule,omitempty"`
	IsPublished       bool       `json:"is_published"`
	AssignedTo        Assignment `json:"assigned_to"`
	CreatedAt         time.Time  `json:"created_at"`
}

// QuestionIDs returns every question reference across all sections, in section order.
func (e *Exam) QuestionIDs() []QuestionID {
	var ids []QuestionID
	for _, s := range e.Sections {
		ids = append(ids, s.QuestionIDs...)
	}
	return ids
}

// QuestionCount is the number of question references, duplicates included.
func (e *Exam) QuestionCount() int {
	n := 0
	for _, s := range e.Sections {
		n += len(s.QuestionIDs)
	}
	return n
}

// Section looks a section up by ID.
func (e *Exam) Section(id SectionID) (Section, bool) {
	for _, s := range e.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

// IsTargeted reports whether the exam is restricted to specific users or groups.
func (e *Exam) IsTargeted() bool {
	return len(e.AssignedTo.UserIDs) > 0 || len(e.AssignedTo.GroupLabels) > 0
}

// IsAssigned reports whether the user or any of their groups is targeted.
func (e *Exam) IsAssigned(userID string, groups []string) bool {
	if slices.Contains(e.AssignedTo.UserIDs, userID) {
		return true
	}
	for _, g := range groups {
		if slices.Contains(e.AssignedTo.GroupLabels, g) {
			return true
		}
	}
	return false
}

// Deadline returns startedAt + totalDurationMins for live exams.
// ok is false when the exam carries no enforced deadline.
func (e *Exam) Deadline(startedAt time.Time) (deadline time.Time, ok bool) {
	if e.Mode != ExamModeLive || e.TotalDurationMins == nil || *e.TotalDurationMins <= 0 {
		return time.Time{}, false
	}
	return startedAt.Add(time.Duration(*e.TotalDurationMins) * time.Minute), true
}

// ExamSummary is the exam header shown alongside an attempt.
type ExamSummary struct {
	ID                uuid.UUID  `json:"id"`
	Title             string     `json:"title"`
	Mode              ExamMode   `json:"mode"`
	TotalDurationMins *int       `json:"total_duration_mins,omitempty"`
	Schedule          *Schedule  `json:"schedule,omitempty"`
	Deadline          *time.Time `json:"deadline,omitempty"`
	RemainingSec      *int64     `json:"remaining_sec,omitempty"`
}
