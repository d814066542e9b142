package model

// StudentOption is an option stripped of correctness.
type StudentOption struct {
	ID   OptionID `json:"id"`
	Text string   `json:"text"`
}

// StudentQuestion is the sanitized form of a question shown during an attempt.
type StudentQuestion struct {
	ID          QuestionID      `json:"id"`
	Type        QuestionType    `json:"type"`
	Text        string          `json:"text"`
	Tags        Tags            `json:"tags"`
	Options     []StudentOption `json:"options,omitempty"`
	Assertion   string          `json:"assertion,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Explanation string          `json:"explanation,omitempty"`
}

// ViewSection lists a section's questions in attempt order.
type ViewSection struct {
	ID          SectionID    `json:"id"`
	Title       string       `json:"title"`
	QuestionIDs []QuestionID `json:"question_ids"`
}

// AttemptView is what a student sees when opening an attempt.
type AttemptView struct {
	Attempt     Attempt           `json:"attempt"`
	ExamSummary ExamSummary       `json:"exam_summary"`
	Sections    []ViewSection     `json:"sections"`
	Questions   []StudentQuestion `json:"questions"`
}

// StaffAttemptView is the unsanitized form for teachers and admins.
type StaffAttemptView struct {
	Attempt     Attempt       `json:"attempt"`
	ExamSummary ExamSummary   `json:"exam_summary"`
	Sections    []ViewSection `json:"sections"`
	Questions   []Question    `json:"questions"`
}
