package service

import (
	"time"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// deadlinePassed reports whether a live attempt is past startedAt + totalDurationMins.
// Practice and adaptive attempts never expire.
func deadlinePassed(exam *model.Exam, a *model.Attempt, now time.Time) bool {
	if a.StartedAt == nil {
		return false
	}
	deadline, ok := exam.Deadline(*a.StartedAt)
	return ok && now.After(deadline)
}

// examSummary builds the header shown with an attempt, including the remaining time
// for live attempts that are still running.
func examSummary(exam *model.Exam, a *model.Attempt, now time.Time) model.ExamSummary {
	sum := model.ExamSummary{
		ID:                exam.ID,
		Title:             exam.Title,
		Mode:              exam.Mode,
		TotalDurationMins: exam.TotalDurationMins,
		Schedule:          exam.Schedule,
	}
	if a.StartedAt == nil {
		return sum
	}
	deadline, ok := exam.Deadline(*a.StartedAt)
	if !ok {
		return sum
	}
	sum.Deadline = &deadline
	if a.IsEditable() {
		remaining := max(int64(deadline.Sub(now)/time.Second), 0)
		sum.RemainingSec = &remaining
	}
	return sum
}
