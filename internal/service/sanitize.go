package service

import (
	"github.com/stemsi/exstem-attempt/internal/model"
)

// studentQuestion strips correctness data and applies the attempt's option order.
func studentQuestion(q model.Question, optionOrder []model.OptionID, withExplanation bool) model.StudentQuestion {
	sq := model.StudentQuestion{
		ID:   q.ID,
		Type: q.Type(),
		Text: q.Text,
		Tags: q.Tags,
	}

	if ar, ok := q.Body.(model.AssertionReasonBody); ok {
		sq.Assertion = ar.Assertion
		sq.Reason = ar.Reason
	}

	if opts := q.Options(); len(opts) > 0 {
		byID := make(map[model.OptionID]model.Option, len(opts))
		for _, o := range opts {
			byID[o.ID] = o
		}
		seen := make(map[model.OptionID]bool, len(opts))
		for _, id := range optionOrder {
			if o, ok := byID[id]; ok && !seen[id] {
				sq.Options = append(sq.Options, model.StudentOption{ID: o.ID, Text: o.Text})
				seen[id] = true
			}
		}
		// Options missing from the snapshot keep catalog order at the end.
		for _, o := range opts {
			if !seen[o.ID] {
				sq.Options = append(sq.Options, model.StudentOption{ID: o.ID, Text: o.Text})
			}
		}
	}

	if withExplanation {
		sq.Explanation = q.Explanation
	}
	return sq
}

// ForStudent hides scores and grading feedback until the result is published,
// and never exposes the activity log.
func ForStudent(a model.Attempt) model.Attempt {
	a.ActivityLogs = nil
	if a.ResultPublished {
		return a
	}
	a.TotalScore = nil
	answers := make([]model.AnswerItem, len(a.Answers))
	for i, ans := range a.Answers {
		ans.IsCorrect = nil
		ans.ScoreAwarded = nil
		ans.RubricScore = nil
		ans.AIFeedback = nil
		answers[i] = ans
	}
	a.Answers = answers
	return a
}

// viewSections lists sections in snapshot order with their shuffled question IDs.
func viewSections(exam *model.Exam, snap *model.Snapshot) []model.ViewSection {
	sections := make([]model.ViewSection, 0, len(snap.SectionOrder))
	for _, sid := range snap.SectionOrder {
		vs := model.ViewSection{ID: sid, QuestionIDs: snap.QuestionOrderBySection[sid]}
		if sec, ok := exam.Section(sid); ok {
			vs.Title = sec.Title
		}
		sections = append(sections, vs)
	}
	return sections
}
