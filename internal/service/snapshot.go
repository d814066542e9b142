package service

import (
	"fmt"
	"math/rand/v2"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// globalRandom draws from the goroutine-safe top-level math/rand/v2 source.
type globalRandom struct{}

func (globalRandom) IntN(n int) int { return rand.IntN(n) }

// shuffle is an in-place Fisher–Yates shuffle.
func shuffle[T any](rng Random, s []T) {
	for i := len(s) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

// BuildSnapshot decides the per-attempt ordering of sections, questions and options.
// Every question with options gets an entry in OptionOrderByQuestion, shuffled only
// when its section asks for it.
func BuildSnapshot(exam *model.Exam, questions map[model.QuestionID]model.Question, rng Random) (model.Snapshot, error) {
	snap := model.Snapshot{
		SectionOrder:           make([]model.SectionID, 0, len(exam.Sections)),
		QuestionOrderBySection: make(map[model.SectionID][]model.QuestionID, len(exam.Sections)),
		OptionOrderByQuestion:  make(map[model.QuestionID][]model.OptionID),
	}

	for _, sec := range exam.Sections {
		snap.SectionOrder = append(snap.SectionOrder, sec.ID)

		order := append([]model.QuestionID(nil), sec.QuestionIDs...)
		if sec.ShuffleQuestions {
			shuffle(rng, order)
		}
		snap.QuestionOrderBySection[sec.ID] = order

		for _, qid := range sec.QuestionIDs {
			q, ok := questions[qid]
			if !ok {
				return model.Snapshot{}, fmt.Errorf("section %s references missing question %s", sec.ID, qid)
			}
			opts := q.Options()
			if len(opts) == 0 {
				continue
			}
			if _, done := snap.OptionOrderByQuestion[qid]; done {
				continue
			}
			ids := make([]model.OptionID, len(opts))
			for i, o := range opts {
				ids[i] = o.ID
			}
			if sec.ShuffleOptions {
				shuffle(rng, ids)
			}
			snap.OptionOrderByQuestion[qid] = ids
		}
	}

	if exam.Mode == model.ExamModeAdaptive {
		snap.AdaptiveState = &model.AdaptiveState{
			Asked:             []model.QuestionID{},
			CurrentDifficulty: model.DifficultyMedium,
			TopicMix:          map[string]int{},
		}
	}
	return snap, nil
}

// orderedQuestionIDs flattens the snapshot into display order, dropping repeats.
func orderedQuestionIDs(snap *model.Snapshot) []model.QuestionID {
	seen := make(map[model.QuestionID]bool)
	var ids []model.QuestionID
	for _, sid := range snap.SectionOrder {
		for _, qid := range snap.QuestionOrderBySection[sid] {
			if !seen[qid] {
				seen[qid] = true
				ids = append(ids, qid)
			}
		}
	}
	return ids
}
