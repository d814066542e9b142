package service

import (
	"github.com/stemsi/exstem-attempt/internal/model"
)

var difficultyLadder = []model.Difficulty{
	model.DifficultyEasy,
	model.DifficultyMedium,
	model.DifficultyHard,
}

// stepDifficulty moves one rung up or down the ladder, clamped at both ends.
func stepDifficulty(cur model.Difficulty, up bool) model.Difficulty {
	idx := 1
	for i, d := range difficultyLadder {
		if d == cur {
			idx = i
			break
		}
	}
	if up {
		idx++
	} else {
		idx--
	}
	idx = min(max(idx, 0), len(difficultyLadder)-1)
	return difficultyLadder[idx]
}

// latestSignal finds the most recent answer that says whether the student is doing well.
// Graded answers use their stored result. Ungraded objective answers are evaluated on the
// spot; ungraded subjective answers carry no signal until they have a rubric score.
func latestSignal(answers []model.AnswerItem, questions map[model.QuestionID]model.Question) (model.QuestionID, bool, bool) {
	for i := len(answers) - 1; i >= 0; i-- {
		ans := answers[i]
		switch {
		case ans.IsCorrect != nil:
			return ans.QuestionID, *ans.IsCorrect, true
		case ans.RubricScore != nil:
			return ans.QuestionID, *ans.RubricScore > 0.6, true
		}

		q, ok := questions[ans.QuestionID]
		if !ok || q.IsSubjective() || !ans.HasResponse() {
			continue
		}
		return ans.QuestionID, gradeObjective(q, &ans), true
	}
	return "", false, false
}

// selectNext advances the adaptive state and returns the next question, or ok=false when
// every question has been asked. pool is the candidate list in a stable order.
func selectNext(state *model.AdaptiveState, pool []model.QuestionID, answers []model.AnswerItem,
	questions map[model.QuestionID]model.Question, rng Random) (model.QuestionID, bool) {

	if state.CurrentDifficulty == "" {
		state.CurrentDifficulty = model.DifficultyMedium
	}
	if qid, up, ok := latestSignal(answers, questions); ok && qid != state.LastEvaluatedQuestionID {
		state.CurrentDifficulty = stepDifficulty(state.CurrentDifficulty, up)
		state.LastEvaluatedQuestionID = qid
	}

	var sameLevel, remaining []model.QuestionID
	for _, qid := range pool {
		if state.HasAsked(qid) {
			continue
		}
		q, ok := questions[qid]
		if !ok {
			continue
		}
		remaining = append(remaining, qid)
		if q.Tags.Difficulty == state.CurrentDifficulty {
			sameLevel = append(sameLevel, qid)
		}
	}

	candidates := sameLevel
	if len(candidates) == 0 {
		candidates = remaining
	}
	if len(candidates) == 0 {
		return "", false
	}

	pick := candidates[rng.IntN(len(candidates))]
	state.Asked = append(state.Asked, pick)
	if topic := questions[pick].Tags.Topic; topic != "" {
		if state.TopicMix == nil {
			state.TopicMix = map[string]int{}
		}
		state.TopicMix[topic]++
	}
	return pick, true
}
