package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

// AttemptService runs the attempt lifecycle: start, answer, submit, adaptive
// selection, activity logging and publication.
type AttemptService struct {
	attempts AttemptStore
	catalog  Catalog
	activity ActivityLog
	events   EventPublisher
	grader   *Grader
	log      zerolog.Logger

	now     func() time.Time
	rng     Random
	retries int
}

// Option customises an AttemptService.
type Option func(*AttemptService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *AttemptService) { s.now = now }
}

// WithRandom replaces the shuffling and selection source.
func WithRandom(rng Random) Option {
	return func(s *AttemptService) { s.rng = rng }
}

// WithWriteRetries sets how many times a conflicting write is re-applied.
func WithWriteRetries(n int) Option {
	return func(s *AttemptService) {
		if n > 0 {
			s.retries = n
		}
	}
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attempts AttemptStore,
	catalog Catalog,
	activity ActivityLog,
	events EventPublisher,
	grader *Grader,
	log zerolog.Logger,
	opts ...Option,
) *AttemptService {
	s := &AttemptService{
		attempts: attempts,
		catalog:  catalog,
		activity: activity,
		events:   events,
		grader:   grader,
		log:      log.With().Str("component", "attempt_service").Logger(),
		now:      time.Now,
		rng:      globalRandom{},
		retries:  3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ─── Start ──────────────────────────────────────────────────────────────────

// Start returns the caller's attempt for the exam, creating it on first call.
func (s *AttemptService) Start(ctx context.Context, examID uuid.UUID, caller model.Caller) (*model.Attempt, error) {
	existing, err := s.attempts.GetByExamAndUser(ctx, examID, caller.UserID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check existing attempt: %w", err)
	}

	exam, err := s.getExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := authorizeStart(exam, caller, now); err != nil {
		return nil, err
	}

	questions, err := s.catalog.GetQuestions(ctx, exam.QuestionIDs())
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	snapshot, err := BuildSnapshot(exam, questions, s.rng)
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}

	maxScore := float64(exam.QuestionCount())
	attempt := &model.Attempt{
		ID:        uuid.New(),
		ExamID:    exam.ID,
		UserID:    caller.UserID,
		Mode:      exam.Mode,
		Status:    model.AttemptStatusInProgress,
		StartedAt: &now,
		Snapshot:  snapshot,
		Answers:   []model.AnswerItem{},
		MaxScore:  &maxScore,
	}

	created, err := s.attempts.Create(ctx, attempt)
	if err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	if created {
		s.log.Info().
			Str("attempt_id", attempt.ID.String()).
			Str("exam_id", exam.ID.String()).
			Str("user_id", caller.UserID).
			Msg("Attempt started")
		s.publish(ctx, attempt, EventStarted)
	}
	return attempt, nil
}

// authorizeStart allows targeted users and groups. Untargeted exams are open
// inside their schedule window, or always when they have none.
func authorizeStart(exam *model.Exam, caller model.Caller, now time.Time) error {
	if !exam.IsPublished {
		return fmt.Errorf("exam is not published: %w", ErrForbidden)
	}
	if exam.IsTargeted() {
		if exam.IsAssigned(caller.UserID, caller.Groups) {
			return nil
		}
		return fmt.Errorf("exam is not assigned to caller: %w", ErrForbidden)
	}
	if exam.Schedule != nil && !exam.Schedule.Contains(now) {
		return fmt.Errorf("exam is outside its schedule window: %w", ErrForbidden)
	}
	return nil
}

// ─── Views ──────────────────────────────────────────────────────────────────

// View returns the student-facing, sanitized attempt.
func (s *AttemptService) View(ctx context.Context, attemptID uuid.UUID, userID string) (*model.AttemptView, error) {
	a, err := s.loadOwned(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}
	exam, err := s.getExam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}

	visible := orderedQuestionIDs(&a.Snapshot)
	sections := viewSections(exam, &a.Snapshot)
	if a.Mode == model.ExamModeAdaptive && a.Snapshot.AdaptiveState != nil {
		visible, sections = onlyAsked(a.Snapshot.AdaptiveState, visible, sections)
	}

	questions, err := s.catalog.GetQuestions(ctx, visible)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	view := &model.AttemptView{
		Attempt:     ForStudent(*a),
		ExamSummary: examSummary(exam, a, s.now()),
		Sections:    sections,
		Questions:   make([]model.StudentQuestion, 0, len(visible)),
	}
	for _, qid := range visible {
		q, ok := questions[qid]
		if !ok {
			continue
		}
		showExplanation := false
		if a.Mode == model.ExamModePractice {
			if ans := a.Answer(qid); ans != nil && ans.HasResponse() {
				showExplanation = true
			}
		}
		view.Questions = append(view.Questions, studentQuestion(q, a.Snapshot.OptionOrderByQuestion[qid], showExplanation))
	}
	return view, nil
}

func onlyAsked(state *model.AdaptiveState, ids []model.QuestionID, sections []model.ViewSection) ([]model.QuestionID, []model.ViewSection) {
	var visible []model.QuestionID
	for _, qid := range ids {
		if state.HasAsked(qid) {
			visible = append(visible, qid)
		}
	}
	filtered := make([]model.ViewSection, 0, len(sections))
	for _, sec := range sections {
		var qids []model.QuestionID
		for _, qid := range sec.QuestionIDs {
			if state.HasAsked(qid) {
				qids = append(qids, qid)
			}
		}
		sec.QuestionIDs = qids
		filtered = append(filtered, sec)
	}
	return visible, filtered
}

// StaffView returns the full attempt with correctness data and the activity log.
func (s *AttemptService) StaffView(ctx context.Context, attemptID uuid.UUID) (*model.StaffAttemptView, error) {
	a, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	exam, err := s.getExam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}

	ids := orderedQuestionIDs(&a.Snapshot)
	questions, err := s.catalog.GetQuestions(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	logs, err := s.activity.ListByAttempt(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("load activity log: %w", err)
	}
	a.ActivityLogs = logs

	view := &model.StaffAttemptView{
		Attempt:     *a,
		ExamSummary: examSummary(exam, a, s.now()),
		Sections:    viewSections(exam, &a.Snapshot),
		Questions:   make([]model.Question, 0, len(ids)),
	}
	for _, qid := range ids {
		if q, ok := questions[qid]; ok {
			view.Questions = append(view.Questions, q)
		}
	}
	return view, nil
}

// Result returns the student's result summary. Scores stay hidden until published.
func (s *AttemptService) Result(ctx context.Context, attemptID uuid.UUID, userID string) (*model.AttemptResult, error) {
	a, err := s.loadOwned(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}
	res := &model.AttemptResult{
		AttemptID:       a.ID,
		Status:          a.Status,
		SubmittedAt:     a.SubmittedAt,
		ResultPublished: a.ResultPublished,
	}
	if a.ResultPublished {
		res.TotalScore = a.TotalScore
		res.MaxScore = a.MaxScore
		res.Answers = a.Answers
	}
	return res, nil
}

// ListByExam returns a page of attempt summaries for teachers.
func (s *AttemptService) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.AttemptSummary, int64, error) {
	if _, err := s.getExam(ctx, examID); err != nil {
		return nil, 0, err
	}
	return s.attempts.ListByExam(ctx, examID, page, perPage)
}

// ─── Answers ────────────────────────────────────────────────────────────────

// SaveAnswer upserts an answer. A live attempt past its deadline is submitted
// instead and returned without the edit.
func (s *AttemptService) SaveAnswer(ctx context.Context, attemptID uuid.UUID, userID string, req model.SaveAnswerRequest) (*model.Attempt, error) {
	return s.editAnswer(ctx, attemptID, userID, req.QuestionID, func(item *model.AnswerItem) {
		if req.ChosenOptionID != nil {
			item.ChosenOptionID = req.ChosenOptionID
		}
		if req.TextAnswer != nil {
			item.TextAnswer = req.TextAnswer
		}
		if req.IsMarkedForReview != nil {
			item.IsMarkedForReview = *req.IsMarkedForReview
		}
		if req.TimeSpentSec != nil {
			item.TimeSpentSec = *req.TimeSpentSec
		}
	})
}

// MarkForReview toggles the review flag through the same path as SaveAnswer.
func (s *AttemptService) MarkForReview(ctx context.Context, attemptID uuid.UUID, userID string, questionID model.QuestionID, marked bool) (*model.Attempt, error) {
	return s.editAnswer(ctx, attemptID, userID, questionID, func(item *model.AnswerItem) {
		item.IsMarkedForReview = marked
	})
}

func (s *AttemptService) editAnswer(ctx context.Context, attemptID uuid.UUID, userID string, questionID model.QuestionID, apply func(*model.AnswerItem)) (*model.Attempt, error) {
	for range s.retries {
		a, err := s.loadOwned(ctx, attemptID, userID)
		if err != nil {
			return nil, err
		}
		if !a.IsEditable() {
			return nil, fmt.Errorf("attempt is %s: %w", a.Status, ErrNotEditable)
		}
		exam, err := s.getExam(ctx, a.ExamID)
		if err != nil {
			return nil, err
		}

		if deadlinePassed(exam, a, s.now()) {
			s.log.Info().Str("attempt_id", a.ID.String()).Msg("Deadline passed on save, auto-submitting")
			submitted, err := s.submit(ctx, a, exam, true)
			if errors.Is(err, ErrAlreadySubmitted) {
				return s.load(ctx, attemptID)
			}
			return submitted, err
		}

		if !a.Snapshot.Contains(questionID) {
			return nil, fmt.Errorf("question %s is not part of this attempt: %w", questionID, ErrNotFound)
		}
		if a.Mode == model.ExamModeAdaptive && !a.Snapshot.WasAsked(questionID) {
			return nil, fmt.Errorf("question %s has not been served yet: %w", questionID, ErrNotFound)
		}

		item := model.AnswerItem{QuestionID: questionID}
		if existing := a.Answer(questionID); existing != nil {
			item = *existing
		}
		apply(&item)
		a.UpsertAnswer(item)

		err = s.attempts.Update(ctx, a)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save answer: %w", err)
		}
		s.publish(ctx, a, EventAnswered)
		return a, nil
	}
	return nil, ErrConflict
}

// ─── Submit ─────────────────────────────────────────────────────────────────

// Submit grades and closes the attempt. A live attempt past its deadline is
// always recorded as auto-submitted.
func (s *AttemptService) Submit(ctx context.Context, attemptID uuid.UUID, userID string, auto bool) (*model.Attempt, error) {
	a, err := s.loadOwned(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}
	exam, err := s.getExam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, a, exam, auto)
}

// submit runs on a context detached from the caller's cancellation so a dropped
// connection cannot leave grading half done.
func (s *AttemptService) submit(ctx context.Context, a *model.Attempt, exam *model.Exam, auto bool) (*model.Attempt, error) {
	ctx = context.WithoutCancel(ctx)

	questions, err := s.catalog.GetQuestions(ctx, orderedQuestionIDs(&a.Snapshot))
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	// Grading survives version conflicts; only responses changed in between are re-graded.
	memo := gradeMemo{}
	for i := 0; i < s.retries; i++ {
		if i > 0 {
			if a, err = s.load(ctx, a.ID); err != nil {
				return nil, err
			}
		}
		if !a.IsSubmittable() {
			return nil, fmt.Errorf("attempt is %s: %w", a.Status, ErrAlreadySubmitted)
		}

		now := s.now()
		isAuto := auto || deadlinePassed(exam, a, now)

		total := s.grader.gradeAnswers(ctx, a.Answers, questions, memo)
		a.TotalScore = &total
		a.SubmittedAt = &now
		if a.MaxScore == nil {
			maxScore := float64(exam.QuestionCount())
			a.MaxScore = &maxScore
		}
		a.Status = model.AttemptStatusSubmitted
		if isAuto {
			a.Status = model.AttemptStatusAutoSubmitted
		}

		err = s.attempts.Update(ctx, a)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("submit attempt: %w", err)
		}

		s.log.Info().
			Str("attempt_id", a.ID.String()).
			Str("status", string(a.Status)).
			Float64("total_score", total).
			Msg("Attempt submitted")
		s.publish(ctx, a, EventSubmitted)
		return a, nil
	}
	return nil, ErrConflict
}

// ─── Adaptive ───────────────────────────────────────────────────────────────

// Next serves the next adaptive question, or Done once every question was asked.
func (s *AttemptService) Next(ctx context.Context, attemptID uuid.UUID, userID string) (*model.NextQuestion, error) {
	for range s.retries {
		a, err := s.loadOwned(ctx, attemptID, userID)
		if err != nil {
			return nil, err
		}
		if a.Mode != model.ExamModeAdaptive {
			return nil, fmt.Errorf("next requires an adaptive exam, got %s: %w", a.Mode, ErrInvalidMode)
		}
		if !a.IsEditable() {
			return nil, fmt.Errorf("attempt is %s: %w", a.Status, ErrNotEditable)
		}

		pool := orderedQuestionIDs(&a.Snapshot)
		questions, err := s.catalog.GetQuestions(ctx, pool)
		if err != nil {
			return nil, fmt.Errorf("load questions: %w", err)
		}

		if a.Snapshot.AdaptiveState == nil {
			a.Snapshot.AdaptiveState = &model.AdaptiveState{CurrentDifficulty: model.DifficultyMedium}
		}
		before := *a.Snapshot.AdaptiveState
		qid, ok := selectNext(a.Snapshot.AdaptiveState, pool, a.Answers, questions, s.rng)

		if !ok && !adaptiveChanged(before, *a.Snapshot.AdaptiveState) {
			return &model.NextQuestion{Done: true}, nil
		}

		err = s.attempts.Update(ctx, a)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save adaptive state: %w", err)
		}
		if !ok {
			return &model.NextQuestion{Done: true}, nil
		}
		return &model.NextQuestion{QuestionID: &qid}, nil
	}
	return nil, ErrConflict
}

func adaptiveChanged(before, after model.AdaptiveState) bool {
	return before.CurrentDifficulty != after.CurrentDifficulty ||
		before.LastEvaluatedQuestionID != after.LastEvaluatedQuestionID ||
		len(before.Asked) != len(after.Asked)
}

// ─── Activity & publication ─────────────────────────────────────────────────

// LogActivity appends a proctoring event to the caller's attempt.
func (s *AttemptService) LogActivity(ctx context.Context, attemptID uuid.UUID, userID string, req model.LogActivityRequest) (*model.ActivityLogEntry, error) {
	a, err := s.loadOwned(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}

	entry := model.ActivityLogEntry{
		AttemptID: a.ID,
		At:        s.now(),
		Type:      req.Type,
		Meta:      req.Meta,
	}
	if err := s.activity.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("append activity: %w", err)
	}

	s.events.Publish(ctx, a.ExamID, MonitorEvent{
		Type:      EventActivity,
		AttemptID: a.ID,
		UserID:    a.UserID,
		Activity:  entry.Type,
		At:        entry.At,
	})
	return &entry, nil
}

// Publish sets the result publication flag and marks the attempt graded.
// Attempts that were never submitted have no score and are rejected.
func (s *AttemptService) Publish(ctx context.Context, attemptID uuid.UUID, publish bool) (*model.Attempt, error) {
	for range s.retries {
		a, err := s.load(ctx, attemptID)
		if err != nil {
			return nil, err
		}
		if a.IsSubmittable() {
			return nil, fmt.Errorf("attempt is %s and has not been graded: %w", a.Status, ErrNotEditable)
		}
		a.ResultPublished = publish
		a.Status = model.AttemptStatusGraded

		err = s.attempts.Update(ctx, a)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("publish attempt: %w", err)
		}
		s.publish(ctx, a, EventPublished)
		return a, nil
	}
	return nil, ErrConflict
}

// ─── helpers ────────────────────────────────────────────────────────────────

func (s *AttemptService) load(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("attempt %s: %w", attemptID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	return a, nil
}

func (s *AttemptService) loadOwned(ctx context.Context, attemptID uuid.UUID, userID string) (*model.Attempt, error) {
	a, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, fmt.Errorf("attempt %s belongs to another user: %w", attemptID, ErrForbidden)
	}
	return a, nil
}

func (s *AttemptService) getExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.catalog.GetExam(ctx, examID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("exam %s: %w", examID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load exam: %w", err)
	}
	return exam, nil
}

func (s *AttemptService) publish(ctx context.Context, a *model.Attempt, eventType string) {
	s.events.Publish(ctx, a.ExamID, MonitorEvent{
		Type:      eventType,
		AttemptID: a.ID,
		UserID:    a.UserID,
		Status:    a.Status,
		Answered:  answeredCount(a),
		At:        s.now(),
	})
}
