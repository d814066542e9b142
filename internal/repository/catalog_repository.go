package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// CatalogRepository reads exam definitions and questions. Authoring happens elsewhere;
// the Upsert methods exist for seeding.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetExam retrieves an exam definition by its UUID.
func (r *CatalogRepository) GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	var (
		e          model.Exam
		sections   []byte
		schedStart *time.Time
		schedEnd   *time.Time
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, mode, sections, total_duration_mins, schedule_start, schedule_end,
		        is_published, assigned_user_ids, assigned_group_labels, created_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.Mode, &sections, &e.TotalDurationMins, &schedStart, &schedEnd,
		&e.IsPublished, &e.AssignedTo.UserIDs, &e.AssignedTo.GroupLabels, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(sections, &e.Sections); err != nil {
		return nil, fmt.Errorf("decode sections of exam %s: %w", e.ID, err)
	}
	if schedStart != nil && schedEnd != nil {
		e.Schedule = &model.Schedule{StartAt: *schedStart, EndAt: *schedEnd}
	}
	return &e, nil
}

// GetQuestions retrieves the questions with the given IDs. Missing IDs are absent from the map.
func (r *CatalogRepository) GetQuestions(ctx context.Context, ids []model.QuestionID) (map[model.QuestionID]model.Question, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, type, text, COALESCE(subject, ''), COALESCE(topic, ''), difficulty,
		        COALESCE(explanation, ''), body
		 FROM questions WHERE id = ANY($1)`, keys,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := make(map[model.QuestionID]model.Question, len(ids))
	for rows.Next() {
		var (
			q     model.Question
			qType model.QuestionType
			body  []byte
		)
		if err := rows.Scan(&q.ID, &qType, &q.Text, &q.Tags.Subject, &q.Tags.Topic,
			&q.Tags.Difficulty, &q.Explanation, &body); err != nil {
			return nil, err
		}
		q.Body, err = model.DecodeQuestionBody(qType, body)
		if err != nil {
			return nil, fmt.Errorf("decode question %s: %w", q.ID, err)
		}
		questions[q.ID] = q
	}
	return questions, rows.Err()
}

// UpsertExam inserts or replaces an exam definition.
func (r *CatalogRepository) UpsertExam(ctx context.Context, e *model.Exam) error {
	sections, err := json.Marshal(e.Sections)
	if err != nil {
		return fmt.Errorf("encode sections: %w", err)
	}
	var schedStart, schedEnd *time.Time
	if e.Schedule != nil {
		schedStart, schedEnd = &e.Schedule.StartAt, &e.Schedule.EndAt
	}
	userIDs, groups := e.AssignedTo.UserIDs, e.AssignedTo.GroupLabels
	if userIDs == nil {
		userIDs = []string{}
	}
	if groups == nil {
		groups = []string{}
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO exams (id, title, mode, sections, total_duration_mins, schedule_start, schedule_end,
		                    is_published, assigned_user_ids, assigned_group_labels)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		     title = EXCLUDED.title, mode = EXCLUDED.mode, sections = EXCLUDED.sections,
		     total_duration_mins = EXCLUDED.total_duration_mins,
		     schedule_start = EXCLUDED.schedule_start, schedule_end = EXCLUDED.schedule_end,
		     is_published = EXCLUDED.is_published,
		     assigned_user_ids = EXCLUDED.assigned_user_ids,
		     assigned_group_labels = EXCLUDED.assigned_group_labels`,
		e.ID, e.Title, e.Mode, sections, e.TotalDurationMins, schedStart, schedEnd,
		e.IsPublished, userIDs, groups,
	)
	return err
}

// UpsertQuestions inserts or replaces questions in a single batch.
func (r *CatalogRepository) UpsertQuestions(ctx context.Context, questions []model.Question) error {
	batch := &pgx.Batch{}
	for _, q := range questions {
		if q.Body == nil {
			return fmt.Errorf("question %s: missing body", q.ID)
		}
		body, err := json.Marshal(q.Body)
		if err != nil {
			return fmt.Errorf("encode question %s: %w", q.ID, err)
		}
		difficulty := q.Tags.Difficulty
		if difficulty == "" {
			difficulty = model.DifficultyMedium
		}
		batch.Queue(
			`INSERT INTO questions (id, type, text, subject, topic, difficulty, explanation, body)
			 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, NULLIF($7, ''), $8)
			 ON CONFLICT (id) DO UPDATE SET
			     type = EXCLUDED.type, text = EXCLUDED.text, subject = EXCLUDED.subject,
			     topic = EXCLUDED.topic, difficulty = EXCLUDED.difficulty,
			     explanation = EXCLUDED.explanation, body = EXCLUDED.body`,
			q.ID, q.Type(), q.Text, q.Tags.Subject, q.Tags.Topic, difficulty, q.Explanation, body,
		)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}
