package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// CachedCatalog is a Redis read-through cache in front of the catalog.
// Exams and questions are treated as immutable once attempts reference them,
// so entries are only refreshed by TTL or Invalidate.
type CachedCatalog struct {
	source Catalog
	rdb    *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCachedCatalog creates a new CachedCatalog.
func NewCachedCatalog(source Catalog, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedCatalog {
	return &CachedCatalog{
		source: source,
		rdb:    rdb,
		ttl:    ttl,
		log:    log.With().Str("component", "catalog_cache").Logger(),
	}
}

func (c *CachedCatalog) GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	key := config.CacheKey.ExamDefinitionKey(id)

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var exam model.Exam
		if jsonErr := json.Unmarshal(data, &exam); jsonErr == nil {
			return &exam, nil
		}
		c.log.Warn().Str("exam_id", id.String()).Msg("Discarding corrupt cached exam")
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn().Err(err).Msg("Catalog cache read failed, falling back to source")
	}

	exam, err := c.source.GetExam(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(exam); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.Warn().Err(err).Msg("Failed to cache exam")
		}
	}
	return exam, nil
}

func (c *CachedCatalog) GetQuestions(ctx context.Context, ids []model.QuestionID) (map[model.QuestionID]model.Question, error) {
	out := make(map[model.QuestionID]model.Question, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = config.CacheKey.QuestionKey(string(id))
	}

	var missing []model.QuestionID
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.Warn().Err(err).Msg("Catalog cache read failed, falling back to source")
		missing = ids
	} else {
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				missing = append(missing, ids[i])
				continue
			}
			var q model.Question
			if err := json.Unmarshal([]byte(s), &q); err != nil {
				missing = append(missing, ids[i])
				continue
			}
			out[q.ID] = q
		}
	}

	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := c.source.GetQuestions(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	pipe := c.rdb.Pipeline()
	for id, q := range fetched {
		out[id] = q
		if data, err := json.Marshal(q); err == nil {
			pipe.Set(ctx, config.CacheKey.QuestionKey(string(id)), data, c.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn().Err(err).Msg("Failed to cache questions")
	}
	return out, nil
}

// Invalidate drops the cached exam definition and its questions.
func (c *CachedCatalog) Invalidate(ctx context.Context, exam *model.Exam) error {
	keys := []string{config.CacheKey.ExamDefinitionKey(exam.ID)}
	for _, qid := range exam.QuestionIDs() {
		keys = append(keys, config.CacheKey.QuestionKey(string(qid)))
	}
	return c.rdb.Del(ctx, keys...).Err()
}
