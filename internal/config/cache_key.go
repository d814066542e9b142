package config

import (
	"fmt"

	"github.com/google/uuid"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamDefinitionKey holds the JSON exam definition served by the catalog.
func (r *CacheKeyStruct) ExamDefinitionKey(examID uuid.UUID) string {
	return fmt.Sprintf("catalog:exam:%s", examID)
}

// QuestionKey holds the JSON form of a single catalog question.
func (r *CacheKeyStruct) QuestionKey(questionID string) string {
	return fmt.Sprintf("catalog:question:%s", questionID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID uuid.UUID) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
