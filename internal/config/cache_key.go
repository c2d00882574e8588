package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AssessmentAnswersKey returns the cache key for a learner's autosaved answers
// on one assessment. The hash maps item id to the latest answer text.
func (r *CacheKeyStruct) AssessmentAnswersKey(assessmentID string) string {
	return fmt.Sprintf("assessment:%s:answers", assessmentID)
}

var CacheKey = NewCacheKeyStruct()
