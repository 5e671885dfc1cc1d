package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamMonitorChannel returns the Redis PubSub channel name for a session monitor
func (r *CacheKeyStruct) ExamMonitorChannel(sessionID int64) string {
	return fmt.Sprintf("exam:%d:monitor", sessionID)
}

// TeacherTokenKey returns the cache key marking a teacher JWT as live
func (r *CacheKeyStruct) TeacherTokenKey(jti string) string {
	return fmt.Sprintf("teacher:token:%s", jti)
}

var CacheKey = NewCacheKeyStruct()
