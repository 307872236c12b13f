package service

import (
	"time"

	"github.com/google/uuid"
)

// SystemActor is recorded on claims and ledger entries made by automation.
const SystemActor = "system"

func GetExpiresAt(now time.Time, expiresIn int64) time.Time {
	return now.Add(time.Duration(expiresIn) * time.Second)
}

func newID() string {
	return uuid.NewString()
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
