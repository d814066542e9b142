package model

import (
	"time"

	"github.com/google/uuid"
)

// ActivityType is a proctoring event reported by the client.
type ActivityType string

const (
	ActivityFocusLost      ActivityType = "focus-lost"
	ActivityFullscreenExit ActivityType = "fullscreen-exit"
	ActivitySuspicious     ActivityType = "suspicious"
	ActivityNavigation     ActivityType = "navigation"
)

// ActivityTypes lists every accepted activity type.
var ActivityTypes = []ActivityType{
	ActivityFocusLost,
	ActivityFullscreenExit,
	ActivitySuspicious,
	ActivityNavigation,
}

// IsValid reports whether t is a known activity type.
func (t ActivityType) IsValid() bool {
	for _, known := range ActivityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ActivityLogEntry is one append-only proctoring record.
type ActivityLogEntry struct {
	AttemptID uuid.UUID      `json:"attempt_id"`
	At        time.Time      `json:"at"`
	Type      ActivityType   `json:"type"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// LogActivityRequest is the payload for recording an activity event.
type LogActivityRequest struct {
	Type ActivityType   `json:"type" binding:"required,activity_type"`
	Meta map[string]any `json:"meta"`
}
