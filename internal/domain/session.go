package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ActionType is what a visitor did on a resolved profile page
type ActionType string

const (
	ActionView     ActionType = "view"
	ActionCall     ActionType = "call"
	ActionShare    ActionType = "share"
	ActionDownload ActionType = "download"
	ActionPrint    ActionType = "print"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionView, ActionCall, ActionShare, ActionDownload, ActionPrint:
		return true
	}
	return false
}

type SessionAction struct {
	Type      ActionType `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	Details   string     `json:"details,omitempty"`
}

// Session records one successful token resolution and whatever the client
// reported afterwards.
type Session struct {
	ID         uuid.UUID       `json:"-"`
	SessionID  string          `json:"session_id"`
	Entity     EntityRef       `json:"-"`
	IPAddress  string          `json:"ip_address,omitempty"`
	UserAgent  string          `json:"user_agent,omitempty"`
	Referrer   string          `json:"referrer,omitempty"`
	DeviceType string          `json:"device_type"`
	Browser    string          `json:"browser"`
	OS         string          `json:"os"`
	StartTime  time.Time       `json:"start_time"`
	EndTime    *time.Time      `json:"end_time,omitempty"`
	Duration   int64           `json:"duration"`
	IsActive   bool            `json:"is_active"`
	PageViews  int             `json:"page_views"`
	Actions    []SessionAction `json:"actions"`
}

// NewSessionID returns an identifier that cannot be confused with a uuid primary key
func NewSessionID() string {
	return "sess_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// RecordAction appends an action and counts it as a page view
func (s *Session) RecordAction(action SessionAction) {
	s.Actions = append(s.Actions, action)
	s.PageViews++
}

// End closes the session. Returns false when the session was already ended,
// leaving EndTime and Duration untouched.
func (s *Session) End(now time.Time) bool {
	if !s.IsActive {
		return false
	}
	s.EndTime = &now
	s.Duration = DurationSeconds(s.StartTime, now)
	s.IsActive = false
	return true
}

// DurationSeconds is end-start truncated to whole seconds, never negative
func DurationSeconds(start, end time.Time) int64 {
	d := int64(end.Sub(start) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}

// SessionStats aggregates sessions of a single entity
type SessionStats struct {
	TotalSessions   int64                `json:"total_sessions"`
	ActiveSessions  int64                `json:"active_sessions"`
	AverageDuration float64              `json:"average_duration"`
	TotalPageViews  int64                `json:"total_page_views"`
	ByDeviceType    map[string]int64     `json:"by_device_type"`
	ByAction        map[ActionType]int64 `json:"by_action"`
}
