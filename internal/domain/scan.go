package domain

import "time"

// DefaultScanHistoryCap bounds Student/Artist scan history
const DefaultScanHistoryCap = 50

type ScanEntry struct {
	ScannedAt  time.Time `json:"scanned_at"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	DeviceType string    `json:"device_type,omitempty"`
}

// AppendScan adds entry at the end of history and drops the oldest entries
// beyond limit. Eviction follows insertion order only.
func AppendScan(history []ScanEntry, entry ScanEntry, limit int) []ScanEntry {
	if limit <= 0 {
		limit = DefaultScanHistoryCap
	}
	out := append(history, entry)
	if over := len(out) - limit; over > 0 {
		out = append([]ScanEntry(nil), out[over:]...)
	}
	return out
}

// ScanEvent is pushed to realtime listeners after a successful resolution
type ScanEvent struct {
	EntityType  EntityType `json:"entity_type"`
	EntityID    string     `json:"entity_id"`
	DisplayName string     `json:"display_name"`
	ScanCount   int64      `json:"scan_count"`
	SessionID   string     `json:"session_id,omitempty"`
	DeviceType  string     `json:"device_type"`
	ScannedAt   time.Time  `json:"scanned_at"`
}
