package domain

import "time"

// Entry is one persisted authentication event.
type Entry struct {
	ID       string
	UserID   string // empty for failures that never resolved a user
	DeviceID string
	Action   string
	Provider string
	Reason   string
	IP       string
	// UserAgent is clipped to the same length the device tracker stores.
	UserAgent string
	// Metadata is a JSON object; "{}" when the event had none.
	Metadata  string
	CreatedAt time.Time
}
