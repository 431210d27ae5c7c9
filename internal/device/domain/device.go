package domain

import (
	"errors"
	"time"
	"unicode/utf8"
)

// ErrDeviceNotFound is returned when a device id does not exist.
var ErrDeviceNotFound = errors.New("device not found")

// Device is a per-user device/session record, unique on (UserID, Fingerprint).
//
// FirstLoginAt is set once at creation. LastLoginAt, when set, is never before FirstLoginAt.
// UpdatedAt never decreases.
type Device struct {
	ID           string
	UserID       string
	Fingerprint  string
	Name         string
	Location     string
	UserAgent    string
	IPAddress    string
	IsActive     bool
	FirstLoginAt time.Time
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LastActivity returns LastLoginAt, falling back to FirstLoginAt.
func (d *Device) LastActivity() time.Time {
	if d.LastLoginAt != nil {
		return *d.LastLoginAt
	}
	return d.FirstLoginAt
}

// MaxAttributeLen bounds stored client attributes such as user agent and location, in bytes.
const MaxAttributeLen = 512

// ClipAttribute truncates s to at most MaxAttributeLen bytes without splitting a UTF-8 sequence.
func ClipAttribute(s string) string {
	if len(s) <= MaxAttributeLen {
		return s
	}
	cut := MaxAttributeLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Login describes one successful authentication to record against a device.
type Login struct {
	UserID      string
	Fingerprint string
	Name        string
	UserAgent   string
	IPAddress   string
	Location    string
	At          time.Time
}

// Validate checks the fields required to key a device record.
func (l *Login) Validate() error {
	if l.UserID == "" {
		return errors.New("user id is required")
	}
	if l.Fingerprint == "" {
		return errors.New("fingerprint is required")
	}
	if l.At.IsZero() {
		return errors.New("login time is required")
	}
	return nil
}
