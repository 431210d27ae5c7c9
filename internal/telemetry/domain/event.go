package domain

import "time"

// EventType names an authentication lifecycle event.
type EventType string

const (
	EventLoginSucceeded      EventType = "auth.login.succeeded"
	EventLoginFailed         EventType = "auth.login.failed"
	EventDeviceRegistered    EventType = "device.registered"
	EventDeviceDeactivated   EventType = "device.deactivated"
	EventUserRegistered      EventType = "user.registered"
	EventIdentityProvisioned EventType = "identity.provisioned"
)

// Event is one audit-relevant authentication event. Provider is the uppercase provider name that
// vouched for (or rejected) the attempt; Reason is set only for failures.
type Event struct {
	Type       EventType
	UserID     string
	DeviceID   string
	Provider   string
	Reason     string
	IPAddress  string
	UserAgent  string
	Metadata   map[string]string
	OccurredAt time.Time
}
