// Package audit persists authentication events so they can be reviewed per user.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"authcore/internal/audit/domain"
	auditrepo "authcore/internal/audit/repository"
	devicedomain "authcore/internal/device/domain"
	telemetrydomain "authcore/internal/telemetry/domain"
)

// Logger is a telemetry.EventEmitter that writes each event as an audit entry.
type Logger struct {
	repo  auditrepo.Repository
	now   func() time.Time
	newID func() string
}

// NewLogger returns a Logger persisting to repo.
func NewLogger(repo auditrepo.Repository) *Logger {
	return &Logger{repo: repo, now: time.Now, newID: uuid.NewString}
}

// Emit writes one audit entry. A nil repo or event is a no-op.
func (l *Logger) Emit(ctx context.Context, event *telemetrydomain.Event) error {
	if l == nil || l.repo == nil || event == nil {
		return nil
	}
	meta := "{}"
	if len(event.Metadata) > 0 {
		b, err := json.Marshal(event.Metadata)
		if err != nil {
			return err
		}
		meta = string(b)
	}
	at := event.OccurredAt
	if at.IsZero() {
		at = l.now()
	}
	return l.repo.Create(ctx, &domain.Entry{
		ID:        l.newID(),
		UserID:    event.UserID,
		DeviceID:  event.DeviceID,
		Action:    string(event.Type),
		Provider:  event.Provider,
		Reason:    event.Reason,
		IP:        event.IPAddress,
		UserAgent: devicedomain.ClipAttribute(event.UserAgent),
		Metadata:  meta,
		CreatedAt: at.UTC(),
	})
}
