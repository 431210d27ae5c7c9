// Package service records device/session activity for authenticated users.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"authcore/internal/device/domain"
	"authcore/internal/device/repository"
	"authcore/internal/logger"
)

// Tracker upserts device records on successful logins and deactivates them on logout.
type Tracker struct {
	repo  repository.Repository
	now   func() time.Time
	newID func() string
	log   *zap.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source. Times are truncated to milliseconds, the storage precision.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithIDGenerator overrides device id generation.
func WithIDGenerator(newID func() string) Option {
	return func(t *Tracker) { t.newID = newID }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

// NewTracker returns a Tracker over repo.
func NewTracker(repo repository.Repository, opts ...Option) *Tracker {
	t := &Tracker{repo: repo, now: time.Now, newID: uuid.NewString, log: zap.NewNop()}
	for _, o := range opts {
		o(t)
	}
	t.log = logger.OrNop(t.log)
	return t
}

// LoginInput describes the device a user just authenticated from.
type LoginInput struct {
	UserID      string
	Fingerprint string
	UserAgent   string
	IPAddress   string
	Location    string
	// Name is used only when the device is first seen; empty derives one from UserAgent.
	Name string
}

// RecordLogin creates the device on first sight, otherwise refreshes its last login and latest
// client attributes. The whole write is a single atomic upsert.
func (t *Tracker) RecordLogin(ctx context.Context, in LoginInput) (*domain.Device, error) {
	d, _, err := t.TrackLogin(ctx, in)
	return d, err
}

// TrackLogin is RecordLogin that also reports whether this login created the device.
func (t *Tracker) TrackLogin(ctx context.Context, in LoginInput) (*domain.Device, bool, error) {
	name := domain.ClipAttribute(strings.TrimSpace(in.Name))
	if name == "" {
		name = DeviceNameFromUserAgent(in.UserAgent)
	}
	login := domain.Login{
		UserID:      in.UserID,
		Fingerprint: in.Fingerprint,
		Name:        name,
		UserAgent:   domain.ClipAttribute(strings.TrimSpace(in.UserAgent)),
		IPAddress:   domain.ClipAttribute(strings.TrimSpace(in.IPAddress)),
		Location:    domain.ClipAttribute(strings.TrimSpace(in.Location)),
		At:          t.clock(),
	}
	if err := login.Validate(); err != nil {
		return nil, false, err
	}
	d, created, err := t.repo.Upsert(ctx, t.newID(), login)
	if err != nil {
		return nil, false, err
	}
	if created {
		t.log.Info("device registered", zap.String("user_id", d.UserID), zap.String("device_id", d.ID))
	} else {
		t.log.Debug("device login recorded", zap.String("user_id", d.UserID), zap.String("device_id", d.ID))
	}
	return d, created, nil
}

// Deactivate marks the device inactive. Deactivating an inactive device succeeds without change.
func (t *Tracker) Deactivate(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return domain.ErrDeviceNotFound
	}
	if err := t.repo.Deactivate(ctx, deviceID, t.clock()); err != nil {
		return err
	}
	t.log.Info("device deactivated", zap.String("device_id", deviceID))
	return nil
}

// DeactivateAll deactivates every active device of the user and returns how many changed.
func (t *Tracker) DeactivateAll(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, errors.New("user id is required")
	}
	n, err := t.repo.DeactivateAllForUser(ctx, userID, t.clock())
	if err != nil {
		return 0, err
	}
	t.log.Info("devices deactivated", zap.String("user_id", userID), zap.Int64("count", n))
	return n, nil
}

// ListActiveDevices returns the user's active devices, most recently used first.
func (t *Tracker) ListActiveDevices(ctx context.Context, userID string) ([]*domain.Device, error) {
	return t.repo.ListActiveByUser(ctx, userID)
}

// Get returns the device, or domain.ErrDeviceNotFound.
func (t *Tracker) Get(ctx context.Context, deviceID string) (*domain.Device, error) {
	d, err := t.repo.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, domain.ErrDeviceNotFound
	}
	return d, nil
}

func (t *Tracker) clock() time.Time {
	return t.now().UTC().Truncate(time.Millisecond)
}

// DeviceNameFromUserAgent returns a short label such as "Firefox on Linux". Unknown agents
// yield "Unknown device".
func DeviceNameFromUserAgent(ua string) string {
	l := strings.ToLower(ua)
	browser := ""
	switch {
	case strings.Contains(l, "edg/"):
		browser = "Edge"
	case strings.Contains(l, "opr/"), strings.Contains(l, "opera"):
		browser = "Opera"
	case strings.Contains(l, "firefox/"):
		browser = "Firefox"
	case strings.Contains(l, "chrome/"), strings.Contains(l, "crios/"):
		browser = "Chrome"
	case strings.Contains(l, "safari/"):
		browser = "Safari"
	case strings.HasPrefix(l, "curl/"):
		browser = "curl"
	case strings.HasPrefix(l, "grpc-"):
		browser = "gRPC client"
	}
	platform := ""
	switch {
	case strings.Contains(l, "iphone"), strings.Contains(l, "ipad"):
		platform = "iOS"
	case strings.Contains(l, "android"):
		platform = "Android"
	case strings.Contains(l, "windows"):
		platform = "Windows"
	case strings.Contains(l, "mac os x"), strings.Contains(l, "macintosh"):
		platform = "macOS"
	case strings.Contains(l, "cros "):
		platform = "ChromeOS"
	case strings.Contains(l, "linux"):
		platform = "Linux"
	}
	switch {
	case browser != "" && platform != "":
		return browser + " on " + platform
	case browser != "":
		return browser
	case platform != "":
		return platform + " device"
	default:
		return "Unknown device"
	}
}
