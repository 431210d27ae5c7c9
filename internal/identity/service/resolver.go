// Package service resolves authentication attempts into internal identities and records the
// device each successful attempt came from.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	devicedomain "authcore/internal/device/domain"
	devicesvc "authcore/internal/device/service"
	"authcore/internal/identity/domain"
	"authcore/internal/identity/provider"
	"authcore/internal/logger"
	"authcore/internal/policy/engine"
	"authcore/internal/security"
	"authcore/internal/telemetry"
	teldomain "authcore/internal/telemetry/domain"
	userdomain "authcore/internal/user/domain"
	userrepo "authcore/internal/user/repository"
)

const (
	defaultLinkCacheTTL = 5 * time.Minute
	// unknownClient keys the device of clients that send neither a device hint nor a user agent.
	unknownClient = "unknown-client"
)

// UserStore is the user lookup the resolver needs.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
}

// IdentityStore is the identity-link persistence the resolver needs.
type IdentityStore interface {
	GetUserIDByLink(ctx context.Context, provider domain.ProviderName, subject string) (string, error)
	CreateLocalAccount(ctx context.Context, u *userdomain.User, passwordHash string, verified bool) error
	ProvisionLinkedAccount(ctx context.Context, u *userdomain.User, link *domain.Link) (string, bool, error)
}

// DeviceTracker records logins and logouts against device records.
type DeviceTracker interface {
	TrackLogin(ctx context.Context, in devicesvc.LoginInput) (*devicedomain.Device, bool, error)
	Get(ctx context.Context, deviceID string) (*devicedomain.Device, error)
	Deactivate(ctx context.Context, deviceID string) error
	DeactivateAll(ctx context.Context, userID string) (int64, error)
}

// Meta is what the transport knows about the client making the attempt.
type Meta struct {
	UserAgent string
	IPAddress string
	// DeviceHint is a client-chosen stable device id (x-device-id). It takes precedence over the
	// user agent when deriving the device fingerprint.
	DeviceHint string
	DeviceName string
	Location   string
}

// Request is one authentication attempt. Exactly one of (Email, Password) or Token is set.
type Request struct {
	Email    string
	Password string
	Token    string
	// Provider optionally names the provider that issued Token.
	Provider string
	Meta     Meta
}

// Result is the outcome of a resolved attempt.
type Result struct {
	Identity      domain.Identity
	Device        *devicedomain.Device
	DeviceCreated bool
	// SessionToken is set for password logins when a signing key is configured.
	SessionToken     string
	SessionExpiresAt time.Time
}

// Deps are the required collaborators of a Resolver.
type Deps struct {
	Local      *provider.LocalProvider
	Federated  []provider.Provider
	Users      UserStore
	Identities IdentityStore
	Devices    DeviceTracker
	Hasher     *security.Hasher
	// Policy decides whether unlinked identities are provisioned. Nil rejects them all.
	Policy engine.LinkEvaluator
}

// Resolver turns credentials into an internal Identity.
type Resolver struct {
	providers  *provider.Set
	local      *provider.LocalProvider
	users      UserStore
	identities IdentityStore
	devices    DeviceTracker
	hasher     *security.Hasher
	policy     engine.LinkEvaluator

	links   *gocache.Cache
	linkTTL time.Duration
	emitter telemetry.EventEmitter
	metrics *telemetry.Metrics
	tracer  trace.Tracer
	log     *zap.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLinkCacheTTL sets how long (provider, subject) → user id mappings are cached. 0 disables the cache.
func WithLinkCacheTTL(d time.Duration) Option {
	return func(r *Resolver) { r.linkTTL = d }
}

// WithEmitter sets the sink for authentication events.
func WithEmitter(e telemetry.EventEmitter) Option {
	return func(r *Resolver) { r.emitter = e }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithTracer sets the tracer used for Authenticate spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Resolver) { r.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithIDGenerator overrides id generation for provisioned users and links.
func WithIDGenerator(newID func() string) Option {
	return func(r *Resolver) { r.newID = newID }
}

// NewResolver builds a Resolver. The LOCAL provider is always registered; Federated adds the rest.
func NewResolver(deps Deps, opts ...Option) (*Resolver, error) {
	switch {
	case deps.Local == nil:
		return nil, errors.New("resolver: local provider is required")
	case deps.Users == nil || deps.Identities == nil:
		return nil, errors.New("resolver: user and identity stores are required")
	case deps.Devices == nil:
		return nil, errors.New("resolver: device tracker is required")
	case deps.Hasher == nil:
		return nil, errors.New("resolver: hasher is required")
	}
	set, err := provider.NewSet(append([]provider.Provider{deps.Local}, deps.Federated...)...)
	if err != nil {
		return nil, err
	}
	r := &Resolver{
		providers:  set,
		local:      deps.Local,
		users:      deps.Users,
		identities: deps.Identities,
		devices:    deps.Devices,
		hasher:     deps.Hasher,
		policy:     deps.Policy,
		linkTTL:    defaultLinkCacheTTL,
		emitter:    telemetry.NopEmitter{},
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, o := range opts {
		o(r)
	}
	if r.linkTTL > 0 {
		r.links = gocache.New(r.linkTTL, time.Minute)
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer("authcore/identity")
	}
	r.log = logger.OrNop(r.log)
	return r, nil
}

// Providers returns the names of the registered providers.
func (r *Resolver) Providers() []domain.ProviderName { return r.providers.Names() }

// Authenticate verifies the credential in req, maps it to an internal user, and records the device.
// Every error wraps one of the domain sentinels (or is a context error); use domain.ReasonOf to
// classify it.
func (r *Resolver) Authenticate(ctx context.Context, req Request) (*Result, error) {
	ctx, span := r.tracer.Start(ctx, "identity.Authenticate", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	att := newAttempt(r.now())
	res, err := r.authenticate(ctx, req, att)
	if err != nil {
		att.reject(err)
		res = nil
	}
	r.finish(ctx, span, att, req, res)
	return res, err
}

func (r *Resolver) authenticate(ctx context.Context, req Request, att *attempt) (*Result, error) {
	hasPassword := req.Email != "" || req.Password != ""
	hasToken := req.Token != ""
	if hasPassword == hasToken {
		return nil, fmt.Errorf("%w: exactly one of password or token is required", domain.ErrMalformedInput)
	}

	var (
		assertion *domain.Assertion
		err       error
	)
	if hasPassword {
		att.provider = domain.ProviderLocal
		if req.Email == "" || req.Password == "" {
			return nil, fmt.Errorf("%w: email and password are both required", domain.ErrMalformedInput)
		}
		if hint := strings.TrimSpace(req.Provider); hint != "" {
			if name, perr := domain.ParseProviderName(hint); perr != nil || name != domain.ProviderLocal {
				return nil, fmt.Errorf("%w: password credentials are only accepted by LOCAL", domain.ErrMalformedInput)
			}
		}
		assertion, err = r.local.Authenticate(ctx, req.Email, req.Password)
	} else {
		var p provider.Provider
		p, err = r.providers.Select(req.Token, req.Provider)
		if err != nil {
			return nil, err
		}
		att.provider = p.Name()
		assertion, err = p.ValidateToken(ctx, req.Token)
	}
	if err != nil {
		return nil, err
	}
	if assertion == nil {
		return nil, domain.ErrInvalidCredentials
	}

	userID := assertion.UserID
	if userID == "" {
		if userID, err = r.resolveLink(ctx, assertion, req.Meta); err != nil {
			return nil, err
		}
	}
	u, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return nil, storageErr(ctx, "load user", err)
	}
	if !u.Active() {
		logger.From(ctx, r.log).Debug("resolver: user missing or inactive", zap.String("user_id", userID))
		return nil, domain.ErrInvalidCredentials
	}

	fingerprint := security.DeriveFingerprint(req.Meta.DeviceHint, req.Meta.UserAgent)
	if assertion.DeviceID != "" {
		// Session tokens are bound to the device they were issued on; logging that device out
		// revokes them.
		bound, err := r.devices.Get(ctx, assertion.DeviceID)
		if errors.Is(err, devicedomain.ErrDeviceNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		if err != nil {
			return nil, storageErr(ctx, "load session device", err)
		}
		if !bound.IsActive || bound.UserID != userID {
			logger.From(ctx, r.log).Debug("resolver: session device inactive", zap.String("device_id", bound.ID))
			return nil, domain.ErrInvalidCredentials
		}
		fingerprint = bound.Fingerprint
	}
	if fingerprint == "" {
		fingerprint = security.DeriveFingerprint("", unknownClient)
	}
	device, created, err := r.devices.TrackLogin(ctx, devicesvc.LoginInput{
		UserID:      userID,
		Fingerprint: fingerprint,
		UserAgent:   req.Meta.UserAgent,
		IPAddress:   req.Meta.IPAddress,
		Location:    req.Meta.Location,
		Name:        req.Meta.DeviceName,
	})
	if err != nil {
		return nil, storageErr(ctx, "record device", err)
	}

	identity := domain.Identity{UserID: userID, Provider: assertion.Provider}
	res := &Result{Identity: identity, Device: device, DeviceCreated: created}
	if hasPassword && r.local.CanIssue() {
		res.SessionToken, res.SessionExpiresAt, err = r.local.IssueToken(userID, device.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrStorageFailure, err)
		}
	}
	att.resolve(identity)

	if created {
		r.metrics.DeviceCreated(ctx, string(identity.Provider))
		telemetry.EmitAsync(r.emitter, ctx, &teldomain.Event{
			Type:       teldomain.EventDeviceRegistered,
			UserID:     userID,
			DeviceID:   device.ID,
			Provider:   string(identity.Provider),
			IPAddress:  req.Meta.IPAddress,
			UserAgent:  req.Meta.UserAgent,
			OccurredAt: r.now().UTC(),
		})
	}
	return res, nil
}

// resolveLink maps a federated assertion to a user id, provisioning an account when the link
// policy allows it.
func (r *Resolver) resolveLink(ctx context.Context, a *domain.Assertion, meta Meta) (string, error) {
	key := string(a.Provider) + "|" + a.Subject
	if r.links != nil {
		if v, ok := r.links.Get(key); ok {
			if id, _ := v.(string); id != "" {
				return id, nil
			}
		}
	}
	userID, err := r.identities.GetUserIDByLink(ctx, a.Provider, a.Subject)
	if err != nil {
		return "", storageErr(ctx, "lookup link", err)
	}
	if userID != "" {
		r.cacheLink(key, userID)
		return userID, nil
	}

	emailTaken := false
	if a.Email != "" {
		existing, err := r.users.GetByEmail(ctx, a.Email)
		if err != nil {
			return "", storageErr(ctx, "lookup email", err)
		}
		emailTaken = existing != nil
	}
	if emailTaken {
		// The email may belong to a concurrent first login for this same subject.
		userID, err = r.identities.GetUserIDByLink(ctx, a.Provider, a.Subject)
		if err != nil {
			return "", storageErr(ctx, "lookup link", err)
		}
		if userID != "" {
			r.cacheLink(key, userID)
			return userID, nil
		}
	}
	if r.policy == nil {
		return "", domain.ErrUnlinkedIdentity
	}
	ok, err := r.policy.ShouldProvision(ctx, engine.LinkInput{
		Provider:      a.Provider,
		Subject:       a.Subject,
		Email:         a.Email,
		EmailVerified: a.EmailVerified,
		EmailTaken:    emailTaken,
	})
	if err != nil || !ok {
		return "", domain.ErrUnlinkedIdentity
	}

	now := r.now().UTC()
	u := &userdomain.User{
		ID:        r.newID(),
		Email:     a.Email,
		Status:    userdomain.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrMalformedInput, err)
	}
	link := &domain.Link{ID: r.newID(), UserID: u.ID, Provider: a.Provider, Subject: a.Subject, CreatedAt: now}
	userID, created, err := r.identities.ProvisionLinkedAccount(ctx, u, link)
	if err != nil {
		if errors.Is(err, userrepo.ErrEmailTaken) {
			return "", domain.ErrUnlinkedIdentity
		}
		return "", storageErr(ctx, "provision account", err)
	}
	r.cacheLink(key, userID)
	if created {
		logger.From(ctx, r.log).Info("resolver: provisioned account",
			zap.String("user_id", userID), zap.String("provider", string(a.Provider)))
		telemetry.EmitAsync(r.emitter, ctx, &teldomain.Event{
			Type:       teldomain.EventIdentityProvisioned,
			UserID:     userID,
			Provider:   string(a.Provider),
			IPAddress:  meta.IPAddress,
			UserAgent:  meta.UserAgent,
			OccurredAt: now,
		})
	}
	return userID, nil
}

func (r *Resolver) cacheLink(key, userID string) {
	if r.links != nil {
		r.links.SetDefault(key, userID)
	}
}

func (r *Resolver) finish(ctx context.Context, span trace.Span, att *attempt, req Request, res *Result) {
	reason := att.reason()
	providerName := string(att.provider)
	r.metrics.AuthAttempt(ctx, providerName, string(reason), r.now().Sub(att.started).Seconds())
	span.SetAttributes(
		attribute.String("auth.provider", providerName),
		attribute.String("auth.state", att.state.String()),
	)

	ev := &teldomain.Event{
		Provider:   providerName,
		IPAddress:  req.Meta.IPAddress,
		UserAgent:  req.Meta.UserAgent,
		OccurredAt: r.now().UTC(),
	}
	log := logger.From(ctx, r.log)
	if att.state == AttemptResolved && res != nil {
		span.SetStatus(codes.Ok, "")
		ev.Type = teldomain.EventLoginSucceeded
		ev.UserID = att.identity.UserID
		ev.DeviceID = res.Device.ID
		log.Info("auth: resolved",
			zap.String("user_id", att.identity.UserID),
			zap.String("provider", providerName),
			zap.String("device_id", res.Device.ID))
	} else {
		span.SetStatus(codes.Error, string(reason))
		ev.Type = teldomain.EventLoginFailed
		ev.Reason = string(reason)
		fields := []zap.Field{zap.String("provider", providerName), zap.String("reason", string(reason))}
		if domain.Retryable(att.err) {
			log.Warn("auth: rejected", append(fields, zap.Error(att.err))...)
		} else {
			log.Info("auth: rejected", fields...)
		}
	}
	telemetry.EmitAsync(r.emitter, ctx, ev)
}

// Register creates a LOCAL account. The credential starts unverified.
func (r *Resolver) Register(ctx context.Context, email, password, name string) (string, error) {
	email = domain.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return "", err
	}
	if err := validatePassword(password); err != nil {
		return "", err
	}
	hash, err := r.hasher.HashPassword(ctx, password)
	if err != nil {
		return "", err
	}
	now := r.now().UTC()
	u := &userdomain.User{
		ID:        r.newID(),
		Email:     email,
		Name:      strings.TrimSpace(name),
		Status:    userdomain.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrMalformedInput, err)
	}
	if err := r.identities.CreateLocalAccount(ctx, u, hash, false); err != nil {
		if errors.Is(err, userrepo.ErrEmailTaken) {
			return "", ErrEmailAlreadyRegistered
		}
		return "", storageErr(ctx, "create account", err)
	}
	telemetry.EmitAsync(r.emitter, ctx, &teldomain.Event{
		Type:       teldomain.EventUserRegistered,
		UserID:     u.ID,
		Provider:   string(domain.ProviderLocal),
		OccurredAt: now,
	})
	return u.ID, nil
}

// Logout deactivates one of the user's devices. A device owned by someone else is reported as not
// found.
func (r *Resolver) Logout(ctx context.Context, userID, deviceID string) error {
	d, err := r.devices.Get(ctx, deviceID)
	if err != nil {
		return err
	}
	if d.UserID != userID {
		return devicedomain.ErrDeviceNotFound
	}
	if err := r.devices.Deactivate(ctx, deviceID); err != nil {
		return err
	}
	telemetry.EmitAsync(r.emitter, ctx, &teldomain.Event{
		Type:       teldomain.EventDeviceDeactivated,
		UserID:     userID,
		DeviceID:   deviceID,
		OccurredAt: r.now().UTC(),
	})
	return nil
}

// LogoutAll deactivates every active device of the user.
func (r *Resolver) LogoutAll(ctx context.Context, userID string) (int64, error) {
	n, err := r.devices.DeactivateAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		telemetry.EmitAsync(r.emitter, ctx, &teldomain.Event{
			Type:       teldomain.EventDeviceDeactivated,
			UserID:     userID,
			Metadata:   map[string]string{"count": fmt.Sprint(n)},
			OccurredAt: r.now().UTC(),
		})
	}
	return n, nil
}

func storageErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrStorageFailure, op, err)
}
