package interceptors

import (
	"context"

	"authcore/internal/identity/domain"
)

type contextKey struct{ name string }

var (
	userIDKey   = contextKey{"user_id"}
	providerKey = contextKey{"provider"}
	deviceIDKey = contextKey{"device_id"}
)

// WithIdentity returns a context carrying the resolved user, the provider that vouched for it,
// and the device the request came from. Handlers read them via GetUserID, GetProvider, GetDeviceID.
func WithIdentity(ctx context.Context, userID string, provider domain.ProviderName, deviceID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, providerKey, provider)
	ctx = context.WithValue(ctx, deviceIDKey, deviceID)
	return ctx
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok
}

// GetProvider returns the provider from context and true if set; otherwise "", false.
func GetProvider(ctx context.Context) (domain.ProviderName, bool) {
	v, ok := ctx.Value(providerKey).(domain.ProviderName)
	return v, ok
}

// GetDeviceID returns the device_id from context and true if set; otherwise "", false.
func GetDeviceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(deviceIDKey).(string)
	return v, ok
}

// GetIdentity returns the resolved identity and true if the request was authenticated.
func GetIdentity(ctx context.Context) (domain.Identity, bool) {
	userID, ok := GetUserID(ctx)
	if !ok || userID == "" {
		return domain.Identity{}, false
	}
	provider, _ := GetProvider(ctx)
	return domain.Identity{UserID: userID, Provider: provider}, true
}
