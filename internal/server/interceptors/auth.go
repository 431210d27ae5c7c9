package interceptors

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"authcore/internal/identity/domain"
	"authcore/internal/identity/service"
	"authcore/internal/logger"
)

const (
	bearerPrefix = "bearer "
	basicPrefix  = "basic "

	// Response header keys set when a password login mints a session token.
	SessionTokenHeader     = "x-session-token"
	SessionExpiresAtHeader = "x-session-expires-at"
)

var errNoCredentials = errors.New("no credentials")

// Authenticator resolves a request's credential to an internal identity.
type Authenticator interface {
	Authenticate(ctx context.Context, req service.Request) (*service.Result, error)
}

// AuthUnary returns a unary server interceptor that authenticates every call through authn and
// stores the resolved user, provider and device in the request context.
//
// Credentials come from the authorization header: "Bearer <jwt>" for tokens, "Basic <b64>" for
// email:password. Device metadata is read from user-agent, x-device-id, x-device-name and
// x-device-location; x-auth-provider names the provider for a token when set.
// Methods in publicMethods are served without credentials; a failed attempt on them proceeds
// unauthenticated.
func AuthUnary(authn Authenticator, publicMethods map[string]bool, log *zap.Logger) grpc.UnaryServerInterceptor {
	log = logger.OrNop(log)
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		public := publicMethods[info.FullMethod]
		areq, err := requestFromMetadata(ctx)
		if err != nil {
			if public {
				return handler(ctx, req)
			}
			if errors.Is(err, errNoCredentials) {
				return nil, status.Error(codes.Unauthenticated, "missing credentials")
			}
			return nil, StatusFromError(err)
		}

		res, err := authn.Authenticate(ctx, areq)
		if err != nil {
			if public {
				return handler(ctx, req)
			}
			log.Debug("authentication rejected",
				zap.String("method", info.FullMethod),
				zap.String("reason", string(domain.ReasonOf(err))),
			)
			return nil, StatusFromError(err)
		}

		deviceID := ""
		if res.Device != nil {
			deviceID = res.Device.ID
		}
		ctx = WithIdentity(ctx, res.Identity.UserID, res.Identity.Provider, deviceID)
		if res.SessionToken != "" {
			// Fails outside a real server transport (unit tests); the call itself still succeeds.
			_ = grpc.SetHeader(ctx, metadata.Pairs(
				SessionTokenHeader, res.SessionToken,
				SessionExpiresAtHeader, res.SessionExpiresAt.UTC().Format(time.RFC3339),
			))
		}
		return handler(ctx, req)
	}
}

// StatusFromError maps a resolver error to a gRPC status carrying only the user-facing message.
func StatusFromError(err error) error {
	if err == nil {
		return nil
	}
	reason := domain.ReasonOf(err)
	var code codes.Code
	switch reason {
	case domain.ReasonInvalidCredentials, domain.ReasonUnlinkedIdentity:
		code = codes.Unauthenticated
	case domain.ReasonMalformedInput:
		code = codes.InvalidArgument
	case domain.ReasonProviderUnavailable, domain.ReasonStorageFailure:
		code = codes.Unavailable
	case domain.ReasonCanceled:
		if errors.Is(err, context.DeadlineExceeded) {
			code = codes.DeadlineExceeded
		} else {
			code = codes.Canceled
		}
	default:
		code = codes.Internal
	}
	return status.Error(code, reason.Message())
}

// requestFromMetadata builds a resolver request from the incoming metadata.
func requestFromMetadata(ctx context.Context) (service.Request, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return service.Request{}, errNoCredentials
	}
	var req service.Request
	raw := first(md, "authorization")
	switch {
	case raw == "":
		return service.Request{}, errNoCredentials
	case hasPrefixFold(raw, bearerPrefix):
		req.Token = strings.TrimSpace(raw[len(bearerPrefix):])
		if req.Token == "" {
			return service.Request{}, errNoCredentials
		}
	case hasPrefixFold(raw, basicPrefix):
		email, password, err := decodeBasic(strings.TrimSpace(raw[len(basicPrefix):]))
		if err != nil {
			return service.Request{}, err
		}
		req.Email, req.Password = email, password
	default:
		return service.Request{}, domain.ErrMalformedInput
	}
	req.Provider = first(md, "x-auth-provider")
	req.Meta = service.Meta{
		UserAgent:  first(md, "user-agent"),
		IPAddress:  ClientIP(ctx),
		DeviceHint: first(md, "x-device-id"),
		DeviceName: first(md, "x-device-name"),
		Location:   first(md, "x-device-location"),
	}
	return req, nil
}

func decodeBasic(enc string) (email, password string, err error) {
	b, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", "", domain.ErrMalformedInput
	}
	email, password, ok := strings.Cut(string(b), ":")
	if !ok {
		return "", "", domain.ErrMalformedInput
	}
	return email, password, nil
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
