package server

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	auditdomain "authcore/internal/audit/domain"
	devicedomain "authcore/internal/device/domain"
	"authcore/internal/identity/service"
	"authcore/internal/server/interceptors"
)

// AuthServiceName is the fully qualified gRPC service name for account operations.
const AuthServiceName = "authcore.v1.AuthService"

// Full method names, used for the public method set and by clients.
const (
	MethodRegister   = "/" + AuthServiceName + "/Register"
	MethodWhoAmI     = "/" + AuthServiceName + "/WhoAmI"
	MethodLogout     = "/" + AuthServiceName + "/Logout"
	MethodLogoutAll  = "/" + AuthServiceName + "/LogoutAll"
	MethodListEvents = "/" + AuthServiceName + "/ListEvents"

	MethodListDevices = "/" + AuthServiceName + "/ListDevices"
)

// Accounts is the account surface behind AuthService. *service.Resolver implements it.
type Accounts interface {
	Register(ctx context.Context, email, password, name string) (string, error)
	Logout(ctx context.Context, userID, deviceID string) error
	LogoutAll(ctx context.Context, userID string) (int64, error)
}

var _ Accounts = (*service.Resolver)(nil)

// EventLister reads a user's audit trail.
type EventLister interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]*auditdomain.Entry, error)
}

// DeviceLister lists a user's active devices. *devicesvc.Tracker implements it.
type DeviceLister interface {
	ListActiveDevices(ctx context.Context, userID string) ([]*devicedomain.Device, error)
}

// AuthServiceServer is the server API for AuthService.
type AuthServiceServer interface {
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WhoAmI(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Logout(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	LogoutAll(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListEvents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListDevices(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

var _ AuthServiceServer = (*AuthServer)(nil)

// AuthServer serves AuthService. Messages are protobuf well-known types: Register takes a Struct
// with email, password and name; WhoAmI and LogoutAll return a Struct.
type AuthServer struct {
	accounts Accounts
	events   EventLister
	devices  DeviceLister
}

// NewAuthServer returns an AuthServer. Any nil dependency makes the RPCs that need it return
// Unimplemented.
func NewAuthServer(accounts Accounts, events EventLister, devices DeviceLister) *AuthServer {
	return &AuthServer{accounts: accounts, events: events, devices: devices}
}

// Register creates an unverified local account.
func (s *AuthServer) Register(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.accounts == nil {
		return nil, status.Error(codes.Unimplemented, "method Register not implemented")
	}
	f := in.GetFields()
	userID, err := s.accounts.Register(ctx,
		strings.TrimSpace(f["email"].GetStringValue()),
		f["password"].GetStringValue(),
		strings.TrimSpace(f["name"].GetStringValue()),
	)
	if err != nil {
		if errors.Is(err, service.ErrEmailAlreadyRegistered) {
			return nil, status.Error(codes.AlreadyExists, "email already registered")
		}
		return nil, interceptors.StatusFromError(err)
	}
	return structpb.NewStruct(map[string]interface{}{"user_id": userID})
}

// WhoAmI returns the identity resolved for the call.
func (s *AuthServer) WhoAmI(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	userID, ok := interceptors.GetUserID(ctx)
	if !ok || userID == "" {
		return nil, status.Error(codes.Unauthenticated, "not authenticated")
	}
	provider, _ := interceptors.GetProvider(ctx)
	deviceID, _ := interceptors.GetDeviceID(ctx)
	return structpb.NewStruct(map[string]interface{}{
		"user_id":   userID,
		"provider":  string(provider),
		"device_id": deviceID,
	})
}

// Logout deactivates the calling device.
func (s *AuthServer) Logout(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if s.accounts == nil {
		return nil, status.Error(codes.Unimplemented, "method Logout not implemented")
	}
	userID, _ := interceptors.GetUserID(ctx)
	deviceID, _ := interceptors.GetDeviceID(ctx)
	if userID == "" || deviceID == "" {
		return nil, status.Error(codes.Unauthenticated, "not authenticated")
	}
	if err := s.accounts.Logout(ctx, userID, deviceID); err != nil {
		if errors.Is(err, devicedomain.ErrDeviceNotFound) {
			return nil, status.Error(codes.NotFound, "device not found")
		}
		return nil, interceptors.StatusFromError(err)
	}
	return &emptypb.Empty{}, nil
}

// LogoutAll deactivates every device of the calling user.
func (s *AuthServer) LogoutAll(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.accounts == nil {
		return nil, status.Error(codes.Unimplemented, "method LogoutAll not implemented")
	}
	userID, _ := interceptors.GetUserID(ctx)
	if userID == "" {
		return nil, status.Error(codes.Unauthenticated, "not authenticated")
	}
	n, err := s.accounts.LogoutAll(ctx, userID)
	if err != nil {
		return nil, interceptors.StatusFromError(err)
	}
	return structpb.NewStruct(map[string]interface{}{"devices": float64(n)})
}

// ListEvents returns the caller's most recent authentication events, newest first. The request
// Struct may carry "limit".
func (s *AuthServer) ListEvents(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.events == nil {
		return nil, status.Error(codes.Unimplemented, "method ListEvents not implemented")
	}
	userID, _ := interceptors.GetUserID(ctx)
	if userID == "" {
		return nil, status.Error(codes.Unauthenticated, "not authenticated")
	}
	limit := int(in.GetFields()["limit"].GetNumberValue())
	if limit > maxEventsLimit {
		limit = maxEventsLimit
	}
	entries, err := s.events.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, status.Error(codes.Unavailable, "service temporarily unavailable")
	}
	list := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		list = append(list, map[string]interface{}{
			"action":     e.Action,
			"provider":   e.Provider,
			"reason":     e.Reason,
			"device_id":  e.DeviceID,
			"ip_address": e.IP,
			"created_at": e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return structpb.NewStruct(map[string]interface{}{"events": list})
}

const maxEventsLimit = 200

// ListDevices returns the caller's active devices, most recently used first. "current" marks the
// device the call was made from.
func (s *AuthServer) ListDevices(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.devices == nil {
		return nil, status.Error(codes.Unimplemented, "method ListDevices not implemented")
	}
	userID, _ := interceptors.GetUserID(ctx)
	if userID == "" {
		return nil, status.Error(codes.Unauthenticated, "not authenticated")
	}
	current, _ := interceptors.GetDeviceID(ctx)
	devices, err := s.devices.ListActiveDevices(ctx, userID)
	if err != nil {
		return nil, status.Error(codes.Unavailable, "service temporarily unavailable")
	}
	list := make([]interface{}, 0, len(devices))
	for _, d := range devices {
		item := map[string]interface{}{
			"id":             d.ID,
			"name":           d.Name,
			"user_agent":     d.UserAgent,
			"ip_address":     d.IPAddress,
			"location":       d.Location,
			"first_login_at": d.FirstLoginAt.UTC().Format(time.RFC3339),
			"current":        d.ID == current,
		}
		if d.LastLoginAt != nil {
			item["last_login_at"] = d.LastLoginAt.UTC().Format(time.RFC3339)
		}
		list = append(list, item)
	}
	return structpb.NewStruct(map[string]interface{}{"devices": list})
}

func unaryHandler[Req any, Resp any](call func(AuthServiceServer, context.Context, *Req) (*Resp, error), method string) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AuthServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(AuthServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// authServiceDesc is the grpc.ServiceDesc for AuthService.
var authServiceDesc = grpc.ServiceDesc{
	ServiceName: AuthServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: unaryHandler(AuthServiceServer.Register, MethodRegister)},
		{MethodName: "WhoAmI", Handler: unaryHandler(AuthServiceServer.WhoAmI, MethodWhoAmI)},
		{MethodName: "Logout", Handler: unaryHandler(AuthServiceServer.Logout, MethodLogout)},
		{MethodName: "LogoutAll", Handler: unaryHandler(AuthServiceServer.LogoutAll, MethodLogoutAll)},
		{MethodName: "ListEvents", Handler: unaryHandler(AuthServiceServer.ListEvents, MethodListEvents)},
		{MethodName: "ListDevices", Handler: unaryHandler(AuthServiceServer.ListDevices, MethodListDevices)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "authcore/v1/auth.proto",
}
