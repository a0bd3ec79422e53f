// Package grpcapi exposes slot availability over gRPC using google.protobuf.Struct
// messages, so no generated stubs are required.
package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"appointo/internal/apperr"
	"appointo/internal/slots"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName     = "appointo.availability.v1.Availability"
	ListSlotsMethod = "/" + ServiceName + "/ListSlots"
)

// AvailabilityServer is the server API of the Availability service.
type AvailabilityServer interface {
	ListSlots(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the Availability service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AvailabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListSlots", Handler: listSlotsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "appointo/availability/v1/availability.proto",
}

func listSlotsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AvailabilityServer).ListSlots(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListSlotsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AvailabilityServer).ListSlots(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// SlotFinder answers slot queries.
type SlotFinder interface {
	Find(ctx context.Context, req slots.Request) (*slots.Result, error)
}

// Availability implements AvailabilityServer on top of a SlotFinder.
type Availability struct {
	finder SlotFinder
}

func NewAvailability(finder SlotFinder) *Availability {
	return &Availability{finder: finder}
}

// ListSlots reads offer, employee, date and the optional booking from in.
func (a *Availability) ListSlots(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := requestFromStruct(in)
	if err != nil {
		return nil, toStatus(err)
	}
	res, err := a.finder.Find(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}

	list := make([]any, 0, len(res.Slots))
	for _, s := range res.Info() {
		list = append(list, map[string]any{"time": s.Time, "datetime": s.Datetime})
	}
	out, err := structpb.NewStruct(map[string]any{"slots": list})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode slots: %v", err)
	}
	return out, nil
}

func requestFromStruct(in *structpb.Struct) (slots.Request, error) {
	var req slots.Request
	fields := in.GetFields()

	var err error
	if req.OfferID, err = idField(fields, "offer"); err != nil {
		return req, err
	}
	if req.EmployeeID, err = idField(fields, "employee"); err != nil {
		return req, err
	}
	if req.BookingID, err = idField(fields, "booking"); err != nil {
		return req, err
	}
	if v, ok := fields["date"]; ok {
		s, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return req, apperr.BadRequest("date must be a string")
		}
		req.Date = s.StringValue
	}
	return req, nil
}

// idField accepts numbers and numeric strings. Absent fields are zero.
func idField(fields map[string]*structpb.Value, name string) (int64, error) {
	v, ok := fields[name]
	if !ok {
		return 0, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		id := int64(k.NumberValue)
		if float64(id) != k.NumberValue {
			return 0, apperr.BadRequest("invalid %s %v", name, k.NumberValue)
		}
		return id, nil
	case *structpb.Value_StringValue:
		if k.StringValue == "" {
			return 0, nil
		}
		id, err := strconv.ParseInt(k.StringValue, 10, 64)
		if err != nil {
			return 0, apperr.BadRequest("invalid %s %q", name, k.StringValue)
		}
		return id, nil
	case *structpb.Value_NullValue:
		return 0, nil
	default:
		return 0, apperr.BadRequest("invalid %s", name)
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	msg := apperr.Message(err)
	switch apperr.KindOf(err) {
	case apperr.KindBadRequest:
		return status.Error(codes.InvalidArgument, msg)
	case apperr.KindNotFound:
		return status.Error(codes.NotFound, msg)
	case apperr.KindConflict:
		return status.Error(codes.AlreadyExists, msg)
	default:
		return status.Error(codes.Internal, msg)
	}
}

// NewServer builds a grpc.Server with the Availability and health services registered.
func NewServer(finder SlotFinder, logger zerolog.Logger) *grpc.Server {
	log := logger.With().Str("component", "grpc").Logger()
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(recoverer(log), accessLog(log)))
	srv.RegisterService(&ServiceDesc, NewAvailability(finder))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

// Serve listens on addr until ctx is done, then stops gracefully.
func Serve(ctx context.Context, srv *grpc.Server, addr string, logger zerolog.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", addr, err)
	}
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()
	logger.Info().Str("address", addr).Msg("grpc server listening")
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func accessLog(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		event := logger.Debug()
		if code == codes.Internal || code == codes.Unknown {
			event = logger.Error().Err(err)
		}
		event.Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("latency", time.Since(start)).
			Msg("grpc request")
		return resp, err
	}
}

func recoverer(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Str("method", info.FullMethod).Msg("grpc handler panicked")
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
