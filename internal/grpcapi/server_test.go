package grpcapi

import (
	"context"
	"net"
	"testing"
	"time"

	"appointo/internal/apperr"
	"appointo/internal/slots"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type stubFinder struct {
	got slots.Request
	res *slots.Result
	err error
}

func (f *stubFinder) Find(_ context.Context, req slots.Request) (*slots.Result, error) {
	f.got = req
	return f.res, f.err
}

func dial(t *testing.T, finder SlotFinder) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(finder, zerolog.Nop())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestListSlots(t *testing.T) {
	start := time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)
	finder := &stubFinder{res: &slots.Result{
		Location: time.UTC,
		Slots: []slots.Slot{
			{StartTime: start, EndTime: start.Add(30 * time.Minute), Available: true},
			{StartTime: start.Add(time.Hour), EndTime: start.Add(90 * time.Minute), Available: true},
		},
	}}
	client := NewClient(dial(t, finder))

	got, err := client.GetSlots(context.Background(), slots.Request{OfferID: 3, EmployeeID: 7, Date: "2026-03-16", BookingID: 12})
	require.NoError(t, err)
	assert.Equal(t, slots.Request{OfferID: 3, EmployeeID: 7, Date: "2026-03-16", BookingID: 12}, finder.got)
	assert.Equal(t, []slots.SlotInfo{
		{Time: "09:00", Datetime: "2026-03-16T09:00:00Z"},
		{Time: "10:00", Datetime: "2026-03-16T10:00:00Z"},
	}, got)
}

func TestListSlots_ErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
		kind apperr.Kind
	}{
		{"bad request", apperr.BadRequest("date is required"), codes.InvalidArgument, apperr.KindBadRequest},
		{"not found", apperr.NotFound("offer 9 not found"), codes.NotFound, apperr.KindNotFound},
		{"conflict", apperr.Conflict("taken"), codes.AlreadyExists, apperr.KindConflict},
		{"internal", apperr.Internal(assert.AnError), codes.Internal, apperr.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dial(t, &stubFinder{err: tt.err})

			out := new(structpb.Struct)
			in, _ := structpb.NewStruct(map[string]any{"offer": 3.0, "employee": 7.0, "date": "2026-03-16"})
			err := conn.Invoke(context.Background(), ListSlotsMethod, in, out)
			assert.Equal(t, tt.code, status.Code(err))

			_, err = NewClient(conn).GetSlots(context.Background(), slots.Request{OfferID: 3, EmployeeID: 7, Date: "2026-03-16"})
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestRequestFromStruct(t *testing.T) {
	tests := []struct {
		name    string
		in      map[string]any
		want    slots.Request
		wantErr bool
	}{
		{"numbers", map[string]any{"offer": 3.0, "employee": 7.0, "date": "2026-03-16"}, slots.Request{OfferID: 3, EmployeeID: 7, Date: "2026-03-16"}, false},
		{"numeric strings", map[string]any{"offer": "3", "employee": "7", "booking": "5"}, slots.Request{OfferID: 3, EmployeeID: 7, BookingID: 5}, false},
		{"null booking", map[string]any{"offer": 3.0, "booking": nil}, slots.Request{OfferID: 3}, false},
		{"fraction", map[string]any{"offer": 3.5}, slots.Request{}, true},
		{"text", map[string]any{"employee": "abc"}, slots.Request{}, true},
		{"date not string", map[string]any{"date": 20260316.0}, slots.Request{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := structpb.NewStruct(tt.in)
			require.NoError(t, err)
			got, err := requestFromStruct(in)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrBadRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHealth(t *testing.T) {
	conn := dial(t, &stubFinder{})
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
