package api

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"zapis/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func newBufconnClient(t *testing.T, cfg config.APIConfig) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	logger := zerolog.New(io.Discard)

	srv, err := newGRPCServer(&cfg, newTestServices(t), lis, &logger)
	require.NoError(t, err)
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func call(ctx context.Context, conn *grpc.ClientConn, method string, in map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, method, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func TestGRPC_BookingFlow(t *testing.T) {
	conn := newBufconnClient(t, config.APIConfig{Enabled: true})
	ctx := context.Background()

	slots, err := call(ctx, conn, methodGetAvailableSlots, map[string]any{
		"shop": "shop-1", "service": "cut", "date": "2030-03-04",
	})
	require.NoError(t, err)
	list := slots.GetFields()["slots"].GetListValue().GetValues()
	require.Len(t, list, 18)
	assert.Equal(t, "09:00", list[0].GetStructValue().GetFields()["start"].GetStringValue())

	appt, err := call(ctx, conn, methodCommitBooking, map[string]any{
		"shop_id":    "shop-1",
		"service_id": "cut",
		"staff_id":   "s1",
		"start_time": "2030-03-04T09:00:00Z",
		"client": map[string]any{
			"name": "Maria", "email": "maria@example.com", "phone": "+351 910 000 000",
		},
	})
	require.NoError(t, err)
	id := appt.GetFields()["id"].GetStringValue()
	require.NotEmpty(t, id)
	assert.Equal(t, "confirmed", appt.GetFields()["status"].GetStringValue())

	_, err = call(ctx, conn, methodCommitBooking, map[string]any{
		"shop_id":    "shop-1",
		"service_id": "cut",
		"start_time": "2030-03-04T09:00:00Z",
		"client": map[string]any{
			"name": "Rui", "email": "rui@example.com", "phone": "+351 910 000 001",
		},
	})
	assert.Equal(t, codes.Aborted, status.Code(err))

	listed, err := call(ctx, conn, methodListAppointments, map[string]any{"shop": "shop-1", "limit": 10})
	require.NoError(t, err)
	assert.Len(t, listed.GetFields()["appointments"].GetListValue().GetValues(), 1)

	updated, err := call(ctx, conn, methodTransitionStatus, map[string]any{"id": id, "status": "no_show"})
	require.NoError(t, err)
	assert.Equal(t, "no_show", updated.GetFields()["status"].GetStringValue())

	_, err = call(ctx, conn, methodTransitionStatus, map[string]any{"id": id, "status": "completed"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestGRPC_Errors(t *testing.T) {
	conn := newBufconnClient(t, config.APIConfig{Enabled: true})
	ctx := context.Background()

	_, err := call(ctx, conn, methodGetAvailableSlots, map[string]any{"shop": "shop-1", "service": "cut"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = call(ctx, conn, methodGetAvailableSlots, map[string]any{"shop": "nope", "service": "cut", "date": "2030-03-04"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = call(ctx, conn, methodTransitionStatus, map[string]any{"status": "confirmed"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = call(ctx, conn, methodTransitionStatus, map[string]any{"id": "missing", "status": "confirmed"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPC_AuthAndRequestID(t *testing.T) {
	cfg := config.APIConfig{
		Enabled: true,
		Auth: config.APIAuthConfig{
			Enabled: true,
			APIKeys: []config.APIClientKey{{Key: "reader", Extra: "x", Permissions: []string{permReadAvailability}}},
		},
	}
	conn := newBufconnClient(t, cfg)

	in := map[string]any{"shop": "shop-1", "service": "cut", "date": "2030-03-04"}
	_, err := call(context.Background(), conn, methodGetAvailableSlots, in)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx := metadata.AppendToOutgoingContext(context.Background(),
		"x-api-key", "reader", "x-api-extra", "x", "x-request-id", "req-42")

	req, err := structpb.NewStruct(in)
	require.NoError(t, err)
	var header metadata.MD
	err = conn.Invoke(ctx, methodGetAvailableSlots, req, new(structpb.Struct), grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, []string{"req-42"}, header.Get("x-request-id"))

	_, err = call(ctx, conn, methodListAppointments, map[string]any{})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestGRPCServer_New(t *testing.T) {
	logger := zerolog.New(io.Discard)
	cfg := config.APIConfig{GRPC: config.APIGRPCConfig{Port: 0}}

	s, err := NewGRPCServer(&cfg, Services{}, &logger)
	require.NoError(t, err)
	assert.NotEmpty(t, s.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Shutdown(ctx)
}

func TestGRPCServer_ServiceInfo(t *testing.T) {
	logger := zerolog.New(io.Discard)
	cfg := config.APIConfig{GRPC: config.APIGRPCConfig{Reflection: true}}

	srv, err := newGRPCServer(&cfg, Services{}, bufconn.Listen(1<<10), &logger)
	require.NoError(t, err)

	info, ok := srv.server.GetServiceInfo()[bookingServiceName]
	require.True(t, ok)
	assert.Nil(t, info.Metadata)

	var names []string
	for _, m := range info.Methods {
		names = append(names, m.Name)
	}
	assert.ElementsMatch(t, []string{"GetAvailableSlots", "CommitBooking", "TransitionStatus", "ListAppointments"}, names)
}

func TestBuildTLSConfig(t *testing.T) {
	_, err := buildTLSConfig(config.APITLSConfig{Enabled: true})
	assert.Error(t, err)

	_, err = buildTLSConfig(config.APITLSConfig{Enabled: true, CertFile: "/nonexistent", KeyFile: "/nonexistent"})
	assert.Error(t, err)
}

func TestStructParams(t *testing.T) {
	in, err := structpb.NewStruct(map[string]any{"s": "x", "n": 25, "b": true, "l": []any{"a"}})
	require.NoError(t, err)
	p := structParams(in)

	assert.Equal(t, "x", p("s"))
	assert.Equal(t, "25", p("n"))
	assert.Equal(t, "true", p("b"))
	assert.Equal(t, "", p("l"))
	assert.Equal(t, "", p("missing"))
}
