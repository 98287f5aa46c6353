package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"zapis/internal/domain"
	"zapis/internal/models"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	bookingServiceName      = "zapis.booking.v1.BookingService"
	methodGetAvailableSlots = "/" + bookingServiceName + "/GetAvailableSlots"
	methodCommitBooking     = "/" + bookingServiceName + "/CommitBooking"
	methodTransitionStatus  = "/" + bookingServiceName + "/TransitionStatus"
	methodListAppointments  = "/" + bookingServiceName + "/ListAppointments"
)

// BookingServer is the gRPC surface. Requests and responses are google.protobuf.Struct
// with the same field names as the HTTP API.
type BookingServer interface {
	GetAvailableSlots(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	CommitBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	TransitionStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ListAppointments(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type structCall func(srv BookingServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func structMethod(name string, call structCall) grpc.MethodDesc {
	fullMethod := "/" + bookingServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BookingServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(BookingServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// bookingServiceDesc собран вручную: сообщения structpb, своего .proto нет.
var bookingServiceDesc = grpc.ServiceDesc{
	ServiceName: bookingServiceName,
	HandlerType: (*BookingServer)(nil),
	Methods: []grpc.MethodDesc{
		structMethod("GetAvailableSlots", BookingServer.GetAvailableSlots),
		structMethod("CommitBooking", BookingServer.CommitBooking),
		structMethod("TransitionStatus", BookingServer.TransitionStatus),
		structMethod("ListAppointments", BookingServer.ListAppointments),
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterBookingServer(s grpc.ServiceRegistrar, srv BookingServer) {
	s.RegisterService(&bookingServiceDesc, srv)
}

type BookingGRPC struct {
	svc Services
	log zerolog.Logger
}

func NewBookingGRPC(svc Services, logger *zerolog.Logger) *BookingGRPC {
	s := &BookingGRPC{svc: svc, log: zerolog.Nop()}
	if logger != nil {
		s.log = logger.With().Str("component", "grpc").Logger()
	}
	return s
}

func (s *BookingGRPC) GetAvailableSlots(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	loc := s.svc.location()
	p := structParams(in)
	q, err := parseSlotsQuery(p("shop"), p, loc)
	if err != nil {
		return nil, s.fail(err)
	}

	slots, err := s.svc.Slots.GetAvailableSlots(ctx, q.ShopID, q.Staff, q.ServiceID, q.Date)
	if err != nil {
		return nil, s.fail(err)
	}
	return toStruct(map[string]any{
		"shop_id":    q.ShopID,
		"service_id": q.ServiceID,
		"date":       q.Date.Format(dateLayout),
		"slots":      slotViews(slots, loc),
	})
}

func (s *BookingGRPC) CommitBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var body bookingBody
	if err := fromStruct(in, &body); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid booking request")
	}
	req, err := body.request(s.svc.location())
	if err != nil {
		return nil, s.fail(err)
	}

	appt, err := s.svc.Booking.CommitBooking(ctx, req)
	if err != nil {
		return nil, s.fail(err)
	}
	return toStruct(appt)
}

func (s *BookingGRPC) TransitionStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p := structParams(in)
	next, err := transitionRequest{Status: p("status")}.parse()
	if err != nil {
		return nil, s.fail(err)
	}
	id := p("id")
	if id == "" {
		return nil, s.fail(fmt.Errorf("%w: id is required", domain.ErrInvalidRequest))
	}

	appt, err := s.svc.Booking.TransitionStatus(ctx, id, next)
	if err != nil {
		return nil, s.fail(err)
	}
	return toStruct(appt)
}

func (s *BookingGRPC) ListAppointments(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	filter, err := parseFilter(structParams(in), s.svc.location())
	if err != nil {
		return nil, s.fail(err)
	}

	appts, err := s.svc.Booking.ListAppointments(ctx, filter)
	if err != nil {
		return nil, s.fail(err)
	}
	if appts == nil {
		appts = []*models.Appointment{}
	}
	return toStruct(map[string]any{"appointments": appts})
}

func (s *BookingGRPC) fail(err error) error {
	if classify(err) == kindInternal {
		s.log.Error().Err(err).Msg("request failed")
	}
	return grpcError(err)
}

// structParams reads scalar fields of in as strings.
func structParams(in *structpb.Struct) params {
	fields := in.GetFields()
	return func(key string) string {
		v, ok := fields[key]
		if !ok {
			return ""
		}
		switch kind := v.GetKind().(type) {
		case *structpb.Value_StringValue:
			return kind.StringValue
		case *structpb.Value_NumberValue:
			return strconv.FormatFloat(kind.NumberValue, 'f', -1, 64)
		case *structpb.Value_BoolValue:
			return strconv.FormatBool(kind.BoolValue)
		default:
			return ""
		}
	}
}

// toStruct converts v through its JSON form, so Struct fields match the HTTP bodies.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

func fromStruct(in *structpb.Struct, v any) error {
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
