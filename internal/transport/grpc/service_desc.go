package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const BookingServiceName = "salonbook.v1.BookingService"

type BookingServiceServer interface {
	GetFreeSlots(context.Context, *GetFreeSlotsRequest) (*GetFreeSlotsResponse, error)
	BookSlot(context.Context, *BookSlotRequest) (*AppointmentResponse, error)
	GetAppointment(context.Context, *GetAppointmentRequest) (*AppointmentResponse, error)
	ConfirmAppointment(context.Context, *ConfirmAppointmentRequest) (*AppointmentResponse, error)
	CancelAppointment(context.Context, *CancelAppointmentRequest) (*AppointmentResponse, error)
	RecordPayment(context.Context, *RecordPaymentRequest) (*AppointmentResponse, error)
	ListAppointments(context.Context, *ListAppointmentsRequest) (*ListAppointmentsResponse, error)
	GetCatalog(context.Context, *GetCatalogRequest) (*GetCatalogResponse, error)
}

func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServiceServer) {
	s.RegisterService(&BookingServiceDesc, srv)
}

func unaryHandler[Req, Resp any](method string, call func(BookingServiceServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + BookingServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BookingServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BookingServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var BookingServiceDesc = grpc.ServiceDesc{
	ServiceName: BookingServiceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetFreeSlots", Handler: unaryHandler("GetFreeSlots", BookingServiceServer.GetFreeSlots)},
		{MethodName: "BookSlot", Handler: unaryHandler("BookSlot", BookingServiceServer.BookSlot)},
		{MethodName: "GetAppointment", Handler: unaryHandler("GetAppointment", BookingServiceServer.GetAppointment)},
		{MethodName: "ConfirmAppointment", Handler: unaryHandler("ConfirmAppointment", BookingServiceServer.ConfirmAppointment)},
		{MethodName: "CancelAppointment", Handler: unaryHandler("CancelAppointment", BookingServiceServer.CancelAppointment)},
		{MethodName: "RecordPayment", Handler: unaryHandler("RecordPayment", BookingServiceServer.RecordPayment)},
		{MethodName: "ListAppointments", Handler: unaryHandler("ListAppointments", BookingServiceServer.ListAppointments)},
		{MethodName: "GetCatalog", Handler: unaryHandler("GetCatalog", BookingServiceServer.GetCatalog)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "salonbook/v1/booking.proto",
}

// BookingServiceClient calls the service with the JSON codec.
type BookingServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewBookingServiceClient(cc grpc.ClientConnInterface) *BookingServiceClient {
	return &BookingServiceClient{cc: cc}
}

func invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+BookingServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingServiceClient) GetFreeSlots(ctx context.Context, in *GetFreeSlotsRequest, opts ...grpc.CallOption) (*GetFreeSlotsResponse, error) {
	return invoke[GetFreeSlotsRequest, GetFreeSlotsResponse](ctx, c.cc, "GetFreeSlots", in, opts)
}

func (c *BookingServiceClient) BookSlot(ctx context.Context, in *BookSlotRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[BookSlotRequest, AppointmentResponse](ctx, c.cc, "BookSlot", in, opts)
}

func (c *BookingServiceClient) GetAppointment(ctx context.Context, in *GetAppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[GetAppointmentRequest, AppointmentResponse](ctx, c.cc, "GetAppointment", in, opts)
}

func (c *BookingServiceClient) ConfirmAppointment(ctx context.Context, in *ConfirmAppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[ConfirmAppointmentRequest, AppointmentResponse](ctx, c.cc, "ConfirmAppointment", in, opts)
}

func (c *BookingServiceClient) CancelAppointment(ctx context.Context, in *CancelAppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[CancelAppointmentRequest, AppointmentResponse](ctx, c.cc, "CancelAppointment", in, opts)
}

func (c *BookingServiceClient) RecordPayment(ctx context.Context, in *RecordPaymentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[RecordPaymentRequest, AppointmentResponse](ctx, c.cc, "RecordPayment", in, opts)
}

func (c *BookingServiceClient) ListAppointments(ctx context.Context, in *ListAppointmentsRequest, opts ...grpc.CallOption) (*ListAppointmentsResponse, error) {
	return invoke[ListAppointmentsRequest, ListAppointmentsResponse](ctx, c.cc, "ListAppointments", in, opts)
}

func (c *BookingServiceClient) GetCatalog(ctx context.Context, in *GetCatalogRequest, opts ...grpc.CallOption) (*GetCatalogResponse, error) {
	return invoke[GetCatalogRequest, GetCatalogResponse](ctx, c.cc, "GetCatalog", in, opts)
}
