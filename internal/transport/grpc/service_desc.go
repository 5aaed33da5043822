package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const BookingServiceName = "carelink.v1.BookingService"

// BookingServiceServer is the server side of carelink.v1.BookingService.
// Every message is a google.protobuf.Struct carrying the JSON shape of the
// booking records.
type BookingServiceServer interface {
	CreateBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListBookings(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AcceptBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RejectBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckInBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompleteBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddNote(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ToggleTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FreeSlots(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(BookingServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func methodDesc(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(BookingServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + BookingServiceName + "/" + name,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

var BookingServiceDesc = grpc.ServiceDesc{
	ServiceName: BookingServiceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		methodDesc("CreateBooking", BookingServiceServer.CreateBooking),
		methodDesc("GetBooking", BookingServiceServer.GetBooking),
		methodDesc("ListBookings", BookingServiceServer.ListBookings),
		methodDesc("AcceptBooking", BookingServiceServer.AcceptBooking),
		methodDesc("RejectBooking", BookingServiceServer.RejectBooking),
		methodDesc("CheckInBooking", BookingServiceServer.CheckInBooking),
		methodDesc("CompleteBooking", BookingServiceServer.CompleteBooking),
		methodDesc("CancelBooking", BookingServiceServer.CancelBooking),
		methodDesc("DeleteBooking", BookingServiceServer.DeleteBooking),
		methodDesc("AddNote", BookingServiceServer.AddNote),
		methodDesc("ToggleTask", BookingServiceServer.ToggleTask),
		methodDesc("FreeSlots", BookingServiceServer.FreeSlots),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "carelink/v1/booking.proto",
}

func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServiceServer) {
	s.RegisterService(&BookingServiceDesc, srv)
}

// BookingServiceClient invokes BookingService methods by name.
type BookingServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewBookingServiceClient(cc grpc.ClientConnInterface) *BookingServiceClient {
	return &BookingServiceClient{cc: cc}
}

func (c *BookingServiceClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+BookingServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
