package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "clinicsched.v1.SchedulingService"

// SchedulingServer is the unary surface of the scheduling service. Requests
// and responses are JSON objects carried as google.protobuf.Struct.
type SchedulingServer interface {
	CreateAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckConflicts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSeries(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var schedulingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateAppointment", Handler: unaryHandler("CreateAppointment", SchedulingServer.CreateAppointment)},
		{MethodName: "CheckConflicts", Handler: unaryHandler("CheckConflicts", SchedulingServer.CheckConflicts)},
		{MethodName: "UpdateAppointment", Handler: unaryHandler("UpdateAppointment", SchedulingServer.UpdateAppointment)},
		{MethodName: "DeleteAppointment", Handler: unaryHandler("DeleteAppointment", SchedulingServer.DeleteAppointment)},
		{MethodName: "GetAppointment", Handler: unaryHandler("GetAppointment", SchedulingServer.GetAppointment)},
		{MethodName: "ListSeries", Handler: unaryHandler("ListSeries", SchedulingServer.ListSeries)},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterSchedulingServer(s grpc.ServiceRegistrar, srv SchedulingServer) {
	s.RegisterService(&schedulingServiceDesc, srv)
}

// FullMethod returns the gRPC method path for method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

type unaryCall func(SchedulingServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := FullMethod(method)
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SchedulingServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SchedulingServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}
