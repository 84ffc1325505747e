package grpc_control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "relay.control.v1.RelayControl"

// RelayControlServer is the server API for the control service.
type RelayControlServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Toggle(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSettings(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	UpdateSettings(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSources(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

func RegisterRelayControlServer(s grpc.ServiceRegistrar, srv RelayControlServer) {
	s.RegisterService(&RelayControl_ServiceDesc, srv)
}

// -----------------------------------------------------------------------------

func emptyHandler(name string, call func(RelayControlServer, context.Context, *emptypb.Empty) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(emptypb.Empty)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(RelayControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(RelayControlServer), ctx, req.(*emptypb.Empty))
			})
		},
	}
}

func structHandler(name string, call func(RelayControlServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(RelayControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(RelayControlServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var RelayControl_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RelayControlServer)(nil),
	Methods: []grpc.MethodDesc{
		emptyHandler("GetStatus", RelayControlServer.GetStatus),
		structHandler("Toggle", RelayControlServer.Toggle),
		emptyHandler("GetSettings", RelayControlServer.GetSettings),
		structHandler("UpdateSettings", RelayControlServer.UpdateSettings),
		emptyHandler("ListSources", RelayControlServer.ListSources),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "relay/control/v1/control.proto",
}

// -----------------------------------------------------------------------------

// RelayControlClient calls the control service over conn.
type RelayControlClient struct {
	cc grpc.ClientConnInterface
}

func NewRelayControlClient(cc grpc.ClientConnInterface) *RelayControlClient {
	return &RelayControlClient{cc: cc}
}

func (c *RelayControlClient) invoke(ctx context.Context, method string, in interface{}, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RelayControlClient) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetStatus", &emptypb.Empty{}, opts...)
}

func (c *RelayControlClient) Toggle(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Toggle", in, opts...)
}

func (c *RelayControlClient) GetSettings(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetSettings", &emptypb.Empty{}, opts...)
}

func (c *RelayControlClient) UpdateSettings(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "UpdateSettings", in, opts...)
}

func (c *RelayControlClient) ListSources(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListSources", &emptypb.Empty{}, opts...)
}
