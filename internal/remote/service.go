// Package remote carries dispatches to modules hosted by another process
// over gRPC.
//
// The service has a single unary method. Requests and responses use the
// protobuf well-known struct types, so no generated code is needed:
//
//	rpc Execute(google.protobuf.Struct) returns (google.protobuf.Value)
//
// The request struct holds "target", "command" and "args" fields.
package remote

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully-qualified gRPC service name.
	ServiceName = "hostbridge.v1.CommandService"

	executeMethod = "/" + ServiceName + "/Execute"

	// requestIDKey carries the dispatch id in request metadata.
	requestIDKey = "hostbridge-request-id"
)

// CommandServiceServer is the server API for the command service.
type CommandServiceServer interface {
	Execute(ctx context.Context, req *structpb.Struct) (*structpb.Value, error)
}

// CommandServiceClient is the client API for the command service.
type CommandServiceClient interface {
	Execute(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error)
}

type commandServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewCommandServiceClient returns a client bound to cc.
func NewCommandServiceClient(cc grpc.ClientConnInterface) CommandServiceClient {
	return &commandServiceClient{cc: cc}
}

func (c *commandServiceClient) Execute(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error) {
	out := new(structpb.Value)
	if err := c.cc.Invoke(ctx, executeMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterCommandServiceServer registers srv with s.
func RegisterCommandServiceServer(s grpc.ServiceRegistrar, srv CommandServiceServer) {
	s.RegisterService(&commandServiceDesc, srv)
}

func executeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CommandServiceServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: executeMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CommandServiceServer).Execute(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var commandServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CommandServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Execute",
			Handler:    executeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hostbridge/v1/command.proto",
}
