package remote

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joeycumines/hostbridge/internal/dispatch"
	"github.com/joeycumines/hostbridge/internal/value"
)

// Server serves the command service from a Dispatcher, normally the module
// router.
type Server struct {
	router dispatch.Dispatcher
	logger *slog.Logger
}

var _ CommandServiceServer = (*Server)(nil)

// NewServer returns a Server dispatching to router.
func NewServer(router dispatch.Dispatcher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{router: router, logger: logger}
}

type result struct {
	v   value.Value
	err error
}

// Execute runs one dispatch and waits for its completion or for ctx.
func (s *Server) Execute(ctx context.Context, in *structpb.Struct) (*structpb.Value, error) {
	req := value.FromProtoStruct(in)
	target, ok := req.Get("target").AsString()
	if !ok || target == "" {
		return nil, status.Error(codes.InvalidArgument, "target must be a non-empty string")
	}
	command, ok := req.Get("command").AsString()
	if !ok || command == "" {
		return nil, status.Error(codes.InvalidArgument, "command must be a non-empty string")
	}
	args := req.Get("args")
	if args.IsNull() {
		args = value.Map(nil)
	}

	id := requestID(ctx)
	s.logger.Debug("remote dispatch", slog.String("id", id), slog.String("target", target), slog.String("command", command))

	done := make(chan result, 1)
	s.router.Dispatch(ctx, dispatch.Request{
		ID:      id,
		Target:  target,
		Command: command,
		Args:    args,
	}, dispatch.Completion{
		OnSuccess: func(v value.Value) { done <- result{v: v} },
		OnFailure: func(err error) { done <- result{err: err} },
	})

	select {
	case res := <-done:
		if res.err != nil {
			return nil, toStatus(res.err)
		}
		return res.v.ToProto(), nil
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}
}

func requestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(requestIDKey); len(ids) > 0 && ids[0] != "" {
			return ids[0]
		}
	}
	return uuid.NewString()
}

// NewGRPCServer returns a gRPC server exposing srv and a health service
// reporting SERVING.
func NewGRPCServer(srv CommandServiceServer, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	s := grpc.NewServer(opts...)
	RegisterCommandServiceServer(s, srv)

	hs := health.NewServer()
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(s, hs)
	return s
}
