package remote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joeycumines/hostbridge/internal/dispatch"
	"github.com/joeycumines/hostbridge/internal/value"
)

// Module is a dispatch.Target forwarding every command to a module of the
// same or another name on a remote command service. Whether the command
// exists is decided remotely.
type Module struct {
	client CommandServiceClient
	remote string
	logger *slog.Logger
}

// NewModule returns a Module forwarding to remoteName over conn.
func NewModule(conn grpc.ClientConnInterface, remoteName string, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	return &Module{
		client: NewCommandServiceClient(conn),
		remote: remoteName,
		logger: logger,
	}
}

// Command implements dispatch.Target. Every name is accepted.
func (m *Module) Command(name string) (dispatch.Command, bool) {
	return dispatch.Command{
		Name:    name,
		Args:    dispatch.Args(),
		Handler: m.forward,
	}, true
}

func (m *Module) forward(ctx context.Context, call *dispatch.Call) {
	req := call.Request()
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"target":  structpb.NewStringValue(m.remote),
		"command": structpb.NewStringValue(req.Command),
		"args":    req.Args.ToProto(),
	}}
	if req.ID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, requestIDKey, req.ID)
	}
	go func() {
		out, err := m.client.Execute(ctx, in)
		if err != nil {
			m.logger.Debug("remote command failed",
				slog.String("id", req.ID),
				slog.String("module", m.remote),
				slog.String("command", req.Command),
				slog.Any("error", err))
			call.Reject(fromStatus(err))
			return
		}
		call.Resolve(value.FromProto(out))
	}()
}

// DialOptions returns the options used by Dial.
func DialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
}

// Dial connects to a command service at addr and waits for it to report
// SERVING. Extra options are appended to DialOptions.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, append(DialOptions(), opts...)...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if err := WaitForHealth(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

// WaitForHealth polls the command service health until it is SERVING or
// ctx ends.
func WaitForHealth(ctx context.Context, conn grpc.ClientConnInterface) error {
	client := grpc_health_v1.NewHealthClient(conn)
	backoff := 50 * time.Millisecond
	for {
		callCtx, cancel := context.WithTimeout(ctx, time.Second)
		resp, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
		cancel()
		if err == nil && resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING {
			return nil
		}

		select {
		case <-ctx.Done():
			if err == nil {
				err = fmt.Errorf("status %s", resp.GetStatus())
			}
			return fmt.Errorf("wait for health: %w (last: %v)", ctx.Err(), err)
		case <-time.After(backoff):
		}
		if backoff < time.Second {
			backoff = min(backoff*2, time.Second)
		}
	}
}
