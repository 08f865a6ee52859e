package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joeycumines/hostbridge/internal/dispatch"
	"github.com/joeycumines/hostbridge/internal/value"
)

type fixture struct {
	conn    *grpc.ClientConn
	local   *dispatch.Router
	seenIDs chan string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{seenIDs: make(chan string, 8)}

	served := dispatch.NewRegistry()
	require.NoError(t, served.Register("Echo", dispatch.NewCommandSet(
		dispatch.Command{
			Name: "echo",
			Handler: func(_ context.Context, call *dispatch.Call) {
				f.seenIDs <- call.Request().ID
				call.Resolve(call.Args())
			},
		},
		dispatch.Command{
			Name: "fail",
			Handler: dispatch.SyncHandler(func(context.Context, value.Value) (value.Value, error) {
				return value.Null(), errors.New("disk full")
			}),
		},
		dispatch.Command{
			Name:    "strict",
			Args:    dispatch.StrictArgs(dispatch.Required("n", dispatch.FieldInteger)),
			Handler: dispatch.SyncHandler(func(_ context.Context, args value.Value) (value.Value, error) { return args.Get("n"), nil }),
		},
	)))

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(NewServer(dispatch.NewRouter(dispatch.KindModule, served), nil))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, "passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	f.conn = conn

	local := dispatch.NewRegistry()
	require.NoError(t, local.Register("Remote", NewModule(conn, "Echo", nil)))
	require.NoError(t, local.Register("Ghost", NewModule(conn, "Missing", nil)))
	f.local = dispatch.NewRouter(dispatch.KindModule, local)
	return f
}

func (f *fixture) call(t *testing.T, target, command string, args value.Value) (value.Value, error) {
	t.Helper()
	type res struct {
		v   value.Value
		err error
	}
	ch := make(chan res, 1)
	f.local.Dispatch(context.Background(), dispatch.Request{ID: "req-1", Target: target, Command: command, Args: args}, dispatch.Completion{
		OnSuccess: func(v value.Value) { ch <- res{v: v} },
		OnFailure: func(err error) { ch <- res{err: err} },
	})
	select {
	case r := <-ch:
		return r.v, r.err
	case <-time.After(5 * time.Second):
		t.Fatal("remote dispatch did not complete")
		return value.Null(), nil
	}
}

func TestRemoteModule_Forwards(t *testing.T) {
	f := newFixture(t)

	args := value.Map(value.NewObject().
		Set("a", value.List(value.Int(1), value.String("two"), value.Null())).
		Set("b", value.Map(value.NewObject().Set("ok", value.Bool(true)))))
	got, err := f.call(t, "Remote", "echo", args)
	require.NoError(t, err)
	assert.True(t, value.Equal(args, got), "got %s", got)
	assert.Equal(t, "req-1", <-f.seenIDs)
}

func TestRemoteModule_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.call(t, "Ghost", "echo", value.Map(nil))
	var de *dispatch.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dispatch.ErrorResolution, de.Kind)
	assert.Equal(t, "Ghost", de.Target)
	assert.Contains(t, de.Err.Error(), `"Missing"`)

	_, err = f.call(t, "Remote", "explode", value.Map(nil))
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dispatch.ErrorUnsupportedCommand, de.Kind)
	assert.EqualError(t, err, `module "Remote" does not support command "explode"`)

	_, err = f.call(t, "Remote", "strict", value.Map(value.NewObject().Set("n", value.Number(0.5))))
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dispatch.ErrorArgumentShape, de.Kind)
	assert.Equal(t, "commandArgs.n", de.Field)
	assert.EqualError(t, err, `invalid argument "commandArgs.n": expected integer, got number 0.5`)

	_, err = f.call(t, "Remote", "fail", value.Map(nil))
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dispatch.ErrorExecution, de.Kind)
	assert.EqualError(t, err, "disk full")
}

func TestServer_Execute_BadRequest(t *testing.T) {
	s := NewServer(dispatch.NewRouter(dispatch.KindModule, dispatch.NewRegistry()), nil)

	_, err := s.Execute(context.Background(), &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.Execute(context.Background(), &structpb.Struct{Fields: map[string]*structpb.Value{
		"target": structpb.NewStringValue("Logger"),
	}})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_Execute_ContextDone(t *testing.T) {
	reg := dispatch.NewRegistry()
	require.NoError(t, reg.Register("Never", dispatch.NewCommandSet(dispatch.Command{
		Name:    "wait",
		Handler: func(context.Context, *dispatch.Call) {},
	})))
	s := NewServer(dispatch.NewRouter(dispatch.KindModule, reg), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Execute(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		"target":  structpb.NewStringValue("Never"),
		"command": structpb.NewStringValue("wait"),
	}})
	assert.Equal(t, codes.DeadlineExceeded, status.Code(err))
}

func TestStatusMapping(t *testing.T) {
	for _, kind := range []dispatch.ErrorKind{
		dispatch.ErrorResolution,
		dispatch.ErrorUnsupportedCommand,
		dispatch.ErrorArgumentShape,
		dispatch.ErrorExecution,
	} {
		t.Run(kind.String(), func(t *testing.T) {
			in := &dispatch.Error{Kind: kind, TargetKind: dispatch.KindModule, Target: "T", Command: "c", Err: errors.New("cause")}
			if kind == dispatch.ErrorArgumentShape {
				in.Field = "commandArgs.x"
			}
			out := fromStatus(toStatus(in))
			assert.Equal(t, kind, out.Kind)
			assert.Equal(t, in.Field, out.Field)
			assert.EqualError(t, out.Err, "cause")
		})
	}

	out := fromStatus(status.Error(codes.Unavailable, "connection refused"))
	assert.Equal(t, dispatch.ErrorExecution, out.Kind)
	assert.EqualError(t, out.Err, "remote call failed (Unavailable): connection refused")

	assert.Equal(t, codes.Unknown, status.Code(toStatus(errors.New("plain"))))
}

func TestWaitForHealth_ContextEnds(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet", append(DialOptions(), grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))...)
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, WaitForHealth(ctx, conn), context.DeadlineExceeded)
}

func newLimitedServer(t *testing.T, now func() time.Time) (*Server, *limitedResolver) {
	t.Helper()
	reg := dispatch.NewRegistry()
	for _, name := range []string{"A", "B"} {
		require.NoError(t, reg.Register(name, dispatch.NewCommandSet(dispatch.Command{
			Name: "ping",
			Handler: dispatch.SyncHandler(func(context.Context, value.Value) (value.Value, error) {
				return value.String("pong"), nil
			}),
		})))
	}
	res := rateLimit(reg, 1, 2, now)
	lr, ok := res.(*limitedResolver)
	require.True(t, ok)
	return NewServer(dispatch.NewRouter(dispatch.KindModule, res), nil), lr
}

func execute(s *Server, target, command string) error {
	_, err := s.Execute(context.Background(), &structpb.Struct{Fields: map[string]*structpb.Value{
		"target":  structpb.NewStringValue(target),
		"command": structpb.NewStringValue(command),
	}})
	return err
}

func TestServer_Execute_RateLimit(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s, _ := newLimitedServer(t, func() time.Time { return now })

	require.NoError(t, execute(s, "A", "ping"))
	require.NoError(t, execute(s, "A", "ping"))
	err := execute(s, "A", "ping")
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), `rate limit exceeded for "A"`)

	// buckets are per target
	require.NoError(t, execute(s, "B", "ping"))

	now = now.Add(time.Second)
	assert.NoError(t, execute(s, "A", "ping"))
}

func TestServer_Execute_RateLimitUnknownTargets(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s, lr := newLimitedServer(t, func() time.Time { return now })

	for i := 0; i < 1000; i++ {
		err := execute(s, fmt.Sprintf("made-up-%d", i), "ping")
		require.Equal(t, codes.NotFound, status.Code(err))
	}
	assert.Equal(t, codes.Unimplemented, status.Code(execute(s, "A", "nope")))
	assert.Equal(t, 0, lr.limiter.size())

	require.NoError(t, execute(s, "A", "ping"))
	assert.Equal(t, 1, lr.limiter.size())
}

func TestRateLimit_Disabled(t *testing.T) {
	reg := dispatch.NewRegistry()
	assert.Same(t, reg, RateLimit(reg, 0, 10))

	var l *targetLimiter
	for i := 0; i < 100; i++ {
		assert.True(t, l.allow("x", time.Now()))
	}
}
