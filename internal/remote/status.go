package remote

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joeycumines/hostbridge/internal/dispatch"
)

// codeFor maps a dispatch error kind to a gRPC status code.
func codeFor(kind dispatch.ErrorKind) codes.Code {
	switch kind {
	case dispatch.ErrorResolution:
		return codes.NotFound
	case dispatch.ErrorUnsupportedCommand:
		return codes.Unimplemented
	case dispatch.ErrorArgumentShape, dispatch.ErrorProtocol:
		return codes.InvalidArgument
	default:
		return codes.Unknown
	}
}

// kindFor is the inverse of codeFor. Transport failures count as execution
// errors.
func kindFor(code codes.Code) dispatch.ErrorKind {
	switch code {
	case codes.NotFound:
		return dispatch.ErrorResolution
	case codes.Unimplemented:
		return dispatch.ErrorUnsupportedCommand
	case codes.InvalidArgument:
		return dispatch.ErrorArgumentShape
	default:
		return dispatch.ErrorExecution
	}
}

// toStatus converts a dispatch failure into a status error. The error kind,
// argument field and cause travel as a Struct detail.
func toStatus(err error) error {
	var de *dispatch.Error
	if !errors.As(err, &de) {
		return status.Error(codes.Unknown, err.Error())
	}
	code := codeFor(de.Kind)
	if errors.Is(err, ErrRateLimited) {
		code = codes.ResourceExhausted
	}
	st := status.New(code, err.Error())
	detail := &structpb.Struct{Fields: map[string]*structpb.Value{
		"kind": structpb.NewStringValue(de.Kind.String()),
	}}
	if de.Field != "" {
		detail.Fields["field"] = structpb.NewStringValue(de.Field)
	}
	if de.Err != nil {
		detail.Fields["cause"] = structpb.NewStringValue(de.Err.Error())
	}
	if withDetail, derr := st.WithDetails(detail); derr == nil {
		st = withDetail
	}
	return st.Err()
}

// fromStatus converts an RPC error into a dispatch failure. Target details
// are filled in by the caller's Call.
func fromStatus(err error) *dispatch.Error {
	st := status.Convert(err)
	out := &dispatch.Error{Kind: kindFor(st.Code())}
	cause := st.Message()
	for _, d := range st.Details() {
		s, ok := d.(*structpb.Struct)
		if !ok {
			continue
		}
		if f, ok := s.GetFields()["field"]; ok {
			out.Field = f.GetStringValue()
		}
		if c, ok := s.GetFields()["cause"]; ok {
			cause = c.GetStringValue()
		}
	}

	switch {
	case out.Kind == dispatch.ErrorArgumentShape && out.Field == "":
		out.Field = dispatch.ArgsRoot
	case out.Kind == dispatch.ErrorExecution && st.Code() != codes.Unknown:
		cause = fmt.Sprintf("remote call failed (%s): %s", st.Code(), st.Message())
	}
	out.Err = errors.New(cause)
	return out
}
