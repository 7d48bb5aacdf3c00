// Package api exposes the daemon's components over gRPC. Every request and
// response travels as a google.protobuf.Struct holding the JSON form of the
// Go types in this package, so no generated stubs are needed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/matheus3301/chatbox/internal/apperr"
	"github.com/matheus3301/chatbox/internal/bus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service names registered on the daemon socket.
const (
	SessionServiceName    = "chatbox.v1.Session"
	DirectoryServiceName  = "chatbox.v1.Directory"
	TranscriptServiceName = "chatbox.v1.Transcript"
	SyncServiceName       = "chatbox.v1.Sync"
)

// Registrar is implemented by every service in this package.
type Registrar interface {
	Desc() *grpc.ServiceDesc
}

// Register adds every service to srv.
func Register(srv *grpc.Server, services ...Registrar) {
	for _, s := range services {
		srv.RegisterService(s.Desc(), s)
	}
}

// Empty is the request or response of calls that carry nothing.
type Empty struct{}

// Encode converts v to a Struct through its JSON form.
func Encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return structpb.NewStruct(m)
}

// Decode fills v from a Struct.
func Decode(s *structpb.Struct, v any) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func unary[Req, Resp any](service, method string, h func(context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	call := func(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
		req := new(Req)
		if err := Decode(in, req); err != nil {
			return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
		}
		resp, err := h(ctx, req)
		if err != nil {
			return nil, toStatus(err)
		}
		out, err := Encode(resp)
		if err != nil {
			return nil, grpcstatus.Error(codes.Internal, err.Error())
		}
		return out, nil
	}

	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + service + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(ctx, req.(*structpb.Struct))
			})
		},
	}
}

func serverStream[Req, Resp any](method string, h func(context.Context, *Req, func(*Resp) error) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    method,
		ServerStreams: true,
		Handler: func(_ any, stream grpc.ServerStream) error {
			in := new(structpb.Struct)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			req := new(Req)
			if err := Decode(in, req); err != nil {
				return grpcstatus.Error(codes.InvalidArgument, err.Error())
			}
			send := func(v *Resp) error {
				out, err := Encode(v)
				if err != nil {
					return err
				}
				return stream.SendMsg(out)
			}
			if err := h(stream.Context(), req, send); err != nil {
				return toStatus(err)
			}
			return nil
		},
	}
}

// toStatus maps application error codes onto gRPC codes. The status message
// is the short advisory text.
func toStatus(err error) error {
	if _, ok := grpcstatus.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return grpcstatus.Error(codes.Canceled, err.Error())
	}
	code := codes.Unknown
	switch apperr.CodeOf(err) {
	case apperr.CodeInvalidArgument:
		code = codes.InvalidArgument
	case apperr.CodeNotFound:
		code = codes.NotFound
	case apperr.CodeAlreadyExists:
		code = codes.AlreadyExists
	case apperr.CodeUnauthenticated:
		code = codes.Unauthenticated
	case apperr.CodeFailedPrecondition:
		code = codes.FailedPrecondition
	case apperr.CodeInternal:
		code = codes.Internal
	}
	return grpcstatus.Error(code, apperr.Advisory(err))
}

// FromStatus turns a gRPC error back into an application error.
func FromStatus(err error) error {
	st, ok := grpcstatus.FromError(err)
	if !ok || err == nil {
		return err
	}
	code := apperr.CodeUnknown
	switch st.Code() {
	case codes.InvalidArgument:
		code = apperr.CodeInvalidArgument
	case codes.NotFound:
		code = apperr.CodeNotFound
	case codes.AlreadyExists:
		code = apperr.CodeAlreadyExists
	case codes.Unauthenticated:
		code = apperr.CodeUnauthenticated
	case codes.FailedPrecondition:
		code = apperr.CodeFailedPrecondition
	case codes.Internal:
		code = apperr.CodeInternal
	}
	return apperr.New(code, st.Message())
}

// untilCleared returns a context that is cancelled when the session is
// signed out, so watch streams end with the session.
func untilCleared(ctx context.Context, b *bus.Bus) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	events, unsub := b.Subscribe(bus.KindSessionCleared, 1)
	go func() {
		defer unsub()
		select {
		case <-events:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
