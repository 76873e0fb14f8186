package api

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

/*
 * Wire format: every method takes and returns a google.protobuf.Struct
 * whose JSON form is the request/response struct of this package. The
 * descriptor is written by hand in the shape protoc-gen-go-grpc emits, so
 * any gRPC client (grpcurl included) can call it with the well-known
 * Struct type and no generated stubs.
 */

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "wafscope.debugger.v1.Debugger"

// DebuggerServer is the server API for the debugger service.
type DebuggerServer interface {
	PutRuleSet(context.Context, *PutRuleSetRequest) (*PutRuleSetResponse, error)
	ListRuleSets(context.Context, *ListRuleSetsRequest) (*ListRuleSetsResponse, error)
	DeleteRuleSet(context.Context, *RuleSetRef) (*DeleteRuleSetResponse, error)
	GetGraph(context.Context, *RuleSetRef) (*GraphResponse, error)
	Evaluate(context.Context, *EvaluateRequest) (*EvaluateResponse, error)
	StartSession(context.Context, *StartSessionRequest) (*SessionView, error)
	StepForward(context.Context, *SessionRef) (*SessionView, error)
	StepBackward(context.Context, *SessionRef) (*SessionView, error)
	ResetSession(context.Context, *SessionRef) (*SessionView, error)
	GetSession(context.Context, *SessionRef) (*SessionView, error)
	CloseSession(context.Context, *SessionRef) (*CloseSessionResponse, error)
}

var _ DebuggerServer = (*DebuggerService)(nil)

// DebuggerServiceDesc is the grpc.ServiceDesc for the debugger service.
var DebuggerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DebuggerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PutRuleSet", Handler: unaryHandler("PutRuleSet", DebuggerServer.PutRuleSet)},
		{MethodName: "ListRuleSets", Handler: unaryHandler("ListRuleSets", DebuggerServer.ListRuleSets)},
		{MethodName: "DeleteRuleSet", Handler: unaryHandler("DeleteRuleSet", DebuggerServer.DeleteRuleSet)},
		{MethodName: "GetGraph", Handler: unaryHandler("GetGraph", DebuggerServer.GetGraph)},
		{MethodName: "Evaluate", Handler: unaryHandler("Evaluate", DebuggerServer.Evaluate)},
		{MethodName: "StartSession", Handler: unaryHandler("StartSession", DebuggerServer.StartSession)},
		{MethodName: "StepForward", Handler: unaryHandler("StepForward", DebuggerServer.StepForward)},
		{MethodName: "StepBackward", Handler: unaryHandler("StepBackward", DebuggerServer.StepBackward)},
		{MethodName: "ResetSession", Handler: unaryHandler("ResetSession", DebuggerServer.ResetSession)},
		{MethodName: "GetSession", Handler: unaryHandler("GetSession", DebuggerServer.GetSession)},
		{MethodName: "CloseSession", Handler: unaryHandler("CloseSession", DebuggerServer.CloseSession)},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterDebuggerServer registers srv with s.
func RegisterDebuggerServer(s grpc.ServiceRegistrar, srv DebuggerServer) {
	s.RegisterService(&DebuggerServiceDesc, srv)
}

type methodHandler = func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error)

// unaryHandler adapts a typed service method to the Struct wire format.
func unaryHandler[Req, Resp any](method string, call func(DebuggerServer, context.Context, *Req) (*Resp, error)) methodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			var typed Req
			if err := FromStruct(req.(*structpb.Struct), &typed); err != nil {
				return nil, invalidArgument("malformed %s request: %v", method, err)
			}
			resp, err := call(srv.(DebuggerServer), ctx, &typed)
			if err != nil {
				return nil, err
			}
			out, err := ToStruct(resp)
			if err != nil {
				return nil, status.Errorf(codes.Internal, "encode %s response: %v", method, err)
			}
			return out, nil
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ToStruct converts a JSON-serializable value into a Struct message.
func ToStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// FromStruct decodes a Struct message into dst.
func FromStruct(in *structpb.Struct, dst interface{}) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
