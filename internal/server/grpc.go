package server

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/tagrules/internal/model"
)

// RulesServiceName is the fully qualified gRPC service name.
const RulesServiceName = "tagrules.v1.RulesService"

// RulesServiceServer is the read-only rule service used by search nodes.
// Requests and responses are google.protobuf.Struct values carrying the same
// JSON shapes as the HTTP API.
type RulesServiceServer interface {
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetVersion(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetTree(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExpandTags(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var rulesServiceDesc = grpc.ServiceDesc{
	ServiceName: RulesServiceName,
	HandlerType: (*RulesServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Health", Handler: unaryHandler("Health", RulesServiceServer.Health)},
		{MethodName: "GetVersion", Handler: unaryHandler("GetVersion", RulesServiceServer.GetVersion)},
		{MethodName: "GetTree", Handler: unaryHandler("GetTree", RulesServiceServer.GetTree)},
		{MethodName: "ExpandTags", Handler: unaryHandler("ExpandTags", RulesServiceServer.ExpandTags)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tagrules/v1/rules.proto",
}

type rulesMethod func(RulesServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

type methodHandler = func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)

func unaryHandler(name string, call rulesMethod) methodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RulesServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + RulesServiceName + "/" + name,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RulesServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// NewGRPCServer creates a gRPC server with the standard interceptors,
// registers the RulesService and reflection, and returns it ready to serve.
func NewGRPCServer(rulesServer *RulesServer, authToken string) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor,
			LoggingInterceptor,
			AuthInterceptor(authToken),
		),
	)

	srv.RegisterService(&rulesServiceDesc, rulesServer)
	reflection.Register(srv)

	return srv
}

// Health reports whether the store answers.
func (s *RulesServer) Health(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if _, err := s.rules.Version(ctx); err != nil {
		return nil, status.Error(codes.Unavailable, "store unavailable")
	}
	return structpb.NewStruct(map[string]any{"status": "ok"})
}

// GetVersion returns {"version": n}.
func (s *RulesServer) GetVersion(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	v, err := s.rules.Version(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return structpb.NewStruct(map[string]any{"version": v})
}

// GetTree returns the rule tree. When the request carries "if_version" (and
// "if_epoch", which defaults to 0) matching the current revision, the reply
// is {"not_modified": true, "version": n, "epoch": e} instead of the tree.
func (s *RulesServer) GetTree(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if f, ok := in.GetFields()["if_version"]; ok {
		rev, err := s.rules.Revision(ctx)
		if err != nil {
			return nil, grpcError(err)
		}
		known := model.Revision{
			Version: int64(f.GetNumberValue()),
			Epoch:   int64(in.GetFields()["if_epoch"].GetNumberValue()),
		}
		if known == rev {
			return structpb.NewStruct(map[string]any{"not_modified": true, "version": rev.Version, "epoch": rev.Epoch})
		}
	}
	tree, err := s.rules.Snapshot(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(tree)
}

// ExpandTags expands {"tags": [...]}.
func (s *RulesServer) ExpandTags(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var tags []string
	for _, v := range in.GetFields()["tags"].GetListValue().GetValues() {
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, status.Error(codes.InvalidArgument, "tags must be strings")
		}
		tags = append(tags, sv.StringValue)
	}
	res, err := s.expander.Expand(ctx, tags)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(res)
}

// toStruct converts v to a Struct through its JSON encoding so gRPC and HTTP
// replies share field names.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode reply: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode reply: %v", err)
	}
	return out, nil
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case isConflict(err):
		return status.Error(codes.Aborted, err.Error())
	case isBadRequest(err):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Errorf(codes.Internal, "%v", err)
	}
}
