package relay

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// FeedServer is the server API for the relay Feed gRPC service.
//
// Both methods carry canonical CBOR frames inside protobuf well-known
// wrapper types, so this package does not require a protoc/codegen
// toolchain.
//
// Proto definition: feed.proto.
type FeedServer interface {
	Pull(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Push(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

// UnimplementedFeedServer can be embedded to have forward compatible implementations.
type UnimplementedFeedServer struct{}

func (UnimplementedFeedServer) Pull(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Pull not implemented")
}
func (UnimplementedFeedServer) Push(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Push not implemented")
}

// RegisterFeedServer registers the Feed service on a gRPC server.
func RegisterFeedServer(s grpc.ServiceRegistrar, srv FeedServer) {
	s.RegisterService(&Feed_ServiceDesc, srv)
}

// FeedClient is the client API for the relay Feed gRPC service.
type FeedClient interface {
	Pull(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Push(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type feedClient struct{ cc grpc.ClientConnInterface }

func NewFeedClient(cc grpc.ClientConnInterface) FeedClient { return &feedClient{cc: cc} }

func (c *feedClient) Pull(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	err := c.cc.Invoke(ctx, "/humanity.core.relay.v1.Feed/Pull", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *feedClient) Push(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	err := c.cc.Invoke(ctx, "/humanity.core.relay.v1.Feed/Push", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func _Feed_Pull_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FeedServer).Pull(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/humanity.core.relay.v1.Feed/Pull"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FeedServer).Pull(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Feed_Push_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FeedServer).Push(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/humanity.core.relay.v1.Feed/Push"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FeedServer).Push(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Feed_ServiceDesc is the grpc.ServiceDesc for the Feed service.
var Feed_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "humanity.core.relay.v1.Feed",
	HandlerType: (*FeedServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Pull", Handler: _Feed_Pull_Handler},
		{MethodName: "Push", Handler: _Feed_Push_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "feed.proto",
}
