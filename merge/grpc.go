package merge

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// MergeServer is the server API for the Merge gRPC service.
//
// Frames cross the wire as protobuf bytes wrappers so this package does not
// require a protoc/codegen toolchain; the frame layout itself lives in
// wire.go.
//
// Proto definition: merge.proto.
type MergeServer interface {
	// Exchange is the one long-lived stream per client: DP batches and
	// heartbeats upward, status broadcasts downward. The first client frame
	// must be a hello.
	Exchange(Merge_ExchangeServer) error
	// Stats returns an encoded server statistics snapshot.
	Stats(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
}

// UnimplementedMergeServer can be embedded to have forward compatible implementations.
type UnimplementedMergeServer struct{}

func (UnimplementedMergeServer) Exchange(Merge_ExchangeServer) error {
	return status.Error(codes.Unimplemented, "method Exchange not implemented")
}
func (UnimplementedMergeServer) Stats(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Stats not implemented")
}

// RegisterMergeServer registers the Merge service on a gRPC server.
func RegisterMergeServer(s grpc.ServiceRegistrar, srv MergeServer) {
	s.RegisterService(&Merge_ServiceDesc, srv)
}

// MergeClient is the client API for the Merge gRPC service.
type MergeClient interface {
	Exchange(ctx context.Context, opts ...grpc.CallOption) (Merge_ExchangeClient, error)
	Stats(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type mergeClient struct{ cc grpc.ClientConnInterface }

func NewMergeClient(cc grpc.ClientConnInterface) MergeClient { return &mergeClient{cc: cc} }

func (c *mergeClient) Exchange(ctx context.Context, opts ...grpc.CallOption) (Merge_ExchangeClient, error) {
	stream, err := c.cc.NewStream(ctx, &Merge_ServiceDesc.Streams[0], "/ecdlp.kangaroo.merge.v1.Merge/Exchange", opts...)
	if err != nil {
		return nil, err
	}
	return &mergeExchangeClient{stream}, nil
}

func (c *mergeClient) Stats(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	err := c.cc.Invoke(ctx, "/ecdlp.kangaroo.merge.v1.Merge/Stats", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Merge_ExchangeClient is the client side of the Exchange stream.
type Merge_ExchangeClient interface {
	Send(*wrapperspb.BytesValue) error
	Recv() (*wrapperspb.BytesValue, error)
	grpc.ClientStream
}

type mergeExchangeClient struct{ grpc.ClientStream }

func (x *mergeExchangeClient) Send(m *wrapperspb.BytesValue) error {
	return x.ClientStream.SendMsg(m)
}

func (x *mergeExchangeClient) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Merge_ExchangeServer is the server side of the Exchange stream.
type Merge_ExchangeServer interface {
	Send(*wrapperspb.BytesValue) error
	Recv() (*wrapperspb.BytesValue, error)
	grpc.ServerStream
}

type mergeExchangeServer struct{ grpc.ServerStream }

func (x *mergeExchangeServer) Send(m *wrapperspb.BytesValue) error {
	return x.ServerStream.SendMsg(m)
}

func (x *mergeExchangeServer) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _Merge_Exchange_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(MergeServer).Exchange(&mergeExchangeServer{stream})
}

func _Merge_Stats_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MergeServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/ecdlp.kangaroo.merge.v1.Merge/Stats"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MergeServer).Stats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// Merge_ServiceDesc is the grpc.ServiceDesc for the Merge service.
var Merge_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "ecdlp.kangaroo.merge.v1.Merge",
	HandlerType: (*MergeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Stats", Handler: _Merge_Stats_Handler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Exchange",
			Handler:       _Merge_Exchange_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "merge.proto",
}
