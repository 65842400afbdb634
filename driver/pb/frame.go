// Package pb holds the wire message and gRPC service definition for the
// reference driver. It is written by hand in the shape protoc-gen-go /
// protoc-gen-go-grpc produce for a simple bidirectional-streaming service,
// following the same style imagvfx-coco's (absent from this retrieval,
// but referenced throughout worker.go and cmd/cocoworker/main.go as
// "github.com/imagvfx/coco/pb") generated client/server stubs use:
// google.golang.org/grpc + github.com/golang/protobuf.
//
// Directord's four logical channels (heartbeat, job, transfer, return)
// are multiplexed over one bidirectional stream per identity, each Frame
// tagged with Channel - this keeps the generated surface to a single
// RPC instead of four, while still preserving "no cross-identity
// ordering; within a single (identity, channel) pair, order is preserved"
// because each logical channel is a strict sub-sequence of one physically
// ordered stream.
package pb

import (
	"context"

	"github.com/golang/protobuf/proto" //lint:ignore SA1019 legacy message shape, matches teacher's protobuf version
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Frame is the wire message. Field numbers are stable across versions per
// spec.md §6's "Wire frame format".
type Frame struct {
	MessageId    string `protobuf:"bytes,1,opt,name=message_id,json=messageId,proto3" json:"message_id,omitempty"`
	Channel      int32  `protobuf:"varint,2,opt,name=channel,proto3" json:"channel,omitempty"`
	ControlFlags int32  `protobuf:"varint,3,opt,name=control_flags,json=controlFlags,proto3" json:"control_flags,omitempty"`
	Command      string `protobuf:"bytes,4,opt,name=command,proto3" json:"command,omitempty"`
	Data         []byte `protobuf:"bytes,5,opt,name=data,proto3" json:"data,omitempty"`
	Info         []byte `protobuf:"bytes,6,opt,name=info,proto3" json:"info,omitempty"`
	Stdout       []byte `protobuf:"bytes,7,opt,name=stdout,proto3" json:"stdout,omitempty"`
	Stderr       []byte `protobuf:"bytes,8,opt,name=stderr,proto3" json:"stderr,omitempty"`
	Identity     string `protobuf:"bytes,9,opt,name=identity,proto3" json:"identity,omitempty"`
	JobSha       string `protobuf:"bytes,10,opt,name=job_sha,json=jobSha,proto3" json:"job_sha,omitempty"`
}

func (m *Frame) Reset()         { *m = Frame{} }
func (m *Frame) String() string { return proto.CompactTextString(m) }
func (m *Frame) ProtoMessage()  {}

// Transport is the single service the reference driver needs: one
// bidirectional stream of Frames per identity.
type TransportClient interface {
	Communicate(ctx context.Context, opts ...grpc.CallOption) (Transport_CommunicateClient, error)
}

type transportClient struct {
	cc grpc.ClientConnInterface
}

// NewTransportClient mirrors protoc-gen-go-grpc's generated constructor.
func NewTransportClient(cc grpc.ClientConnInterface) TransportClient {
	return &transportClient{cc}
}

func (c *transportClient) Communicate(ctx context.Context, opts ...grpc.CallOption) (Transport_CommunicateClient, error) {
	stream, err := c.cc.NewStream(ctx, &_Transport_serviceDesc.Streams[0], "/directord.Transport/Communicate", opts...)
	if err != nil {
		return nil, err
	}
	return &transportCommunicateClient{stream}, nil
}

type Transport_CommunicateClient interface {
	Send(*Frame) error
	Recv() (*Frame, error)
	grpc.ClientStream
}

type transportCommunicateClient struct {
	grpc.ClientStream
}

func (x *transportCommunicateClient) Send(m *Frame) error {
	return x.ClientStream.SendMsg(m)
}

func (x *transportCommunicateClient) Recv() (*Frame, error) {
	m := new(Frame)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// TransportServer is implemented by the bind side (the Directord server
// for the default topology, where clients dial in).
type TransportServer interface {
	Communicate(Transport_CommunicateServer) error
}

type Transport_CommunicateServer interface {
	Send(*Frame) error
	Recv() (*Frame, error)
	grpc.ServerStream
}

type transportCommunicateServer struct {
	grpc.ServerStream
}

func (x *transportCommunicateServer) Send(m *Frame) error {
	return x.ServerStream.SendMsg(m)
}

func (x *transportCommunicateServer) Recv() (*Frame, error) {
	m := new(Frame)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _Transport_Communicate_Handler(srv interface{}, stream grpc.ServerStream) error {
	impl, ok := srv.(TransportServer)
	if !ok {
		return status.Error(codes.Internal, "transport: server does not implement TransportServer")
	}
	return impl.Communicate(&transportCommunicateServer{stream})
}

// RegisterTransportServer mirrors protoc-gen-go-grpc's generated
// registration helper.
func RegisterTransportServer(s grpc.ServiceRegistrar, srv TransportServer) {
	s.RegisterService(&_Transport_serviceDesc, srv)
}

var _Transport_serviceDesc = grpc.ServiceDesc{
	ServiceName: "directord.Transport",
	HandlerType: (*TransportServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Communicate",
			Handler:       _Transport_Communicate_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "directord/transport.proto",
}
