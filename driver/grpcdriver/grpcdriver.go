// Package grpcdriver is the reference transport: every client dials the
// server and opens one bidirectional Communicate stream, multiplexing all
// four logical channels over it. This is the same stack imagvfx-coco
// exercises in worker.go (grpc.Dial + a generated client stub) and
// cmd/cocoworker/main.go (grpc.NewServer + a generated server stub),
// generalized from "one RPC per verb" to "one streaming RPC carrying
// every frame, tagged by channel".
package grpcdriver

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/directord/directord/driver"
	"github.com/directord/directord/driver/pb"
)

// Driver implements driver.Driver over gRPC.
type Driver struct {
	mu      sync.Mutex
	clients map[string]*clientConn // server side: identity -> active stream
	inbox   map[driver.Channel]chan inboundFrame

	// client-side state
	stream pb.Transport_CommunicateClient

	grpcServer *grpc.Server
}

type clientConn struct {
	send chan *pb.Frame
}

type inboundFrame struct {
	identity string
	frame    *pb.Frame
}

// New creates an unconnected Driver. Call Bind (server) or Connect
// (client) before using Send/Receive.
func New() *Driver {
	return &Driver{
		clients: make(map[string]*clientConn),
		inbox: map[driver.Channel]chan inboundFrame{
			driver.Heartbeat: make(chan inboundFrame, 256),
			driver.Job:       make(chan inboundFrame, 256),
			driver.Transfer:  make(chan inboundFrame, 64),
			driver.Return:    make(chan inboundFrame, 256),
		},
	}
}

// Bind starts a gRPC server that accepts one Communicate stream per
// connecting client and routes frames by identity.
func (d *Driver) Bind(ctx context.Context, cfg driver.Config) error {
	lis, err := net.Listen("tcp", cfg.BindAddress)
	if err != nil {
		return fmt.Errorf("grpcdriver: bind %s: %w", cfg.BindAddress, err)
	}
	d.grpcServer = grpc.NewServer()
	pb.RegisterTransportServer(d.grpcServer, &transportServer{d: d})
	errCh := make(chan error, 1)
	go func() { errCh <- d.grpcServer.Serve(lis) }()
	select {
	case <-ctx.Done():
		d.grpcServer.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Connect dials the server and opens the single multiplexed stream.
func (d *Driver) Connect(ctx context.Context, cfg driver.Config) error {
	conn, err := grpc.DialContext(ctx, cfg.ServerAddress, grpc.WithTransportCredentials(insecure.NewCredentials()), grpc.WithBlock())
	if err != nil {
		return fmt.Errorf("grpcdriver: connect %s: %w", cfg.ServerAddress, err)
	}
	client := pb.NewTransportClient(conn)
	stream, err := client.Communicate(ctx)
	if err != nil {
		return fmt.Errorf("grpcdriver: open stream: %w", err)
	}
	d.mu.Lock()
	d.stream = stream
	d.mu.Unlock()

	for {
		frm, err := stream.Recv()
		if err == io.EOF || ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return fmt.Errorf("grpcdriver: recv: %w", err)
		}
		d.deliver(driver.Channel(frm.Channel), inboundFrame{identity: cfg.Identity, frame: frm})
	}
}

// Send transmits a frame. On the server side it is routed to the named
// identity's open stream; on the client side identity is ignored (there
// is only one peer: the server).
func (d *Driver) Send(ctx context.Context, identity string, msg driver.Message) error {
	frm := toProto(msg)
	d.mu.Lock()
	stream := d.stream
	cc := d.clients[identity]
	d.mu.Unlock()

	send := func(context.Context) error {
		switch {
		case stream != nil:
			return stream.Send(frm)
		case cc != nil:
			select {
			case cc.send <- frm:
				return nil
			default:
				return fmt.Errorf("grpcdriver: backpressure on %s", identity)
			}
		default:
			return fmt.Errorf("grpcdriver: unknown identity %s", identity)
		}
	}
	return driver.SendWithRetry(ctx, driver.DefaultRetryPolicy, send)
}

// Receive blocks for the next frame on channel.
func (d *Driver) Receive(ctx context.Context, channel driver.Channel) (driver.Message, error) {
	ch := d.inbox[channel]
	select {
	case <-ctx.Done():
		return driver.Message{}, driver.ErrTimeout
	case f := <-ch:
		return decode(f.frame, f.identity), nil
	}
}

// HeartbeatSend/HeartbeatRecv are thin conveniences over Send/Receive on
// the heartbeat channel, matching the best-effort, lossy contract: unlike
// Send, failures here are never retried, since heartbeat loss is exactly
// what feeds worker expiry (spec.md §4.1). On the server side a full send
// queue drops the frame silently; a client stream error or an unknown
// identity is returned to the caller.
func (d *Driver) HeartbeatSend(ctx context.Context, identity string, payload []byte) error {
	msg := driver.Message{Channel: driver.Heartbeat, Identity: identity, Data: payload, ControlFlags: driver.FlagHeartbeatNotice}
	frm := toProto(msg)
	d.mu.Lock()
	stream := d.stream
	cc := d.clients[identity]
	d.mu.Unlock()
	if stream != nil {
		return stream.Send(frm)
	}
	if cc != nil {
		select {
		case cc.send <- frm:
		default:
		}
		return nil
	}
	return fmt.Errorf("grpcdriver: unknown identity %s", identity)
}

func (d *Driver) HeartbeatRecv(ctx context.Context) (string, []byte, error) {
	msg, err := d.Receive(ctx, driver.Heartbeat)
	if err != nil {
		return "", nil, err
	}
	return msg.Identity, msg.Data, nil
}

func (d *Driver) deliver(ch driver.Channel, f inboundFrame) {
	d.mu.Lock()
	q := d.inbox[ch]
	d.mu.Unlock()
	select {
	case q <- f:
	default:
		log.Printf("grpcdriver: dropped frame on %s channel (queue full)", ch)
	}
}

// transportServer implements pb.TransportServer: one goroutine per
// connected client reads its stream and feeds the shared inbox, while a
// per-client send loop drains outbound frames queued by Send.
type transportServer struct {
	d *Driver
}

func (s *transportServer) Communicate(stream pb.Transport_CommunicateServer) error {
	first, err := stream.Recv()
	if err != nil {
		return err
	}
	identity := first.Identity
	cc := &clientConn{send: make(chan *pb.Frame, 256)}
	s.d.mu.Lock()
	s.d.clients[identity] = cc
	s.d.mu.Unlock()
	defer func() {
		s.d.mu.Lock()
		delete(s.d.clients, identity)
		s.d.mu.Unlock()
	}()

	s.d.deliver(driver.Channel(first.Channel), inboundFrame{identity: identity, frame: first})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for frm := range cc.send {
			if err := stream.Send(frm); err != nil {
				return
			}
		}
	}()

	for {
		frm, err := stream.Recv()
		if err == io.EOF {
			close(cc.send)
			<-done
			return nil
		}
		if err != nil {
			close(cc.send)
			<-done
			return err
		}
		s.d.deliver(driver.Channel(frm.Channel), inboundFrame{identity: identity, frame: frm})
	}
}

func toProto(msg driver.Message) *pb.Frame {
	return &pb.Frame{
		MessageId:    msg.MessageID,
		Channel:      int32(msg.Channel),
		ControlFlags: int32(msg.ControlFlags),
		Command:      msg.Command,
		Data:         msg.Data,
		Info:         msg.Info,
		Stdout:       msg.Stdout,
		Stderr:       msg.Stderr,
		Identity:     msg.Identity,
		JobSha:       msg.JobSha,
	}
}

func decode(frm *pb.Frame, identity string) driver.Message {
	return driver.Message{
		MessageID:    frm.MessageId,
		Channel:      driver.Channel(frm.Channel),
		ControlFlags: driver.ControlFlag(frm.ControlFlags),
		Command:      frm.Command,
		Data:         frm.Data,
		Info:         frm.Info,
		Stdout:       frm.Stdout,
		Stderr:       frm.Stderr,
		Identity:     identity,
		JobSha:       frm.JobSha,
	}
}
