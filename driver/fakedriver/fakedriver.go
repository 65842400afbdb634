// Package fakedriver is an in-process Driver used by coordinator and
// clientworker tests: frames are handed directly between a paired server
// side and client side through buffered channels, with no real transport.
//
// Grounded the same way imagvfx-coco grounds its "nop" backend
// (service/nop/nop.go): a trivial stand-in implementation that exists
// purely so higher-level logic can be tested without a concrete
// transport.
package fakedriver

import (
	"context"

	"github.com/directord/directord/driver"
)

// Pair creates two connected Drivers: one playing the server role, one
// the client role for the given identity. Messages sent on one arrive on
// the other, per channel.
func Pair(identity string) (server, client *Driver) {
	toServer := newLanes()
	toClient := newLanes()
	s := &Driver{identity: identity, send: toClient, recv: toServer}
	c := &Driver{identity: identity, send: toServer, recv: toClient}
	return s, c
}

type lanes map[driver.Channel]chan driver.Message

func newLanes() lanes {
	return lanes{
		driver.Heartbeat: make(chan driver.Message, 256),
		driver.Job:        make(chan driver.Message, 256),
		driver.Transfer:   make(chan driver.Message, 64),
		driver.Return:     make(chan driver.Message, 256),
	}
}

// Driver is one side of a fake in-process connection.
type Driver struct {
	identity string
	send     lanes
	recv     lanes
}

func (d *Driver) Bind(ctx context.Context, cfg driver.Config) error    { <-ctx.Done(); return nil }
func (d *Driver) Connect(ctx context.Context, cfg driver.Config) error { <-ctx.Done(); return nil }

func (d *Driver) Send(ctx context.Context, identity string, msg driver.Message) error {
	msg.Identity = d.identity
	select {
	case d.send[msg.Channel] <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Driver) Receive(ctx context.Context, channel driver.Channel) (driver.Message, error) {
	select {
	case m := <-d.recv[channel]:
		return m, nil
	case <-ctx.Done():
		return driver.Message{}, driver.ErrTimeout
	}
}

func (d *Driver) HeartbeatSend(ctx context.Context, identity string, payload []byte) error {
	return d.Send(ctx, identity, driver.Message{Channel: driver.Heartbeat, Data: payload, ControlFlags: driver.FlagHeartbeatNotice})
}

func (d *Driver) HeartbeatRecv(ctx context.Context) (string, []byte, error) {
	m, err := d.Receive(ctx, driver.Heartbeat)
	if err != nil {
		return "", nil, err
	}
	return m.Identity, m.Data, nil
}
