package fakedriver

import (
	"context"
	"testing"
	"time"

	"github.com/directord/directord/driver"
)

func TestPairDeliversJobFramesOneWay(t *testing.T) {
	server, client := Pair("nodeA")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := server.Send(ctx, "nodeA", driver.Message{Channel: driver.Job, Data: []byte("payload")}); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg, err := client.Receive(ctx, driver.Job)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if string(msg.Data) != "payload" {
		t.Fatalf("expected payload to arrive intact, got %q", msg.Data)
	}
}

func TestPairIsBidirectional(t *testing.T) {
	server, client := Pair("nodeA")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.Send(ctx, "nodeA", driver.Message{Channel: driver.Return, Data: []byte("result")}); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg, err := server.Receive(ctx, driver.Return)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if string(msg.Data) != "result" {
		t.Fatalf("expected result to arrive intact, got %q", msg.Data)
	}
}

func TestHeartbeatSendRecv(t *testing.T) {
	server, client := Pair("nodeA")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.HeartbeatSend(ctx, "nodeA", []byte("beat")); err != nil {
		t.Fatalf("heartbeat send: %v", err)
	}
	identity, payload, err := server.HeartbeatRecv(ctx)
	if err != nil {
		t.Fatalf("heartbeat recv: %v", err)
	}
	if identity != "nodeA" || string(payload) != "beat" {
		t.Fatalf("expected (nodeA, beat), got (%s, %s)", identity, payload)
	}
}

func TestReceiveTimesOutOnContextCancellation(t *testing.T) {
	_, client := Pair("nodeA")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := client.Receive(ctx, driver.Job); err != driver.ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}
