package component

import (
	"context"
	"testing"
	"time"

	"github.com/directord/directord/cache"
)

func TestJobWaitServerRequiresIdentity(t *testing.T) {
	b := jobWaitBuiltin()
	if _, err := b.Server([]string{"sha123"}, nil); err == nil {
		t.Fatalf("expected an error when --identity is omitted")
	}
}

func TestJobWaitServerBindsShaAndIdentities(t *testing.T) {
	b := jobWaitBuiltin()
	def, err := b.Server([]string{"--identity", "nodeA", "--identity", "nodeB", "sha123"}, nil)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	if def["job_sha"] != "sha123" {
		t.Fatalf("expected job_sha=sha123, got %#v", def["job_sha"])
	}
	ids := stringSliceAny(def["identity"])
	if len(ids) != 2 {
		t.Fatalf("expected two identities, got %#v", ids)
	}
}

func TestJobWaitClientSucceedsWhenNoIdentitiesBound(t *testing.T) {
	b := jobWaitBuiltin()
	rt := newTestRuntime()
	res, err := b.Client(context.Background(), rt, map[string]any{"job_sha": "sha123"})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected a trivial success when there's nothing to wait on")
	}
}

func TestJobWaitClientReturnsSuccessOnceAllIdentitiesConfirmed(t *testing.T) {
	rt := newTestRuntime()
	if err := rt.Cache.Set(context.Background(), cache.TagJobs, "sha123", map[string]bool{
		"nodeA": true,
		"nodeB": true,
	}, 0); err != nil {
		t.Fatalf("seed: %v", err)
	}

	b := jobWaitBuiltin()
	def, err := b.Server([]string{"--identity", "nodeA", "--identity", "nodeB", "sha123"}, nil)
	if err != nil {
		t.Fatalf("server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := b.Client(ctx, rt, def)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success once every identity confirms completion")
	}
}

func TestJobWaitClientTimesOutOnContextCancellation(t *testing.T) {
	rt := newTestRuntime()
	b := jobWaitBuiltin()
	def, err := b.Server([]string{"--identity", "nodeA", "sha123"}, nil)
	if err != nil {
		t.Fatalf("server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = b.Client(ctx, rt, def)
	if err == nil {
		t.Fatalf("expected the context's cancellation error to surface since nodeA never confirms")
	}
}
