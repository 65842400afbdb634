package coordinator_test

import (
	"context"
	"testing"
	"time"

	"github.com/directord/directord/cache"
	"github.com/directord/directord/clientworker"
	"github.com/directord/directord/component"
	"github.com/directord/directord/coordinator"
	"github.com/directord/directord/datastore/memorystore"
	"github.com/directord/directord/driver/fakedriver"
	"github.com/directord/directord/job"
)

// newPair wires a Coordinator and a clientworker.Worker over a fakedriver
// pair, both running in the background, matching spec.md §8's scenario
// harness shape (an alive identity, a submitted orchestration, an
// observed result).
func newPair(t *testing.T, identity string) (*coordinator.Coordinator, context.Context, context.CancelFunc) {
	t.Helper()
	server, client := fakedriver.Pair(identity)

	coord := coordinator.New(server, memorystore.New(), 200*time.Millisecond, 3)
	registry := component.NewRegistry()
	cacheStore := cache.New(memorystore.New(), time.Hour)
	w := clientworker.New(client, registry, cacheStore, identity, "test")
	w.HeartbeatInterval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go coord.Run(ctx)
	go w.Run(ctx)

	// Wait for the first heartbeat to land so resolveTargets sees the
	// identity as alive.
	deadline := time.Now().Add(2 * time.Second)
	for coord.Workers.Get(identity) == nil {
		if time.Now().After(deadline) {
			t.Fatalf("identity %s never registered a heartbeat", identity)
		}
		time.Sleep(10 * time.Millisecond)
	}
	return coord, ctx, cancel
}

// TestScenarioA_SingleEcho matches spec.md §8 scenario A: a single RUN
// job against one alive identity succeeds and captures its stdout.
func TestScenarioA_SingleEcho(t *testing.T) {
	coord, ctx, cancel := newPair(t, "nodeA")
	defer cancel()

	registry := component.NewRegistry()
	def, err := registry.BindInline("RUN", []string{"echo", "hello", "world"})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	j := job.New("RUN", def)

	if err := coord.Submit(ctx, j); err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitTerminal(t, j)

	r := j.NodeResult("nodeA")
	if r == nil {
		t.Fatalf("expected a result for nodeA")
	}
	if !r.Success {
		t.Fatalf("expected success, got stderr=%q", r.Stderr)
	}
	if r.Stdout != "hello world\n" {
		t.Fatalf("expected stdout %q, got %q", "hello world\n", r.Stdout)
	}
	if r.ExecutionSeconds <= 0 {
		t.Fatalf("expected execution_seconds > 0")
	}
}

// TestScenarioE_Timeout matches spec.md §8 scenario E: a job whose
// command outlives its timeout_seconds is recorded TIMEDOUT, not
// SUCCEEDED.
func TestScenarioE_Timeout(t *testing.T) {
	coord, ctx, cancel := newPair(t, "nodeA")
	defer cancel()

	registry := component.NewRegistry()
	def, err := registry.BindInline("RUN", []string{"sleep", "10"})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	def["timeout_seconds"] = 1
	j := job.New("RUN", def)

	if err := coord.Submit(ctx, j); err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitTerminal(t, j)

	r := j.NodeResult("nodeA")
	if r == nil {
		t.Fatalf("expected a result for nodeA")
	}
	if r.State != job.TimedOut {
		t.Fatalf("expected TIMEDOUT, got %v (success=%v)", r.State, r.Success)
	}
}

func waitTerminal(t *testing.T, j *job.Job) {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for !j.Terminal() {
		if time.Now().After(deadline) {
			t.Fatalf("job %s never became terminal", j.ID)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
