package clientworker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/directord/directord/cache"
	"github.com/directord/directord/component"
	"github.com/directord/directord/datastore/memorystore"
	"github.com/directord/directord/driver"
	"github.com/directord/directord/driver/fakedriver"
	"github.com/directord/directord/job"
	"github.com/directord/directord/wire"
)

// spyBuiltin counts invocations and returns a fixed, successful result,
// standing in for a real component so execute()'s cache-policy decisions
// can be observed without touching a shell.
func spyBuiltin(calls *int32) *component.Builtin {
	return &component.Builtin{
		Verb:      "SPY",
		Cacheable: true,
		Server: func(tokens []string, vars map[string]any) (job.Definition, error) {
			return job.Definition{}, nil
		},
		Client: func(ctx context.Context, rt *component.Runtime, def job.Definition) (component.Result, error) {
			atomic.AddInt32(calls, 1)
			return component.Result{Success: true, Stdout: []byte("ok")}, nil
		},
	}
}

func newTestWorker(t *testing.T, registry *component.Registry) (*Worker, *fakedriver.Driver) {
	t.Helper()
	server, client := fakedriver.Pair("nodeA")
	w := New(client, registry, cache.New(memorystore.New(), time.Hour), "nodeA", "test")
	return w, server
}

func TestRunJobSkipsInvocationOnCacheHit(t *testing.T) {
	var calls int32
	registry := component.NewRegistry()
	registry.Register(spyBuiltin(&calls))
	w, server := newTestWorker(t, registry)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := wire.JobPayload{
		JobID: "job-1",
		Verb:  "SPY",
		Sha:   "sha-fixed",
		Def:   job.Definition{"run_once": true},
	}
	w.runJob(ctx, p)
	drainResult(t, server)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly one invocation on first run, got %d", got)
	}

	p2 := p
	p2.JobID = "job-2"
	w.runJob(ctx, p2)
	drainResult(t, server)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected cache hit to skip the second invocation, still got %d calls", got)
	}
}

func TestRunJobReinvokesWhenSkipCacheSet(t *testing.T) {
	var calls int32
	registry := component.NewRegistry()
	registry.Register(spyBuiltin(&calls))
	w, server := newTestWorker(t, registry)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := wire.JobPayload{JobID: "job-1", Verb: "SPY", Sha: "sha-fixed", Def: job.Definition{"run_once": true, "skip_cache": true}}
	w.runJob(ctx, p)
	drainResult(t, server)

	p2 := p
	p2.JobID = "job-2"
	w.runJob(ctx, p2)
	drainResult(t, server)

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected skip_cache to force reinvocation, got %d calls", got)
	}
}

func TestExecuteReportsTimeoutOnSlowComponent(t *testing.T) {
	registry := component.NewRegistry()
	registry.Register(&component.Builtin{
		Verb: "SLOW",
		Client: func(ctx context.Context, rt *component.Runtime, def job.Definition) (component.Result, error) {
			<-ctx.Done()
			return component.Result{}, ctx.Err()
		},
	})
	w, _ := newTestWorker(t, registry)

	p := wire.JobPayload{JobID: "job-1", Verb: "SLOW", Def: job.Definition{"timeout_seconds": 1}}
	res, timedOut, _ := w.execute(context.Background(), p)
	if !timedOut {
		t.Fatalf("expected execute to report a timeout")
	}
	if res.Success {
		t.Fatalf("expected a timed-out result to not be marked successful")
	}
}

func TestIngestLoopDropsJobsRestrictedToOtherIdentities(t *testing.T) {
	registry := component.NewRegistry()
	w, server := newTestWorker(t, registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.ingestLoop(ctx)

	payload, err := wire.EncodeJob(wire.JobPayload{
		JobID: "job-1",
		Verb:  "RUN",
		Def:   job.Definition{"command": "echo hi", "restrict": []string{"some-other-node"}},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := server.Send(ctx, "nodeA", driver.Message{Channel: driver.Job, Data: payload}); err != nil {
		t.Fatalf("send: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	w.mu.Lock()
	n := len(w.pending)
	w.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected restricted job to be dropped, found %d pending", n)
	}
}

func drainResult(t *testing.T, server *fakedriver.Driver) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := server.Receive(ctx, driver.Return); err != nil {
		t.Fatalf("expected a result frame: %v", err)
	}
}
