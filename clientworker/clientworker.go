// Package clientworker is the client side of Directord: it emits
// heartbeats, ingests jobs from the server in a deduplicating per-worker
// FIFO, executes them one at a time through the component registry, and
// emits results back on the return channel.
//
// Grounded on imagvfx-coco's cmd/cocoworker/main.go (server.Start: a
// mutex-guarded "currently running" slot plus a detached goroutine running
// the command list, Abort killing the in-flight *exec.Cmd) generalized
// from "one task at a time, driven by an inbound RPC" to "one job at a
// time, driven by a FIFO fed from the job channel," and on the original
// source's directord/client.py for the cache-policy/timeout/stdout_arg
// bookkeeping around each execution.
package clientworker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/directord/directord/cache"
	"github.com/directord/directord/component"
	"github.com/directord/directord/driver"
	"github.com/directord/directord/internal/fifo"
	"github.com/directord/directord/wire"
)

// Worker is the client process's in-memory state: its identity, the
// version/uptime fields the heartbeat emitter reports, its dispatch
// registry, and its local caches.
type Worker struct {
	Drv      driver.Driver
	Registry *component.Registry
	Cache    *cache.Store
	Identity string
	Version  string

	HeartbeatInterval time.Duration
	Retry             driver.RetryPolicy

	startedAt time.Time

	mu      sync.Mutex
	ingest  *fifo.Queue[string]
	pending map[string]wire.JobPayload
}

// New creates a Worker. identity must be stable across restarts; it is the
// key the server's worker table and the client's jobs cache use.
func New(drv driver.Driver, registry *component.Registry, cacheStore *cache.Store, identity, version string) *Worker {
	return &Worker{
		Drv:               drv,
		Registry:          registry,
		Cache:             cacheStore,
		Identity:          identity,
		Version:           version,
		HeartbeatInterval: 60 * time.Second,
		Retry:             driver.DefaultRetryPolicy,
		startedAt:         time.Now(),
		ingest:            fifo.New[string](),
		pending:           make(map[string]wire.JobPayload),
	}
}

// Run starts the heartbeat emitter, job ingest loop, and executor loop, and
// blocks until ctx is canceled or one of them fails fatally.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.heartbeatLoop(ctx) })
	g.Go(func() error { return w.ingestLoop(ctx) })
	g.Go(func() error { return w.executeLoop(ctx) })
	return g.Wait()
}

// heartbeatLoop sends identity/version/uptime every HeartbeatInterval, with
// ±10% jitter to avoid thundering herd, per spec.md §4.3.
func (w *Worker) heartbeatLoop(ctx context.Context) error {
	for {
		payload, err := json.Marshal(struct {
			Version      string   `json:"version"`
			HostUptime   float64  `json:"host_uptime"`
			AgentUptime  float64  `json:"agent_uptime"`
			Capabilities []string `json:"capabilities"`
		}{
			Version:      w.Version,
			HostUptime:   hostUptimeSeconds(),
			AgentUptime:  time.Since(w.startedAt).Seconds(),
			Capabilities: w.Registry.Verbs(),
		})
		if err != nil {
			return err
		}
		if err := w.Drv.HeartbeatSend(ctx, w.Identity, payload); err != nil {
			log.Printf("clientworker: heartbeat send: %v", err)
		}
		wait := jitter(w.HeartbeatInterval, 0.10)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func jitter(d time.Duration, frac float64) time.Duration {
	delta := float64(d) * frac
	offset := (rand.Float64()*2 - 1) * delta
	return d + time.Duration(offset)
}

func hostUptimeSeconds() float64 {
	b, err := os.ReadFile("/proc/uptime")
	if err != nil {
		return 0
	}
	var up float64
	fmt.Sscanf(string(b), "%f", &up)
	return up
}

// ingestLoop is the single consumer of the job channel: it places jobs on
// the ordered FIFO, deduplicating on (job_id, identity) as the queue
// itself already guarantees, and silently drops any job whose restrict
// list excludes this identity, per spec.md §4.3.
func (w *Worker) ingestLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg, err := w.Drv.Receive(ctx, driver.Job)
		if err != nil {
			if err == driver.ErrTimeout {
				continue
			}
			if err == driver.ErrClosed || ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("clientworker: job recv: %v", err)
			continue
		}
		p, err := wire.DecodeJob(msg.Data)
		if err != nil {
			log.Printf("clientworker: malformed job frame: %v", err)
			continue
		}
		if restrict := p.Def.Restrict(); len(restrict) > 0 && !contains(restrict, w.Identity) {
			continue
		}
		key := p.JobID + ":" + w.Identity
		w.mu.Lock()
		w.pending[key] = p
		w.ingest.Push(key)
		w.mu.Unlock()
	}
}

func contains(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

// executeLoop is the single-worker cooperative executor: it drains the
// ingest FIFO one job at a time, with no parallelism within the client
// unless a component's no_block flag opts a specific job out (not
// currently exercised by any built-in, so the bounded worker pool spec.md
// §5 allows is left unimplemented here until a no_block component exists
// to drive it).
func (w *Worker) executeLoop(ctx context.Context) error {
	for {
		key, ok := w.popNext()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(20 * time.Millisecond):
			}
			continue
		}
		w.mu.Lock()
		p := w.pending[key]
		delete(w.pending, key)
		w.mu.Unlock()
		w.runJob(ctx, p)
	}
}

func (w *Worker) popNext() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ingest.Pop()
}

func (w *Worker) runJob(ctx context.Context, p wire.JobPayload) {
	result, timedOut, elapsed := w.execute(ctx, p)
	w.recordJobsCache(ctx, p.Sha, result.Success)
	if err := w.sendResult(ctx, p, result, timedOut, elapsed); err != nil {
		log.Printf("clientworker: send result for job %s: %v", p.JobID, err)
	}
}

// execute runs one job.Definition through the component registry, applying
// the cache policy (run_once/skip_cache) and timeout+forceful-kill rules
// spec.md §4.3 steps 3-4 describe.
func (w *Worker) execute(ctx context.Context, p wire.JobPayload) (component.Result, bool, time.Duration) {
	if !p.Def.SkipCache() && p.Def.RunOnce() {
		if b, known := w.Registry.Lookup(p.Verb); known && b.Cacheable {
			if cached, ok := w.cachedOutcome(ctx, p.Sha); ok && cached.Success {
				return cached, false, 0
			}
		}
	}

	timeout := p.Def.TimeoutSeconds()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rt := &component.Runtime{Identity: w.Identity, Cache: w.Cache}
	type outcome struct {
		res component.Result
		err error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		res, err := w.Registry.Execute(runCtx, p.Verb, rt, p.Def)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		elapsed := time.Since(start)
		if o.err != nil {
			return component.Result{Success: false, Stderr: []byte(o.err.Error())}, false, elapsed
		}
		return o.res, false, elapsed
	case <-runCtx.Done():
		// Grace period for the component to observe cancellation before
		// the result is reported as TIMEDOUT regardless of what (if
		// anything) it eventually returns.
		select {
		case o := <-done:
			elapsed := time.Since(start)
			if o.err == nil && o.res.Success {
				return o.res, false, elapsed
			}
		case <-time.After(5 * time.Second):
		}
		return component.Result{Success: false, Stderr: []byte("timed out")}, true, time.Since(start)
	}
}

type jobsCacheEntry struct {
	Success bool `json:"success"`
}

func (w *Worker) cachedOutcome(ctx context.Context, sha string) (component.Result, bool) {
	if w.Cache == nil {
		return component.Result{}, false
	}
	var e jobsCacheEntry
	ok, err := w.Cache.Get(ctx, cache.TagJobs, sha, &e)
	if err != nil || !ok {
		return component.Result{}, false
	}
	return component.Result{Success: e.Success}, true
}

func (w *Worker) recordJobsCache(ctx context.Context, sha string, success bool) {
	if w.Cache == nil || sha == "" {
		return
	}
	_ = w.Cache.Set(ctx, cache.TagJobs, sha, jobsCacheEntry{Success: success}, 0)
}

func (w *Worker) sendResult(ctx context.Context, p wire.JobPayload, res component.Result, timedOut bool, elapsed time.Duration) error {
	var callbacks []wire.CallbackJob
	for _, def := range res.Callbacks {
		verb, _ := def["verb"].(string)
		callbacks = append(callbacks, wire.CallbackJob{Verb: verb, Def: def})
	}
	payload, err := wire.EncodeResult(wire.ResultPayload{
		JobID:            p.JobID,
		Identity:         w.Identity,
		Sha:              p.Sha,
		Stdout:           string(res.Stdout),
		Stderr:           string(res.Stderr),
		Info:             res.Info,
		Success:          res.Success,
		TimedOut:         timedOut,
		ExecutionSeconds: elapsed.Seconds(),
		Callbacks:        callbacks,
	})
	if err != nil {
		return err
	}
	msg := driver.Message{
		MessageID: p.JobID,
		Channel:   driver.Return,
		Identity:  w.Identity,
		JobSha:    p.Sha,
	}
	msg.Data = payload
	return driver.SendWithRetry(ctx, w.Retry, func(ctx context.Context) error {
		return w.Drv.Send(ctx, w.Identity, msg)
	})
}
