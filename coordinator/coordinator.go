// Package coordinator is the server side of Directord: it tracks worker
// liveness, accepts job submissions from the local control socket, dispatches
// them to targeted identities honoring the per-(identity, parent) ordering
// gate, and merges returned results into each Job's aggregate state.
//
// Grounded on imagvfx-coco's farm.go (Farm: a thin struct gluing a
// JobManager and a WorkerManager together, exposing the operations the API
// handler needs) and job.go/worker.go for the per-table locking style, and
// on the original source's directord/server.py/manager.py (Server: a
// heartbeat bind loop, a job bind loop, a return bind loop, each its own
// thread) for the one-goroutine-per-role concurrency shape.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/directord/directord/datastore"
	"github.com/directord/directord/driver"
	"github.com/directord/directord/internal/fifo"
	"github.com/directord/directord/job"
	"github.com/directord/directord/wire"
	"github.com/directord/directord/worker"
)

// TargetGrace is how long the dispatcher waits for at least one live
// identity to match a job's targets before giving up, per spec.md §4.2
// step 1.
const TargetGrace = 5 * time.Second

// NetworkSlack is added to a job's timeout_seconds to get the server-side
// per-job deadline, per spec.md §5.
const NetworkSlack = 5 * time.Second

// Coordinator is the server process's in-memory state plus its driver and
// datastore bindings.
type Coordinator struct {
	Drv     driver.Driver
	Store   datastore.Store
	Workers *worker.Table
	Retry   driver.RetryPolicy

	jobsMu   sync.RWMutex
	jobs     map[string]*job.Job
	byParent map[string][]*job.Job

	queuesMu sync.Mutex
	queues   map[string]*identityQueue
}

// identityQueue is one target identity's FIFO dispatch queue plus the
// condition variable its dispatcher loop blocks on when idle or waiting on
// the synchronous-ordering gate.
type identityQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	order *fifo.Queue[string] // job IDs, in submission order
	jobs  map[string]*job.Job
}

func newIdentityQueue() *identityQueue {
	q := &identityQueue{order: fifo.New[string](), jobs: make(map[string]*job.Job)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// New creates a Coordinator. heartbeatInterval and liveness configure the
// worker table's expiry math (spec.md §4.2 defaults: 60s × 3).
func New(drv driver.Driver, store datastore.Store, heartbeatInterval time.Duration, liveness int) *Coordinator {
	return &Coordinator{
		Drv:      drv,
		Store:    store,
		Workers:  worker.NewTable(heartbeatInterval, liveness),
		Retry:    driver.DefaultRetryPolicy,
		jobs:     make(map[string]*job.Job),
		byParent: make(map[string][]*job.Job),
		queues:   make(map[string]*identityQueue),
	}
}

// Run starts every background role - heartbeat tracker, return reader,
// expiry sweep - and blocks until ctx is canceled or one role fails fatally.
func (c *Coordinator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.heartbeatLoop(ctx) })
	g.Go(func() error { return c.sweepLoop(ctx) })
	g.Go(func() error { return c.returnLoop(ctx) })
	return g.Wait()
}

// Submit resolves j's targets, persists it, and enqueues it for dispatch to
// each resolved identity. It returns once targeting has been resolved (or
// has failed with no_targets); dispatch itself proceeds asynchronously.
func (c *Coordinator) Submit(ctx context.Context, j *job.Job) error {
	targets, err := c.resolveTargets(ctx, j)
	if err != nil {
		j.SetState(job.Failed)
		return err
	}
	j.ExpectedIdentities = targets

	c.jobsMu.Lock()
	c.jobs[j.ID] = j
	c.byParent[j.ParentID] = append(c.byParent[j.ParentID], j)
	c.jobsMu.Unlock()

	if err := c.persistJob(ctx, j); err != nil {
		log.Printf("coordinator: persist job %s: %v", j.ID, err)
	}

	for _, identity := range targets {
		c.enqueue(identity, j)
	}
	return nil
}

// resolveTargets implements spec.md §4.2 step 1: explicit targets, else
// every currently alive identity; intersected with restrict if present.
// If nothing matches after TargetGrace, the job fails with no_targets.
func (c *Coordinator) resolveTargets(ctx context.Context, j *job.Job) ([]string, error) {
	deadline := time.Now().Add(TargetGrace)
	for {
		targets := j.Def.Targets()
		if len(targets) == 0 {
			targets = c.Workers.Alive()
		}
		if restrict := j.Def.Restrict(); len(restrict) > 0 {
			targets = intersect(targets, restrict)
		}
		if len(targets) > 0 {
			return targets, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("coordinator: job %s: no_targets", j.ID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, v := range b {
		set[v] = true
	}
	out := make([]string, 0, len(a))
	for _, v := range a {
		if set[v] {
			out = append(out, v)
		}
	}
	return out
}

// enqueue appends j to identity's dispatch queue, starting its dispatcher
// goroutine the first time the identity is seen.
func (c *Coordinator) enqueue(identity string, j *job.Job) {
	c.queuesMu.Lock()
	q, ok := c.queues[identity]
	if !ok {
		q = newIdentityQueue()
		c.queues[identity] = q
		go c.dispatchLoop(identity, q)
	}
	c.queuesMu.Unlock()

	q.mu.Lock()
	q.jobs[j.ID] = j
	q.order.Push(j.ID)
	q.cond.Signal()
	q.mu.Unlock()
}

// dispatchLoop drains one identity's queue in submission order, honoring
// the synchronous-ordering gate: for a non-async parent job without
// parent_async_bypass, the loop waits for the job to reach a terminal state
// for this identity before sending the next one. Per spec.md §5, per
// identity across different parents is not ordered against this gate - but
// because each identity has exactly one queue and this loop is
// single-threaded, submission order across parents is preserved anyway,
// which is a permitted (not required) ordering.
func (c *Coordinator) dispatchLoop(identity string, q *identityQueue) {
	ctx := context.Background()
	for {
		q.mu.Lock()
		for q.order.Len() == 0 {
			q.cond.Wait()
		}
		jobID, _ := q.order.Pop()
		j := q.jobs[jobID]
		delete(q.jobs, jobID)
		q.mu.Unlock()

		if err := c.send(ctx, identity, j); err != nil {
			log.Printf("coordinator: send job %s to %s: %v", j.ID, identity, err)
			j.MergeResult(job.NodeResult{Identity: identity, State: job.Nacked, Success: false})
			continue
		}
		j.MarkTransmitted(identity)
		go c.watchTimeout(j, identity)

		if j.Async || j.Def.ParentAsyncBypass() {
			continue
		}
		c.waitTerminal(j, identity)
	}
}

func (c *Coordinator) send(ctx context.Context, identity string, j *job.Job) error {
	payload, err := wire.EncodeJob(wire.JobPayload{
		JobID:    j.ID,
		ParentID: j.ParentID,
		Verb:     j.Verb,
		Sha:      j.Sha,
		Async:    j.Async,
		Def:      j.Def,
	})
	if err != nil {
		return err
	}
	msg := driver.Message{
		MessageID: j.ID,
		Channel:   driver.Job,
		Identity:  identity,
		JobSha:    j.Sha,
		Command:   j.Verb,
		Data:      payload,
	}
	return driver.SendWithRetry(ctx, c.Retry, func(ctx context.Context) error {
		return c.Drv.Send(ctx, identity, msg)
	})
}

// waitTerminal blocks until j has a terminal NodeResult for identity, or
// the job's server-side deadline passes (watchTimeout will have recorded a
// TIMEDOUT result by then, which is itself terminal).
func (c *Coordinator) waitTerminal(j *job.Job, identity string) {
	for {
		if r := j.NodeResult(identity); r != nil && r.State.Terminal() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// watchTimeout enforces the server-side per-job deadline from spec.md §5:
// timeout_seconds plus NetworkSlack after transmission, past which an
// unreceived identity is recorded TIMEDOUT.
func (c *Coordinator) watchTimeout(j *job.Job, identity string) {
	timer := time.NewTimer(j.Def.TimeoutSeconds() + NetworkSlack)
	defer timer.Stop()
	<-timer.C
	if r := j.NodeResult(identity); r == nil || !r.State.Terminal() {
		j.MergeResult(job.NodeResult{Identity: identity, State: job.TimedOut, Success: false})
	}
}

func (c *Coordinator) persistJob(ctx context.Context, j *job.Job) error {
	b, err := j.MarshalJSON()
	if err != nil {
		return err
	}
	return c.Store.Put(ctx, datastore.TableJobs, j.ID, b)
}

// Job returns the in-memory record for id, or nil.
func (c *Coordinator) Job(id string) *job.Job {
	c.jobsMu.RLock()
	defer c.jobsMu.RUnlock()
	return c.jobs[id]
}

// Jobs returns a snapshot of every known job, for list-jobs/export-jobs.
func (c *Coordinator) Jobs() []*job.Job {
	c.jobsMu.RLock()
	defer c.jobsMu.RUnlock()
	out := make([]*job.Job, 0, len(c.jobs))
	for _, j := range c.jobs {
		out = append(out, j)
	}
	return out
}

// ParentJobs returns every job sharing parentID, in submission order.
func (c *Coordinator) ParentJobs(parentID string) []*job.Job {
	c.jobsMu.RLock()
	defer c.jobsMu.RUnlock()
	return append([]*job.Job(nil), c.byParent[parentID]...)
}
