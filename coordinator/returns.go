package coordinator

import (
	"context"
	"errors"
	"log"

	"github.com/directord/directord/driver"
	"github.com/directord/directord/job"
	"github.com/directord/directord/wire"
)

// returnLoop is the return manager: it reads return frames and merges them
// into the addressed job's per-identity result, per spec.md §4.2. Delivery
// on this channel is at-least-once; MergeResult's last-writer-wins,
// never-downgrade-terminal semantics absorb duplicates.
func (c *Coordinator) returnLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg, err := c.Drv.Receive(ctx, driver.Return)
		if err != nil {
			if errors.Is(err, driver.ErrTimeout) {
				continue
			}
			if errors.Is(err, driver.ErrClosed) || ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("coordinator: return recv: %v", err)
			continue
		}
		c.handleReturn(msg)
	}
}

func (c *Coordinator) handleReturn(msg driver.Message) {
	p, err := wire.DecodeResult(msg.Data)
	if err != nil {
		log.Printf("coordinator: malformed return frame from %s: %v", msg.Identity, err)
		return
	}
	j := c.Job(p.JobID)
	if j == nil {
		log.Printf("coordinator: return for unknown job %s from %s", p.JobID, p.Identity)
		return
	}
	now := j.MarkReturned(p.Identity)

	state := job.Succeeded
	switch {
	case p.TimedOut:
		state = job.TimedOut
	case !p.Success:
		state = job.Failed
	}

	transmittedAt, ok := j.TransmittedAt[p.Identity]
	var roundtrip float64
	if ok {
		roundtrip = now.Sub(transmittedAt).Seconds()
	}

	j.MergeResult(job.NodeResult{
		Identity:         p.Identity,
		State:            state,
		Stdout:           p.Stdout,
		Stderr:           p.Stderr,
		Info:             map[string]any{"info": p.Info},
		Success:          p.Success && !p.TimedOut,
		ExecutionSeconds: p.ExecutionSeconds,
		RoundtripSeconds: roundtrip,
	})

	if j.Terminal() {
		j.SetState(aggregateState(j))
		if err := c.persistJob(context.Background(), j); err != nil {
			log.Printf("coordinator: persist job %s: %v", j.ID, err)
		}
	}

	for _, cb := range p.Callbacks {
		def := cb.Def.CloneWith(map[string]any{
			"parent_async_bypass": true,
			"targets":             []string{p.Identity},
		})
		callback := job.New(cb.Verb, def)
		callback.ParentID = j.ParentID
		if err := c.Submit(context.Background(), callback); err != nil {
			log.Printf("coordinator: submit callback job from %s: %v", p.Identity, err)
		}
	}
}

// aggregateState folds every per-node result into one job-level state:
// Succeeded only if every identity succeeded, Failed if any identity did
// not, matching the aggregation spec.md §4.2/§7 describes ("per-identity
// failure aggregated into the job's total_failures").
func aggregateState(j *job.Job) job.State {
	for _, r := range j.PerNode() {
		if !r.Success {
			return job.Failed
		}
	}
	return job.Succeeded
}
