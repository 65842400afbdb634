// Package job defines the immutable execution unit that flows between the
// server coordinator and the client worker: Job, its per-identity results,
// and the state machine it moves through.
package job

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a job's (or a per-node result's) lifecycle state.
type State int

const (
	Pending State = iota
	Dispatched
	Running
	Succeeded
	Failed
	TimedOut
	Nacked
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Dispatched:
		return "DISPATCHED"
	case Running:
		return "RUNNING"
	case Succeeded:
		return "SUCCEEDED"
	case Failed:
		return "FAILED"
	case TimedOut:
		return "TIMEDOUT"
	case Nacked:
		return "NACKED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the state is one a job or node result does not
// leave once reached.
func (s State) Terminal() bool {
	switch s {
	case Succeeded, Failed, TimedOut, Nacked:
		return true
	default:
		return false
	}
}

// Definition is a verb-specific mapping of job fields, plus the common
// fields every verb accepts (timeout_seconds, skip_cache, run_once,
// targets, restrict, extend_args, stdout_arg, parent_async_bypass).
type Definition map[string]any

// clone returns a deep-enough copy safe to mutate independently.
func (d Definition) clone() Definition {
	if d == nil {
		return nil
	}
	c := make(Definition, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}

// CloneWith returns a copy of d with overlay's keys merged on top, used by
// the coordinator when re-submitting a component's callback job spec with
// parent_async_bypass and a narrowed target set layered in.
func (d Definition) CloneWith(overlay map[string]any) Definition {
	c := d.clone()
	if c == nil {
		c = make(Definition, len(overlay))
	}
	for k, v := range overlay {
		c[k] = v
	}
	return c
}

// TimeoutSeconds returns the job's configured timeout, defaulting to 600s
// per spec.
func (d Definition) TimeoutSeconds() time.Duration {
	if v, ok := d["timeout_seconds"]; ok {
		switch n := v.(type) {
		case int:
			return time.Duration(n) * time.Second
		case int64:
			return time.Duration(n) * time.Second
		case float64:
			return time.Duration(n * float64(time.Second))
		}
	}
	return 600 * time.Second
}

func (d Definition) boolField(key string) bool {
	v, ok := d[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// SkipCache reports the skip_cache flag.
func (d Definition) SkipCache() bool { return d.boolField("skip_cache") }

// RunOnce reports the run_once flag.
func (d Definition) RunOnce() bool { return d.boolField("run_once") }

// ParentAsyncBypass reports the parent_async_bypass flag.
func (d Definition) ParentAsyncBypass() bool { return d.boolField("parent_async_bypass") }

// StdoutArg returns the stdout_arg cache key, if any.
func (d Definition) StdoutArg() string {
	v, _ := d["stdout_arg"].(string)
	return v
}

// Targets returns the explicit targets list, if any.
func (d Definition) Targets() []string { return stringSlice(d["targets"]) }

// Restrict returns the restrict list (job_sha restriction), if any.
func (d Definition) Restrict() []string { return stringSlice(d["restrict"]) }

func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// volatileFields are excluded from the job_sha canonicalization because
// they vary per submission without affecting what the job does.
var volatileFields = map[string]bool{
	"targets":             true,
	"restrict":            true,
	"parent_async_bypass": true,
}

// NodeResult is a single identity's outcome for a Job.
type NodeResult struct {
	Identity         string
	State            State
	Stdout           string
	Stderr           string
	Info             map[string]any
	Success          bool
	ExecutionSeconds float64
	RoundtripSeconds float64
}

// Job is an immutable submission unit, fanned out to one record per target
// identity at dispatch time.
type Job struct {
	mu sync.Mutex

	ID       string // job_id, UUID
	ParentID string // parent_id, equals ID for single-exec submissions
	Verb     string
	Sha      string // job_sha, content fingerprint
	Def      Definition

	CreatedAt     time.Time
	TransmittedAt map[string]time.Time // per identity
	ReturnedAt    map[string]time.Time // per identity

	state   State
	perNode map[string]*NodeResult

	// Async and Index describe the job's place within its orchestration,
	// needed to enforce the per-identity FIFO ordering gate.
	Async bool
	Index int

	// ExpectedIdentities is the target set resolved at dispatch time.
	ExpectedIdentities []string
}

// New creates a fresh, PENDING job. The job_sha is computed over verb and
// the canonicalized definition, excluding volatile fields.
func New(verb string, def Definition) *Job {
	id := uuid.NewString()
	j := &Job{
		ID:            id,
		ParentID:      id,
		Verb:          verb,
		Def:           def.clone(),
		CreatedAt:     time.Now(),
		TransmittedAt: make(map[string]time.Time),
		ReturnedAt:    make(map[string]time.Time),
		perNode:       make(map[string]*NodeResult),
		state:         Pending,
	}
	j.Sha = Fingerprint(verb, def)
	return j
}

// State returns the job's current aggregate state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// SetState sets the job's aggregate state, refusing to downgrade a
// terminal state back to a non-terminal one (property 4 in spec.md §8).
func (j *Job) SetState(s State) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() && !s.Terminal() {
		return
	}
	j.state = s
}

// NodeResult returns the result recorded for identity, or nil.
func (j *Job) NodeResult(identity string) *NodeResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.perNode[identity]
}

// PerNode returns a snapshot copy of all recorded per-identity results.
func (j *Job) PerNode() map[string]NodeResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(map[string]NodeResult, len(j.perNode))
	for k, v := range j.perNode {
		out[k] = *v
	}
	return out
}

// MergeResult merges a per-(job_id,identity) result, honoring "last writer
// wins on identical outcome; upgrade PENDING->terminal but never downgrade
// terminal->pending" (spec.md §4.2, property 4 in §8).
func (j *Job) MergeResult(r NodeResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	cur, ok := j.perNode[r.Identity]
	if ok && cur.State.Terminal() && !r.State.Terminal() {
		return
	}
	copied := r
	j.perNode[r.Identity] = &copied
}

// MarkTransmitted records the dispatch timestamp for identity.
func (j *Job) MarkTransmitted(identity string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.TransmittedAt[identity] = time.Now()
}

// MarkReturned records the return timestamp for identity.
func (j *Job) MarkReturned(identity string) time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	j.ReturnedAt[identity] = now
	return now
}

// Terminal reports whether every expected identity has a terminal result.
func (j *Job) Terminal() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.ExpectedIdentities) == 0 {
		return false
	}
	for _, id := range j.ExpectedIdentities {
		r, ok := j.perNode[id]
		if !ok || !r.State.Terminal() {
			return false
		}
	}
	return true
}

// MarshalJSON implements a stable, human-oriented representation used by
// list-jobs/job-info/export-jobs over the local control socket.
func (j *Job) MarshalJSON() ([]byte, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	m := struct {
		ID       string
		ParentID string
		Verb     string
		Sha      string
		Def      Definition
		State    string
		PerNode  map[string]*NodeResult
	}{
		ID:       j.ID,
		ParentID: j.ParentID,
		Verb:     j.Verb,
		Sha:      j.Sha,
		Def:      j.Def,
		State:    j.state.String(),
		PerNode:  j.perNode,
	}
	return json.Marshal(m)
}

// canonical renders a Definition into a deterministic byte form: sorted
// keys, volatile fields excluded, nested maps handled recursively via
// encoding/json's own map-key sorting (the stdlib already sorts map keys
// when marshaling, so the outer sort here only needs to pick a stable key
// order for the top level before delegating).
func canonical(def Definition) []byte {
	keys := make([]string, 0, len(def))
	for k := range def {
		if volatileFields[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]struct {
		K string
		V any
	}, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, struct {
			K string
			V any
		}{k, def[k]})
	}
	b, _ := json.Marshal(ordered)
	return b
}
