package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/directord/directord/job"
	"github.com/directord/directord/orchestrate"
)

// Ctlsocket wraps a Coordinator and a compiler to implement
// ctlsocket.Handler, the local control RPC surface spec.md §6 describes.
// Kept as a separate type (rather than methods directly on Coordinator)
// so Coordinator itself stays free of any dependency on the orchestration
// DSL compiler.
type Ctlsocket struct {
	Coord    *Coordinator
	Compiler *orchestrate.Compiler
}

// NewCtlsocket creates a Ctlsocket adapter.
func NewCtlsocket(coord *Coordinator, compiler *orchestrate.Compiler) *Ctlsocket {
	return &Ctlsocket{Coord: coord, Compiler: compiler}
}

type submitOrchestrationRequest struct {
	YAML string            `json:"yaml"`
	Vars map[string]string `json:"vars,omitempty"`
}

type submitResponse struct {
	JobIDs   []string `json:"job_ids"`
	ParentID string   `json:"parent_id,omitempty"`
}

// HandleSubmitOrchestration parses and compiles an orchestration document
// and submits every resulting job.
func (cs *Ctlsocket) HandleSubmitOrchestration(ctx context.Context, raw []byte) (json.RawMessage, error) {
	var req submitOrchestrationRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, err
	}
	files, err := orchestrate.ParseFile([]byte(req.YAML))
	if err != nil {
		return nil, err
	}
	jobs, err := cs.Compiler.Compile(files, orchestrate.Vars(req.Vars))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(jobs))
	var parentID string
	for _, j := range jobs {
		if err := cs.Coord.Submit(ctx, j); err != nil {
			return nil, fmt.Errorf("submit job %s: %w", j.ID, err)
		}
		ids = append(ids, j.ID)
		parentID = j.ParentID
	}
	return json.Marshal(submitResponse{JobIDs: ids, ParentID: parentID})
}

type submitExecRequest struct {
	Verb    string   `json:"verb"`
	Args    []string `json:"args"`
	Targets []string `json:"targets,omitempty"`
}

// HandleSubmitExec binds a single inline verb/args pair through the
// orchestration compiler's binder and submits it as a single-job
// orchestration, the exec CLI's control-socket counterpart.
func (cs *Ctlsocket) HandleSubmitExec(ctx context.Context, raw []byte) (json.RawMessage, error) {
	var req submitExecRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, err
	}
	def, err := cs.Compiler.Binder.BindInline(req.Verb, req.Args)
	if err != nil {
		return nil, err
	}
	if len(req.Targets) > 0 {
		def["targets"] = req.Targets
	}
	j := job.New(req.Verb, def)
	if err := cs.Coord.Submit(ctx, j); err != nil {
		return nil, err
	}
	return json.Marshal(submitResponse{JobIDs: []string{j.ID}, ParentID: j.ParentID})
}

type nodeInfo struct {
	Identity     string   `json:"identity"`
	Alive        bool     `json:"alive"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
}

// HandleListNodes returns every known worker record, alive or evicted.
func (cs *Ctlsocket) HandleListNodes(ctx context.Context) (json.RawMessage, error) {
	now := time.Now()
	records := cs.Coord.Workers.All()
	out := make([]nodeInfo, 0, len(records))
	for _, r := range records {
		out = append(out, nodeInfo{
			Identity:     r.Identity,
			Alive:        r.Alive(now),
			Version:      r.Version,
			Capabilities: r.Capabilities,
		})
	}
	return json.Marshal(out)
}

// HandleListJobs returns every known job.
func (cs *Ctlsocket) HandleListJobs(ctx context.Context) (json.RawMessage, error) {
	return json.Marshal(cs.Coord.Jobs())
}

// HandleJobInfo returns one job's current snapshot.
func (cs *Ctlsocket) HandleJobInfo(ctx context.Context, jobID string) (json.RawMessage, error) {
	j := cs.Coord.Job(jobID)
	if j == nil {
		return nil, fmt.Errorf("unknown job %s", jobID)
	}
	return json.Marshal(j)
}

type pollResult struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	State   string            `json:"state"`
	Nodes   map[string]string `json:"nodes"`
}

// HandlePollJob blocks until jobID is terminal (or the caller's context
// deadline passes), matching the original source's user.py poll_job loop
// adapted to this package's context-carried timeout rather than its own
// internal 600s default.
func (cs *Ctlsocket) HandlePollJob(ctx context.Context, jobID string) (json.RawMessage, error) {
	j := cs.Coord.Job(jobID)
	if j == nil {
		return nil, fmt.Errorf("unknown job %s", jobID)
	}
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if j.Terminal() {
			return encodePollResult(j)
		}
		select {
		case <-ctx.Done():
			r, _ := encodePollResult(j)
			return r, nil
		case <-ticker.C:
		}
	}
}

func encodePollResult(j *job.Job) (json.RawMessage, error) {
	perNode := j.PerNode()
	nodes := make(map[string]string, len(perNode))
	failed := false
	for id, r := range perNode {
		nodes[id] = r.State.String()
		if !r.Success {
			failed = true
		}
	}
	state := j.State()
	res := pollResult{Success: state == job.Succeeded && !failed, State: state.String(), Nodes: nodes}
	switch {
	case res.Success:
		res.Message = fmt.Sprintf("Job Success: %s", j.ID)
	case state.Terminal():
		res.Message = fmt.Sprintf("Job Failed: %s", j.ID)
	default:
		res.Message = fmt.Sprintf("Job in an unknown state: %s", j.ID)
	}
	return json.Marshal(res)
}

// HandlePurgeJobs clears every in-memory and persisted job record.
func (cs *Ctlsocket) HandlePurgeJobs(ctx context.Context) error {
	return cs.Coord.PurgeJobs(ctx)
}

// HandlePurgeNodes clears every worker record.
func (cs *Ctlsocket) HandlePurgeNodes(ctx context.Context) error {
	cs.Coord.PurgeNodes()
	return nil
}

// HandleExportJobs writes every known job to path, JSON-lines encoded.
func (cs *Ctlsocket) HandleExportJobs(ctx context.Context, path string) error {
	return cs.Coord.ExportJobs(path)
}

// HandleAnalyzeJob returns one job's analysis.
func (cs *Ctlsocket) HandleAnalyzeJob(ctx context.Context, jobID string) (json.RawMessage, error) {
	a, ok := cs.Coord.AnalyzeJob(jobID)
	if !ok {
		return nil, fmt.Errorf("unknown job %s", jobID)
	}
	return json.Marshal(a)
}

// HandleAnalyzeParent returns a parent_id's aggregate analysis.
func (cs *Ctlsocket) HandleAnalyzeParent(ctx context.Context, parentID string) (json.RawMessage, error) {
	return json.Marshal(cs.Coord.AnalyzeParent(parentID))
}

// HandleGenerateKeys is not implemented: CURVE key generation needs a
// driver-specific keypair format (grpcdriver in this module carries no
// CURVE transport encryption, unlike the original source's zmq driver), so
// there is nothing for this operation to generate yet. It returns an
// error rather than silently succeeding.
func (cs *Ctlsocket) HandleGenerateKeys(ctx context.Context) error {
	return fmt.Errorf("coordinator: generate_keys is not supported by the grpc driver")
}
