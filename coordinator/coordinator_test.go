package coordinator_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/directord/directord/coordinator"
	"github.com/directord/directord/datastore/memorystore"
	"github.com/directord/directord/driver/fakedriver"
	"github.com/directord/directord/job"
)

func newTestCoordinator(t *testing.T) *coordinator.Coordinator {
	t.Helper()
	server, _ := fakedriver.Pair("nodeA")
	return coordinator.New(server, memorystore.New(), time.Minute, 3)
}

// submitExplicit submits a job targeted explicitly at identity, bypassing
// the alive-worker-table wait entirely.
func submitExplicit(t *testing.T, coord *coordinator.Coordinator, identity string) *job.Job {
	t.Helper()
	j := job.New("RUN", job.Definition{"command": "echo hi", "targets": []string{identity}})
	if err := coord.Submit(context.Background(), j); err != nil {
		t.Fatalf("submit: %v", err)
	}
	return j
}

func TestSubmitPersistsAndTracksJob(t *testing.T) {
	coord := newTestCoordinator(t)
	j := submitExplicit(t, coord, "nodeA")

	if got := coord.Job(j.ID); got == nil || got.ID != j.ID {
		t.Fatalf("expected job to be tracked in-memory")
	}
	if got := coord.Jobs(); len(got) != 1 {
		t.Fatalf("expected one tracked job, got %d", len(got))
	}
}

func TestResolveTargetsReturnsCtxErrorWhenCanceledBeforeGrace(t *testing.T) {
	coord := newTestCoordinator(t)
	j := job.New("RUN", job.Definition{"command": "echo hi"})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := coord.Submit(ctx, j)
	if err == nil {
		t.Fatalf("expected an error when no targets ever become available before ctx cancellation")
	}
}

func TestPurgeJobsClearsInMemoryAndPersistedState(t *testing.T) {
	coord := newTestCoordinator(t)
	j := submitExplicit(t, coord, "nodeA")

	if err := coord.PurgeJobs(context.Background()); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if got := coord.Jobs(); len(got) != 0 {
		t.Fatalf("expected no jobs after purge, got %d", len(got))
	}
	if coord.Job(j.ID) != nil {
		t.Fatalf("expected job to be gone from in-memory tracking")
	}
}

func TestPurgeNodesClearsWorkerTable(t *testing.T) {
	coord := newTestCoordinator(t)
	coord.Workers.Upsert("nodeA", "1.0", 0, 0, nil)

	coord.PurgeNodes()
	if len(coord.Workers.All()) != 0 {
		t.Fatalf("expected no worker records after purge-nodes")
	}
}

func TestExportJobsWritesOneJSONLinePerJob(t *testing.T) {
	coord := newTestCoordinator(t)
	submitExplicit(t, coord, "nodeA")
	submitExplicit(t, coord, "nodeB")

	path := filepath.Join(t.TempDir(), "jobs.ndjson")
	if err := coord.ExportJobs(path); err != nil {
		t.Fatalf("export: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	count := 0
	for {
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			if err == io.EOF {
				break
			}
			t.Fatalf("decode: %v", err)
		}
		if _, ok := m["ID"]; !ok {
			t.Fatalf("expected exported record to carry an ID field, got %v", m)
		}
		count++
	}
	if count != 2 {
		t.Fatalf("expected two exported job records, got %d", count)
	}
}

func TestAnalyzeJobReportsUnknownJob(t *testing.T) {
	coord := newTestCoordinator(t)
	if _, ok := coord.AnalyzeJob("does-not-exist"); ok {
		t.Fatalf("expected AnalyzeJob to report absence for an unknown job")
	}
}

func TestAnalyzeJobReturnsPerNodeResults(t *testing.T) {
	coord := newTestCoordinator(t)
	j := submitExplicit(t, coord, "nodeA")
	j.MergeResult(job.NodeResult{Identity: "nodeA", State: job.Succeeded, Success: true, ExecutionSeconds: 0.5})

	a, ok := coord.AnalyzeJob(j.ID)
	if !ok {
		t.Fatalf("expected analysis to be found")
	}
	if a.Results["nodeA"].ExecutionSeconds != 0.5 {
		t.Fatalf("expected per-node result to round-trip, got %+v", a.Results)
	}
}

func TestAnalyzeParentAggregatesAcrossSiblingJobs(t *testing.T) {
	coord := newTestCoordinator(t)
	j1 := submitExplicit(t, coord, "nodeA")
	j2 := job.New("RUN", job.Definition{"command": "echo two", "targets": []string{"nodeB"}})
	j2.ParentID = j1.ParentID
	if err := coord.Submit(context.Background(), j2); err != nil {
		t.Fatalf("submit: %v", err)
	}

	j1.MergeResult(job.NodeResult{Identity: "nodeA", State: job.Succeeded, Success: true, ExecutionSeconds: 1})
	j2.MergeResult(job.NodeResult{Identity: "nodeB", State: job.Failed, Success: false, ExecutionSeconds: 2})

	a := coord.AnalyzeParent(j1.ParentID)
	if a.TotalJobs != 2 {
		t.Fatalf("expected two sibling jobs, got %d", a.TotalJobs)
	}
	if a.TotalSuccesses != 1 || a.TotalFailures != 1 {
		t.Fatalf("expected one success and one failure, got %+v", a)
	}
	if a.CombinedExecSeconds != 3 {
		t.Fatalf("expected combined exec seconds of 3, got %v", a.CombinedExecSeconds)
	}
}

func TestParentJobsReturnsOnlyMatchingParent(t *testing.T) {
	coord := newTestCoordinator(t)
	j1 := submitExplicit(t, coord, "nodeA")
	j2 := submitExplicit(t, coord, "nodeB")

	if len(coord.ParentJobs(j1.ParentID)) != 1 {
		t.Fatalf("expected exactly one job under j1's own parent id")
	}
	if len(coord.ParentJobs(j2.ParentID)) != 1 {
		t.Fatalf("expected exactly one job under j2's own parent id")
	}
}
