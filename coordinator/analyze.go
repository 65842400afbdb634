package coordinator

import (
	"math"
	"time"

	"github.com/directord/directord/job"
)

// ParentAnalysis is analyze_parent's aggregate view across every child job
// of a parent_id, per spec.md §4.2.
type ParentAnalysis struct {
	ParentID              string
	TotalJobs             int
	TotalNodeCount        int
	TotalSuccesses        int
	TotalFailures         int
	ActualRuntimeSeconds  float64
	CombinedExecSeconds   float64
	AvgExecSeconds        float64
	FastestByExec         string
	SlowestByExec         string
	FastestByRoundtrip    string
	SlowestByRoundtrip    string
}

// AnalyzeParent aggregates every job sharing parentID.
func (c *Coordinator) AnalyzeParent(parentID string) ParentAnalysis {
	jobs := c.ParentJobs(parentID)
	a := ParentAnalysis{ParentID: parentID, TotalJobs: len(jobs)}

	var minCreated, maxReturned time.Time
	fastestExec, slowestExec := math.Inf(1), math.Inf(-1)
	fastestRT, slowestRT := math.Inf(1), math.Inf(-1)

	for _, j := range jobs {
		if minCreated.IsZero() || j.CreatedAt.Before(minCreated) {
			minCreated = j.CreatedAt
		}
		for identity, r := range j.PerNode() {
			a.TotalNodeCount++
			if r.Success {
				a.TotalSuccesses++
			} else {
				a.TotalFailures++
			}
			a.CombinedExecSeconds += r.ExecutionSeconds
			if returnedAt, ok := j.ReturnedAt[identity]; ok && returnedAt.After(maxReturned) {
				maxReturned = returnedAt
			}
			if r.ExecutionSeconds < fastestExec {
				fastestExec = r.ExecutionSeconds
				a.FastestByExec = identity
			}
			if r.ExecutionSeconds > slowestExec {
				slowestExec = r.ExecutionSeconds
				a.SlowestByExec = identity
			}
			if r.RoundtripSeconds < fastestRT {
				fastestRT = r.RoundtripSeconds
				a.FastestByRoundtrip = identity
			}
			if r.RoundtripSeconds > slowestRT {
				slowestRT = r.RoundtripSeconds
				a.SlowestByRoundtrip = identity
			}
		}
	}
	if !minCreated.IsZero() && !maxReturned.IsZero() {
		a.ActualRuntimeSeconds = maxReturned.Sub(minCreated).Seconds()
	}
	if a.TotalNodeCount > 0 {
		a.AvgExecSeconds = a.CombinedExecSeconds / float64(a.TotalNodeCount)
	}
	return a
}

// JobAnalysis is analyze_job's per-job view.
type JobAnalysis struct {
	JobID   string
	State   string
	Results map[string]job.NodeResult
}

// AnalyzeJob returns id's current state and per-identity results.
func (c *Coordinator) AnalyzeJob(id string) (JobAnalysis, bool) {
	j := c.Job(id)
	if j == nil {
		return JobAnalysis{}, false
	}
	return JobAnalysis{JobID: j.ID, State: j.State().String(), Results: j.PerNode()}, true
}
