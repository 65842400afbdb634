// Package wire defines the JSON payloads carried inside a driver.Message's
// Data field on the job and return channels: the server and client worker
// both import this package so the two sides of a frame agree on shape
// without either importing the other.
package wire

import (
	"encoding/json"

	"github.com/directord/directord/job"
)

// JobPayload is what the dispatcher sends down the job channel.
type JobPayload struct {
	JobID    string         `json:"job_id"`
	ParentID string         `json:"parent_id"`
	Verb     string         `json:"verb"`
	Sha      string         `json:"job_sha"`
	Async    bool           `json:"async"`
	Def      job.Definition `json:"definition"`
}

// EncodeJob serializes a JobPayload.
func EncodeJob(p JobPayload) ([]byte, error) { return json.Marshal(p) }

// DecodeJob deserializes a JobPayload.
func DecodeJob(b []byte) (JobPayload, error) {
	var p JobPayload
	err := json.Unmarshal(b, &p)
	return p, err
}

// CallbackJob is an additional job a component wants submitted back
// through the server with parent_async_bypass=true, per spec.md §4.3.
type CallbackJob struct {
	Verb string         `json:"verb"`
	Def  job.Definition `json:"definition"`
}

// ResultPayload is what the result emitter sends up the return channel.
type ResultPayload struct {
	JobID            string        `json:"job_id"`
	Identity         string        `json:"identity"`
	Sha              string        `json:"job_sha"`
	Stdout           string        `json:"stdout"`
	Stderr           string        `json:"stderr"`
	Info             string        `json:"info"`
	Success          bool          `json:"success"`
	TimedOut         bool          `json:"timed_out"`
	ExecutionSeconds float64       `json:"execution_seconds"`
	Callbacks        []CallbackJob `json:"callbacks,omitempty"`
}

// EncodeResult serializes a ResultPayload.
func EncodeResult(p ResultPayload) ([]byte, error) { return json.Marshal(p) }

// DecodeResult deserializes a ResultPayload.
func DecodeResult(b []byte) (ResultPayload, error) {
	var p ResultPayload
	err := json.Unmarshal(b, &p)
	return p, err
}
