package coordinator

import (
	"context"
	"encoding/json"
	"os"

	"github.com/directord/directord/datastore"
	"github.com/directord/directord/job"
)

// PurgeJobs drops every in-memory and persisted job record. Worker records
// are untouched, per spec.md §8 property 5.
func (c *Coordinator) PurgeJobs(ctx context.Context) error {
	c.jobsMu.Lock()
	ids := make([]string, 0, len(c.jobs))
	for id := range c.jobs {
		ids = append(ids, id)
	}
	c.jobs = make(map[string]*job.Job)
	c.byParent = make(map[string][]*job.Job)
	c.jobsMu.Unlock()

	for _, id := range ids {
		if err := c.Store.Delete(ctx, datastore.TableJobs, id); err != nil && err != datastore.ErrNotFound {
			return err
		}
	}
	return nil
}

// PurgeNodes drops every worker record outright.
func (c *Coordinator) PurgeNodes() {
	c.Workers.Purge()
}

// ExportJobs writes every known job, JSON-encoded one-per-line, to path.
func (c *Coordinator) ExportJobs(path string) error {
	jobs := c.Jobs()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, j := range jobs {
		if err := enc.Encode(j); err != nil {
			return err
		}
	}
	return nil
}
