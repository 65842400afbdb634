// Package bootstrap parses a catalog of remote hosts and the shell jobs to
// run on each, then executes them over SSH on a bounded thread pool, per
// SPEC_FULL.md's supplemented bootstrap feature (original_source's
// directord/bootstrap.py: Bootstrap.bootstrap_catalog_entry /
// bootstrap_flatten_jobs).
//
// No SSH client library appears anywhere in the retrieved pack (neither
// golang.org/x/crypto/ssh nor a higher-level wrapper), so this package
// shells out to the system ssh binary, the same delegation-to-a-real-binary
// pattern the RUN component already uses for local command execution
// rather than hand-rolling or vendoring a protocol implementation.
package bootstrap

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// DefaultThreads is the bounded worker pool size spec.md §5 and the
// "bootstrap --thread N" CLI flag default to.
const DefaultThreads = 4

// Target is one remote host a catalog entry addresses.
type Target struct {
	Host     string `yaml:"host"`
	Name     string `yaml:"name,omitempty"`
	Username string `yaml:"username,omitempty"`
	Port     int    `yaml:"port,omitempty"`
}

// CatalogEntry is one item of the bootstrap catalog: a set of targets and
// the ordered shell jobs to run on each.
type CatalogEntry struct {
	Targets []Target `yaml:"targets"`
	Jobs    []string `yaml:"jobs"`
}

// Catalog is the full parsed bootstrap file: a flat list of entries.
type Catalog struct {
	Entries []CatalogEntry `yaml:",inline"`
}

// ParseCatalog unmarshals raw YAML bytes into a list of catalog entries.
// The original source's catalog is a bare top-level list, not a
// single-key document, so this parses directly into []CatalogEntry rather
// than through the Catalog wrapper.
func ParseCatalog(raw []byte) ([]CatalogEntry, error) {
	var entries []CatalogEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("bootstrap: parse catalog: %w", err)
	}
	for _, e := range entries {
		if len(e.Targets) == 0 {
			return nil, fmt.Errorf("bootstrap: catalog entry missing required component: targets")
		}
		if len(e.Jobs) == 0 {
			return nil, fmt.Errorf("bootstrap: catalog entry missing required component: jobs")
		}
		for _, t := range e.Targets {
			if t.Host == "" {
				return nil, fmt.Errorf("bootstrap: target missing required field: host")
			}
		}
	}
	return entries, nil
}

// unit is one (target, job) pair to execute, the flattened work item the
// original source's bootstrap_catalog_entry/bootstrap_flatten_jobs produce
// together.
type unit struct {
	target Target
	job    string
}

// Flatten expands entries into one execution unit per (target, job) pair,
// in catalog order.
func Flatten(entries []CatalogEntry) []unit {
	var units []unit
	for _, e := range entries {
		for _, t := range e.Targets {
			for _, job := range e.Jobs {
				units = append(units, unit{target: normalizeTarget(t), job: job})
			}
		}
	}
	return units
}

func normalizeTarget(t Target) Target {
	if t.Port == 0 {
		t.Port = 22
	}
	if t.Username == "" {
		t.Username = "root"
	}
	return t
}

// Result is one unit's outcome.
type Result struct {
	Target Target
	Job    string
	Stdout string
	Stderr string
	Err    error
}

// Run executes every (target, job) pair in entries over SSH, bounding
// concurrency to threads (DefaultThreads if zero). Results come back in
// Flatten's order (target-major, jobs in catalog order within a target).
// Units are started in that order but run concurrently up to the pool
// limit, so two jobs of the same target may overlap.
func Run(ctx context.Context, entries []CatalogEntry, threads int) ([]Result, error) {
	if threads <= 0 {
		threads = DefaultThreads
	}
	units := Flatten(entries)
	results := make([]Result, len(units))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for i, u := range units {
		i, u := i, u
		g.Go(func() error {
			results[i] = runUnit(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func runUnit(ctx context.Context, u unit) Result {
	dest := fmt.Sprintf("%s@%s", u.target.Username, u.target.Host)
	args := []string{"-p", fmt.Sprintf("%d", u.target.Port), "-o", "StrictHostKeyChecking=accept-new", dest, u.job}
	cmd := exec.CommandContext(ctx, "ssh", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return Result{Target: u.target, Job: u.job, Stdout: stdout.String(), Stderr: stderr.String(), Err: err}
}
