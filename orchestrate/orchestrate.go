// Package orchestrate compiles declarative YAML orchestrations into a
// linear or async stream of typed job.Job objects, per spec.md §4.4.
//
// Grounded on the original source's directord/mixin.py (Mixin: tokenizes
// an inline execution string with shlex, binds it against the target
// component's argparse parser, or takes the dict form's vars directly)
// and on Quatton-qwex's dependency on gopkg.in/yaml.v3 for config/manifest
// parsing, which this package reuses for the orchestration file format.
package orchestrate

import (
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/directord/directord/job"
)

// File is one item of the top-level YAML list: an orchestration.
type File struct {
	Name    string   `yaml:"name,omitempty"`
	Targets []string `yaml:"targets,omitempty"`
	Async   bool     `yaml:"async,omitempty"`
	Jobs    []JobEntry `yaml:"jobs"`
}

// JobEntry is a single-key mapping whose key is the verb and whose value
// is either an inline string or a dict with vars.
type JobEntry struct {
	Verb   string
	Inline string
	Vars   map[string]any
	IsDict bool
}

// UnmarshalYAML implements the single-key-map-with-either-a-string-or-a-
// dict shape spec.md §4.4 describes for job entries.
func (j *JobEntry) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("orchestrate: job entry must have exactly one verb key, got %d", len(raw))
	}
	for verb, v := range raw {
		j.Verb = verb
		switch v.Kind {
		case yaml.ScalarNode:
			return v.Decode(&j.Inline)
		case yaml.MappingNode:
			j.IsDict = true
			var body struct {
				Vars map[string]any `yaml:"vars"`
			}
			if err := v.Decode(&body); err != nil {
				return err
			}
			j.Vars = body.Vars
			return nil
		default:
			return fmt.Errorf("orchestrate: verb %q has an unsupported value kind", verb)
		}
	}
	return nil
}

// ArgBinder resolves a verb's inline-form tokens (or dict-form vars) into
// a normalized job.Definition. Implemented by component.Registry; kept as
// a narrow interface here so this package does not import component
// (which in turn would need to import orchestrate's types for callback
// jobs), avoiding an import cycle.
type ArgBinder interface {
	// BindInline tokenizes and parses an inline-form execution string for
	// verb, returning the normalized definition.
	BindInline(verb string, tokens []string) (job.Definition, error)
	// BindVars validates dict-form vars for verb, returning the
	// normalized definition.
	BindVars(verb string, vars map[string]any) (job.Definition, error)
}

// Vars is the submitting process's view of known template variables
// (CLI-provided overrides), used for interpolation over orchestration
// file strings. Cache-backed interpolation happens later, on the client.
type Vars map[string]string

// Compiler turns File values into job.Job streams.
type Compiler struct {
	Binder ArgBinder
}

// New creates a Compiler bound to the given ArgBinder (normally
// component.Registry).
func New(binder ArgBinder) *Compiler {
	return &Compiler{Binder: binder}
}

// Compile expands files into a flat, ordered stream of Jobs. Each
// orchestration in files gets its own parent_id; every job in the
// orchestration shares it and carries the orchestration's async flag and
// resolved targets.
func (c *Compiler) Compile(files []File, vars Vars) ([]*job.Job, error) {
	var out []*job.Job
	for _, f := range files {
		jobs, err := c.compileOne(f, vars)
		if err != nil {
			return nil, fmt.Errorf("orchestrate: %q: %w", f.Name, err)
		}
		out = append(out, jobs...)
	}
	return out, nil
}

func (c *Compiler) compileOne(f File, vars Vars) ([]*job.Job, error) {
	parentID := uuid.NewString()
	jobs := make([]*job.Job, 0, len(f.Jobs))
	for idx, entry := range f.Jobs {
		def, err := c.bind(entry)
		if err != nil {
			return nil, fmt.Errorf("job %d (%s): %w", idx, entry.Verb, err)
		}
		interpolateStrings(def, vars)
		if len(f.Targets) > 0 {
			def["targets"] = f.Targets
		}
		j := job.New(entry.Verb, def)
		j.ParentID = parentID
		j.Async = f.Async
		j.Index = idx
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (c *Compiler) bind(entry JobEntry) (job.Definition, error) {
	if c.Binder == nil {
		return job.Definition{}, fmt.Errorf("no component registry bound to the compiler")
	}
	if entry.IsDict {
		return c.Binder.BindVars(entry.Verb, entry.Vars)
	}
	tokens, err := Tokenize(entry.Inline)
	if err != nil {
		return nil, err
	}
	return c.Binder.BindInline(entry.Verb, tokens)
}

// interpolateStrings substitutes ${VAR} / $VAR occurrences in every
// string-valued field of def using vars, the submitting process's view of
// known template variables. This does not touch client-side cache values
// (args/envs/query caches interpolate later, on the client), per
// spec.md §4.4.
func interpolateStrings(def job.Definition, vars Vars) {
	for k, v := range def {
		if s, ok := v.(string); ok {
			def[k] = expandVars(s, vars)
		}
	}
}

// ParseFile unmarshals raw YAML bytes into a slice of orchestration
// Files, per the orchestration file format in spec.md §6.
func ParseFile(raw []byte) ([]File, error) {
	var files []File
	if err := yaml.Unmarshal(raw, &files); err != nil {
		return nil, fmt.Errorf("orchestrate: parse: %w", err)
	}
	return files, nil
}
