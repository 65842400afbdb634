package component

import (
	"context"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/directord/directord/cache"
	"github.com/directord/directord/job"
)

// cacheFileBuiltin implements CACHEFILE: load a YAML file from the client's
// local disk and merge it into the args cache. Not cacheable, requires the
// client's serialization lock, matching the original source.
//
// Grounded on original_source/directord/components/builtin_cachefile.py,
// using gopkg.in/yaml.v3 (already pulled in for the orchestration DSL) in
// place of PyYAML's yaml.safe_load.
func cacheFileBuiltin() *Builtin {
	return &Builtin{
		Verb:         "CACHEFILE",
		Cacheable:    false,
		RequiresLock: true,
		Server: func(tokens []string, vars map[string]any) (job.Definition, error) {
			def := job.Definition{}
			if vars != nil {
				for k, v := range vars {
					def[k] = v
				}
				return def, nil
			}
			fs := newFlagSet("CACHEFILE")
			if err := fs.Parse(tokens); err != nil {
				return nil, err
			}
			rest := fs.Args()
			if len(rest) == 0 {
				return nil, errArgSyntax("CACHEFILE")
			}
			def["cachefile"] = rest[0]
			return def, nil
		},
		Client: func(ctx context.Context, rt *Runtime, def job.Definition) (Result, error) {
			path, _ := def["cachefile"].(string)
			raw, err := os.ReadFile(path)
			if err != nil {
				return Result{Stderr: []byte(err.Error()), Success: false}, nil
			}
			var loaded map[string]any
			if err := yaml.Unmarshal(raw, &loaded); err != nil {
				return Result{Stderr: []byte(err.Error()), Success: false}, nil
			}
			existing := cacheArgs(ctx, rt.Cache)
			for k, v := range loaded {
				existing[k] = v
			}
			if rt.Cache != nil {
				if err := rt.Cache.Set(ctx, cache.TagArgs, "args", existing, 0); err != nil {
					return Result{}, err
				}
			}
			return Result{Success: true, Info: "Cache file loaded"}, nil
		},
	}
}
