package component

import (
	"context"

	"github.com/directord/directord/job"
)

// cacheEvictBuiltin implements CACHEEVICT: removes every entry under one
// cache tag, or under every tag when the argument is "all", per spec.md §8
// property 7.
//
// Grounded on original_source/directord/components/builtin_cacheevict.py.
func cacheEvictBuiltin() *Builtin {
	return &Builtin{
		Verb:         "CACHEEVICT",
		Cacheable:    false,
		RequiresLock: false,
		Server: func(tokens []string, vars map[string]any) (job.Definition, error) {
			def := job.Definition{}
			if vars != nil {
				for k, v := range vars {
					def[k] = v
				}
				return def, nil
			}
			fs := newFlagSet("CACHEEVICT")
			if err := fs.Parse(tokens); err != nil {
				return nil, err
			}
			rest := fs.Args()
			if len(rest) == 0 {
				return nil, errArgSyntax("CACHEEVICT")
			}
			def["cacheevict"] = rest[0]
			return def, nil
		},
		Client: func(ctx context.Context, rt *Runtime, def job.Definition) (Result, error) {
			tag, _ := def["cacheevict"].(string)
			if rt.Cache == nil {
				return Result{Success: true}, nil
			}
			if err := rt.Cache.Evict(ctx, tag); err != nil {
				return Result{Stderr: []byte(err.Error()), Success: false}, nil
			}
			return Result{Success: true, Info: "evicted " + tag}, nil
		},
	}
}
