package component

import (
	"context"
	"encoding/json"
	"time"

	"github.com/directord/directord/cache"
	"github.com/directord/directord/job"
)

// queryBuiltin implements QUERY: look up a key in the local args cache and
// return it, JSON-encoded, as the job's stdout. The value is returned only
// as stdout: neither the client worker nor the coordinator's return path
// writes it into a query cache (cache.Store.SetQueryResult has no caller
// in this module).
//
// Grounded on original_source/directord/components/builtin_query.py.
func queryBuiltin() *Builtin {
	return &Builtin{
		Verb:         "QUERY",
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
			fs := newFlagSet("QUERY")
			if err := fs.Parse(tokens); err != nil {
				return nil, err
			}
			rest := fs.Args()
			if len(rest) == 0 {
				return nil, errArgSyntax("QUERY")
			}
			def["query"] = rest[0]
			return def, nil
		},
		Client: func(ctx context.Context, rt *Runtime, def job.Definition) (Result, error) {
			key, _ := def["query"].(string)
			args := cacheArgs(ctx, rt.Cache)
			if args == nil {
				return Result{Success: true}, nil
			}
			v, ok := args[key]
			if !ok {
				return Result{Success: true}, nil
			}
			b, err := json.Marshal(v)
			if err != nil {
				return Result{}, err
			}
			return Result{Stdout: b, Success: true}, nil
		},
	}
}

// queryWaitBuiltin implements QUERY_WAIT: block on the client until a key
// appears in the client's own local query cache (the runtime's "query"
// tag) for either any identity or a specific set of identities, polling
// every 10ms (as the original source does) up to query_timeout seconds.
//
// Grounded on original_source/components/query_wait.py.
func queryWaitBuiltin() *Builtin {
	return &Builtin{
		Verb:         "QUERY_WAIT",
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
			fs := newFlagSet("QUERY_WAIT")
			timeoutSeconds := fs.Int("query-timeout", 600, "")
			identity := fs.StringArray("identity", nil, "")
			if err := fs.Parse(tokens); err != nil {
				return nil, err
			}
			rest := fs.Args()
			if len(rest) == 0 {
				return nil, errArgSyntax("QUERY_WAIT")
			}
			def["item"] = rest[0]
			def["query_timeout"] = *timeoutSeconds
			if len(*identity) > 0 {
				def["identity"] = *identity
			}
			return def, nil
		},
		Client: func(ctx context.Context, rt *Runtime, def job.Definition) (Result, error) {
			item, _ := def["item"].(string)
			timeoutSeconds, _ := def["query_timeout"].(int)
			if timeoutSeconds == 0 {
				timeoutSeconds = 600
			}
			var identities []string
			if raw, ok := def["identity"]; ok {
				identities = stringSliceAny(raw)
			}
			deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
			for time.Now().Before(deadline) {
				query := map[string]map[string]any{}
				if rt.Cache != nil {
					_, _ = rt.Cache.Get(ctx, cache.TagQuery, item, &query)
				}
				if queryItemSatisfied(query, item, identities) {
					return Result{Success: true, Info: "item found in the query cache"}, nil
				}
				if err := sleepCtx(ctx, waitPollInterval); err != nil {
					return Result{}, err
				}
			}
			return Result{Success: false, Info: "timed out waiting for query item"}, nil
		},
	}
}

func queryItemSatisfied(query map[string]map[string]any, item string, identities []string) bool {
	if len(identities) == 0 {
		for _, v := range query {
			if _, ok := v[item]; ok {
				return true
			}
		}
		return false
	}
	for _, id := range identities {
		v, ok := query[id]
		if !ok {
			return false
		}
		if _, ok := v[item]; !ok {
			return false
		}
	}
	return true
}

func stringSliceAny(v any) []string {
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
