package component

import (
	"context"
	"strconv"
	"strings"

	"github.com/directord/directord/cache"
	"github.com/directord/directord/job"
)

// argBuiltin implements ARG and ENV, which differ only in which cache tag
// they write: "args" or "envs". Neither is cacheable, matching the original
// source's self.cacheable = False.
//
// Grounded on original_source/directord/components/builtin_arg.py.
func argBuiltin(verb, cacheType string) *Builtin {
	tag := cache.TagArgs
	if cacheType == "envs" {
		tag = cache.TagEnvs
	}
	return &Builtin{
		Verb:         verb,
		Cacheable:    false,
		RequiresLock: true,
		Server: func(tokens []string, vars map[string]any) (job.Definition, error) {
			def := job.Definition{}
			if vars != nil {
				def[cacheType] = vars
				return def, nil
			}
			fs := newFlagSet(verb)
			extend := fs.Bool("extend-args", false, "")
			if err := fs.Parse(tokens); err != nil {
				return nil, err
			}
			rest := fs.Args()
			if len(rest) < 2 {
				return nil, errArgSyntax(verb)
			}
			key := rest[0]
			value := strings.Join(rest[1:], " ")
			def[cacheType] = map[string]any{key: coerceLiteral(value)}
			if *extend {
				def["extend_args"] = true
			}
			return def, nil
		},
		Client: func(ctx context.Context, rt *Runtime, def job.Definition) (Result, error) {
			raw, _ := def[cacheType].(map[string]any)
			if len(raw) == 0 {
				return Result{Success: true, Info: "nothing added to cache"}, nil
			}
			args := cacheArgs(ctx, rt.Cache)
			rendered := map[string]any{}
			for k, v := range raw {
				if s, ok := v.(string); ok {
					out, err := blueprint(s, args, true)
					if err == nil {
						v = out
					}
				}
				if cacheType == "envs" {
					rendered[k] = toEnvString(v)
				} else {
					rendered[k] = v
				}
			}
			extend, _ := def["extend_args"].(bool)
			existing := map[string]any{}
			if rt.Cache != nil {
				_, _ = rt.Cache.Get(ctx, tag, cacheType, &existing)
			}
			if !extend {
				existing = map[string]any{}
			}
			for k, v := range rendered {
				existing[k] = v
			}
			if rt.Cache != nil {
				if err := rt.Cache.Set(ctx, tag, cacheType, existing, 0); err != nil {
					return Result{}, err
				}
			}
			return Result{Success: true, Info: cacheType + " added to cache"}, nil
		},
	}
}

func toEnvString(v any) string {
	switch vv := v.(type) {
	case string:
		return vv
	default:
		return strings.TrimSpace(strings.Trim(toJSONish(vv), "\""))
	}
}

func toJSONish(v any) string {
	switch vv := v.(type) {
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	case int:
		return strconv.Itoa(vv)
	case bool:
		return strconv.FormatBool(vv)
	default:
		return ""
	}
}

// coerceLiteral mirrors the original source's ast.literal_eval fallback:
// try bool/int/float, otherwise keep the raw string.
func coerceLiteral(s string) any {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

type errArgSyntaxT string

func (e errArgSyntaxT) Error() string { return string(e) }

func errArgSyntax(verb string) error {
	return errArgSyntaxT(verb + ": expected KEY VALUE")
}
