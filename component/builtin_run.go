package component

import (
	"context"
	"strings"

	"github.com/directord/directord/cache"
	"github.com/directord/directord/job"
)

// runBuiltin implements RUN: execute a shell command on the client,
// optionally caching its stdout under an ARG key.
//
// Grounded on original_source/directord/components/builtin_run.py.
func runBuiltin() *Builtin {
	return &Builtin{
		Verb:         "RUN",
		Cacheable:    true,
		RequiresLock: false,
		Server: func(tokens []string, vars map[string]any) (job.Definition, error) {
			def := job.Definition{}
			if vars != nil {
				for k, v := range vars {
					def[k] = v
				}
				return def, nil
			}
			fs := newFlagSet("RUN")
			stdoutArg := fs.String("stdout-arg", "", "")
			if err := fs.Parse(tokens); err != nil {
				return nil, err
			}
			if *stdoutArg != "" {
				def["stdout_arg"] = *stdoutArg
			}
			def["command"] = strings.Join(fs.Args(), " ")
			return def, nil
		},
		Client: func(ctx context.Context, rt *Runtime, def job.Definition) (Result, error) {
			command, _ := def["command"].(string)
			args := cacheArgs(ctx, rt.Cache)
			rendered, err := blueprint(command, args, true)
			if err != nil || rendered == "" {
				return Result{}, err
			}
			envs := cacheEnvs(ctx, rt.Cache)
			stdout, stderr, ok := runCommand(ctx, rendered, envs)
			if stdoutArg, _ := def["stdout_arg"].(string); stdoutArg != "" && len(stdout) > 0 {
				merged := cacheArgs(ctx, rt.Cache)
				merged[stdoutArg] = strings.TrimSpace(string(stdout))
				if rt.Cache != nil {
					_ = rt.Cache.Set(ctx, cache.TagArgs, "args", merged, 0)
				}
			}
			return Result{Stdout: stdout, Stderr: stderr, Success: ok, Info: rendered}, nil
		},
	}
}
