package component

import (
	"context"
	"os"

	"github.com/directord/directord/job"
)

// workdirBuiltin implements WORKDIR: create a directory on the client,
// optionally chmod'ing it. Ownership is not changed: there is no chown
// option, unlike the original source's pwd/grp-based owner/group handling.
//
// Grounded on original_source/directord/components/builtin_workdir.py.
func workdirBuiltin() *Builtin {
	return &Builtin{
		Verb:         "WORKDIR",
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
			fs := newFlagSet("WORKDIR")
			chmod := fs.String("chmod", "", "")
			if err := fs.Parse(tokens); err != nil {
				return nil, err
			}
			rest := fs.Args()
			if len(rest) == 0 {
				return nil, errArgSyntax("WORKDIR")
			}
			def["workdir"] = rest[0]
			if *chmod != "" {
				def["mode"] = *chmod
			}
			return def, nil
		},
		Client: func(ctx context.Context, rt *Runtime, def job.Definition) (Result, error) {
			dir, _ := def["workdir"].(string)
			args := cacheArgs(ctx, rt.Cache)
			rendered, err := blueprint(dir, args, true)
			if err != nil || rendered == "" {
				return Result{Success: false}, err
			}
			if err := os.MkdirAll(rendered, 0o755); err != nil {
				return Result{Stderr: []byte(err.Error()), Success: false}, nil
			}
			if mode, ok := def["mode"].(string); ok && mode != "" {
				if m, perr := parseOctalMode(mode); perr == nil {
					_ = os.Chmod(rendered, m)
				}
			}
			return Result{Success: true, Info: "Directory " + rendered + " OK"}, nil
		},
	}
}

func parseOctalMode(s string) (os.FileMode, error) {
	var m uint32
	for _, r := range s {
		if r < '0' || r > '7' {
			return 0, errArgSyntax("WORKDIR chmod")
		}
		m = m*8 + uint32(r-'0')
	}
	return os.FileMode(m), nil
}
