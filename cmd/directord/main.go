// Command directord is the user-facing CLI: exec/orchestrate/bootstrap
// submit work through the local control socket; manage lists, polls,
// purges, and analyzes what the server coordinator knows about.
//
// Grounded on Quatton-qwex's apps/qwexctl/cmd/root.go (a cobra root
// command with a persistent --config flag, subcommands reading their own
// flags and calling out to a small SDK client) adapted from an HTTP API
// client to a ctlsocket.Client talking over the local UNIX socket, and on
// spec.md §6's literal CLI surface.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/directord/directord/bootstrap"
	"github.com/directord/directord/ctlsocket"
	"github.com/directord/directord/directordconfig"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   "directord",
		Short: "Submit and manage work on a Directord server",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	root.AddCommand(execCmd(), orchestrateCmd(), bootstrapCmd(), manageCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadSocketClient(cmd *cobra.Command) (*ctlsocket.Client, error) {
	cfg, err := directordconfig.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	return ctlsocket.NewClient(cfg.SocketPath), nil
}

func execCmd() *cobra.Command {
	var verb string
	var targets []string
	cmd := &cobra.Command{
		Use:   "exec -- ARGS...",
		Short: "Submit a single one-shot job",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := loadSocketClient(cmd)
			if err != nil {
				return err
			}
			var resp struct {
				JobIDs   []string `json:"job_ids"`
				ParentID string   `json:"parent_id"`
			}
			err = client.Call(cmd.Context(), "submit_exec", map[string]any{
				"verb":    verb,
				"args":    args,
				"targets": targets,
			}, &resp)
			if err != nil {
				return err
			}
			fmt.Println(resp.JobIDs[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&verb, "verb", "", "component verb to execute (required)")
	cmd.Flags().StringSliceVar(&targets, "target", nil, "restrict execution to these identities")
	cmd.MarkFlagRequired("verb")
	return cmd
}

func orchestrateCmd() *cobra.Command {
	var targets, restrict []string
	var ignoreCache, wait bool
	cmd := &cobra.Command{
		Use:   "orchestrate FILE [FILE ...]",
		Short: "Compile and submit one or more orchestration files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := loadSocketClient(cmd)
			if err != nil {
				return err
			}
			var allJobIDs []string
			for _, path := range args {
				raw, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				var resp struct {
					JobIDs   []string `json:"job_ids"`
					ParentID string   `json:"parent_id"`
				}
				err = client.Call(cmd.Context(), "submit_orchestration", map[string]any{
					"yaml": string(raw),
				}, &resp)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				allJobIDs = append(allJobIDs, resp.JobIDs...)
			}
			if wait {
				return pollAll(cmd.Context(), client, allJobIDs)
			}
			for _, id := range allJobIDs {
				fmt.Println(id)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&targets, "target", nil, "target identities (parsed but not sent with the submission; has no effect)")
	cmd.Flags().StringSliceVar(&restrict, "restrict", nil, "job_sha restriction (parsed but not sent with the submission; has no effect)")
	cmd.Flags().BoolVar(&ignoreCache, "ignore-cache", false, "cache bypass (parsed but not sent with the submission; has no effect)")
	cmd.Flags().BoolVar(&wait, "wait", false, "block until every submitted job is terminal")
	return cmd
}

func pollAll(ctx context.Context, client *ctlsocket.Client, jobIDs []string) error {
	for _, id := range jobIDs {
		var res struct {
			Success bool              `json:"success"`
			Message string            `json:"message"`
			State   string            `json:"state"`
			Nodes   map[string]string `json:"nodes"`
		}
		if err := client.Call(ctx, "poll_job", id, &res); err != nil {
			return err
		}
		fmt.Println(res.Message)
		if !res.Success {
			return fmt.Errorf("job %s did not succeed", id)
		}
	}
	return nil
}

func bootstrapCmd() *cobra.Command {
	var catalogs []string
	var threads int
	cmd := &cobra.Command{
		Use:   "bootstrap --catalog FILE [--catalog FILE ...]",
		Short: "Provision remote hosts over SSH before they join as Directord clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []bootstrap.CatalogEntry
			for _, path := range catalogs {
				raw, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				parsed, err := bootstrap.ParseCatalog(raw)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				entries = append(entries, parsed...)
			}
			results, err := bootstrap.Run(cmd.Context(), entries, threads)
			if err != nil {
				return err
			}
			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					fmt.Fprintf(os.Stderr, "%s: %s: %v\n%s", r.Target.Host, r.Job, r.Err, r.Stderr)
					continue
				}
				fmt.Printf("%s: %s: ok\n", r.Target.Host, r.Job)
			}
			if failed > 0 {
				return fmt.Errorf("bootstrap: %d of %d jobs failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&catalogs, "catalog", nil, "bootstrap catalog YAML file (repeatable)")
	cmd.Flags().IntVar(&threads, "thread", bootstrap.DefaultThreads, "bounded concurrency for SSH execution")
	cmd.MarkFlagRequired("catalog")
	return cmd
}

func manageCmd() *cobra.Command {
	var (
		listNodes, listJobs, purgeJobs, purgeNodes, generateKeys bool
		jobInfo, exportJobs, analyzeJob, analyzeParent           string
	)
	cmd := &cobra.Command{
		Use:   "manage",
		Short: "Inspect or reset server-side coordinator state",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := loadSocketClient(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			switch {
			case listNodes:
				return callAndPrint(ctx, client, "list_nodes", nil)
			case listJobs:
				return callAndPrint(ctx, client, "list_jobs", nil)
			case jobInfo != "":
				return callAndPrint(ctx, client, "job_info", jobInfo)
			case exportJobs != "":
				return client.Call(ctx, "export_jobs", exportJobs, nil)
			case analyzeJob != "":
				return callAndPrint(ctx, client, "analyze_job", analyzeJob)
			case analyzeParent != "":
				return callAndPrint(ctx, client, "analyze_parent", analyzeParent)
			case purgeJobs:
				return client.Call(ctx, "purge_jobs", nil, nil)
			case purgeNodes:
				return client.Call(ctx, "purge_nodes", nil, nil)
			case generateKeys:
				return client.Call(ctx, "generate_keys", nil, nil)
			default:
				return fmt.Errorf("manage: no operation flag given")
			}
		},
	}
	cmd.Flags().BoolVar(&listNodes, "list-nodes", false, "list known worker identities")
	cmd.Flags().BoolVar(&listJobs, "list-jobs", false, "list known jobs")
	cmd.Flags().StringVar(&jobInfo, "job-info", "", "show one job's current state by id")
	cmd.Flags().StringVar(&exportJobs, "export-jobs", "", "export every known job to PATH")
	cmd.Flags().StringVar(&analyzeJob, "analyze-job", "", "show one job's analysis by id")
	cmd.Flags().StringVar(&analyzeParent, "analyze-parent", "", "show one orchestration's aggregate analysis by parent_id")
	cmd.Flags().BoolVar(&purgeJobs, "purge-jobs", false, "drop every job record")
	cmd.Flags().BoolVar(&purgeNodes, "purge-nodes", false, "drop every worker record")
	cmd.Flags().BoolVar(&generateKeys, "generate-keys", false, "generate driver-specific transport keys")
	return cmd
}

func callAndPrint(ctx context.Context, client *ctlsocket.Client, op string, arg any) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	var raw json.RawMessage
	if err := client.Call(ctx, op, arg, &raw); err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}
