// Command directord-client runs the Directord client worker: it connects
// to the configured server driver, emits heartbeats, ingests jobs, and
// executes them through the component registry.
//
// Grounded on imagvfx-coco's cmd/cocoworker/main.go (a single
// long-running process dialing out and serving one connection) adapted to
// this module's driver/cache/component plug-in seams.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/directord/directord/cache"
	"github.com/directord/directord/clientworker"
	"github.com/directord/directord/component"
	"github.com/directord/directord/datastore/memorystore"
	"github.com/directord/directord/directordconfig"
	"github.com/directord/directord/driver"
	"github.com/directord/directord/driver/grpcdriver"
)

func main() {
	var cfgFile, identity string
	cmd := &cobra.Command{
		Use:   "directord-client",
		Short: "Run the Directord client worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := directordconfig.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			if identity == "" {
				identity, err = os.Hostname()
				if err != nil {
					return err
				}
			}
			return run(cmd.Context(), cfg, identity)
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	cmd.Flags().StringVar(&identity, "identity", "", "worker identity (defaults to hostname)")
	cmd.Flags().String("driver", "", "transport driver (grpc)")
	cmd.Flags().String("server-address", "", "address of the server driver")
	cmd.Flags().Bool("debug", false, "enable debug logging")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	cmd.SetContext(ctx)

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *directordconfig.Config, identity string) error {
	drv, err := openDriver(cfg.Driver)
	if err != nil {
		return fmt.Errorf("directord-client: open driver: %w", err)
	}

	// The client's caches are always local and ephemeral across restarts
	// (spec.md §3): an in-memory backend is the right choice regardless of
	// the server's configured datastore, so this never reads cfg.Datastore.
	cacheStore := cache.New(memorystore.New(), time.Duration(cfg.CacheTTL)*time.Second)
	registry := component.NewRegistry()

	w := clientworker.New(drv, registry, cacheStore, identity, version())
	w.HeartbeatInterval = time.Duration(cfg.HeartbeatInterval) * time.Second

	errCh := make(chan error, 2)
	go func() {
		errCh <- drv.Connect(ctx, driver.Config{
			ServerAddress:  cfg.ServerAddress,
			Identity:       identity,
			SharedKey:      cfg.SharedKey,
			CurveEncrypted: cfg.CurveEncryption,
		})
	}()
	go func() { errCh <- w.Run(ctx) }()

	log.Printf("directord-client: connecting to %s as %q (driver=%s)", cfg.ServerAddress, identity, cfg.Driver)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
}

func openDriver(name string) (driver.Driver, error) {
	switch name {
	case "", "grpc":
		return grpcdriver.New(), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", name)
	}
}

// version is a placeholder build-time version string; real builds would
// set this via -ldflags the way most of the pack's CLI entrypoints do.
func version() string { return "dev" }
