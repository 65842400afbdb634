// Command directord-server runs the Directord server coordinator: it
// binds the configured transport driver, tracks worker liveness, accepts
// job submissions over the local control socket, and dispatches/merges
// results.
//
// Grounded on imagvfx-coco's cmd/cocofarm/main.go (flag parsing, a single
// long-running process wiring one concrete implementation to a shared
// struct) generalized to cobra/viper configuration and the driver/
// datastore plug-in seams this module adds.
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

	"github.com/directord/directord/component"
	"github.com/directord/directord/coordinator"
	"github.com/directord/directord/ctlsocket"
	"github.com/directord/directord/datastore"
	"github.com/directord/directord/datastore/filestore"
	"github.com/directord/directord/datastore/memorystore"
	"github.com/directord/directord/datastore/redisstore"
	"github.com/directord/directord/datastore/sqlitestore"
	"github.com/directord/directord/directordconfig"
	"github.com/directord/directord/driver"
	"github.com/directord/directord/driver/grpcdriver"
	"github.com/directord/directord/orchestrate"
)

func main() {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "directord-server",
		Short: "Run the Directord server coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := directordconfig.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	cmd.Flags().String("driver", "", "transport driver (grpc)")
	cmd.Flags().String("bind-address", "", "address the server driver binds")
	cmd.Flags().String("socket-path", "", "local control socket path")
	cmd.Flags().String("datastore", "", "datastore backend (memory|file|redis|sqlite)")
	cmd.Flags().Bool("debug", false, "enable debug logging")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	cmd.SetContext(ctx)

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *directordconfig.Config) error {
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("directord-server: open datastore: %w", err)
	}
	defer store.Close()

	drv, err := openDriver(cfg.Driver)
	if err != nil {
		return fmt.Errorf("directord-server: open driver: %w", err)
	}

	coord := coordinator.New(drv, store, time.Duration(cfg.HeartbeatInterval)*time.Second, 0)
	registry := component.NewRegistry()
	compiler := orchestrate.New(registry)
	cs := coordinator.NewCtlsocket(coord, compiler)
	sock := ctlsocket.NewServer(cfg.SocketPath, cs)

	errCh := make(chan error, 3)
	go func() {
		errCh <- drv.Bind(ctx, driver.Config{
			BindAddress:    cfg.BindAddress,
			SharedKey:      cfg.SharedKey,
			CurveEncrypted: cfg.CurveEncryption,
		})
	}()
	go func() { errCh <- coord.Run(ctx) }()
	go func() { errCh <- sock.Run(ctx) }()

	log.Printf("directord-server: listening on %s (driver=%s, socket=%s)", cfg.BindAddress, cfg.Driver, cfg.SocketPath)

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

func openStore(cfg *directordconfig.Config) (datastore.Store, error) {
	switch cfg.Datastore {
	case "", "memory":
		return memorystore.New(), nil
	case "file":
		return filestore.Open(os.ExpandEnv("$HOME/.directord/data"))
	case "redis":
		return redisstore.Open(cfg.ServerAddress)
	case "sqlite":
		return sqlitestore.Open(os.ExpandEnv("$HOME/.directord/directord.db"))
	default:
		return nil, fmt.Errorf("unknown datastore %q", cfg.Datastore)
	}
}
