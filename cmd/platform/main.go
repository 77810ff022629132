// Command platform runs one replica of the Platform's replicated state
// machine, per spec §4.1's leader-based consensus cluster.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tao-l/CS262-project/internal/config"
	"github.com/tao-l/CS262-project/internal/logging"
	"github.com/tao-l/CS262-project/internal/platform"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "platform",
		Short: "Run a replica of the auction Platform's consensus cluster",
	}
	root.AddCommand(serveCmd())
	return root
}

func serveCmd() *cobra.Command {
	var id int
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start this replica and block until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger, err := logging.New(fmt.Sprintf("platform-%d", id))
			if err != nil {
				return fmt.Errorf("logging: %w", err)
			}
			defer logger.Sync()

			replica, err := platform.NewReplica(id, cfg, logger)
			if err != nil {
				return fmt.Errorf("platform: %w", err)
			}
			replica.Start()
			defer replica.Stop()

			logger.Info("replica started")

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig

			logger.Info("replica shutting down")
			return nil
		},
	}
	cmd.Flags().IntVar(&id, "id", 0, "this replica's id, per the replicas list in config")
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file (optional, AUCTION_ env vars and defaults otherwise)")
	cmd.MarkFlagRequired("id")
	return cmd
}
