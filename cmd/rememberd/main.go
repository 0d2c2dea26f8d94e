// rememberd remembers window positions across sessions and restores them,
// relaunching the applications that owned them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thechief/rememberd/internal/infrastructure/config"
	"github.com/thechief/rememberd/internal/infrastructure/server"
)

var version = "0.3.0"

func main() {
	root := &cobra.Command{
		Use:   "rememberd",
		Short: "Window session restore daemon",
		Long: "rememberd tracks window placement per application, persists it, and\n" +
			"restores sessions by relaunching applications and moving their windows\n" +
			"back where they were. A compositor shim feeds it window events over a\n" +
			"unix socket.",
		SilenceUsage: true,
	}

	root.AddCommand(runCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			daemon, err := server.New(cfg, version)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer stop()

			return daemon.Run(ctx)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("rememberd", version)
		},
	}
}
