// Package cli provides the command-line interface for aiact.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/aiact-go/internal/client"
	"github.com/raphaelgruber/aiact-go/internal/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	cfg         config.Config
	logger      *slog.Logger
	closeLogger func() error

	// Lazy-initialized backend
	current backend
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "aiact",
	Short: "Legal assistant for the EU AI Act in Slovenian",
	Long: `aiact answers questions about the EU Artificial Intelligence Act
(Uredba (EU) 2024/1689) in Slovenian, citing the articles and recitals
it relies on.

Commands run in-process by default. Set --server or AIACT_SERVER_URL to
talk to a running aiact-server instead.`,
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger, closeLogger = config.SetupLogger("aiact", cfg.LogFile, level)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if current != nil {
			if err := current.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close services: %v\n", err)
			}
		}
		if closeLogger != nil {
			_ = closeLogger()
		}
	},
}

// remote reports whether commands should go through aiact-server.
func remote() bool {
	return serverURL != "" || os.Getenv("AIACT_SERVER_URL") != ""
}

// getBackend returns the in-process or remote backend, creating it once.
func getBackend() backend {
	if current != nil {
		return current
	}
	if remote() {
		current = &remoteBackend{client: client.New(serverURL)}
	} else {
		current = newLocalBackend()
	}
	return current
}

// isTerminal reports whether stdout is attached to a terminal.
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Interrupts cancel the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "aiact-server URL (default: run in-process)")

	// Add subcommands
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(chatsCmd)
	rootCmd.AddCommand(partCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(statsCmd)
}
