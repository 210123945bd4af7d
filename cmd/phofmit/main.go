package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"phofmit/internal/app"
	"phofmit/internal/config"
	"phofmit/internal/phofmit"

	"github.com/spf13/cobra"
)

// exitMismatch is the status for a run aborted on a scanner config mismatch.
const exitMismatch = 2

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if errors.Is(err, phofmit.ErrConfigMismatch) {
			os.Exit(exitMismatch)
		}
		os.Exit(1)
	}
}

// verbosity counts the -v flags given to any command.
var verbosity int

// loadConfig reads the config file. A missing file yields the built-in
// defaults with the machine's hostname as host ID.
func loadConfig() (*config.Config, map[string]string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, nil, fmt.Errorf("getting defaults: %w", err)
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	cfg, err := config.LoadOrDefault(defaults["config_path"], hostname, defaults["base_dir"])
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults, nil
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "snapshot", "mirror").
func newApp(operation string, args []string, opts app.Options) (*app.App, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	opts.Operation = operation
	opts.Parameters = strings.Join(args, " ")
	opts.Verbosity = verbosity
	if opts.Passphrase == nil {
		opts.Passphrase = readPassphrase
	}
	if opts.Progress == nil {
		opts.Progress = newProgress(os.Stderr)
	}

	a, err := app.NewApp(cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "phofmit",
	Short: "Restore a directory layout from a snapshot of file fingerprints",
	Long: `phofmit snapshots a directory tree (paths, sizes, mtimes and partial
checksums) and later moves the files of another copy of that tree back to
the paths recorded in the snapshot, without copying any data.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v, -vv)")

	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(mirrorCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(historyCmd)
}
