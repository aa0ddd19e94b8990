// Package cli implements the chronosnap command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/willibrandon/chronosnap/pkg/snapshot"
	"github.com/willibrandon/chronosnap/pkg/version"
)

// Target selects the process a capture inspects.
type Target struct {
	Addr  string   // Headless dlv server to attach to
	Exec  string   // Binary to launch under dlv
	Args  []string // Arguments of Exec
	Break string   // Location to run to before capturing
}

// Session is a stopped process ready for a capture.
type Session interface {
	snapshot.Inspector
	Close() error
}

// Connector opens a session on a target.
type Connector func(ctx context.Context, target Target) (Session, error)

// NewRootCommand builds the chronosnap command tree.
func NewRootCommand(connect Connector) *cobra.Command {
	var configPath string
	loadConfig := func() (Config, error) {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return Config{}, err
		}
		cfg.ApplyEnv(os.LookupEnv)
		return cfg, nil
	}

	rootCmd := &cobra.Command{
		Use:           "chronosnap",
		Short:         "Capture deduplicated memory and register snapshots of stopped processes",
		Version:       version.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/"+DefaultConfigName+")")

	rootCmd.AddCommand(
		newCaptureCommand(loadConfig, connect),
		newVerifyCommand(loadConfig),
		newDumpCommand(loadConfig),
		newVersionCommand(),
	)
	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.GetVersionInfo())
		},
	}
}
