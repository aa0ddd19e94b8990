package cli

import (
	"context"
	"fmt"

	"github.com/outofforest/logger"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/willibrandon/chronosnap/pkg/debugger"
	"github.com/willibrandon/chronosnap/pkg/recorder"
)

func newCaptureCommand(loadConfig func() (Config, error), connect Connector) *cobra.Command {
	var target Target
	var compression string

	cmd := &cobra.Command{
		Use:   "capture [output]",
		Short: "Capture a snapshot of a stopped process",
		Long: "Capture the registers and memory of a process stopped under dlv into a content-addressed " +
			"JSON document. Paths ending in .zst are zstd-compressed. Prints the destination path.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			output := cfg.Output
			if len(args) == 1 {
				output = args[0]
			}
			if target.Addr == "" && target.Exec == "" {
				target.Addr = cfg.Addr
			}
			if target.Addr == "" && target.Exec == "" {
				return errors.New("no target: pass --addr of a headless dlv server or --exec a binary")
			}
			if target.Addr != "" && target.Exec != "" {
				return errors.New("--addr and --exec are mutually exclusive")
			}
			if !cmd.Flags().Changed("compression") {
				compression = cfg.Compression
			}
			compressionType, err := recorder.ParseCompression(compression, output)
			if err != nil {
				return err
			}

			// Fail before touching the target if the destination is unusable.
			if err := recorder.CheckWritable(output); err != nil {
				return err
			}

			ctx := cmd.Context()
			session, err := connect(ctx, target)
			if err != nil {
				return err
			}
			defer func() {
				if err := session.Close(); err != nil {
					logger.Get(ctx).Warn("Closing debugger session failed", zap.Error(err))
				}
			}()

			if _, err := recorder.Save(ctx, session, output, recorder.FileOptions{
				CompressionType: compressionType,
			}); err != nil {
				return errors.Wrap(err, "capture failed")
			}
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}

	cmd.Flags().StringVar(&target.Addr, "addr", "", "address of a headless dlv server (--api-version=2) on this host")
	cmd.Flags().StringVar(&target.Exec, "exec", "", "binary to launch under dlv")
	cmd.Flags().StringArrayVar(&target.Args, "arg", nil, "argument passed to the --exec binary (repeatable)")
	cmd.Flags().StringVar(&target.Break, "break", "", "run to file:line or function before capturing")
	cmd.Flags().StringVar(&compression, "compression", "auto", "output compression: auto, none or zstd")
	return cmd
}

// DelveConnector opens sessions through dlv.
func DelveConnector(ctx context.Context, target Target) (Session, error) {
	var location debugger.Location
	if target.Break != "" {
		var err error
		if location, err = debugger.ParseLocation(target.Break); err != nil {
			return nil, err
		}
	}

	var d *debugger.DelveDebugger
	var err error
	if target.Exec != "" {
		d, err = debugger.NewDelveDebuggerWithArgs(ctx, target.Exec, target.Args)
	} else {
		d, err = debugger.Connect(ctx, target.Addr)
	}
	if err != nil {
		return nil, err
	}

	if err := d.Halt(); err != nil {
		_ = d.Close()
		return nil, err
	}
	if target.Break != "" {
		if _, err := d.RunTo(location); err != nil {
			_ = d.Close()
			return nil, err
		}
	}
	return d, nil
}
