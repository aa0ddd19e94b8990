package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/willibrandon/chronosnap/pkg/recorder"
)

func newDumpCommand(loadConfig func() (Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <snapshot> <address> <output>",
		Short: "Write the raw bytes of the region containing an address",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) (retErr error) {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			addr, err := strconv.ParseUint(args[1], 0, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid address %q", args[1])
			}

			r, err := recorder.Open(args[0], cfg.CacheSize)
			if err != nil {
				return err
			}
			i, found := r.FindRegion(addr)
			if !found {
				return errors.Errorf("no region of %s contains %#x", args[0], addr)
			}

			f, err := os.Create(args[2])
			if err != nil {
				return errors.WithStack(err)
			}
			defer func() {
				if err := f.Close(); err != nil && retErr == nil {
					retErr = errors.WithStack(err)
				}
				if retErr != nil {
					_ = os.Remove(args[2])
				}
			}()

			n, err := r.WriteRegion(i, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bytes of %s\n", args[2], n, r.Regions()[i])
			return nil
		},
	}
}
