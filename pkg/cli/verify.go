package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/willibrandon/chronosnap/pkg/recorder"
)

func newVerifyCommand(loadConfig func() (Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <snapshot>",
		Short: "Check every chunk and region of a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			r, err := recorder.Open(args[0], cfg.CacheSize)
			if err != nil {
				return err
			}
			stats, err := r.Verify()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, %d regions (%d readable), %d pages, %d chunks, %d bytes captured, %d bytes stored, rip=%#x\n",
				args[0], stats.Regions, stats.ReadableRegions, stats.Pages, stats.Chunks, stats.CapturedBytes,
				stats.StoredBytes, r.Registers().RIP)
			return nil
		},
	}
}
