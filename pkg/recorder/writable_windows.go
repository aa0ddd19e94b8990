//go:build windows
// +build windows

package recorder

import (
	"os"

	"github.com/pkg/errors"
)

// checkDirWritable probes dir by creating a file, as Windows has no access(2).
func checkDirWritable(dir string) error {
	probe, err := os.CreateTemp(dir, ".chronosnap-probe-*")
	if err != nil {
		return errors.WithStack(err)
	}
	_ = probe.Close()
	return errors.WithStack(os.Remove(probe.Name()))
}
