//go:build !windows
// +build !windows

package recorder

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func checkDirWritable(dir string) error {
	return errors.WithStack(unix.Access(dir, unix.W_OK|unix.X_OK))
}
