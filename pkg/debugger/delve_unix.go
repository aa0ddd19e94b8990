//go:build !windows
// +build !windows

package debugger

import (
	"os/exec"
	"syscall"
)

// setupProcAttr configures platform-specific process attributes.
// dlv runs in its own process group so a terminal interrupt reaches only chronosnap, which
// then shuts dlv down through Close.
func setupProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
