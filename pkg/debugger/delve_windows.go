//go:build windows
// +build windows

package debugger

import (
	"os/exec"
	"syscall"
)

// setupProcAttr configures platform-specific process attributes.
// dlv gets no console window and its own process group, so Ctrl+C reaches only chronosnap.
func setupProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
