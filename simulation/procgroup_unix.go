//go:build unix

package simulation

import (
	"os/exec"
	"syscall"
)

// setProcessGroup makes cancellation kill the whole solver process tree
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
