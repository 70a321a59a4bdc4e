//go:build unix

package supervisor

import (
	"os/exec"
	"syscall"
)

// killProcessGroup starts the process in its own group and makes cancellation
// SIGKILL the whole group, so encoder helpers cannot outlive the job.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
