//go:build !unix

package supervisor

import "os/exec"

// killProcessGroup keeps exec's default cancellation (Process.Kill).
func killProcessGroup(cmd *exec.Cmd) {}
