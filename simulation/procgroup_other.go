//go:build !unix

package simulation

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}
