//go:build !unix

package capture

import "os/exec"

func setProcessGroup(_ *exec.Cmd) {}
