package proc

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// StartPlaceholder spawns a long-sleeping dummy process whose only job is to
// populate a cgroup.
func StartPlaceholder() (*exec.Cmd, error) {
	cmd := exec.Command("sleep", "infinity")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start placeholder: %w", err)
	}
	return cmd, nil
}

// IsAlive reports whether pid refers to a live process.
func IsAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// Reap kills a placeholder and collects its exit status so it does not
// linger as a zombie.
func Reap(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
	_ = cmd.Wait()
}
