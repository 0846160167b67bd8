package proc

import (
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAlive(t *testing.T) {
	assert.True(t, IsAlive(os.Getpid()))
}

func TestIsAliveExitedProcess(t *testing.T) {
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	assert.False(t, IsAlive(cmd.Process.Pid))
}

func TestPlaceholderLifecycle(t *testing.T) {
	cmd, err := StartPlaceholder()
	require.NoError(t, err)
	require.NotNil(t, cmd.Process)

	assert.True(t, IsAlive(cmd.Process.Pid))
	Reap(cmd)
	assert.False(t, IsAlive(cmd.Process.Pid))
}
