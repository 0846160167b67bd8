package cgfs

import (
	"errors"
	"os"
	"path"
	"testing"

	"github.com/containerd/cgroups/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutScopePath(t *testing.T) {
	tests := []struct {
		name string
		mode cgroups.CGMode
		want string
	}{
		{"unified", cgroups.Unified, "/sys/fs/cgroup/workload.slice/demo.scope"},
		{"legacy", cgroups.Legacy, "/sys/fs/cgroup/systemd/workload.slice/demo.scope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := layoutFor(tt.mode, DefaultRoot)
			require.NoError(t, err)
			assert.Equal(t, tt.want, l.ScopePath("workload.slice", "demo.scope"))
		})
	}
}

func TestLayoutControllerPaths(t *testing.T) {
	l, err := layoutFor(cgroups.Legacy, DefaultRoot)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/sys/fs/cgroup/cpu/workload.slice/demo.scope/workers",
		"/sys/fs/cgroup/memory/workload.slice/demo.scope/workers",
		"/sys/fs/cgroup/blkio/workload.slice/demo.scope/workers",
		"/sys/fs/cgroup/pids/workload.slice/demo.scope/workers",
	}, l.ControllerPaths("workload.slice", "demo.scope", "workers"))

	l, err = layoutFor(cgroups.Unified, DefaultRoot)
	require.NoError(t, err)
	assert.Empty(t, l.ControllerPaths("workload.slice", "demo.scope", "workers"))
}

func TestLayoutRejectsBrokenModes(t *testing.T) {
	_, err := layoutFor(cgroups.Hybrid, DefaultRoot)
	assert.Error(t, err)

	_, err = layoutFor(cgroups.Unavailable, DefaultRoot)
	assert.Error(t, err)
}

func TestNodeProcs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(path.Join(dir, "cgroup.procs"), []byte("1\n42\n314\n"), 0644))

	pids, err := NodeAt(dir).Procs()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 42, 314}, pids)
}

func TestNodeProcsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(path.Join(dir, "cgroup.procs"), nil, 0644))

	pids, err := NodeAt(dir).Procs()
	require.NoError(t, err)
	assert.Empty(t, pids)
}

func TestNodeAddProc(t *testing.T) {
	dir := t.TempDir()
	n := NodeAt(dir)
	require.NoError(t, n.AddProc(42))

	data, err := os.ReadFile(path.Join(dir, "cgroup.procs"))
	require.NoError(t, err)
	assert.Equal(t, "42\n", string(data))
}

func TestNodeAddProcRejected(t *testing.T) {
	n := NodeAt(path.Join(t.TempDir(), "gone"))
	err := n.AddProc(42)
	assert.True(t, errors.Is(err, ErrProcessAssign))
}

func TestNodeChildren(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(path.Join(dir, "workers"), 0755))
	require.NoError(t, os.Mkdir(path.Join(dir, "manager"), 0755))
	require.NoError(t, os.WriteFile(path.Join(dir, "cgroup.procs"), []byte("1\n"), 0644))

	children, err := NodeAt(dir).Children()
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "manager", children[0].Name())
	assert.Equal(t, "workers", children[1].Name())
}

func TestNodeReadValue(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(path.Join(dir, "memory.current"), []byte("4096\n"), 0644))

	n := NodeAt(dir)
	v, err := n.ReadValue("memory.current")
	require.NoError(t, err)
	assert.Equal(t, "4096", v)

	_, err = n.ReadValue("pids.current")
	assert.True(t, errors.Is(err, ErrAccountingRead))
}

func TestNodeWriteValue(t *testing.T) {
	dir := t.TempDir()
	n := NodeAt(dir)
	require.NoError(t, n.WriteValue("cgroup.subtree_control", "+cpu +memory +io +pids"))

	data, err := os.ReadFile(path.Join(dir, "cgroup.subtree_control"))
	require.NoError(t, err)
	assert.Equal(t, "+cpu +memory +io +pids\n", string(data))
}
