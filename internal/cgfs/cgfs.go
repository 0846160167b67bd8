package cgfs

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/containerd/cgroups/v3"
)

// DefaultRoot is where the kernel cgroup hierarchy is mounted on any
// systemd-booted machine.
const DefaultRoot = "/sys/fs/cgroup"

const procsFile = "cgroup.procs"

var (
	ErrProcessAssign  = errors.New("process assign rejected")
	ErrAccountingRead = errors.New("accounting read failed")
)

// legacyControllers are the v1 hierarchies that get mirror directories when
// running on a legacy cgroup setup.
var legacyControllers = []string{"cpu", "memory", "blkio", "pids"}

// Layout describes how the cgroup hierarchy is mounted on this machine and
// resolves unit names to directories, so nothing outside this package builds
// cgroup paths by hand.
type Layout struct {
	mode cgroups.CGMode
	root string
}

// DetectLayout probes the running system. Hybrid mode mixes v1 and v2
// hierarchies in a way delegation cannot work with, so it is rejected
// outright.
func DetectLayout() (*Layout, error) {
	return layoutFor(cgroups.Mode(), DefaultRoot)
}

func layoutFor(mode cgroups.CGMode, root string) (*Layout, error) {
	switch mode {
	case cgroups.Unified, cgroups.Legacy:
		return &Layout{mode: mode, root: root}, nil
	case cgroups.Hybrid:
		return nil, errors.New("hybrid cgroup mode is not supported, boot with systemd.unified_cgroup_hierarchy=1")
	default:
		return nil, errors.New("no cgroup hierarchy mounted")
	}
}

// Unified reports whether the machine runs on cgroup v2 only.
func (l *Layout) Unified() bool {
	return l.mode == cgroups.Unified
}

// ScopePath returns the scope unit's directory in the main hierarchy. On
// legacy systems that is the named systemd hierarchy.
func (l *Layout) ScopePath(slice, scope string) string {
	if l.mode == cgroups.Legacy {
		return path.Join(l.root, "systemd", slice, scope)
	}
	return path.Join(l.root, slice, scope)
}

// ControllerPaths returns the mirror directories a sub-cgroup needs in each
// controller hierarchy. Empty on unified systems, where a single directory
// carries all controllers.
func (l *Layout) ControllerPaths(slice, scope, sub string) []string {
	if l.mode != cgroups.Legacy {
		return nil
	}
	dirs := make([]string, 0, len(legacyControllers))
	for _, c := range legacyControllers {
		dirs = append(dirs, path.Join(l.root, c, slice, scope, sub))
	}
	return dirs
}

// Node is one directory in the main cgroup hierarchy.
type Node struct {
	path string
}

func NodeAt(p string) *Node {
	return &Node{path: p}
}

func (n *Node) Path() string {
	return n.path
}

func (n *Node) Name() string {
	return path.Base(n.path)
}

func (n *Node) Child(name string) *Node {
	return &Node{path: path.Join(n.path, name)}
}

// Procs reads the node's membership file.
func (n *Node) Procs() ([]int, error) {
	data, err := os.ReadFile(path.Join(n.path, procsFile))
	if err != nil {
		return nil, fmt.Errorf("read %s of %s: %w", procsFile, n.path, err)
	}
	var pids []int
	for _, field := range strings.Fields(string(data)) {
		pid, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("parse %s of %s: %w", procsFile, n.path, err)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// AddProc writes pid into the membership file. The kernel moves the process
// out of its previous cgroup, it never copies, so membership stays exclusive.
func (n *Node) AddProc(pid int) error {
	if err := os.WriteFile(path.Join(n.path, procsFile), []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return fmt.Errorf("%w: pid %d into %s: %v", ErrProcessAssign, pid, n.path, err)
	}
	return nil
}

// Children lists the node's child cgroups in name order.
func (n *Node) Children() ([]*Node, error) {
	entries, err := os.ReadDir(n.path)
	if err != nil {
		return nil, err
	}
	var children []*Node
	for _, e := range entries {
		if e.IsDir() {
			children = append(children, n.Child(e.Name()))
		}
	}
	return children, nil
}

// ReadValue reads one accounting file, e.g. memory.current, and returns its
// content with surrounding whitespace trimmed.
func (n *Node) ReadValue(file string) (string, error) {
	data, err := os.ReadFile(path.Join(n.path, file))
	if err != nil {
		return "", fmt.Errorf("%w: %s of %s: %v", ErrAccountingRead, file, n.path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteValue writes one control file, e.g. cgroup.subtree_control.
func (n *Node) WriteValue(file, value string) error {
	if err := os.WriteFile(path.Join(n.path, file), []byte(value+"\n"), 0644); err != nil {
		return fmt.Errorf("write %s of %s: %w", file, n.path, err)
	}
	return nil
}
