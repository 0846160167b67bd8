// Package scope drives systemd's cgroup delegation: it starts a transient
// scope unit over D-Bus with a delegated controller set and manages the
// sub-cgroups underneath it.
package scope

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	systemd "github.com/coreos/go-systemd/v22/dbus"
	godbus "github.com/godbus/dbus/v5"
	log "github.com/sirupsen/logrus"

	"cgscope/internal/cgfs"
	"cgscope/internal/proc"
)

var (
	ErrServiceRequest = errors.New("service request failed")
	ErrSubgroupCreate = errors.New("subgroup create failed")
)

// Controller names one resource axis the scope delegates. The values match
// the cgroup v2 controller names.
type Controller string

const (
	CPU    Controller = "cpu"
	Memory Controller = "memory"
	IO     Controller = "io"
	Pids   Controller = "pids"
)

// AllControllers is the fixed set delegated to every demo scope.
var AllControllers = []Controller{CPU, Memory, IO, Pids}

// accountingProperty maps a controller to the unit property that turns
// resource accounting on for it.
func (c Controller) accountingProperty() (string, bool) {
	switch c {
	case CPU:
		return "CPUAccounting", true
	case Memory:
		return "MemoryAccounting", true
	case IO:
		return "IOAccounting", true
	case Pids:
		return "TasksAccounting", true
	}
	return "", false
}

// Request carries everything the scope start call needs. It is validated
// before anything goes over the bus.
type Request struct {
	Name        string
	Slice       string
	InitialPID  int
	Controllers []Controller
}

func (r Request) Validate() error {
	if !strings.HasSuffix(r.Name, ".scope") {
		return fmt.Errorf("scope name %q must end in .scope", r.Name)
	}
	if !strings.HasSuffix(r.Slice, ".slice") {
		return fmt.Errorf("slice name %q must end in .slice", r.Slice)
	}
	if r.InitialPID <= 0 {
		return fmt.Errorf("invalid initial pid %d", r.InitialPID)
	}
	if !proc.IsAlive(r.InitialPID) {
		return fmt.Errorf("initial pid %d is not a live process", r.InitialPID)
	}
	if len(r.Controllers) == 0 {
		return errors.New("no controllers requested")
	}
	for _, c := range r.Controllers {
		if _, ok := c.accountingProperty(); !ok {
			return fmt.Errorf("unknown controller %q", c)
		}
	}
	return nil
}

// properties builds the transient unit property list: the initial member
// pid, the parent slice, accounting for every requested controller and the
// delegated controller set itself.
func (r Request) properties() []systemd.Property {
	props := []systemd.Property{
		systemd.PropPids(uint32(r.InitialPID)),
		systemd.PropSlice(r.Slice),
	}
	delegated := make([]string, 0, len(r.Controllers))
	for _, c := range r.Controllers {
		name, _ := c.accountingProperty()
		props = append(props, systemd.Property{Name: name, Value: godbus.MakeVariant(true)})
		delegated = append(delegated, string(c))
	}
	return append(props, systemd.Property{Name: "Delegate", Value: godbus.MakeVariant(delegated)})
}

// Connect establishes the bus connection to systemd.
func Connect(ctx context.Context) (*systemd.Conn, error) {
	conn, err := systemd.NewWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to systemd: %v", ErrServiceRequest, err)
	}
	return conn, nil
}

// Scope is a running transient scope unit with a delegated cgroup subtree.
// The subtree itself is owned by systemd and the kernel; Scope only holds
// handles into it.
type Scope struct {
	Name  string
	Slice string

	conn   *systemd.Conn
	layout *cgfs.Layout
	root   *cgfs.Node
	subs   map[string]*Subgroup
}

// Start asks systemd to create the scope and waits for the start job to
// finish. Any rejection, including a name collision with an existing unit,
// is fatal; there is no retry.
func Start(ctx context.Context, conn *systemd.Conn, layout *cgfs.Layout, req Request) (*Scope, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceRequest, err)
	}

	jobCh := make(chan string, 1)
	id, err := conn.StartTransientUnitContext(ctx, req.Name, "replace", req.properties(), jobCh)
	if err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrServiceRequest, req.Name, err)
	}
	if result := <-jobCh; result != "done" {
		return nil, fmt.Errorf("%w: start job %d for %s finished as %q", ErrServiceRequest, id, req.Name, result)
	}
	log.Infof("scope %s started in %s with pid %d", req.Name, req.Slice, req.InitialPID)

	return &Scope{
		Name:   req.Name,
		Slice:  req.Slice,
		conn:   conn,
		layout: layout,
		root:   cgfs.NodeAt(layout.ScopePath(req.Slice, req.Name)),
		subs:   make(map[string]*Subgroup),
	}, nil
}

// Root is the scope's cgroup directory in the main hierarchy.
func (s *Scope) Root() *cgfs.Node {
	return s.root
}

// Subgroup is one sub-cgroup nested directly under the scope root. On legacy
// systems it also spans the mirror directories in the controller hierarchies.
type Subgroup struct {
	Name string

	node  *cgfs.Node
	extra []*cgfs.Node
}

func (g *Subgroup) Node() *cgfs.Node {
	return g.node
}

// CreateSubgroup makes a sub-cgroup one level below the scope root. Names
// must be unique within the scope.
func (s *Scope) CreateSubgroup(name string) (*Subgroup, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty subgroup name", ErrSubgroupCreate)
	}
	if _, ok := s.subs[name]; ok {
		return nil, fmt.Errorf("%w: %s already exists in %s", ErrSubgroupCreate, name, s.Name)
	}

	g := &Subgroup{Name: name, node: s.root.Child(name)}
	dirs := []string{g.node.Path()}
	for _, p := range s.layout.ControllerPaths(s.Slice, s.Name, name) {
		g.extra = append(g.extra, cgfs.NodeAt(p))
		dirs = append(dirs, p)
	}
	for _, dir := range dirs {
		if err := os.Mkdir(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSubgroupCreate, err)
		}
	}
	s.subs[name] = g
	return g, nil
}

// AddProcess migrates pid into the subgroup. The kernel moves the process
// out of whatever group held it before, so it is never listed twice. A pid
// that exited in the meantime is rejected by the kernel and surfaces here.
func (g *Subgroup) AddProcess(pid int) error {
	if err := g.node.AddProc(pid); err != nil {
		return err
	}
	for _, n := range g.extra {
		if err := n.AddProc(pid); err != nil {
			return err
		}
	}
	return nil
}

// EnableControllers turns the delegated controllers on for children of the
// scope root. The kernel only allows this once no process sits in the root
// itself, so call it after every member has been migrated into a subgroup.
// No-op on legacy systems, where controllers are bound at mount time.
func (s *Scope) EnableControllers(controllers []Controller) error {
	if !s.layout.Unified() {
		return nil
	}
	parts := make([]string, 0, len(controllers))
	for _, c := range controllers {
		parts = append(parts, "+"+string(c))
	}
	return s.root.WriteValue("cgroup.subtree_control", strings.Join(parts, " "))
}

// Stop tears the scope unit down, taking the delegated subtree with it.
func (s *Scope) Stop(ctx context.Context) error {
	jobCh := make(chan string, 1)
	if _, err := s.conn.StopUnitContext(ctx, s.Name, "replace", jobCh); err != nil {
		return fmt.Errorf("stop %s: %w", s.Name, err)
	}
	if result := <-jobCh; result != "done" {
		return fmt.Errorf("stop job for %s finished as %q", s.Name, result)
	}
	return nil
}
