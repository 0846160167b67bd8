package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"cgscope/internal/cgfs"
	"cgscope/internal/proc"
	"cgscope/internal/scope"
	"cgscope/internal/tree"
)

var runCommand = cli.Command{
	Name:  "run",
	Usage: "Start a delegated scope, populate sub-cgroups and print the hierarchy",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "name",
			Usage: "scope unit name, must end in .scope (default: demo-<pid>.scope)",
		},
		&cli.StringFlag{
			Name:  "slice",
			Value: "workload.slice",
			Usage: "parent slice unit",
		},
		&cli.IntFlag{
			Name:  "workers",
			Value: 2,
			Usage: "number of placeholder worker processes",
		},
		&cli.DurationFlag{
			Name:  "keep",
			Value: 30 * time.Second,
			Usage: "how long to keep the scope alive after printing",
		},
	},
	Action: runDemo,
}

func runDemo(cliCtx *cli.Context) error {
	ctx := context.Background()

	layout, err := cgfs.DetectLayout()
	if err != nil {
		return err
	}

	conn, err := scope.Connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	name := cliCtx.String("name")
	if name == "" {
		name = fmt.Sprintf("demo-%d.scope", os.Getpid())
	}

	s, err := scope.Start(ctx, conn, layout, scope.Request{
		Name:        name,
		Slice:       cliCtx.String("slice"),
		InitialPID:  os.Getpid(),
		Controllers: scope.AllControllers,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Stop(ctx); err != nil {
			log.Warnf("stopping scope: %v", err)
		}
	}()

	manager, err := s.CreateSubgroup("manager")
	if err != nil {
		return err
	}
	workers, err := s.CreateSubgroup("workers")
	if err != nil {
		return err
	}

	// Controllers cannot be enabled while a process sits in the scope root,
	// so move ourselves into the manager subgroup before anything else.
	if err := manager.AddProcess(os.Getpid()); err != nil {
		return err
	}

	var placeholders []*exec.Cmd
	defer func() {
		for _, p := range placeholders {
			proc.Reap(p)
		}
	}()
	for i := 0; i < cliCtx.Int("workers"); i++ {
		p, err := proc.StartPlaceholder()
		if err != nil {
			return err
		}
		placeholders = append(placeholders, p)
		if err := workers.AddProcess(p.Process.Pid); err != nil {
			return err
		}
		log.Infof("placeholder %d migrated into %s", p.Process.Pid, workers.Name)
	}

	if err := s.EnableControllers(scope.AllControllers); err != nil {
		return err
	}

	probes := tree.DefaultProbes
	if !layout.Unified() {
		// v1 accounting lives in the per-controller hierarchies, the named
		// systemd hierarchy has nothing to read.
		probes = nil
	}
	tree.Fprint(os.Stdout, tree.Render(s.Root(), probes))

	if keep := cliCtx.Duration("keep"); keep > 0 {
		log.Infof("keeping scope %s alive for %v", s.Name, keep)
		time.Sleep(keep)
	}
	return nil
}
