package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"cgscope/internal/cgfs"
	"cgscope/internal/tree"
)

var treeCommand = cli.Command{
	Name:      "tree",
	Usage:     "Print a cgroup subtree with accounting annotations",
	ArgsUsage: "[cgroup directory]",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "no-accounting",
			Usage: "print node names only",
		},
	},
	Action: func(cliCtx *cli.Context) error {
		if cliCtx.Args().Len() < 1 {
			return fmt.Errorf("missing cgroup directory, e.g. %s/workload.slice", cgfs.DefaultRoot)
		}
		root := cgfs.NodeAt(cliCtx.Args().Get(0))
		if _, err := os.Stat(root.Path()); err != nil {
			return fmt.Errorf("cannot read cgroup %s: %v", root.Path(), err)
		}

		probes := tree.DefaultProbes
		if cliCtx.Bool("no-accounting") {
			probes = nil
		}
		tree.Fprint(os.Stdout, tree.Render(root, probes))
		return nil
	},
}
