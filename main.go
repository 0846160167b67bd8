package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"cgscope/cmd"
)

const usage = `cgscope demonstrates systemd cgroup delegation: it starts a transient scope
unit with a delegated cgroup subtree, fills it with sub-cgroups and placeholder
processes and prints the resulting hierarchy. Must run as root.`

func main() {
	app := cli.NewApp()
	app.Name = "cgscope"
	app.Usage = usage
	app.Commands = cmd.Commands

	app.Before = func(ctx *cli.Context) error {
		log.SetFormatter(&log.JSONFormatter{})
		log.SetOutput(os.Stdout)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
