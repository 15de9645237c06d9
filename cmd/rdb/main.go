package main

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

// commands print results here; logs go to stderr
var stdout io.Writer = os.Stdout

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "rdb",
		Usage:   "tool to manipulate rdb databases",
		Version: "dev",
		Commands: []*cli.Command{
			createCommand(),
			compactCommand(),
			generateCommand(),
			statsCommand(),
			optionsCommand(),
			probeCommand(),
		},
	}
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		logrus.Fatal(err)
	}
}
