package main

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

func createCommand() *cli.Command {
	return &cli.Command{
		Name:   "create",
		Usage:  "create a new rdb database",
		Flags:  optionFlags(),
		Action: createDb,
	}
}

func createDb(ctx context.Context, cmd *cli.Command) error {
	db, err := openDb(cmd, true, false)
	if err != nil {
		return err
	}
	logrus.WithField("path", db.Name()).Info("database ready")
	return db.Close()
}
