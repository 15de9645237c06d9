package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/navijation/njrdb/db/lsm"
	"github.com/navijation/njrdb/db/rdb"
)

func compactCommand() *cli.Command {
	return &cli.Command{
		Name:   "compact",
		Usage:  "compact rdb database",
		Flags:  optionFlags(),
		Action: compactDb,
	}
}

func compactDb(ctx context.Context, cmd *cli.Command) error {
	db, err := openDb(cmd, false, false)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.CompactRange(rdb.Range{}); err != nil {
		return err
	}
	fmt.Fprintln(stdout, db.GetProperty(lsm.PropertyStats))
	fmt.Fprintln(stdout, "done")
	return nil
}
