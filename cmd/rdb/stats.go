package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/navijation/njrdb/db/lsm"
	"github.com/navijation/njrdb/db/rdb"
)

var summaryProperties = []string{
	lsm.PropertyNumFiles,
	lsm.PropertyTotalSSTFilesSize,
	lsm.PropertyEstimateNumKeys,
	lsm.PropertyNumImmutableMemTable,
	lsm.PropertyNumEntriesActiveMemTable,
	lsm.PropertyCurSizeActiveMemTable,
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "print rdb stats",
		Flags:  optionFlags(),
		Action: statsDb,
	}
}

func statsDb(ctx context.Context, cmd *cli.Command) error {
	db, err := openDb(cmd, false, true)
	if err != nil {
		return err
	}
	defer db.Close()

	printStats(db)
	return nil
}

func printStats(db *rdb.DB) {
	for _, name := range summaryProperties {
		fmt.Fprintf(stdout, "%s: %s\n", name, db.GetProperty(name))
	}
	fmt.Fprint(stdout, db.GetProperty(lsm.PropertyStats))
}
