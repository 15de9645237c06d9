package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"

	"github.com/navijation/njrdb/db/rdb"
)

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:      "probe",
		Usage:     "report whether each key may exist without reading tables",
		ArgsUsage: "key [key ...]",
		Flags: append(optionFlags(), &cli.BoolFlag{
			Name:  "get",
			Usage: "confirm keys that may exist with a lookup",
		}),
		Action: probeDb,
	}
}

func probeDb(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() == 0 {
		return errors.New("usage: probe key [key ...]")
	}

	db, err := openDb(cmd, false, true)
	if err != nil {
		return err
	}
	defer db.Close()

	ro := rdb.NewDefaultReadOptions()
	for _, key := range cmd.Args().Slice() {
		if !db.KeyMayExist(ro, []byte(key)) {
			fmt.Fprintf(stdout, "%s: does not exist\n", key)
			continue
		}
		if !cmd.Bool("get") {
			fmt.Fprintf(stdout, "%s: may exist\n", key)
			continue
		}

		slice, err := db.Get(ro, []byte(key))
		if err != nil {
			return err
		}
		if slice.Exists() {
			fmt.Fprintf(stdout, "%s: %s\n", key, slice.Data())
		} else {
			fmt.Fprintf(stdout, "%s: false positive\n", key)
		}
		slice.Free()
	}
	return nil
}
