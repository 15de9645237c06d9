package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:  "sstable_tools",
		Usage: "visualize and manipulate SSTable files",
		Commands: []*cli.Command{
			{
				Name:      "visualize",
				Usage:     "print the header, sparse index and entries of a table",
				ArgsUsage: "sstable_path",
				Action:    visualizeSSTableFile,
				Flags:     []cli.Flag{chunkSizeFlag(), logLevelFlag()},
			},
			{
				Name:      "construct",
				Usage:     "append \"key: value\" lines from stdin; \"key:\" appends a tombstone",
				ArgsUsage: "sstable_path",
				Action:    constructSSTableFile,
				Flags: []cli.Flag{
					chunkSizeFlag(),
					logLevelFlag(),
					&cli.StringFlag{
						Name:  "compression",
						Value: "none",
						Usage: "value codec for new tables: none, snappy or lz4",
					},
				},
			},
			{
				Name:      "merge",
				Usage:     "merge source tables, newest first, into a destination table",
				ArgsUsage: "dest_path src_path1 [src_path_2 ...]",
				Action:    mergeSSTables,
				Flags: []cli.Flag{
					chunkSizeFlag(),
					logLevelFlag(),
					&cli.BoolFlag{
						Name:  "drop-tombstones",
						Usage: "omit deleted entries from the destination",
					},
				},
			},
			{
				Name:      "probe",
				Usage:     "report whether each key may exist in a table and look it up",
				ArgsUsage: "sstable_path key [key ...]",
				Action:    probeSSTable,
				Flags:     []cli.Flag{chunkSizeFlag(), logLevelFlag()},
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func chunkSizeFlag() cli.Flag {
	return &cli.UintFlag{
		Name:        "chunk-size",
		DefaultText: "64",
		Value:       64,
		Usage:       "size of indexed chunks",
	}
}

func logLevelFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "log-level",
		Value: "warn",
		Usage: "logrus level: debug, info, warn or error",
	}
}

func configureLogging(cmd *cli.Command) error {
	level, err := logrus.ParseLevel(cmd.String("log-level"))
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
	return nil
}
