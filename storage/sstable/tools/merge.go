package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"

	"github.com/navijation/njrdb/storage/sstable"
	"github.com/navijation/njrdb/util"
)

func mergeSSTables(_ context.Context, cmd *cli.Command) error {
	if err := configureLogging(cmd); err != nil {
		return err
	}
	if cmd.Args().Len() < 2 {
		return errors.New("usage: merge dest_path src_path1 [src_path_2 ...]")
	}

	destPath := cmd.Args().Get(0)

	create, err := isMissing(destPath)
	if err != nil {
		return err
	}

	var (
		srcFiles []*sstable.SSTable
		sequence uint64
	)
	for i := 1; i < cmd.Args().Len(); i++ {
		table, err := sstable.Open(sstable.OpenArgs{
			Path:     cmd.Args().Get(i),
			ReadOnly: true,
		})
		if err != nil {
			return err
		}
		defer table.Close()
		srcFiles = append(srcFiles, &table)
		sequence = max(sequence, table.Header().Sequence)
	}

	file, err := sstable.Open(sstable.OpenArgs{
		Path:           destPath,
		Create:         create,
		Version:        sstable.CurrentVersion,
		Sequence:       sequence,
		IndexChunkSize: util.Some(cmd.Uint("chunk-size")),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", destPath)
	}

	defer file.Close()

	if err := file.MergeTables(sstable.MergeTablesArgs{
		Srcs:           srcFiles,
		DropTombstones: cmd.Bool("drop-tombstones"),
	}); err != nil {
		return err
	}

	return visualizeSSTableFileHelper(&file)
}
