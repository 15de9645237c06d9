package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"

	"github.com/navijation/njrdb/storage/sstable"
	"github.com/navijation/njrdb/util"
)

func probeSSTable(_ context.Context, cmd *cli.Command) error {
	if err := configureLogging(cmd); err != nil {
		return err
	}
	if cmd.Args().Len() < 2 {
		return errors.New("usage: probe sstable_path key [key ...]")
	}

	path := cmd.Args().First()
	file, err := sstable.Open(sstable.OpenArgs{
		Path:           path,
		ReadOnly:       true,
		IndexChunkSize: util.Some(cmd.Uint("chunk-size")),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to open %q", path)
	}
	defer file.Close()

	for _, key := range cmd.Args().Slice()[1:] {
		if !file.MayContain([]byte(key)) {
			fmt.Printf("%q: does not exist\n", key)
			continue
		}
		entry, exists, err := file.LookupEntry([]byte(key))
		if err != nil {
			return err
		}
		switch {
		case !exists:
			fmt.Printf("%q: may exist (bloom false positive)\n", key)
		case entry.IsDeleted:
			fmt.Printf("%q: may exist (deleted)\n", key)
		default:
			fmt.Printf("%q: may exist -> %q\n", key, entry.Value)
		}
	}
	return nil
}
