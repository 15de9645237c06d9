package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"

	"github.com/navijation/njrdb/storage/sstable"
	"github.com/navijation/njrdb/util"
)

func visualizeSSTableFile(ctx context.Context, cmd *cli.Command) error {
	if err := configureLogging(cmd); err != nil {
		return err
	}
	if cmd.Args().Len() != 1 {
		return errors.New("usage: visualize sstable_path")
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

	return visualizeSSTableFileHelper(&file)
}

func visualizeSSTableFileHelper(file *sstable.SSTable) error {
	header := file.Header()
	fmt.Printf(
		"Header\n"+
			"  ID: %s\n"+
			"  Version: %d\n"+
			"  Sequence: %d\n"+
			"  Compression: %s\n"+
			"  Size: %s\n"+
			"  Entries: %d\n\n",
		util.UUIDFromBytes(header.ID).String(),
		header.Version,
		header.Sequence,
		header.Compression,
		humanize.IBytes(header.FileSize),
		header.NumEntries,
	)

	index := file.Index()
	fmt.Printf(
		"Index\n"+
			"  Chunk Size: %d\n"+
			"  Index Entries:\n",
		index.ChunkSize,
	)
	for _, entry := range index.IndexedEntries {
		fmt.Printf("   - %q -> #%d @%d\n", entry.Key, entry.Location.EntryNumber, entry.Location.Offset)
	}

	nextIndex := 0

	fmt.Printf("\nEntries:\n")
	for entry, err := range file.Entries() {
		if err != nil {
			return errors.Wrap(err, "failed to read SSTable entry")
		}
		entryNumber := entry.Location.EntryNumber

		if nextIndex < len(index.IndexedEntries) &&
			index.IndexedEntries[nextIndex].Location.EntryNumber == entryNumber {
			fmt.Printf("-----\n")
			nextIndex++
		}
		if entry.IsDeleted {
			fmt.Printf("  - #%d @%d: %q (%d bytes) -> <deleted>\n",
				entryNumber, entry.Location.Offset, entry.Key, len(entry.Key),
			)
			continue
		}
		fmt.Printf("  - #%d @%d: %q (%d bytes) -> %q (%d bytes)\n",
			entryNumber, entry.Location.Offset, entry.Key, len(entry.Key), entry.Value, len(entry.Value),
		)
	}

	return nil
}
