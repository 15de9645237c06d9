package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"

	"github.com/navijation/njrdb/storage/compression"
	"github.com/navijation/njrdb/storage/keyvaluepair"
	"github.com/navijation/njrdb/storage/sstable"
	"github.com/navijation/njrdb/util"
)

func constructSSTableFile(ctx context.Context, cmd *cli.Command) error {
	if err := configureLogging(cmd); err != nil {
		return err
	}
	if cmd.Args().Len() != 1 {
		return errors.New("usage: construct sstable_path")
	}

	path := cmd.Args().First()

	create, err := isMissing(path)
	if err != nil {
		return err
	}

	codec, err := compression.ParseType(cmd.String("compression"))
	if err != nil {
		return err
	}

	file, err := sstable.Open(sstable.OpenArgs{
		Path:           path,
		Create:         create,
		Version:        sstable.CurrentVersion,
		Compression:    codec,
		IndexChunkSize: util.Some(cmd.Uint("chunk-size")),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", path)
	}

	defer file.Close()

	var buildEntryErr error
	reader := bufio.NewReader(os.Stdin)
	err = file.AppendEntries(func(yield func(keyvaluepair.KeyValuePair) bool) {
		for {
			line, err := reader.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				buildEntryErr = err
				return
			}
			if line == "" && err != nil {
				return
			}

			fragments := strings.SplitN(strings.TrimRight(line, "\r\n"), ":", 2)
			if len(fragments) != 2 {
				fmt.Fprintf(os.Stderr, "Entry must be in \"key: value\" format, or \"key:\" format\n")
				continue
			}

			key, value := strings.TrimSpace(fragments[0]), strings.TrimSpace(fragments[1])
			kvp := keyvaluepair.KeyValuePair{Key: []byte(key), Value: []byte(value)}
			if value == "" {
				kvp = keyvaluepair.KeyValuePair{Key: []byte(key), IsDeleted: true}
			}

			if !yield(kvp) {
				return
			}
		}
	})
	if err != nil {
		return err
	}
	return buildEntryErr
}

func isMissing(path string) (bool, error) {
	exists, err := util.FileExists(path)
	return !exists, err
}
