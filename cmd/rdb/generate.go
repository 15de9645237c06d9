package main

import (
	"context"
	"crypto/md5"
	"fmt"
	"hash"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/navijation/njrdb/db/rdb"
)

func generateCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "generates random keys and values",
		Flags: append(optionFlags(),
			&cli.IntFlag{
				Name:    "valuesize",
				Aliases: []string{"vs"},
				Value:   128,
				Usage:   "value size in bytes",
			},
			&cli.IntFlag{
				Name:    "batchsize",
				Aliases: []string{"bs"},
				Value:   100000,
				Usage:   "batch size",
			},
			&cli.IntFlag{
				Name:  "pairs",
				Value: 1 * MB,
				Usage: "key/value pairs to generate",
			},
			&cli.BoolFlag{
				Name:  "wal",
				Usage: "write through the write-ahead log",
			},
			&cli.BoolFlag{
				Name:  "stats",
				Usage: "print stats every second",
			},
		),
		Action: randomData,
	}
}

var hashPool = sync.Pool{New: func() any { return md5.New() }}

// hashOf returns the md5 digest of s; keys are 16 bytes and uniformly spread.
func hashOf(s string) []byte {
	h := hashPool.Get().(hash.Hash)
	defer hashPool.Put(h)

	h.Reset()
	h.Write([]byte(s))
	return h.Sum(make([]byte, 0, md5.Size))
}

func randomData(ctx context.Context, cmd *cli.Command) error {
	db, err := openDb(cmd, true, false)
	if err != nil {
		return err
	}
	defer db.Close()

	value := make([]byte, cmd.Int("valuesize"))
	pairs := int(cmd.Int("pairs"))
	batchSize := max(int(cmd.Int("batchsize")), 1)

	wo := rdb.NewDefaultWriteOptions()
	wo.DisableWAL(!cmd.Bool("wal"))

	if cmd.Bool("stats") {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					printStats(db)
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	logrus.WithFields(logrus.Fields{
		"pairs":      pairs,
		"value_size": humanize.IBytes(uint64(len(value))),
	}).Info("starting...")
	start := time.Now()

	batch := rdb.NewWriteBatch()
	for i := range pairs {
		batch.Put(hashOf(fmt.Sprintf("%016d", i)), value)
		if batch.Count() >= batchSize {
			if err := db.Write(wo, batch); err != nil {
				return err
			}
			batch.Clear()
		}
	}
	if err := db.Write(wo, batch); err != nil {
		return err
	}
	if err := db.Flush(rdb.NewDefaultFlushOptions()); err != nil {
		return err
	}

	logrus.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("generated")
	printStats(db)
	return nil
}
