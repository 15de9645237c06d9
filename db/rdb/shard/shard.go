// Package shard spreads keys over several rdb databases kept in numbered subdirectories.
package shard

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/navijation/njrdb/db/rdb"
)

const maxShards = 999

var shardNamePattern = regexp.MustCompile(`^\d{3}$`)

var ShardNameFn = func(i uint) string { return fmt.Sprintf("%03d", i) }

type Shard struct {
	dbs []*rdb.DB
}

func Open(opts *rdb.Options, name string, shardsNum uint) (*Shard, error) {
	return open(name, shardsNum, func(path string) (*rdb.DB, error) {
		return rdb.OpenDb(opts, path)
	})
}

func OpenForReadOnly(opts *rdb.Options, name string, shardsNum uint, errorIfLogFileExist bool) (*Shard, error) {
	return open(name, shardsNum, func(path string) (*rdb.DB, error) {
		return rdb.OpenDbForReadOnly(opts, path, errorIfLogFileExist)
	})
}

func open(name string, shardsNum uint, openDb func(path string) (*rdb.DB, error)) (*Shard, error) {
	if err := checkValid(name, shardsNum); err != nil {
		return nil, err
	}

	out := &Shard{}
	for i := uint(0); i < shardsNum; i++ {
		db, err := openDb(filepath.Join(name, ShardNameFn(i)))
		if err != nil {
			_ = out.Close()
			return nil, errors.Wrapf(err, "open shard %d", i)
		}
		out.dbs = append(out.dbs, db)
	}
	return out, nil
}

// Flush flushes every shard in parallel and reports every shard's failure.
func (me *Shard) Flush(opts *rdb.FlushOptions) error {
	return me.each(func(db *rdb.DB) error { return db.Flush(opts) })
}

// CompactRange compacts every shard in parallel and reports every shard's failure.
func (me *Shard) CompactRange(r rdb.Range) error {
	return me.each(func(db *rdb.DB) error { return db.CompactRange(r) })
}

func (me *Shard) DBs() []*rdb.DB {
	return append([]*rdb.DB(nil), me.dbs...)
}

// DB returns the shard that owns key.
func (me *Shard) DB(key []byte) *rdb.DB {
	return me.dbs[xxhash.Sum64(key)%uint64(len(me.dbs))]
}

func (me *Shard) KeyMayExist(opts *rdb.ReadOptions, key []byte) bool {
	return me.DB(key).KeyMayExist(opts, key)
}

func (me *Shard) Close() error {
	return me.each(func(db *rdb.DB) error { return db.Close() })
}

func (me *Shard) each(fn func(db *rdb.DB) error) error {
	errs := make([]error, len(me.dbs))

	var group errgroup.Group
	for i, db := range me.dbs {
		group.Go(func() error {
			errs[i] = fn(db)
			return nil
		})
	}
	_ = group.Wait()

	return multierr.Combine(errs...)
}

// GetShardNum returns the number of shards stored under name, or 0 if there are none or the
// shard directories are not numbered contiguously from 000.
func GetShardNum(name string) uint {
	shards, err := listShards(name)
	if err != nil {
		return 0
	}

	i := uint(0)
	for shards[ShardNameFn(i)] {
		i++
	}
	if uint(len(shards)) != i {
		return 0
	}
	return i
}

func listShards(name string) (map[string]bool, error) {
	entries, err := os.ReadDir(name)
	if err != nil {
		return nil, err
	}

	out := map[string]bool{}
	for _, entry := range entries {
		if entry.IsDir() && shardNamePattern.MatchString(entry.Name()) {
			out[entry.Name()] = true
		}
	}
	return out, nil
}

func checkValid(name string, shardsNum uint) error {
	if shardsNum == 0 || shardsNum > maxShards {
		return errors.Errorf("number of shards must be in [1, %d], got %d", maxShards, shardsNum)
	}

	shards, err := listShards(name)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return errors.Wrap(os.Mkdir(name, 0o755), "create shard directory")
	case err != nil:
		return err
	case len(shards) == 0:
		return nil
	}

	if uint(len(shards)) != shardsNum {
		return errors.Errorf("wrong number of shards provided (found %d)", len(shards))
	}
	for i := uint(0); i < shardsNum; i++ {
		if !shards[ShardNameFn(i)] {
			return errors.Errorf("shard %s is missing", ShardNameFn(i))
		}
	}
	return nil
}
