package lsm

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/navijation/njrdb/storage/compression"
	"github.com/navijation/njrdb/storage/journal"
	"github.com/navijation/njrdb/storage/sstable"
	"github.com/navijation/njrdb/util"
)

const (
	defaultWriteBufferSize      uint64 = 4 << 20
	defaultMaxWriteBufferNumber        = 2
	defaultL0CompactionTrigger         = 4

	tmpDirName = "tmp"
)

type LSMDB struct {
	// immutable config
	path                   string
	readOnly               bool
	indexChunkSize         util.Optional[uint64]
	bloomBitsPerKey        util.Optional[int]
	compression            compression.Type
	writeBufferSize        uint64
	l0CompactionTrigger    int
	disableAutoCompactions bool
	logger                 logrus.FieldLogger
	stats                  *dbStats

	// state tracking; newest first
	writeAheadLogs  []*journal.JournalFile
	sstables        []*tableHandle
	inMemoryIndexes []*InMemoryIndex

	nextSSTableNumber       uint64
	nextWriteAheadLogNumber uint64
	pendingFlush            chan struct{}
	stateErr                error
	isRunning               atomic.Bool
	isClosed                atomic.Bool

	// concurrency control
	done           chan struct{}
	asyncEntryChan chan CreateSSTableEntry
	wg             sync.WaitGroup
	lock           sync.RWMutex
	flushMu        sync.Mutex
	compactMu      sync.Mutex
}

type OpenArgs struct {
	Path string
	// create the database if it does not exist
	Create        bool
	ErrorIfExists bool
	// no writes, flushes or compactions; nothing on disk is modified
	ReadOnly bool

	IndexChunkSize  util.Optional[uint64]
	BloomBitsPerKey util.Optional[int]
	// codec for newly written tables
	Compression compression.Type

	// memtable size that triggers a flush
	WriteBufferSize util.Optional[uint64]
	// memtables, active included, that may exist before writers stall on flushes
	MaxWriteBufferNumber util.Optional[int]
	// table count that triggers an automatic compaction
	Level0FileNumCompactionTrigger util.Optional[int]
	DisableAutoCompactions         bool

	Logger logrus.FieldLogger
}

func Open(args OpenArgs) (out *LSMDB, err error) {
	var (
		writeAheadLogs []*journal.JournalFile
		sstables       []*tableHandle
		maxSSTableNum  uint64
		maxJournalNum  uint64
	)

	logger := args.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("path", args.Path)

	exists, err := util.FileExists(args.Path)
	if err != nil {
		return nil, err
	}
	switch {
	case !exists && (!args.Create || args.ReadOnly):
		return nil, errors.Wrapf(ErrNotFound, "open %q", args.Path)
	case exists && args.ErrorIfExists:
		return nil, errors.Wrapf(ErrExists, "open %q", args.Path)
	}
	if !args.Compression.Valid() {
		return nil, errors.Errorf("unsupported compression %s", args.Compression)
	}

	defer func() {
		if err != nil {
			for _, handle := range sstables {
				handle.unref()
			}
			for _, journal := range writeAheadLogs {
				_ = journal.Close()
			}
			if !exists {
				_ = os.RemoveAll(args.Path)
			}
		}
	}()

	if !exists {
		if err := os.Mkdir(args.Path, 0o755); err != nil {
			return nil, errors.Wrap(err, "create database directory")
		}
		logger.Info("created database")
	}

	if !args.ReadOnly {
		// cleanup existing tmp directory, then create a clean one
		_ = os.RemoveAll(filepath.Join(args.Path, tmpDirName))
		if err := os.Mkdir(filepath.Join(args.Path, tmpDirName), 0o755); err != nil {
			return nil, errors.Wrap(err, "create tmp directory")
		}
	}

	directoryEntries, err := os.ReadDir(args.Path)
	if err != nil {
		return nil, err
	}

	for _, dirent := range directoryEntries {
		baseName := dirent.Name()
		filename := filepath.Join(args.Path, baseName)
		switch {
		case baseName == tmpDirName:
			continue

		case dirent.IsDir():
			logger.WithField("file", baseName).Warn("unexpected DB directory")

		case strings.HasSuffix(baseName, sstableExtension):
			sstableNum, ok := getFileNumber(baseName, sstablePrefix, sstableExtension)
			if !ok {
				logger.WithField("file", baseName).Warn("unexpected SSTable file")
				continue
			}
			maxSSTableNum = max(maxSSTableNum, sstableNum)

			sstableFile, err := sstable.Open(sstable.OpenArgs{
				Path:            filename,
				ReadOnly:        args.ReadOnly,
				IndexChunkSize:  args.IndexChunkSize,
				BloomBitsPerKey: args.BloomBitsPerKey,
				Logger:          logger,
			})
			if err != nil {
				return nil, err
			}
			sstables = append(sstables, newTableHandle(&sstableFile, sstableNum))

		case strings.HasSuffix(baseName, writeAheadLogExtension):
			journalNum, ok := getFileNumber(baseName, writeAheadLogPrefix, writeAheadLogExtension)
			if !ok {
				logger.WithField("file", baseName).Warn("unexpected journal file")
				continue
			}
			maxJournalNum = max(maxJournalNum, journalNum)

			journalFile, err := journal.Open(journal.OpenArgs{
				Path:     filename,
				ReadOnly: args.ReadOnly,
				Logger:   logger,
			})
			if err != nil {
				return nil, err
			}
			writeAheadLogs = append(writeAheadLogs, &journalFile)

		default:
			logger.WithField("file", baseName).Warn("unexpected DB file")
		}
	}

	slices.SortFunc(sstables, compareTablesNewestFirst)

	slices.SortFunc(writeAheadLogs, func(a, b *journal.JournalFile) int {
		number1, _ := getFileNumber(a.Path(), writeAheadLogPrefix, writeAheadLogExtension)
		number2, _ := getFileNumber(b.Path(), writeAheadLogPrefix, writeAheadLogExtension)
		// sort latest first
		return compareDesc(number1, number2)
	})

	maxWriteBufferNumber := max(args.MaxWriteBufferNumber.Or(defaultMaxWriteBufferNumber), 1)

	out = &LSMDB{
		path:                   args.Path,
		readOnly:               args.ReadOnly,
		indexChunkSize:         args.IndexChunkSize,
		bloomBitsPerKey:        args.BloomBitsPerKey,
		compression:            args.Compression,
		writeBufferSize:        args.WriteBufferSize.Or(defaultWriteBufferSize),
		l0CompactionTrigger:    args.Level0FileNumCompactionTrigger.Or(defaultL0CompactionTrigger),
		disableAutoCompactions: args.DisableAutoCompactions,
		logger:                 logger,
		stats:                  newDBStats(),

		writeAheadLogs: writeAheadLogs,
		sstables:       sstables,
		// single empty in-memory index
		inMemoryIndexes:         []*InMemoryIndex{NewInMemoryIndex()},
		nextSSTableNumber:       maxSSTableNum + 1,
		nextWriteAheadLogNumber: maxJournalNum + 1,

		// block once every memtable but the active one is waiting on a flush
		asyncEntryChan: make(chan CreateSSTableEntry, maxWriteBufferNumber-1),
		done:           make(chan struct{}),
	}
	out.stats.liveTables.Set(float64(len(sstables)))

	if len(writeAheadLogs) == 0 && !args.ReadOnly {
		ctx := &dbCtx{}
		ctx.Lock(&out.lock)
		err := out.createNewWriteaheadLog(ctx, out.nextWriteAheadLogNumber)
		out.nextWriteAheadLogNumber++
		ctx.Unlock(&out.lock)
		if err != nil {
			return nil, err
		}
		writeAheadLogs = out.writeAheadLogs
	}

	return out, nil
}

// Start replays the write-ahead logs and, unless read-only, starts the background worker that
// writes flushed memtables to tables.
func (me *LSMDB) Start() error {
	if me.isClosed.Load() {
		return ErrClosed
	}
	if alreadyRunning := me.isRunning.Swap(true); alreadyRunning {
		return nil
	}
	if !me.readOnly {
		me.runAsyncWorker()
	}
	if err := me.processWriteAheadLogs(); err != nil {
		me.logger.WithError(err).Error("failed to replay write-ahead logs")
		return err
	}
	return nil
}

// Close stops the background worker and closes every file. Memtables that were not yet
// written to tables are recovered from the write-ahead logs on the next open.
func (me *LSMDB) Close() error {
	if alreadyClosed := me.isClosed.Swap(true); alreadyClosed {
		return nil
	}

	close(me.done)
	me.wg.Wait()
	me.isRunning.Store(false)

	ctx := &dbCtx{}
	ctx.Lock(&me.lock)
	defer ctx.Unlock(&me.lock)

	var err error
	for _, log := range me.writeAheadLogs {
		if closeErr := log.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	me.writeAheadLogs = nil

	for _, handle := range me.sstables {
		handle.unref()
	}
	me.sstables = nil
	me.stats.liveTables.Set(0)

	return err
}

func (me *LSMDB) Path() string {
	return me.path
}

func (me *LSMDB) IsReadOnly() bool {
	return me.readOnly
}

// HasUnflushedLogEntries reports whether replayed write-ahead logs left data that exists only
// in memtables.
func (me *LSMDB) HasUnflushedLogEntries() bool {
	me.lock.RLock()
	defer me.lock.RUnlock()

	for _, memtable := range me.inMemoryIndexes {
		if memtable.Len() > 0 {
			return true
		}
	}
	return false
}

func (me *LSMDB) processWriteAheadLogs() error {
	ctx := &dbCtx{}

	ctx.RLock(&me.lock)
	logs := slices.Clone(me.writeAheadLogs)
	ctx.RUnlock(&me.lock)

	for i := range logs {
		// process oldest logs first
		log := logs[len(logs)-i-1]

		// read the whole log up front; the worker deletes logs once their tables commit
		var entries []any
		cursor := log.NewCursor(false)
		for {
			entry, hasNext, err := cursor.NextEntry()
			if err != nil {
				return errors.Wrapf(err, "read write-ahead log %q", log.Path())
			}
			if !hasNext {
				break
			}
			parsed, err := parseJournalEntry(&entry)
			if err != nil {
				return errors.Wrapf(err, "parse write-ahead log %q", log.Path())
			}
			entries = append(entries, parsed)
		}

		for _, parsed := range entries {
			switch parsed := parsed.(type) {
			case CUDKeyValueEntry:
				me.processCUDKeyValueEntry(ctx, parsed)
			case BatchEntry:
				me.processBatchEntry(ctx, parsed)
			case CreateSSTableEntry:
				if err := me.replayCreateSSTableEntry(ctx, parsed); err != nil {
					return err
				}
			case MergeTablesEntry:
				if err := me.replayMergeTablesEntry(ctx, parsed); err != nil {
					return err
				}
			}
		}
		me.logger.WithFields(logrus.Fields{
			"journal": log.Path(),
			"entries": len(entries),
		}).Debug("replayed write-ahead log")
	}
	return nil
}
