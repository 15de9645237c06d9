package journal

import (
	"bufio"
	"crypto/sha256"
	"hash"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/navijation/njrdb/util"
)

var (
	ErrSignatureMismatch  = errors.New("signature does not match")
	ErrInvalidContentSize = errors.New("content size is invalid")
	ErrReadOnly           = errors.New("journal is opened read-only")
	ErrBadState           = errors.New("journal is in invalid state")
)

// JournalFile is an append-only log whose entries are chained with sha256 signatures.
// A write torn by a crash leaves an entry whose signature does not match, so it is
// discarded (and the file truncated) on the next open. The header is never rewritten
// after creation, so an append costs a single sync.
//
// Based partially on https://www.sqlite.org/atomiccommit.html.
type JournalFile struct {
	path     string
	header   journalFileHeader
	file     *os.File
	readOnly bool
	logger   logrus.FieldLogger

	// userspace tracking of the valid prefix of the file
	size uint64

	// running signature chain
	hash hash.Hash

	numberOfEntries uint64

	// a failed append could not be rolled back
	isBad bool
}

type OpenArgs struct {
	Path    string
	Create  bool
	StartAt uint64

	// ReadOnly never truncates a torn tail; entries past it are simply not visible.
	ReadOnly bool
	Logger   logrus.FieldLogger
}

func Open(args OpenArgs) (out JournalFile, err error) {
	flags := os.O_RDWR
	switch {
	case args.Create && args.ReadOnly:
		return out, errors.New("cannot create a read-only journal")
	case args.Create:
		flags |= os.O_CREATE | os.O_EXCL
	case args.ReadOnly:
		flags = os.O_RDONLY
	}

	file, err := os.OpenFile(args.Path, flags, 0o644)
	if err != nil {
		return out, errors.Wrapf(err, "open journal %q", args.Path)
	}

	defer func() {
		if err != nil {
			_ = file.Close()
			if args.Create {
				_ = os.Remove(args.Path)
			}
		}
	}()

	logger := args.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	out = JournalFile{
		path:     args.Path,
		file:     file,
		readOnly: args.ReadOnly,
		logger:   logger.WithField("journal", args.Path),
	}

	if args.Create {
		out.header = journalFileHeader{
			id:    util.NewRandomUUIDBytes(),
			start: args.StartAt,
		}
		w := out.fileWrapperAt(0)
		if _, err := out.header.WriteTo(&w); err != nil {
			return out, errors.Wrap(err, "write journal header")
		}
		if err := file.Sync(); err != nil {
			return out, err
		}
	}

	if err := out.recover(); err != nil {
		return out, err
	}
	return out, nil
}

func (me *JournalFile) Close() error {
	if me.file == nil {
		return nil
	}
	err := me.file.Close()
	me.file = nil
	return err
}

// Delete closes and removes the journal file.
func (me *JournalFile) Delete() error {
	if err := me.Close(); err != nil {
		return err
	}
	return os.Remove(me.path)
}

// AppendEntry writes one atomic entry. With sync the entry is durable when this returns.
func (me *JournalFile) AppendEntry(content []byte, sync bool) (out JournalEntry, err error) {
	if me.readOnly {
		return out, ErrReadOnly
	}
	if me.isBad {
		return out, ErrBadState
	}

	defer func() {
		if err != nil {
			me.logger.WithError(err).Warn("failed to append journal entry")
			// the running hash already absorbed the failed entry; rebuild it from disk
			if recoverErr := me.recover(); recoverErr != nil {
				me.logger.WithError(recoverErr).Error("journal recovery after failed append")
			}
		}
	}()

	entry := internalJournalEntry{content: content}
	entry.sign(me.hash)

	w := me.fileWrapperAt(me.size)
	if _, err := entry.WriteTo(&w); err != nil {
		return out, errors.Wrap(err, "write journal entry")
	}

	if sync {
		if err := me.file.Sync(); err != nil {
			return out, errors.Wrap(err, "sync journal")
		}
	}

	out = JournalEntry{
		EntryNumber: me.header.start + me.numberOfEntries,
		Offset:      me.size,
		ContentSize: uint64(len(content)),
		Content:     content,
		Signature:   entry.signature[:],
	}

	me.numberOfEntries++
	me.size = out.EndOffset()

	return out, nil
}

func (me *JournalFile) Sync() error {
	return me.file.Sync()
}

func (me *JournalFile) Rename(newPath string) error {
	if err := os.Rename(me.path, newPath); err != nil {
		return err
	}
	me.path = newPath
	me.logger = me.logger.WithField("journal", newPath)
	return nil
}

func (me *JournalFile) Path() string {
	return me.path
}

func (me *JournalFile) Size() uint64 {
	return me.size
}

func (me *JournalFile) NumEntries() uint64 {
	return me.numberOfEntries
}

func (me *JournalFile) fileWrapperAt(offset uint64) util.FileWrapper {
	return util.NewFileWrapperAt(me.file, offset)
}

func (me *JournalFile) fileBufferAt(offset uint64) *bufio.Reader {
	w := me.fileWrapperAt(offset)
	return bufio.NewReader(&w)
}

// recover walks the whole file verifying the signature chain, and cuts the file back to
// the last entry whose signature matches.
func (me *JournalFile) recover() (err error) {
	defer func() {
		me.isBad = err != nil
	}()

	headerReader := me.fileWrapperAt(0)
	if _, err := me.header.ReadFrom(&headerReader); err != nil {
		return errors.Wrap(err, "read journal header")
	}

	info, err := me.file.Stat()
	if err != nil {
		return err
	}
	fileSize := uint64(info.Size())

	cursor := me.NewCursor(true)
	validSize := uint64(headerSize)
	me.hash = cursor.HashState()
	me.numberOfEntries = 0

	var corrupted bool
	for {
		entry, exists, err := cursor.nextEntry(fileSize)
		if err != nil {
			if errors.Is(err, io.EOF) ||
				errors.Is(err, io.ErrUnexpectedEOF) ||
				errors.Is(err, ErrSignatureMismatch) ||
				errors.Is(err, ErrInvalidContentSize) {
				corrupted = true
				break
			}
			return errors.Wrap(err, "scan journal")
		}
		if !exists {
			break
		}
		validSize = entry.EndOffset()
		me.numberOfEntries++
	}

	// the chain hash has absorbed a bad entry if the scan stopped on a mismatch; rebuild it
	if corrupted {
		me.hash = sha256.New()
		me.header.writeHash(me.hash)
		rescan := me.NewCursor(false)
		for range me.numberOfEntries {
			entry, _, err := rescan.nextEntry(validSize)
			if err != nil {
				return errors.Wrap(err, "rescan journal")
			}
			hashEntryContent(me.hash, entry.Content)
		}
		me.logger.WithField("valid_size", validSize).Warn("discarding torn journal tail")
	}

	me.size = validSize
	if me.readOnly {
		return nil
	}

	if fileSize != validSize {
		if err := me.file.Truncate(int64(validSize)); err != nil {
			return errors.Wrap(err, "truncate journal")
		}
		if err := me.file.Sync(); err != nil {
			return err
		}
	}
	return nil
}
