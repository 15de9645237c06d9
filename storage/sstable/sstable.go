package sstable

import (
	"bufio"
	"bytes"
	"iter"
	"os"
	"slices"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/navijation/njrdb/storage/compression"
	"github.com/navijation/njrdb/storage/keyvaluepair"
	"github.com/navijation/njrdb/util"
)

const (
	CurrentVersion uint64 = 1

	defaultChunkSize uint64 = 4096
)

var (
	ErrOutOfOrder = errors.New("entries must be appended in strictly ascending key order")
	ErrReadOnly   = errors.New("sstable is opened read-only")
)

// SSTable is a file of key-value records sorted strictly ascending by key. Only the header
// and a sparse index are held in memory; a bloom filter over every key lets point lookups
// skip the file entirely.
type SSTable struct {
	path     string
	readOnly bool
	logger   logrus.FieldLogger

	header Header

	file  *os.File
	index SparseMemIndex
	bloom bloomFilter

	firstKey     []byte
	lastLocation EntryLocation
	lastKey      []byte
}

type OpenArgs struct {
	Path     string
	Create   bool
	ReadOnly bool

	// only used when creating a table
	Version     uint64
	Sequence    uint64
	Compression compression.Type

	// bytes between sparse index entries
	IndexChunkSize util.Optional[uint64]
	// zero or negative disables the bloom filter
	BloomBitsPerKey util.Optional[int]

	Logger logrus.FieldLogger
}

func Open(args OpenArgs) (out SSTable, err error) {
	flags := os.O_RDWR
	switch {
	case args.Create && args.ReadOnly:
		return out, errors.New("cannot create a read-only sstable")
	case args.Create:
		flags |= os.O_CREATE | os.O_EXCL
	case args.ReadOnly:
		flags = os.O_RDONLY
	}
	if args.Create && !args.Compression.Valid() {
		return out, errors.Errorf("unsupported compression %s", args.Compression)
	}

	file, err := os.OpenFile(args.Path, flags, 0o644)
	if err != nil {
		return out, errors.Wrapf(err, "open sstable %q", args.Path)
	}

	logger := args.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	out = SSTable{
		path:     args.Path,
		readOnly: args.ReadOnly,
		logger:   logger.WithField("sstable", args.Path),

		file: file,
		index: SparseMemIndex{
			ChunkSize: args.IndexChunkSize.Or(defaultChunkSize),
		},
		bloom: newBloomFilter(args.BloomBitsPerKey.Or(defaultBloomBitsPerKey)),
	}

	defer func() {
		if err != nil {
			_ = file.Close()
			if args.Create {
				_ = os.Remove(args.Path)
			}
		}
	}()

	if args.Create {
		out.header.ID = util.NewRandomUUIDBytes()
		out.header.Version = args.Version
		out.header.Sequence = args.Sequence
		out.header.Compression = args.Compression
		out.header.FileSize = out.header.SizeOf()
		w := out.fileWrapperAt(0)
		if _, err := out.header.WriteTo(&w); err != nil {
			return out, errors.Wrap(err, "write sstable header")
		}
	} else {
		if _, err := out.header.ReadFrom(out.readBufferAt(0)); err != nil {
			return out, errors.Wrap(err, "read sstable header")
		}
		if !out.header.Compression.Valid() {
			return out, errors.Errorf("sstable %q has unknown compression %d", args.Path, out.header.Compression)
		}
	}

	if !args.ReadOnly {
		// not a big issue if this fails; structure will pretend as if file size is smaller even
		// if file is larger
		_ = out.truncateToHeader()
	}

	if err := out.Reindex(); err != nil {
		return out, err
	}

	return out, nil
}

func (me *SSTable) Close() error {
	if me.file == nil {
		return nil
	}
	err := me.file.Close()
	me.file = nil
	return err
}

// Delete closes and removes the table file.
func (me *SSTable) Delete() error {
	if err := me.Close(); err != nil {
		return err
	}
	return os.Remove(me.path)
}

func (me *SSTable) Rename(newPath string) error {
	if err := os.Rename(me.path, newPath); err != nil {
		return err
	}
	me.path = newPath
	me.logger = me.logger.WithField("sstable", newPath)
	return nil
}

func (me *SSTable) Path() string {
	return me.path
}

func (me *SSTable) Header() Header {
	return me.header
}

func (me *SSTable) NumEntries() uint64 {
	return me.header.NumEntries
}

func (me *SSTable) Size() uint64 {
	return me.header.FileSize
}

// FirstKey and LastKey are only meaningful when the table has entries.
func (me *SSTable) FirstKey() []byte {
	return me.firstKey
}

func (me *SSTable) LastKey() []byte {
	return me.lastKey
}

// Index returns a deep copy of the sparse index.
func (me *SSTable) Index() SparseMemIndex {
	out := SparseMemIndex{ChunkSize: me.index.ChunkSize}
	if me.index.IndexedEntries == nil {
		return out
	}
	out.IndexedEntries = make([]SparseMemIndexEntry, len(me.index.IndexedEntries))
	for i, entry := range me.index.IndexedEntries {
		out.IndexedEntries[i] = SparseMemIndexEntry{
			Key:      slices.Clone(entry.Key),
			Location: entry.Location,
		}
	}
	return out
}

// InRange reports whether key lies within [FirstKey, LastKey].
func (me *SSTable) InRange(key []byte) bool {
	return me.header.NumEntries > 0 &&
		bytes.Compare(key, me.firstKey) >= 0 &&
		bytes.Compare(key, me.lastKey) <= 0
}

// Overlaps reports whether any key of the table may lie in [start, limit). Nil bounds are
// unbounded.
func (me *SSTable) Overlaps(start, limit []byte) bool {
	if me.header.NumEntries == 0 {
		return false
	}
	if start != nil && bytes.Compare(me.lastKey, start) < 0 {
		return false
	}
	if limit != nil && bytes.Compare(me.firstKey, limit) >= 0 {
		return false
	}
	return true
}

// MayContain never returns false for a key stored in the table, tombstones included.
func (me *SSTable) MayContain(key []byte) bool {
	return me.InRange(key) && me.bloom.mayContain(key)
}

func (me *SSTable) LookupEntry(key []byte) (out SSTableEntry, exists bool, _ error) {
	if !me.MayContain(key) {
		return out, false, nil
	}

	location := me.index.LookupSearchLocation(key)

	for entry, err := range me.EntriesAt(location) {
		if err != nil {
			return out, false, err
		}
		switch bytes.Compare(key, entry.Key) {
		case -1:
			// key < entry.Key => no match found
			return out, false, nil
		case 0:
			// key == entry.Key => match found
			return entry, true, nil
		}
	}

	return out, false, nil
}

// SeekGE returns the first entry whose key is >= key.
func (me *SSTable) SeekGE(key []byte) (out SSTableEntry, exists bool, _ error) {
	return me.seekForward(key, false)
}

// SeekGT returns the first entry whose key is > key.
func (me *SSTable) SeekGT(key []byte) (out SSTableEntry, exists bool, _ error) {
	return me.seekForward(key, true)
}

func (me *SSTable) seekForward(key []byte, strict bool) (out SSTableEntry, exists bool, _ error) {
	if me.header.NumEntries == 0 || bytes.Compare(key, me.lastKey) > 0 {
		return out, false, nil
	}
	if cmp := bytes.Compare(key, me.firstKey); cmp < 0 || (cmp == 0 && !strict) {
		return me.First()
	}

	for entry, err := range me.EntriesAt(me.index.LookupSearchLocation(key)) {
		if err != nil {
			return out, false, err
		}
		cmp := bytes.Compare(entry.Key, key)
		if cmp > 0 || (cmp == 0 && !strict) {
			return entry, true, nil
		}
	}
	return out, false, nil
}

// SeekLT returns the last entry whose key is < key.
func (me *SSTable) SeekLT(key []byte) (out SSTableEntry, exists bool, _ error) {
	if me.header.NumEntries == 0 || bytes.Compare(key, me.firstKey) <= 0 {
		return out, false, nil
	}
	if bytes.Compare(key, me.lastKey) > 0 {
		return me.Last()
	}

	for entry, err := range me.EntriesAt(me.index.LookupBeforeLocation(key)) {
		if err != nil {
			return out, false, err
		}
		if bytes.Compare(entry.Key, key) >= 0 {
			break
		}
		out, exists = entry, true
	}
	return out, exists, nil
}

func (me *SSTable) First() (out SSTableEntry, exists bool, err error) {
	out, err, exists = util.Seq2At(me.Entries(), 0)
	return out, exists && err == nil, err
}

func (me *SSTable) Last() (out SSTableEntry, exists bool, err error) {
	if me.header.NumEntries == 0 {
		return out, false, nil
	}
	out, err, exists = util.Seq2At(me.EntriesAt(me.lastLocation), 0)
	return out, exists && err == nil, err
}

func (me *SSTable) Entries() iter.Seq2[SSTableEntry, error] {
	return me.EntriesAt(EntryLocation{
		EntryNumber: 0,
	})
}

func (me *SSTable) EntriesAt(location EntryLocation) iter.Seq2[SSTableEntry, error] {
	if location.EntryNumber == 0 {
		location.Offset = me.header.SizeOf()
	}

	return func(yield func(SSTableEntry, error) bool) {
		buffer := me.readBufferAt(location.Offset)

		for location := location; location.Offset < me.header.FileSize; {
			entry, n, err := readEntry(buffer, location, me.header.Compression)

			if !yield(entry, err) {
				return
			}

			if err != nil {
				return
			}

			location.Offset += uint64(n)
			location.EntryNumber++
		}
	}
}

func (me *SSTable) AppendEntries(keyValuePairs iter.Seq[keyvaluepair.KeyValuePair]) (err error) {
	if me.readOnly {
		return ErrReadOnly
	}

	fileWrapper := util.NewFileWrapperAt(me.file, me.header.FileSize)
	buffer := bufio.NewWriter(&fileWrapper)

	defer func() {
		if err != nil {
			_ = me.truncateToHeader()
		}
	}()

	var (
		offset       int64
		entriesAdded uint64
		hasLastKey   = me.header.NumEntries > 0
		lastKey      = me.lastKey
	)
	for keyValuePair := range keyValuePairs {
		if hasLastKey && bytes.Compare(keyValuePair.Key, lastKey) <= 0 {
			me.logger.WithFields(logrus.Fields{
				"key":      keyValuePair.Key,
				"last_key": lastKey,
			}).Error("tried to append entry out of order")
			return errors.WithStack(ErrOutOfOrder)
		}

		n, err := writeEntry(buffer, keyValuePair, me.header.Compression)
		if err != nil {
			return errors.Wrap(err, "write sstable entry")
		}
		offset += n
		entriesAdded++
		lastKey = keyValuePair.Key
		hasLastKey = true
	}

	if err := buffer.Flush(); err != nil {
		return errors.Wrap(err, "write sstable entries")
	}

	// do a double sync on file contents and then header, to ensure disk doesn't write header first
	// and then crash before updating entries
	if err := me.file.Sync(); err != nil {
		return err
	}

	newSize := me.header.FileSize + uint64(offset)
	newEntries := me.header.NumEntries + entriesAdded

	if err := me.writeNewSize(newSize, newEntries); err != nil {
		return err
	}

	return me.Reindex()
}

// Reindex rebuilds the sparse index, the bloom filter and the key bounds from the file.
func (me *SSTable) Reindex() error {
	var (
		newEntries     []SparseMemIndexEntry
		nextChunkStart = me.index.ChunkSize
		numEntries     uint64
		firstKey       []byte
		lastKey        []byte
		lastLocation   EntryLocation
		bloom          = me.bloom.builder()
	)
	for entry, err := range me.Entries() {
		if err != nil {
			return err
		}
		if numEntries == 0 {
			firstKey = entry.Key
		}
		numEntries++

		if entry.Location.Offset >= nextChunkStart {
			newEntries = append(newEntries, SparseMemIndexEntry{
				Location: entry.Location,
				Key:      entry.Key,
			})
			nextChunkStart = entry.Location.Offset + me.index.ChunkSize
		}

		bloom.add(entry.Key)
		lastKey = entry.Key
		lastLocation = entry.Location
	}

	if numEntries != me.header.NumEntries {
		me.logger.WithFields(logrus.Fields{
			"header_entries": me.header.NumEntries,
			"found_entries":  numEntries,
		}).Warn("sstable entry count does not match header")
	}

	me.firstKey = firstKey
	me.lastKey = lastKey
	me.lastLocation = lastLocation
	me.bloom = bloom.build()
	me.index = SparseMemIndex{
		ChunkSize:      me.index.ChunkSize,
		IndexedEntries: newEntries,
	}

	return nil
}

func (me *SSTable) readBufferAt(offset uint64) *bufio.Reader {
	w := me.fileWrapperAt(offset)
	return bufio.NewReader(&w)
}

func (me *SSTable) fileWrapperAt(offset uint64) util.FileWrapper {
	return util.NewFileWrapperAt(me.file, offset)
}

func (me *SSTable) truncateToHeader() error {
	return me.file.Truncate(int64(me.header.FileSize))
}

func (me *SSTable) writeNewSize(size, numEntries uint64) error {
	fileWrapper := me.fileWrapperAt(0)
	newHeader := me.header.WithNewSize(size, numEntries)

	if _, err := newHeader.WriteTo(&fileWrapper); err != nil {
		return err
	}

	if err := me.file.Sync(); err != nil {
		return err
	}

	me.header = newHeader
	return nil
}
