package lsm

import (
	"io"

	"github.com/pkg/errors"

	"github.com/navijation/njrdb/storage/journal"
	"github.com/navijation/njrdb/storage/keyvaluepair"
	"github.com/navijation/njrdb/util"
)

type journalEntryType byte

// persisted in write-ahead logs; never renumber
const (
	journalEntryTypeCUD journalEntryType = iota
	journalEntryTypeCreateTable
	journalEntryTypeMergeTables
	journalEntryTypeBatch
)

// maxBatchCount bounds the allocation a corrupt batch header can trigger.
const maxBatchCount = 1 << 24

func parseJournalEntry(entry *journal.JournalEntry) (any, error) {
	if len(entry.Content) == 0 {
		return nil, errors.Errorf("journal entry %d is empty", entry.EntryNumber)
	}
	entryTypeByte := journalEntryType(entry.Content[0])
	switch entryTypeByte {
	case journalEntryTypeCUD:
		return util.ValueFromBytes[CUDKeyValueEntry](entry.Content)
	case journalEntryTypeCreateTable:
		return util.ValueFromBytes[CreateSSTableEntry](entry.Content)
	case journalEntryTypeMergeTables:
		return util.ValueFromBytes[MergeTablesEntry](entry.Content)
	case journalEntryTypeBatch:
		return util.ValueFromBytes[BatchEntry](entry.Content)
	}
	return nil, errors.Errorf("unsupported entry type: %d", entryTypeByte)
}

// Create, update, or delete a key-value pair
type CUDKeyValueEntry struct {
	StoredKeyValuePair keyvaluepair.StoredKeyValuePair
}

// BatchEntry applies every pair or none of them.
type BatchEntry struct {
	StoredKeyValuePairs []keyvaluepair.StoredKeyValuePair
}

// CreateSSTableEntry rotates the active memtable into table SSTableNumber; later writes go
// to write-ahead log WriteAheadLogNumber.
type CreateSSTableEntry struct {
	SSTableNumber       uint64
	WriteAheadLogNumber uint64

	// in-memory only
	index *InMemoryIndex
	done  chan struct{}
}

// MergeTablesEntry replaces the source tables with the destination table.
type MergeTablesEntry struct {
	DestTableNumber uint64
	SrcTableNumbers []uint64
}

func readEntryType(reader io.Reader, expected journalEntryType) (int64, error) {
	var byteBuf [1]byte
	dn, err := io.ReadFull(reader, byteBuf[:])
	if err != nil {
		return int64(dn), err
	}
	if journalEntryType(byteBuf[0]) != expected {
		return int64(dn), errors.Errorf("expected entry type %d, got %d", expected, byteBuf[0])
	}
	return int64(dn), nil
}

func writeEntryType(writer io.Writer, entryType journalEntryType) (int64, error) {
	dn, err := writer.Write([]byte{byte(entryType)})
	return int64(dn), err
}

func (me *CUDKeyValueEntry) SizeOf() uint64 {
	return me.StoredKeyValuePair.SizeOf() + 1
}

func (me *CUDKeyValueEntry) WriteTo(writer io.Writer) (n int64, _ error) {
	n, err := writeEntryType(writer, journalEntryTypeCUD)
	if err != nil {
		return n, err
	}

	dn, err := me.StoredKeyValuePair.WriteTo(writer)
	return n + dn, err
}

func (me *CUDKeyValueEntry) ReadFrom(reader io.Reader) (n int64, _ error) {
	n, err := readEntryType(reader, journalEntryTypeCUD)
	if err != nil {
		return n, err
	}

	dn, err := me.StoredKeyValuePair.ReadFrom(reader)
	return n + dn, err
}

func (me *BatchEntry) WriteTo(writer io.Writer) (n int64, _ error) {
	n, err := writeEntryType(writer, journalEntryTypeBatch)
	if err != nil {
		return n, err
	}

	dn, err := util.WriteUint64(writer, uint64(len(me.StoredKeyValuePairs)))
	n += int64(dn)
	if err != nil {
		return n, err
	}

	for i := range me.StoredKeyValuePairs {
		dn, err := me.StoredKeyValuePairs[i].WriteTo(writer)
		n += dn
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (me *BatchEntry) ReadFrom(reader io.Reader) (n int64, _ error) {
	n, err := readEntryType(reader, journalEntryTypeBatch)
	if err != nil {
		return n, err
	}

	count, dn, err := util.ReadUint64(reader)
	n += int64(dn)
	if err != nil {
		return n, err
	}
	if count > maxBatchCount {
		return n, errors.Errorf("batch of %d entries is too large", count)
	}

	me.StoredKeyValuePairs = make([]keyvaluepair.StoredKeyValuePair, count)
	for i := range me.StoredKeyValuePairs {
		dn, err := me.StoredKeyValuePairs[i].ReadFrom(reader)
		n += dn
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (me *CreateSSTableEntry) SizeOf() uint64 {
	return 1 + 8 + 8
}

func (me *CreateSSTableEntry) ReadFrom(reader io.Reader) (n int64, _ error) {
	n, err := readEntryType(reader, journalEntryTypeCreateTable)
	if err != nil {
		return n, err
	}

	dn, err := util.ReadUint64s(reader, &me.SSTableNumber, &me.WriteAheadLogNumber)
	return n + int64(dn), err
}

func (me *CreateSSTableEntry) WriteTo(writer io.Writer) (n int64, _ error) {
	n, err := writeEntryType(writer, journalEntryTypeCreateTable)
	if err != nil {
		return n, err
	}

	dn, err := util.WriteUint64s(writer, me.SSTableNumber, me.WriteAheadLogNumber)
	return n + int64(dn), err
}

func (me *MergeTablesEntry) WriteTo(writer io.Writer) (n int64, _ error) {
	n, err := writeEntryType(writer, journalEntryTypeMergeTables)
	if err != nil {
		return n, err
	}

	dn, err := util.WriteUint64s(writer, me.DestTableNumber, uint64(len(me.SrcTableNumbers)))
	n += int64(dn)
	if err != nil {
		return n, err
	}

	dn, err = util.WriteUint64s(writer, me.SrcTableNumbers...)
	return n + int64(dn), err
}

func (me *MergeTablesEntry) ReadFrom(reader io.Reader) (n int64, _ error) {
	n, err := readEntryType(reader, journalEntryTypeMergeTables)
	if err != nil {
		return n, err
	}

	var count uint64
	dn, err := util.ReadUint64s(reader, &me.DestTableNumber, &count)
	n += int64(dn)
	if err != nil {
		return n, err
	}
	if count > maxBatchCount {
		return n, errors.Errorf("merge of %d tables is too large", count)
	}

	me.SrcTableNumbers = make([]uint64, count)
	for i := range me.SrcTableNumbers {
		me.SrcTableNumbers[i], dn, err = util.ReadUint64(reader)
		n += int64(dn)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
