package sstable

import (
	"io"

	"github.com/pkg/errors"

	"github.com/navijation/njrdb/storage/compression"
	"github.com/navijation/njrdb/storage/keyvaluepair"
)

type SSTableEntry struct {
	Location EntryLocation
	keyvaluepair.KeyValuePair
}

type EntryLocation struct {
	EntryNumber uint64
	Offset      uint64
}

func (me *SSTableEntry) ToKeyValuePair() keyvaluepair.KeyValuePair {
	return me.KeyValuePair
}

// Entries are keyvaluepair records whose value bytes are passed through the table's codec.
func writeEntry(writer io.Writer, kvp keyvaluepair.KeyValuePair, codec compression.Type) (int64, error) {
	if !kvp.IsDeleted {
		kvp.Value = codec.Encode(kvp.Value)
	}
	stored := kvp.ToStoredKeyValuePair()
	return stored.WriteTo(writer)
}

func readEntry(
	reader io.Reader, location EntryLocation, codec compression.Type,
) (out SSTableEntry, n int64, _ error) {
	var stored keyvaluepair.StoredKeyValuePair
	n, err := stored.ReadFrom(reader)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return out, n, errors.Wrapf(err, "read entry %d", location.EntryNumber)
	}

	out = SSTableEntry{
		Location:     location,
		KeyValuePair: stored.ToKeyValuePair(),
	}
	if !out.IsDeleted && codec != compression.None {
		value, err := codec.Decode(out.Value)
		if err != nil {
			return out, n, errors.Wrapf(err, "decode entry %d", location.EntryNumber)
		}
		out.Value = value
	}
	return out, n, nil
}
