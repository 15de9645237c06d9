package sstable

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navijation/njrdb/storage/compression"
)

func Test_entry_serde(t *testing.T) {
	for _, tc := range []struct {
		name  string
		codec compression.Type
		kvp   KeyValuePair
	}{
		{
			name: "plain",
			kvp:  KeyValuePair{Key: []byte("key"), Value: []byte("value")},
		},
		{
			name:  "snappy",
			codec: compression.Snappy,
			kvp:   KeyValuePair{Key: []byte("key"), Value: bytes.Repeat([]byte("ab"), 100)},
		},
		{
			name:  "lz4",
			codec: compression.LZ4,
			kvp:   KeyValuePair{Key: []byte("key"), Value: bytes.Repeat([]byte("ab"), 100)},
		},
		{
			name:  "tombstone",
			codec: compression.Snappy,
			kvp:   KeyValuePair{Key: []byte("gone"), IsDeleted: true},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			n, err := writeEntry(&buf, tc.kvp, tc.codec)
			require.NoError(t, err)
			assert.Equal(t, int64(buf.Len()), n)

			location := EntryLocation{EntryNumber: 3, Offset: 77}
			entry, readN, err := readEntry(&buf, location, tc.codec)
			require.NoError(t, err)
			assert.Equal(t, n, readN)
			assert.Equal(t, location, entry.Location)
			assert.Equal(t, tc.kvp, entry.ToKeyValuePair())
		})
	}

	t.Run("compressed values are smaller", func(t *testing.T) {
		kvp := KeyValuePair{Key: []byte("key"), Value: bytes.Repeat([]byte("ab"), 1000)}
		var plain, compressed bytes.Buffer
		_, err := writeEntry(&plain, kvp, compression.None)
		require.NoError(t, err)
		_, err = writeEntry(&compressed, kvp, compression.Snappy)
		require.NoError(t, err)
		assert.Less(t, compressed.Len(), plain.Len())
	})

	t.Run("truncated", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := writeEntry(&buf, KeyValuePair{Key: []byte("key"), Value: []byte("value")}, compression.None)
		require.NoError(t, err)

		_, _, err = readEntry(bytes.NewReader(buf.Bytes()[:buf.Len()-2]), EntryLocation{}, compression.None)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}
