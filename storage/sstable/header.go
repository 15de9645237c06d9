package sstable

import (
	"io"

	"github.com/navijation/njrdb/storage/compression"
	"github.com/navijation/njrdb/util"
)

// _____________________________________________________________________________________
// | 16 bytes | 8 bytes | 8 bytes   | 8 bytes     | 8 bytes  | 8 bytes                  |
// |----------------------------------------------------------------------------------- |
// | id       | version | file size | num entries | sequence | value compression codec  |
// |------------------------------------------------------------------------------------|
type Header struct {
	ID          [16]byte
	FileSize    uint64
	NumEntries  uint64
	Version     uint64
	Sequence    uint64
	Compression compression.Type
}

const headerSize = 16 + 5*8

func (me Header) WithNewSize(fileSize, numEntries uint64) Header {
	me.FileSize = fileSize
	me.NumEntries = numEntries
	return me
}

func (me *Header) WriteTo(writer io.Writer) (n int64, _ error) {
	dn, err := writer.Write(me.ID[:])
	n += int64(dn)
	if err != nil {
		return n, err
	}

	dn, err = util.WriteUint64s(
		writer, me.Version, me.FileSize, me.NumEntries, me.Sequence, uint64(me.Compression),
	)
	return n + int64(dn), err
}

func (me *Header) ReadFrom(reader io.Reader) (n int64, _ error) {
	dn, err := io.ReadFull(reader, me.ID[:])
	n += int64(dn)
	if err != nil {
		return n, err
	}

	var codec uint64
	dn, err = util.ReadUint64s(
		reader, &me.Version, &me.FileSize, &me.NumEntries, &me.Sequence, &codec,
	)
	me.Compression = compression.Type(codec)
	return n + int64(dn), err
}

func (me *Header) SizeOf() uint64 {
	return headerSize
}
