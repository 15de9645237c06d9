package journal

import (
	"hash"
	"io"

	"github.com/navijation/njrdb/util"
)

// | 16 bytes | 8 bytes                  |
// | file ID  | number of the first entry |
type journalFileHeader struct {
	id    [16]byte
	start uint64
}

const headerSize = 16 + 8

func (me *journalFileHeader) ReadFrom(reader io.Reader) (n int64, _ error) {
	dn, err := io.ReadFull(reader, me.id[:])
	n += int64(dn)
	if err != nil {
		return n, err
	}

	me.start, dn, err = util.ReadUint64(reader)
	return n + int64(dn), err
}

func (me *journalFileHeader) WriteTo(writer io.Writer) (n int64, _ error) {
	dn, err := writer.Write(me.id[:])
	n += int64(dn)
	if err != nil {
		return n, err
	}

	dn, err = util.WriteUint64(writer, me.start)
	return n + int64(dn), err
}

// The header seeds the signature chain, so two journals never share signatures.
func (me *journalFileHeader) writeHash(h hash.Hash) {
	_, _ = me.WriteTo(h)
}
