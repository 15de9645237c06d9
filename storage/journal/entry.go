package journal

import (
	"hash"
	"io"

	"github.com/navijation/njrdb/util"
)

type JournalEntry struct {
	EntryNumber uint64
	Offset      uint64
	ContentSize uint64
	Content     []byte
	Signature   []byte
}

func (me *JournalEntry) SizeOf() uint64 {
	return entrySize(me.ContentSize)
}

func (me *JournalEntry) EndOffset() uint64 {
	return me.Offset + me.SizeOf()
}

// | 8 bytes      | (content size) bytes | 32 bytes                          |
// | content size | content              | sha256 over header and all entries |
type internalJournalEntry struct {
	content   []byte
	signature [signatureSize]byte
}

const signatureSize = 32

func entrySize(contentSize uint64) uint64 {
	return 8 + contentSize + signatureSize
}

func (me *internalJournalEntry) WriteTo(writer io.Writer) (n int64, _ error) {
	dn, err := util.WriteUint64(writer, uint64(len(me.content)))
	n += int64(dn)
	if err != nil {
		return n, err
	}

	dn, err = writer.Write(me.content)
	n += int64(dn)
	if err != nil {
		return n, err
	}

	dn, err = writer.Write(me.signature[:])
	return n + int64(dn), err
}

// sign folds the entry into the running chain and stores the resulting signature.
func (me *internalJournalEntry) sign(h hash.Hash) {
	hashEntryContent(h, me.content)
	copy(me.signature[:], h.Sum(nil))
}

func hashEntryContent(h hash.Hash, content []byte) {
	size := util.Uint64ToWord64(uint64(len(content)))
	_, _ = h.Write(size[:])
	_, _ = h.Write(content)
}
