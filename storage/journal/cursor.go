package journal

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"hash"
	"io"

	"github.com/pkg/errors"

	"github.com/navijation/njrdb/util"
)

// JournalCursor iterates forward over the entries of a journal file. With checksumming
// enabled it recomputes the signature chain and stops at the first mismatch.
type JournalCursor struct {
	parent         *JournalFile
	entryNumber    uint64
	offset         uint64
	buffer         *bufio.Reader
	shouldCheckSum bool
	hash           hash.Hash
}

func (me *JournalFile) NewCursor(checkSum bool) JournalCursor {
	out := JournalCursor{
		parent:         me,
		entryNumber:    me.header.start,
		offset:         headerSize,
		buffer:         me.fileBufferAt(headerSize),
		shouldCheckSum: checkSum,
	}

	if checkSum {
		out.hash = sha256.New()
		me.header.writeHash(out.hash)
	}
	return out
}

func (me *JournalCursor) NextEntry() (out JournalEntry, exists bool, _ error) {
	return me.nextEntry(me.parent.size)
}

// nextEntry reads the entry at the cursor, treating limit as the end of the file.
func (me *JournalCursor) nextEntry(limit uint64) (out JournalEntry, exists bool, _ error) {
	if me.offset >= limit {
		return out, false, nil
	}

	contentSize, _, err := util.ReadUint64(me.buffer)
	if err != nil {
		return out, false, err
	}

	if contentSize > limit || me.offset+entrySize(contentSize) > limit {
		return out, false, ErrInvalidContentSize
	}

	content := make([]byte, contentSize)
	if _, err := io.ReadFull(me.buffer, content); err != nil {
		return out, false, err
	}

	var signature [signatureSize]byte
	if _, err := io.ReadFull(me.buffer, signature[:]); err != nil {
		return out, false, err
	}

	if me.shouldCheckSum {
		hashEntryContent(me.hash, content)
		if !bytes.Equal(me.hash.Sum(nil), signature[:]) {
			return out, true, errors.WithStack(ErrSignatureMismatch)
		}
	}

	out = JournalEntry{
		EntryNumber: me.entryNumber,
		Offset:      me.offset,
		ContentSize: contentSize,
		Content:     content,
		Signature:   signature[:],
	}

	me.entryNumber++
	me.offset = out.EndOffset()

	return out, true, nil
}

func (me *JournalCursor) HashState() hash.Hash {
	return me.hash
}
