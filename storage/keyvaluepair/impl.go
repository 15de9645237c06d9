package keyvaluepair

import (
	"io"
	"slices"

	"github.com/navijation/njrdb/util"
)

func (me *KeyValuePair) ToStoredKeyValuePair() StoredKeyValuePair {
	out := StoredKeyValuePair{
		keySizeAndTombstone: uint64(len(me.Key)),
		Key:                 me.Key,
	}
	if me.IsDeleted {
		out.SetIsDeleted(true)
	} else {
		out.ValueSize = uint64(len(me.Value))
		out.Value = me.Value
	}
	return out
}

// Clone deep-copies key and value so the pair no longer aliases caller buffers.
func (me KeyValuePair) Clone() KeyValuePair {
	return KeyValuePair{
		Key:       append([]byte{}, me.Key...),
		Value:     slices.Clone(me.Value),
		IsDeleted: me.IsDeleted,
	}
}

// SizeOf approximates the in-memory footprint; used for write buffer accounting.
func (me *KeyValuePair) SizeOf() uint64 {
	return uint64(len(me.Key) + len(me.Value) + 16)
}

func (me *StoredKeyValuePair) KeySize() uint64 {
	return keySizeMask & me.keySizeAndTombstone
}

func (me *StoredKeyValuePair) IsDeleted() bool {
	return tombstoneMask&me.keySizeAndTombstone != 0
}

func (me *StoredKeyValuePair) SetIsDeleted(isDeleted bool) {
	if isDeleted {
		me.keySizeAndTombstone |= tombstoneMask
		me.ValueSize = 0
		me.Value = nil
	} else {
		me.keySizeAndTombstone &= ^tombstoneMask
	}
}

func (me *StoredKeyValuePair) WriteTo(writer io.Writer) (n int64, _ error) {
	dn, err := util.WriteUint64(writer, me.keySizeAndTombstone)
	n += int64(dn)
	if err != nil {
		return n, err
	}

	dn, err = writer.Write(me.Key)
	n += int64(dn)
	if err != nil {
		return n, err
	}

	dn, err = util.WriteUint64(writer, me.ValueSize)
	n += int64(dn)
	if err != nil {
		return n, err
	}

	dn, err = writer.Write(me.Value)
	n += int64(dn)
	return n, err
}

func (me *StoredKeyValuePair) ReadFrom(reader io.Reader) (n int64, err error) {
	keySizeAndTombstone, dn, err := util.ReadUint64(reader)
	n += int64(dn)
	if err != nil {
		return n, err
	}
	me.keySizeAndTombstone = keySizeAndTombstone

	me.Key = make([]byte, me.KeySize())
	dn, err = io.ReadFull(reader, me.Key)
	n += int64(dn)
	if err != nil {
		return n, err
	}

	me.ValueSize, dn, err = util.ReadUint64(reader)
	n += int64(dn)
	if err != nil {
		return n, err
	}

	me.Value = nil
	if me.ValueSize > 0 {
		me.Value = make([]byte, me.ValueSize)
		dn, err = io.ReadFull(reader, me.Value)
		n += int64(dn)
	}
	return n, err
}

func (me *StoredKeyValuePair) ToKeyValuePair() KeyValuePair {
	return KeyValuePair{
		Key:       me.Key,
		Value:     me.Value,
		IsDeleted: me.IsDeleted(),
	}
}

func (me *StoredKeyValuePair) SizeOf() uint64 {
	return 8 + me.KeySize() + 8 + me.ValueSize
}
