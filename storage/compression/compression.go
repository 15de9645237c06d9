// Package compression implements the value codecs an SSTable can be written with.
package compression

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4"
	"github.com/pkg/errors"

	"github.com/navijation/njrdb/util"
)

// Type is persisted in the SSTable header; values must never be renumbered.
type Type uint64

const (
	None Type = iota
	Snappy
	LZ4
)

var ErrCorrupt = errors.New("compressed value is corrupt")

func (me Type) String() string {
	switch me {
	case None:
		return "none"
	case Snappy:
		return "snappy"
	case LZ4:
		return "lz4"
	}
	return fmt.Sprintf("unknown(%d)", uint64(me))
}

func ParseType(name string) (Type, error) {
	switch name {
	case "none", "":
		return None, nil
	case "snappy":
		return Snappy, nil
	case "lz4":
		return LZ4, nil
	}
	return None, errors.Errorf("unsupported compression type %q", name)
}

func (me Type) Valid() bool {
	return me <= LZ4
}

func (me Type) Encode(src []byte) []byte {
	switch me {
	case Snappy:
		return snappy.Encode(nil, src)
	case LZ4:
		return encodeLZ4(src)
	}
	return src
}

func (me Type) Decode(src []byte) ([]byte, error) {
	switch me {
	case Snappy:
		out, err := snappy.Decode(nil, src)
		if err != nil {
			return nil, errors.Wrap(ErrCorrupt, err.Error())
		}
		return out, nil
	case LZ4:
		return decodeLZ4(src)
	case None:
		return src, nil
	}
	return nil, errors.Errorf("unsupported compression type %s", me)
}

// lz4 blocks do not record their decoded length, so values are framed as
// | 8 bytes decoded length | 1 byte flag | payload |
// where flag 0 means the payload is stored raw because it did not compress.
const (
	lz4Raw        = 0
	lz4Compressed = 1
	lz4FrameSize  = 9
)

// an lz4 block never decodes to more than 255 bytes per input byte
const lz4MaxRatio = 255

func encodeLZ4(src []byte) []byte {
	dst := make([]byte, lz4FrameSize+lz4.CompressBlockBound(len(src)))
	word := util.Uint64ToWord64(uint64(len(src)))
	copy(dst, word[:])

	if len(src) == 0 {
		dst[8] = lz4Raw
		return dst[:lz4FrameSize]
	}
	n, err := lz4.CompressBlock(src, dst[lz4FrameSize:], make([]int, 1<<16))
	if err != nil || n == 0 || n >= len(src) {
		dst[8] = lz4Raw
		return append(dst[:lz4FrameSize], src...)
	}
	dst[8] = lz4Compressed
	return dst[:lz4FrameSize+n]
}

func decodeLZ4(src []byte) ([]byte, error) {
	if len(src) < lz4FrameSize {
		return nil, ErrCorrupt
	}
	var word util.Word64
	copy(word[:], src)
	size := word.Uint64()
	payload := src[lz4FrameSize:]

	switch src[8] {
	case lz4Raw:
		if uint64(len(payload)) != size {
			return nil, ErrCorrupt
		}
		return payload, nil
	case lz4Compressed:
		if size > uint64(len(payload))*lz4MaxRatio {
			return nil, ErrCorrupt
		}
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, errors.Wrap(ErrCorrupt, err.Error())
		}
		if uint64(n) != size {
			return nil, ErrCorrupt
		}
		return out, nil
	}
	return nil, ErrCorrupt
}
