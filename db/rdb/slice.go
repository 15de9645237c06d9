package rdb

// Slice holds a value returned by Get. Data is owned by the slice.
type Slice struct {
	data   []byte
	exists bool
	freed  bool
}

func newSlice(data []byte, exists bool) *Slice {
	return &Slice{data: data, exists: exists}
}

// Data returns nil for a missing key or a freed slice.
func (me *Slice) Data() []byte {
	if me.freed {
		return nil
	}
	return me.data
}

func (me *Slice) Size() int {
	return len(me.Data())
}

// Exists distinguishes a missing key from an empty value.
func (me *Slice) Exists() bool {
	return me.exists
}

func (me *Slice) Free() {
	if !me.freed {
		me.data = nil
		me.freed = true
	}
}
