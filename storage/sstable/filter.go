package sstable

import (
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const defaultBloomBitsPerKey = 10

// bloomFilter is rebuilt from the table's keys whenever the table is indexed; it is never
// persisted.
type bloomFilter struct {
	policy filter.Filter
	data   []byte
}

func newBloomFilter(bitsPerKey int) bloomFilter {
	if bitsPerKey <= 0 {
		return bloomFilter{}
	}
	return bloomFilter{policy: filter.NewBloomFilter(bitsPerKey)}
}

func (me *bloomFilter) enabled() bool {
	return me.policy != nil
}

type bloomBuilder struct {
	policy    filter.Filter
	generator filter.FilterGenerator
}

func (me *bloomFilter) builder() bloomBuilder {
	if !me.enabled() {
		return bloomBuilder{}
	}
	return bloomBuilder{policy: me.policy, generator: me.policy.NewGenerator()}
}

func (me *bloomBuilder) add(key []byte) {
	if me.generator != nil {
		me.generator.Add(key)
	}
}

func (me *bloomBuilder) build() bloomFilter {
	if me.generator == nil {
		return bloomFilter{}
	}
	var buf util.Buffer
	me.generator.Generate(&buf)
	return bloomFilter{policy: me.policy, data: buf.Bytes()}
}

// mayContain never returns false for a key that was added. A disabled filter always
// answers true.
func (me *bloomFilter) mayContain(key []byte) bool {
	if !me.enabled() {
		return true
	}
	return me.policy.Contains(me.data, key)
}
