package rdb

// KeyMayExist reports whether key may be present in the default column family. False is
// definitive; true can be a false positive, so confirm with Get. Only memory is consulted and
// no error is ever produced.
func (me *DB) KeyMayExist(opts *ReadOptions, key []byte) bool {
	return me.db.KeyMayExist(opts.get(), me.db.DefaultColumnFamily(), key).MayExist
}
