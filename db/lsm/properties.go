package lsm

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	PropertyStats                    = "rdb.stats"
	PropertyNumFiles                 = "rdb.num-files"
	PropertyEstimateNumKeys          = "rdb.estimate-num-keys"
	PropertyNumImmutableMemTable     = "rdb.num-immutable-mem-table"
	PropertyCurSizeActiveMemTable    = "rdb.cur-size-active-mem-table"
	PropertyTotalSSTFilesSize        = "rdb.total-sst-files-size"
	PropertyNumEntriesActiveMemTable = "rdb.num-entries-active-mem-table"
)

// GetProperty returns the named property, or "" for unknown names.
func (me *LSMDB) GetProperty(name string) string {
	if name == PropertyStats {
		out, err := me.stats.render()
		if err != nil {
			me.logger.WithError(err).Warn("failed to gather statistics")
			return ""
		}
		return out
	}

	me.lock.RLock()
	defer me.lock.RUnlock()

	switch name {
	case PropertyNumFiles:
		return strconv.Itoa(len(me.sstables))
	case PropertyEstimateNumKeys:
		var total uint64
		for _, memtable := range me.inMemoryIndexes {
			total += uint64(memtable.Len())
		}
		for _, handle := range me.sstables {
			total += handle.table.NumEntries()
		}
		return strconv.FormatUint(total, 10)
	case PropertyNumImmutableMemTable:
		return strconv.Itoa(len(me.inMemoryIndexes) - 1)
	case PropertyCurSizeActiveMemTable:
		return strconv.FormatUint(me.inMemoryIndexes[0].Size(), 10)
	case PropertyNumEntriesActiveMemTable:
		return strconv.Itoa(me.inMemoryIndexes[0].Len())
	case PropertyTotalSSTFilesSize:
		var total uint64
		for _, handle := range me.sstables {
			total += handle.table.Size()
		}
		return strconv.FormatUint(total, 10)
	}
	return ""
}

// Registry exposes the database's statistics for an exporter.
func (me *LSMDB) Registry() *prometheus.Registry {
	return me.stats.registry
}
