package lsm

import (
	"cmp"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/navijation/njrdb/util"
)

const (
	sstablePrefix          = "sstable_"
	sstableExtension       = ".sst"
	writeAheadLogPrefix    = "writeahead_log_"
	writeAheadLogExtension = ".jrn"
)

// appendEntry journals entry in the active write-ahead log. A failed append leaves the
// database in a sticky error state.
func (me *LSMDB) appendEntry(ctx *dbCtx, entry io.WriterTo, sync bool) error {
	ctx.Lock(&me.lock)
	defer ctx.Unlock(&me.lock)

	if len(me.writeAheadLogs) == 0 {
		return errors.WithStack(ErrReadOnly)
	}

	bytes, err := util.ToBytes(entry)
	if err != nil {
		return err
	}
	if _, err := me.writeAheadLogs[0].AppendEntry(bytes, sync); err != nil {
		me.stateErr = errors.Wrap(err, "append to write-ahead log")
		me.logger.WithError(err).Error("write-ahead log append failed; database is now read-only")
		return me.stateErr
	}
	return nil
}

func (me *LSMDB) checkStateError(ctx *dbCtx) error {
	select {
	case <-me.done:
		return ErrClosed
	default:
	}

	if !me.isRunning.Load() {
		return ErrNotRunning
	}

	ctx.RLock(&me.lock)
	defer ctx.RUnlock(&me.lock)

	return me.stateErr
}

func (me *LSMDB) checkWritable(ctx *dbCtx) error {
	if me.readOnly {
		return ErrReadOnly
	}
	return me.checkStateError(ctx)
}

func (me *LSMDB) sstablePath(tableNumber uint64) string {
	return filepath.Join(me.path, fmt.Sprintf("%s%d%s", sstablePrefix, tableNumber, sstableExtension))
}

func (me *LSMDB) writeAheadLogPath(writeAheadLogNumber uint64) string {
	return filepath.Join(
		me.path, fmt.Sprintf("%s%d%s", writeAheadLogPrefix, writeAheadLogNumber, writeAheadLogExtension),
	)
}

func (me *LSMDB) tmpPath(baseName string) string {
	return filepath.Join(me.path, tmpDirName, baseName)
}

func getFileNumber(path, prefix, extension string) (num uint64, ok bool) {
	basename := filepath.Base(path)

	withoutExtension, ok := strings.CutSuffix(basename, extension)
	if !ok {
		return 0, false
	}

	withoutPrefix, ok := strings.CutPrefix(withoutExtension, prefix)
	if !ok {
		return 0, false
	}

	number, err := strconv.ParseUint(withoutPrefix, 10, 64)
	if err != nil {
		return 0, false
	}

	return number, true
}

func compareDesc[T cmp.Ordered](a, b T) int {
	return cmp.Compare(b, a)
}
