package main

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/navijation/njrdb/db/rdb"
	"github.com/navijation/njrdb/storage/compression"
)

const (
	kB = 1024
	MB = kB * 1024
	GB = MB * 1024
)

const (
	dbFlag                             = "db"
	compressionTypeFlag                = "compression-type"
	writeBufferSizeFlag                = "write-buffer-size"
	maxWriteBufferNumberFlag           = "max-write-buffer-number"
	level0FileNumCompactionTriggerFlag = "level0-file-num-compaction-trigger"
	disableAutoCompactionsFlag         = "disable-auto-compactions"
	bloomBitsPerKeyFlag                = "bloom-bits-per-key"
	indexChunkSizeFlag                 = "index-chunk-size"
	bulkFlag                           = "bulk"
	configFlag                         = "config"
	logLevelFlag                       = "log-level"
)

// ByteSize reads and prints humanized sizes such as "64MiB".
type ByteSize uint64

func (me *ByteSize) UnmarshalText(text []byte) error {
	value, err := humanize.ParseBytes(string(text))
	if err != nil {
		return err
	}
	*me = ByteSize(value)
	return nil
}

func (me ByteSize) MarshalText() ([]byte, error) {
	return []byte(me.String()), nil
}

func (me ByteSize) String() string {
	return humanize.IBytes(uint64(me))
}

// Options are the database settings a command line or config file can change.
type Options struct {
	CompressionType                string   `toml:"compression_type" json:"compression_type"`
	WriteBufferSize                ByteSize `toml:"write_buffer_size" json:"write_buffer_size"`
	MaxWriteBufferNumber           int      `toml:"max_write_buffer_number" json:"max_write_buffer_number"`
	Level0FileNumCompactionTrigger int      `toml:"level0_file_num_compaction_trigger" json:"level0_file_num_compaction_trigger"`
	DisableAutoCompactions         bool     `toml:"disable_auto_compactions" json:"disable_auto_compactions"`
	BloomBitsPerKey                int      `toml:"bloom_bits_per_key" json:"bloom_bits_per_key"`
	IndexChunkSize                 ByteSize `toml:"index_chunk_size" json:"index_chunk_size"`
	Bulk                           bool     `toml:"bulk" json:"bulk"`
}

var DefaultOptions = Options{
	CompressionType:                "lz4",
	WriteBufferSize:                4 * MB,
	MaxWriteBufferNumber:           2,
	Level0FileNumCompactionTrigger: 4,
	BloomBitsPerKey:                10,
	IndexChunkSize:                 4 * kB,
}

func optionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     dbFlag,
			Usage:    "database location",
			Required: true,
		},
		&cli.StringFlag{
			Name:  compressionTypeFlag,
			Value: DefaultOptions.CompressionType,
			Usage: "value codec for new tables: none, snappy or lz4",
		},
		&cli.StringFlag{
			Name:  writeBufferSizeFlag,
			Value: DefaultOptions.WriteBufferSize.String(),
			Usage: "size of a single memtable; a full memtable is flushed to a new table",
		},
		&cli.IntFlag{
			Name:  maxWriteBufferNumberFlag,
			Value: int64(DefaultOptions.MaxWriteBufferNumber),
			Usage: "maximum number of memtables, active and immutable; writes stall beyond it",
		},
		&cli.IntFlag{
			Name:  level0FileNumCompactionTriggerFlag,
			Value: int64(DefaultOptions.Level0FileNumCompactionTrigger),
			Usage: "number of tables that triggers a compaction",
		},
		&cli.BoolFlag{
			Name:  disableAutoCompactionsFlag,
			Usage: "disables automatic compactions",
		},
		&cli.IntFlag{
			Name:  bloomBitsPerKeyFlag,
			Value: int64(DefaultOptions.BloomBitsPerKey),
			Usage: "bloom filter bits per key in new tables; 0 disables the filter",
		},
		&cli.StringFlag{
			Name:  indexChunkSizeFlag,
			Value: DefaultOptions.IndexChunkSize.String(),
			Usage: "distance between sparse index entries of a table",
		},
		&cli.BoolFlag{
			Name:  bulkFlag,
			Usage: "sets options for bulk data load: automatic compactions are disabled",
		},
		&cli.StringFlag{
			Name:  configFlag,
			Usage: "TOML file with options; its values override command line flags",
		},
		&cli.StringFlag{
			Name:  logLevelFlag,
			Value: "info",
			Usage: "logrus level: debug, info, warn or error",
		},
	}
}

func configureLogging(cmd *cli.Command) error {
	level, err := logrus.ParseLevel(cmd.String(logLevelFlag))
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
	return nil
}

// loadOptions merges flags, then the config file, then bulk-load settings.
func loadOptions(cmd *cli.Command) (Options, error) {
	out := DefaultOptions
	out.CompressionType = cmd.String(compressionTypeFlag)
	out.MaxWriteBufferNumber = int(cmd.Int(maxWriteBufferNumberFlag))
	out.Level0FileNumCompactionTrigger = int(cmd.Int(level0FileNumCompactionTriggerFlag))
	out.DisableAutoCompactions = cmd.Bool(disableAutoCompactionsFlag)
	out.BloomBitsPerKey = int(cmd.Int(bloomBitsPerKeyFlag))
	out.Bulk = cmd.Bool(bulkFlag)

	if err := out.WriteBufferSize.UnmarshalText([]byte(cmd.String(writeBufferSizeFlag))); err != nil {
		return out, errors.Wrapf(err, "--%s", writeBufferSizeFlag)
	}
	if err := out.IndexChunkSize.UnmarshalText([]byte(cmd.String(indexChunkSizeFlag))); err != nil {
		return out, errors.Wrapf(err, "--%s", indexChunkSizeFlag)
	}

	if path := cmd.String(configFlag); path != "" {
		if err := out.applyConfigFile(path); err != nil {
			return out, err
		}
	}
	if out.Bulk {
		out.applyBulk()
	}
	return out, nil
}

func (me *Options) applyConfigFile(path string) error {
	meta, err := toml.DecodeFile(path, me)
	if err != nil {
		return errors.Wrapf(err, "failed to load config %q", path)
	}
	for _, key := range meta.Undecoded() {
		logrus.WithField("key", key.String()).Warn("unknown config option")
	}
	return nil
}

func (me *Options) applyBulk() {
	me.Bulk = true
	me.DisableAutoCompactions = true
	me.Level0FileNumCompactionTrigger = 1 * GB
}

func (me *Options) dbOptions(create bool) (*rdb.Options, error) {
	codec, err := compression.ParseType(me.CompressionType)
	if err != nil {
		return nil, err
	}

	out := rdb.NewDefaultOptions()
	out.SetCreateIfMissing(create)
	out.SetCompression(codec)
	out.SetWriteBufferSize(uint64(me.WriteBufferSize))
	out.SetMaxWriteBufferNumber(me.MaxWriteBufferNumber)
	out.SetLevel0FileNumCompactionTrigger(me.Level0FileNumCompactionTrigger)
	out.SetDisableAutoCompactions(me.DisableAutoCompactions)
	out.SetBloomBitsPerKey(me.BloomBitsPerKey)
	out.SetIndexChunkSize(uint64(me.IndexChunkSize))
	out.SetLogger(logrus.StandardLogger())
	if me.Bulk {
		out.PrepareForBulkLoad()
	}
	return out, nil
}

// openDb applies logging and option flags, then opens the database named by --db.
func openDb(cmd *cli.Command, create, readOnly bool) (*rdb.DB, error) {
	if err := configureLogging(cmd); err != nil {
		return nil, err
	}
	opts, err := loadOptions(cmd)
	if err != nil {
		return nil, err
	}
	dbOptions, err := opts.dbOptions(create)
	if err != nil {
		return nil, err
	}

	name := cmd.String(dbFlag)
	if readOnly {
		return rdb.OpenDbForReadOnly(dbOptions, name, false)
	}
	return rdb.OpenDb(dbOptions, name)
}
