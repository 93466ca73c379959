package db

import "go.uber.org/zap"

type Options struct {
	Dir              string      // base dir
	SyncOnWrite      bool        // fsyncs the wal after each frame
	MemtableMaxBytes int         // triggers flush when exceeded, 0 disables
	MaxSSTables      int         // triggers compaction when exceeded, 0 disables
	IndexEveryN      int         // sparse index density of new tables
	BloomBitsPerKey  int         // bloom filter size of new tables
	Logger           *zap.Logger // flush, compaction and bloom events at debug level
}

func DefaultOptions() Options {
	return Options{
		Dir:              "",
		SyncOnWrite:      true,
		MemtableMaxBytes: 4 << 20,
		MaxSSTables:      8,
		IndexEveryN:      16,
		BloomBitsPerKey:  10,
	}
}
