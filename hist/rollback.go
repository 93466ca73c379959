package hist

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ChinmayNoob/histkv/store"
)

type RollbackOptions struct {
	BatchSize int         // head records rewritten per round trip
	Logger    *zap.Logger // receives one summary line per rollback
}

func DefaultRollbackOptions() RollbackOptions {
	return RollbackOptions{BatchSize: 100}
}

// RollbackView reads like HeadReadView and can discard all history after a
// cutoff timestamp.
type RollbackView struct {
	*HeadReadView
	opts RollbackOptions
	log  *zap.Logger
}

// RollbackStats summarizes one PerformRollback call.
type RollbackStats struct {
	RunID            uuid.UUID
	RevisionsDeleted int
	HeadsRewritten   int
	HeadsDeleted     int
}

func NewRollbackView(st store.Store, opts RollbackOptions) *RollbackView {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultRollbackOptions().BatchSize
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &RollbackView{HeadReadView: NewHeadReadView(st), opts: opts, log: log}
}

// PerformRollback deletes every revision newer than cutoff and resets each
// head record to the newest remaining revision, or drops it when that
// revision is a tombstone or nothing remains.
//
// The classification pass only reads; a malformed key or a read error stops
// the rollback before anything is written. The rewrite of head records and
// the final deletions are separate store calls, so a failure between them
// leaves the store partially rolled back. Running the rollback again with the
// same cutoff completes it. Writers must be stopped meanwhile.
func (v *RollbackView) PerformRollback(cutoff int64) (RollbackStats, error) {
	stats := RollbackStats{RunID: uuid.New()}
	log := v.log.With(zap.String("run", stats.RunID.String()), zap.Int64("cutoff", cutoff))
	started := time.Now()

	heads := make(map[string]struct{})
	latest := make(map[string]int64)
	var deletions [][]byte

	c := store.Catch(func(raw, _ []byte) error {
		k, err := ParseKey(raw)
		if err != nil {
			return err
		}
		switch k.Kind {
		case KindHead:
			heads[string(k.Key)] = struct{}{}
		case KindRevision:
			if k.Timestamp > cutoff {
				deletions = append(deletions, store.CloneBytes(raw))
				stats.RevisionsDeleted++
				return nil
			}
			if ts, ok := latest[string(k.Key)]; !ok || k.Timestamp > ts {
				latest[string(k.Key)] = k.Timestamp
			}
		}
		return nil
	})
	if err := c.Finish(v.st.ScanKeysPrefix(nil, c.Callback)); err != nil {
		log.Warn("rollback aborted while classifying keys", zap.Error(err))
		return stats, err
	}

	for k := range heads {
		if _, ok := latest[k]; !ok {
			deletions = append(deletions, HeadKey([]byte(k)))
			stats.HeadsDeleted++
		}
	}

	keys := make([]string, 0, len(latest))
	for k := range latest {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for start := 0; start < len(keys); start += v.opts.BatchSize {
		batch := keys[start:min(start+v.opts.BatchSize, len(keys))]
		revs := make([][]byte, len(batch))
		for i, k := range batch {
			revs[i] = RevisionKey([]byte(k), TimestampSuffix(latest[k]))
		}
		values, err := v.st.GetBatch(revs)
		if err != nil {
			log.Warn("rollback failed while restoring heads", zap.Error(err))
			return stats, err
		}
		puts := make([]store.Pair, 0, len(batch))
		for i, k := range batch {
			switch {
			case values[i] == nil:
				// Removed by someone else since the scan; nothing to restore.
				continue
			case IsTombstone(values[i]):
				if _, ok := heads[k]; ok {
					deletions = append(deletions, HeadKey([]byte(k)))
					stats.HeadsDeleted++
				}
			default:
				puts = append(puts, store.Pair{Key: HeadKey([]byte(k)), Value: values[i]})
			}
		}
		if err := v.st.PutBatch(puts); err != nil {
			log.Warn("rollback failed while restoring heads", zap.Error(err))
			return stats, err
		}
		stats.HeadsRewritten += len(puts)
	}

	if err := v.st.RemoveBatch(deletions); err != nil {
		log.Warn("rollback failed while deleting records", zap.Error(err))
		return stats, err
	}

	log.Info("rollback complete",
		zap.Int("revisionsDeleted", stats.RevisionsDeleted),
		zap.Int("headsRewritten", stats.HeadsRewritten),
		zap.Int("headsDeleted", stats.HeadsDeleted),
		zap.Duration("took", time.Since(started)))
	return stats, nil
}
