// Package framestore persists sealed profiler frames in BoltDB so they can
// be inspected after the program exits.
package framestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/robfig/cron/v3"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/deepaksharma/spanscope/internal/profiler"
)

var (
	bucketFrames = []byte("frames")
	bucketScopes = []byte("scopes")
)

// ErrFrameNotFound is returned by Get for unknown sequence numbers.
var ErrFrameNotFound = errors.New("frame not found")

// StoredFrame is a frame together with its store sequence number. Sequence
// numbers keep increasing across runs; frame indexes restart with each run.
type StoredFrame struct {
	Seq   uint64
	Frame *profiler.FrameData
}

// Store writes frames to a BoltDB file.
type Store struct {
	db     *bolt.DB
	path   string
	retain int

	compactionCron *cron.Cron

	// Metrics
	framesGauge       *atomic.Int64
	sizeGauge         *atomic.Int64
	compactionCounter *atomic.Int64

	logger *zap.Logger
}

// Open opens or creates the store described by cfg. The gauges may be nil.
func Open(cfg Config, framesGauge, sizeGauge, compactionCounter *atomic.Int64, logger *zap.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store configuration: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := bolt.Open(cfg.Path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open frame store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketFrames, bucketScopes} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:                db,
		path:              cfg.Path,
		retain:            cfg.Retain,
		framesGauge:       orNew(framesGauge),
		sizeGauge:         orNew(sizeGauge),
		compactionCounter: orNew(compactionCounter),
		logger:            logger,
	}

	if cfg.CompactionScheduleCron != "" {
		s.compactionCron = cron.New()
		if _, err := s.compactionCron.AddFunc(cfg.CompactionScheduleCron, func() {
			if err := s.Compact(); err != nil {
				logger.Error("Frame store compaction failed", zap.Error(err))
			}
		}); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to schedule compaction: %w", err)
		}
		s.compactionCron.Start()
		logger.Info("Frame store compaction scheduled",
			zap.String("schedule", cfg.CompactionScheduleCron),
			zap.Int("retain", cfg.Retain))
	}

	s.updateGauges()
	return s, nil
}

func orNew(v *atomic.Int64) *atomic.Int64 {
	if v == nil {
		return atomic.NewInt64(0)
	}
	return v
}

// Put stores a frame and the scope details it introduced. Empty frames are
// skipped. It returns the sequence number the frame was stored under.
func (s *Store) Put(frame *profiler.FrameData) (uint64, error) {
	if frame.Empty() && len(frame.ScopeDelta) == 0 {
		return 0, nil
	}
	value, err := msgpack.Marshal(frame)
	if err != nil {
		return 0, fmt.Errorf("failed to encode frame %d: %w", frame.Index, err)
	}

	var seq uint64
	err = s.db.Update(func(tx *bolt.Tx) error {
		scopes := tx.Bucket(bucketScopes)
		for _, d := range frame.ScopeDelta {
			v, err := msgpack.Marshal(d)
			if err != nil {
				return fmt.Errorf("failed to encode scope %d: %w", d.ID, err)
			}
			if err := scopes.Put(scopeKey(d.ID), v); err != nil {
				return fmt.Errorf("failed to write scope: %w", err)
			}
		}

		frames := tx.Bucket(bucketFrames)
		seq, err = frames.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}
		return frames.Put(frameKey(seq), value)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to write frame %d: %w", frame.Index, err)
	}

	s.framesGauge.Inc()
	return seq, nil
}

// Sink adapts Put to a profiler.FrameSink. Errors are logged.
func (s *Store) Sink(frame *profiler.FrameData) {
	if _, err := s.Put(frame); err != nil {
		s.logger.Error("Failed to store frame", zap.Uint64("frame", frame.Index), zap.Error(err))
	}
}

// Get loads the frame stored under seq.
func (s *Store) Get(seq uint64) (*profiler.FrameData, error) {
	var frame *profiler.FrameData
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketFrames).Get(frameKey(seq))
		if v == nil {
			return ErrFrameNotFound
		}
		var err error
		frame, err = decodeFrame(v)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", seq, err)
	}
	return frame, nil
}

// Recent returns up to n frames, newest first. n <= 0 returns no frames.
func (s *Store) Recent(n int) ([]StoredFrame, error) {
	if n <= 0 {
		return nil, nil
	}
	out := make([]StoredFrame, 0, min(n, 256))
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketFrames).Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			frame, err := decodeFrame(v)
			if err != nil {
				s.logger.Warn("Skipping unreadable frame",
					zap.Uint64("seq", binary.BigEndian.Uint64(k)),
					zap.Error(err))
				continue
			}
			out = append(out, StoredFrame{Seq: binary.BigEndian.Uint64(k), Frame: frame})
		}
		return nil
	})
	return out, err
}

// Scopes returns every stored scope detail keyed by id.
func (s *Store) Scopes() (map[profiler.ScopeID]profiler.ScopeDetails, error) {
	out := make(map[profiler.ScopeID]profiler.ScopeDetails)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketScopes).ForEach(func(_, v []byte) error {
			var d profiler.ScopeDetails
			if err := msgpack.Unmarshal(v, &d); err != nil {
				return fmt.Errorf("failed to decode scope: %w", err)
			}
			out[d.ID] = d
			return nil
		})
	})
	return out, err
}

// Count returns the number of stored frames.
func (s *Store) Count() int {
	n := 0
	_ = s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketFrames).Stats().KeyN
		return nil
	})
	return n
}

// Compact deletes all but the most recent retained frames.
func (s *Store) Compact() error {
	startTime := time.Now()
	removed := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFrames)
		excess := b.Stats().KeyN - s.retain
		if excess <= 0 {
			return nil
		}
		keys := make([][]byte, 0, excess)
		c := b.Cursor()
		for k, _ := c.First(); k != nil && len(keys) < excess; k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("failed to delete frame: %w", err)
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to compact frame store: %w", err)
	}

	s.updateGauges()
	if removed == 0 {
		s.logger.Debug("Skipping compaction - frame count within retention", zap.Int("retain", s.retain))
		return nil
	}
	s.compactionCounter.Inc()
	s.logger.Info("Frame store compaction completed",
		zap.Int("removed_frames", removed),
		zap.Int("retain", s.retain),
		zap.Duration("duration", time.Since(startTime)))
	return nil
}

// Close stops scheduled compaction and closes the database.
func (s *Store) Close() error {
	if s.compactionCron != nil {
		<-s.compactionCron.Stop().Done()
	}
	return s.db.Close()
}

func (s *Store) updateGauges() {
	s.framesGauge.Store(int64(s.Count()))
	if fi, err := os.Stat(s.path); err == nil {
		s.sizeGauge.Store(fi.Size())
	}
}

func decodeFrame(v []byte) (*profiler.FrameData, error) {
	frame := &profiler.FrameData{}
	if err := msgpack.Unmarshal(v, frame); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return frame, nil
}

func frameKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func scopeKey(id profiler.ScopeID) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, uint32(id))
	return k
}
