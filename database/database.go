package database

import (
	"fmt"
	"math"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/fulldump/ledgerdb/collection"
	"github.com/fulldump/ledgerdb/locks"
	"github.com/fulldump/ledgerdb/segment"
)

const (
	StatusOpening   = "opening"
	StatusOperating = "operating"
	StatusClosing   = "closing"
	StatusCorrupted = "corrupted"
)

type Config struct {
	Dir      string
	ReadOnly bool

	// SegmentSize is the capacity of the segment in bytes, 0 means unlimited.
	SegmentSize uint64

	Cache      bool
	CacheDepth int

	// AllowDirty opens a database that was not closed cleanly.
	AllowDirty bool

	LockPoolSize int
	LockTimeout  time.Duration

	// Codec is the block encoding, gob or cbor.
	Codec string

	FlushInterval time.Duration

	Logger *zap.Logger
}

type Database struct {
	config  *Config
	status  atomic.Value
	logger  *zap.Logger
	segment *segment.Segment
	meta    *segment.Meta
	codec   segment.Codec
	locks   *locks.Pool

	indexes []AbstractIndex
	byType  map[reflect.Type]AbstractIndex

	exit     chan struct{}
	stopOnce sync.Once
}

// NewDatabase opens the database stored in config.Dir, creating it when it
// does not exist and the database is not read only.
func NewDatabase(config *Config) (*Database, error) {

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("dir", config.Dir))

	codec, err := segment.CodecByName(config.Codec)
	if err != nil {
		return nil, err
	}

	capacity := config.SegmentSize
	if config.ReadOnly {
		capacity = 0
	}
	s, err := segment.Open(config.Dir, capacity, config.ReadOnly)
	if err != nil {
		return nil, err
	}

	var meta *segment.Meta
	if config.ReadOnly {
		meta, err = segment.CheckDirty(config.Dir, config.AllowDirty)
	} else {
		meta, err = segment.MarkDirty(config.Dir, config.AllowDirty)
	}
	if err != nil {
		return nil, err
	}

	db := &Database{
		config:  config,
		logger:  logger,
		segment: s,
		meta:    meta,
		codec:   codec,
		locks:   locks.NewPool(config.LockPoolSize, logger),
		byType:  map[reflect.Type]AbstractIndex{},
		exit:    make(chan struct{}),
	}
	db.status.Store(StatusOpening)

	logger.Info("database opened",
		zap.Bool("read_only", config.ReadOnly),
		zap.String("codec", codec.Name()),
		zap.String("owner", meta.Owner),
		zap.Uint64("used", s.Used()),
		zap.Uint64("capacity", s.Capacity()),
	)

	return db, nil
}

func (db *Database) GetStatus() string {
	return db.status.Load().(string)
}

func (db *Database) IsReadOnly() bool {
	return db.config.ReadOnly
}

// check moves the database to the corrupted status when err says so.
func (db *Database) check(err error) error {
	if err == nil {
		return nil
	}
	if IsFatal(err) {
		db.status.Store(StatusCorrupted)
		db.logger.Error("database corrupted", zap.Error(err))
	}
	return err
}

// writable refuses writes that can not be persisted, size is the number of
// bytes the write is expected to add.
func (db *Database) writable(size int) error {
	if db.config.ReadOnly {
		return ErrReadOnly
	}
	switch db.GetStatus() {
	case StatusCorrupted:
		return ErrCorrupted
	case StatusClosing:
		return ErrClosed
	}
	if size > 0 && db.FreeMemory() < uint64(size) {
		return fmt.Errorf("%w: %d bytes needed, %d free", segment.ErrSegmentFull, size, db.FreeMemory())
	}
	return nil
}

func (db *Database) Indexes() []AbstractIndex {
	return db.indexes
}

func (db *Database) Index(name string) (AbstractIndex, bool) {
	for _, index := range db.indexes {
		if index.Name() == name {
			return index, true
		}
	}
	return nil, false
}

func (db *Database) RowCountPerIndex() map[string]int {
	result := make(map[string]int, len(db.indexes))
	for _, index := range db.indexes {
		result[index.Name()] = index.Len()
	}
	return result
}

// usage estimates the bytes taken by every record copy held in memory.
func (db *Database) usage() uint64 {
	used := db.segment.Used()
	estimated := uint64(0)
	for _, index := range db.indexes {
		estimated += uint64(index.Footprint() * index.RecordSize())
	}
	return max(used, estimated)
}

// FreeMemory returns the bytes still available in the segment,
// math.MaxUint64 when its size is unlimited.
func (db *Database) FreeMemory() uint64 {
	capacity := db.segment.Capacity()
	if capacity == 0 {
		return math.MaxUint64
	}
	used := db.usage()
	if used >= capacity {
		return 0
	}
	return capacity - used
}

// Grow adds size bytes to the capacity of the segment.
func (db *Database) Grow(size uint64) error {
	if db.config.ReadOnly {
		return ErrReadOnly
	}
	if err := db.segment.Grow(size); err != nil {
		return err
	}
	db.logger.Info("segment grown", zap.Uint64("capacity", db.segment.Capacity()))
	return nil
}

func (db *Database) WithReadLock(timeout time.Duration, f func() error) error {
	return db.locks.WithReadLock(timeout, f)
}

func (db *Database) WithWriteLock(timeout time.Duration, f func() error) error {
	if db.config.ReadOnly {
		return ErrReadOnly
	}
	return db.locks.WithWriteLock(timeout, f)
}

// Revision returns the shared revision of the indices, -1 when there are
// none.
func (db *Database) Revision() int64 {
	if len(db.indexes) == 0 {
		return -1
	}
	return db.indexes[0].Revision()
}

func (db *Database) UndoStackRevisionRange() (begin, end int64) {
	if len(db.indexes) == 0 {
		return -1, -1
	}
	return db.indexes[0].UndoStackRevisionRange()
}

func (db *Database) Undo() error {
	for _, index := range db.indexes {
		if err := index.Undo(); err != nil {
			return db.check(fmt.Errorf("undo '%s': %w", index.Name(), err))
		}
	}
	return nil
}

func (db *Database) Squash() error {
	for _, index := range db.indexes {
		if err := index.Squash(); err != nil {
			return db.check(fmt.Errorf("squash '%s': %w", index.Name(), err))
		}
	}
	return nil
}

// Commit makes every revision lower or equal than revision permanent.
func (db *Database) Commit(revision int64) {
	for _, index := range db.indexes {
		index.Commit(revision)
	}
}

func (db *Database) UndoAll() error {
	for _, index := range db.indexes {
		if err := index.UndoAll(); err != nil {
			return db.check(fmt.Errorf("undo all '%s': %w", index.Name(), err))
		}
	}
	return nil
}

// SetRevision is only allowed when no index has pending undo frames.
func (db *Database) SetRevision(revision int64) error {
	for _, index := range db.indexes {
		if index.UndoFrames() > 0 {
			return fmt.Errorf("set revision '%s': %w", index.Name(), collection.ErrActiveUndoStack)
		}
	}
	for _, index := range db.indexes {
		if err := index.SetRevision(revision); err != nil {
			return fmt.Errorf("set revision '%s': %w", index.Name(), err)
		}
	}
	return nil
}

// Flush writes the image of every index into the segment. The caller holds
// at least a read lock.
func (db *Database) Flush() error {

	if db.config.ReadOnly {
		return nil
	}
	if db.GetStatus() == StatusCorrupted {
		return ErrCorrupted
	}

	t0 := time.Now()
	for _, index := range db.indexes {
		data, err := index.encode(db.codec)
		if err != nil {
			return fmt.Errorf("flush '%s': %w", index.Name(), err)
		}
		if err := db.segment.Put(index.Name(), data); err != nil {
			return err
		}
	}
	if err := db.segment.Flush(); err != nil {
		return err
	}

	db.logger.Debug("database flushed",
		zap.Uint64("used", db.segment.Used()),
		zap.Duration("took", time.Since(t0)),
	)

	return nil
}

// Close flushes the database and clears the dirty flag. A corrupted
// database keeps its last flushed image and stays dirty.
func (db *Database) Close() error {

	corrupted := db.GetStatus() == StatusCorrupted
	db.status.Store(StatusClosing)

	if db.config.ReadOnly {
		return nil
	}
	if corrupted {
		db.status.Store(StatusCorrupted)
		return ErrCorrupted
	}

	var err error
	err = multierr.Append(err, db.locks.WithWriteLock(db.config.LockTimeout, db.Flush))
	if err == nil {
		err = multierr.Append(err, segment.MarkClean(db.config.Dir))
	}
	if err != nil {
		db.logger.Error("close database", zap.Error(err))
		return err
	}

	db.logger.Info("database closed")
	return nil
}

// Load checks that every registered index shares the same undo revisions
// and moves the database to operating. Indices must be added before.
func (db *Database) Load() error {

	if db.GetStatus() != StatusOpening {
		return nil
	}

	begin, end := db.UndoStackRevisionRange()
	for _, index := range db.indexes {
		b, e := index.UndoStackRevisionRange()
		if b != begin || e != end {
			return db.check(fmt.Errorf("load '%s': revisions %d..%d, expected %d..%d: %w",
				index.Name(), b, e, begin, end, collection.ErrCorruption))
		}
	}

	db.status.Store(StatusOperating)

	db.logger.Info("database operating",
		zap.Int("indexes", len(db.indexes)),
		zap.Int64("revision", db.Revision()),
	)

	return nil
}

// Start flushes the database periodically until Stop is called.
func (db *Database) Start() error {

	if err := db.Load(); err != nil {
		return err
	}

	var stop chan struct{}
	if db.config.FlushInterval > 0 && !db.config.ReadOnly {
		stop = db.startBackgroundFlusher(db.config.FlushInterval)
	}

	<-db.exit

	if stop != nil {
		close(stop)
	}

	return nil
}

func (db *Database) Stop() error {
	err := ErrClosed
	db.stopOnce.Do(func() {
		defer close(db.exit)
		err = db.Close()
	})
	return err
}

func (db *Database) startBackgroundFlusher(interval time.Duration) chan struct{} {
	stopChan := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if db.GetStatus() != StatusOperating {
					continue
				}
				err := db.WithReadLock(db.config.LockTimeout, db.Flush)
				if err != nil {
					db.logger.Warn("background flush", zap.Error(err))
				}
			case <-stopChan:
				return
			}
		}
	}()

	return stopChan
}

// ProcessStep drains one entry of the oldest cache frame of the named index
// into its backup image. The caller holds the write lock.
func (db *Database) ProcessStep(name string) (bool, error) {
	index, exists := db.Index(name)
	if !exists {
		return false, fmt.Errorf("%w: '%s'", ErrIndexNotRegistered, name)
	}
	if err := db.writable(0); err != nil {
		return false, err
	}
	processed, err := index.ProcessStep()
	return processed, db.check(err)
}

// RemoveObject removes the record id of the named index. The caller holds
// the write lock.
func (db *Database) RemoveObject(name string, id int64) error {
	index, exists := db.Index(name)
	if !exists {
		return fmt.Errorf("%w: '%s'", ErrIndexNotRegistered, name)
	}
	if err := db.writable(0); err != nil {
		return err
	}
	return db.check(index.RemoveObject(id))
}

// dataBlock prefixes named data blocks so they never collide with an index.
const dataBlock = "data:"

// SaveData stores v encoded with the database codec in the named block. It
// is persisted with the next flush. The caller holds the write lock.
func (db *Database) SaveData(name string, v any) error {
	if err := db.writable(0); err != nil {
		return err
	}
	data, err := db.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("save data '%s': %w", name, err)
	}
	return db.segment.Put(dataBlock+name, data)
}

// GetData decodes the named block into v and reports whether it exists.
// The caller holds at least a read lock.
func (db *Database) GetData(name string, v any) (bool, error) {
	data, found := db.segment.Find(dataBlock + name)
	if !found {
		return false, nil
	}
	if err := db.codec.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("%w: data '%s': %v", segment.ErrCorrupted, name, err)
	}
	return true, nil
}
