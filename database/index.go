package database

import (
	"fmt"
	"reflect"
	"slices"

	"go.uber.org/zap"

	"github.com/fulldump/ledgerdb/collection"
	"github.com/fulldump/ledgerdb/segment"
)

// AbstractIndex is the type-erased view of one registered index used for
// the operations that apply to every index at once.
type AbstractIndex interface {
	Name() string
	TypeID() uint16
	Len() int
	Revision() int64
	UndoStackRevisionRange() (begin, end int64)
	UndoFrames() int
	CacheFrames() int
	BackupLen() int
	Footprint() int
	RecordSize() int

	StartUndoSession(enabled bool) *collection.Session
	Undo() error
	UndoAll() error
	Squash() error
	Commit(revision int64)
	SetRevision(revision int64) error
	ProcessStep() (bool, error)

	RemoveObject(id int64) error
	FindObject(id int64) (any, bool)
	TraverseObjects(backup bool, from int64, f func(id int64, record any) bool)

	encode(codec segment.Codec) ([]byte, error)
	decode(codec segment.Codec, data []byte) error
}

type index[T any, PT collection.Object[T]] struct {
	*collection.Collection[T, PT]
	signature *segment.Signature
}

// block is the content of a segment block. The image is encoded on its own
// so the signature can be checked before decoding records.
type block struct {
	Signature *segment.Signature
	Image     []byte
}

func (i *index[T, PT]) Name() string {
	return i.Collection.Name
}

func (i *index[T, PT]) TypeID() uint16 {
	return i.Collection.TypeID
}

func (i *index[T, PT]) RecordSize() int {
	return recordSize[T]()
}

func (i *index[T, PT]) FindObject(id int64) (any, bool) {
	row, found := i.Find(collection.OID[T](id))
	if !found {
		return nil, false
	}
	return row, true
}

// TraverseObjects walks the live records, or the backup image when backup
// is set, in identity order starting at identity from.
func (i *index[T, PT]) TraverseObjects(backup bool, from int64, f func(id int64, record any) bool) {
	visit := func(row T) bool {
		return f(int64(PT(&row).GetID()), row)
	}
	if backup {
		i.TraverseBackupFrom(collection.OID[T](from), visit)
		return
	}
	start := new(T)
	PT(start).SetID(collection.OID[T](from))
	i.Traverse(collection.PrimaryIndex, &collection.TraverseOptions[T]{From: start}, visit)
}

func (i *index[T, PT]) encode(codec segment.Codec) ([]byte, error) {
	image, err := codec.Marshal(i.Image())
	if err != nil {
		return nil, err
	}
	return codec.Marshal(&block{
		Signature: i.signature,
		Image:     image,
	})
}

func (i *index[T, PT]) decode(codec segment.Codec, data []byte) error {

	stored := &block{}
	if err := codec.Unmarshal(data, stored); err != nil {
		return fmt.Errorf("%w: block '%s': %v", segment.ErrCorrupted, i.Name(), err)
	}
	if stored.Signature == nil {
		return fmt.Errorf("%w: block '%s' without signature", segment.ErrCorrupted, i.Name())
	}
	if err := i.signature.Check(stored.Signature); err != nil {
		return err
	}

	image := &collection.Image[T]{}
	if err := codec.Unmarshal(stored.Image, image); err != nil {
		return fmt.Errorf("%w: image '%s': %v", segment.ErrCorrupted, i.Name(), err)
	}

	return i.Restore(image)
}

func recordSize[T any]() int {
	return int(reflect.TypeFor[T]().Size())
}

// AddIndex registers the index of records of type T. The persisted image
// is loaded when the segment holds one, otherwise the new index is aligned
// to the revisions of the indices already registered. It must be called
// before the database is shared between goroutines.
func AddIndex[T any, PT collection.Object[T]](db *Database, options *collection.Options[T]) (*collection.Collection[T, PT], error) {

	typ := reflect.TypeFor[T]()

	if registered, exists := db.byType[typ]; exists {
		return nil, fmt.Errorf("add index %s: %w as '%s'", typ, ErrAlreadyRegistered, registered.Name())
	}
	for _, registered := range db.indexes {
		if registered.TypeID() == options.TypeID {
			return nil, fmt.Errorf("add index '%s': %w: type id %d used by '%s'", options.Name, ErrAlreadyRegistered, options.TypeID, registered.Name())
		}
		if registered.Name() == options.Name {
			return nil, fmt.Errorf("add index '%s': %w", options.Name, ErrAlreadyRegistered)
		}
	}

	opts := *options
	opts.Cache = opts.Cache || db.config.Cache
	if opts.CacheDepth == 0 {
		opts.CacheDepth = db.config.CacheDepth
	}

	c, err := collection.NewCollection[T, PT](&opts)
	if err != nil {
		return nil, fmt.Errorf("add index '%s': %w", opts.Name, err)
	}

	i := &index[T, PT]{
		Collection: c,
		signature:  segment.NewSignature(opts.Name, opts.TypeID, typ, reflect.TypeFor[collection.Collection[T, PT]]().Size()),
	}

	data, persisted := db.segment.Find(opts.Name)
	switch {
	case persisted:
		if err := i.decode(db.codec, data); err != nil {
			return nil, fmt.Errorf("add index '%s': %w", opts.Name, err)
		}
	case db.config.ReadOnly:
		return nil, fmt.Errorf("add index '%s': %w in read only database", opts.Name, ErrNotPersisted)
	}

	if err := db.align(i, persisted); err != nil {
		return nil, fmt.Errorf("add index '%s': %w", opts.Name, err)
	}

	db.indexes = append(db.indexes, i)
	slices.SortFunc(db.indexes, func(a, b AbstractIndex) int {
		return int(a.TypeID()) - int(b.TypeID())
	})
	db.byType[typ] = i

	begin, end := i.UndoStackRevisionRange()
	db.logger.Info("index registered",
		zap.String("index", opts.Name),
		zap.Uint16("type_id", opts.TypeID),
		zap.Bool("persisted", persisted),
		zap.Int("rows", c.Len()),
		zap.Int64("undo_begin", begin),
		zap.Int64("undo_end", end),
	)

	return c, nil
}

// align makes a new index share the undo revisions of the registered ones.
// A persisted index must already share them.
func (db *Database) align(i AbstractIndex, persisted bool) error {

	if len(db.indexes) == 0 {
		return nil
	}

	begin, end := db.indexes[0].UndoStackRevisionRange()

	if persisted {
		b, e := i.UndoStackRevisionRange()
		if b != begin || e != end {
			return fmt.Errorf("%w: undo revisions [%d, %d], database [%d, %d]", collection.ErrCorruption, b, e, begin, end)
		}
		return nil
	}

	if err := i.SetRevision(begin); err != nil {
		return err
	}
	for revision := begin; revision < end; revision++ {
		if err := i.StartUndoSession(true).Push(); err != nil {
			return err
		}
	}

	return nil
}

// IndexOf returns the index registered for records of type T.
func IndexOf[T any, PT collection.Object[T]](db *Database) (*collection.Collection[T, PT], error) {
	registered, exists := db.byType[reflect.TypeFor[T]()]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotRegistered, reflect.TypeFor[T]())
	}
	return registered.(*index[T, PT]).Collection, nil
}

func Create[T any, PT collection.Object[T]](db *Database, init func(*T)) (T, error) {
	var zero T
	c, err := IndexOf[T, PT](db)
	if err != nil {
		return zero, err
	}
	if err := db.writable(recordSize[T]()); err != nil {
		return zero, err
	}
	return c.Create(init)
}

func Modify[T any, PT collection.Object[T]](db *Database, id collection.OID[T], mutator func(*T)) error {
	c, err := IndexOf[T, PT](db)
	if err != nil {
		return err
	}
	if err := db.writable(recordSize[T]()); err != nil {
		return err
	}
	return c.Modify(id, mutator)
}

func Remove[T any, PT collection.Object[T]](db *Database, id collection.OID[T]) error {
	c, err := IndexOf[T, PT](db)
	if err != nil {
		return err
	}
	if err := db.writable(0); err != nil {
		return err
	}
	return c.Remove(id)
}

func Find[T any, PT collection.Object[T]](db *Database, id collection.OID[T]) (T, bool) {
	c, err := IndexOf[T, PT](db)
	if err != nil {
		var zero T
		return zero, false
	}
	return c.Find(id)
}

func Get[T any, PT collection.Object[T]](db *Database, id collection.OID[T]) (T, error) {
	c, err := IndexOf[T, PT](db)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.Get(id)
}

func FindBy[T any, PT collection.Object[T]](db *Database, indexName string, key T) (T, bool) {
	c, err := IndexOf[T, PT](db)
	if err != nil {
		var zero T
		return zero, false
	}
	return c.FindBy(indexName, key)
}

func GetBy[T any, PT collection.Object[T]](db *Database, indexName string, key T) (T, error) {
	c, err := IndexOf[T, PT](db)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.GetBy(indexName, key)
}

func Traverse[T any, PT collection.Object[T]](db *Database, indexName string, options *collection.TraverseOptions[T], f func(T) bool) error {
	c, err := IndexOf[T, PT](db)
	if err != nil {
		return err
	}
	return c.Traverse(indexName, options, f)
}
