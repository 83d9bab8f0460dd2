package collection

import (
	"fmt"
	"maps"
	"slices"

	"github.com/google/btree"
)

// Collection holds every live record of one type, its secondary orderings,
// the undo stack, the cache queue and the backup image built from it.
type Collection[T any, PT Object[T]] struct {
	Name    string
	TypeID  uint16
	Indexes map[string]*IndexBtree[T, PT]

	rows    *IndexBtree[T, PT]
	indexes []*IndexBtree[T, PT]
	backup  *btree.BTreeG[*T]

	stack      []*UndoState[T]
	cache      []*CacheState[T]
	cacheOn    bool
	cacheDepth int
	checkpoint bool

	nextID   OID[T]
	revision int64
}

func NewCollection[T any, PT Object[T]](options *Options[T]) (*Collection[T, PT], error) {

	if err := options.validate(); err != nil {
		return nil, err
	}

	c := &Collection[T, PT]{
		Name:       options.Name,
		TypeID:     options.TypeID,
		Indexes:    map[string]*IndexBtree[T, PT]{},
		rows:       newPrimaryIndex[T, PT](),
		cacheOn:    options.Cache,
		cacheDepth: max(options.CacheDepth, 1),
	}
	c.backup = btree.NewG(32, c.rows.less)

	for _, indexOptions := range options.Indexes {
		index := NewIndexBTree[T, PT](indexOptions)
		c.Indexes[indexOptions.Name] = index
		c.indexes = append(c.indexes, index)
	}

	if c.cacheOn {
		c.cache = append(c.cache, newCacheState[T](0))
	}

	return c, nil
}

func (c *Collection[T, PT]) pivot(id OID[T]) *T {
	p := new(T)
	PT(p).SetID(id)
	return p
}

func (c *Collection[T, PT]) clone(v *T) *T {
	if cloner, ok := any(v).(Cloner[T]); ok {
		n := cloner.Clone()
		return &n
	}
	n := *v
	return &n
}

func (c *Collection[T, PT]) checkUnique(row *T) error {
	for _, index := range c.indexes {
		if err := index.Conflict(row); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collection[T, PT]) indexInsert(row *T) error {
	if err := c.checkUnique(row); err != nil {
		return err
	}
	for _, index := range c.indexes {
		index.Btree.ReplaceOrInsert(row)
	}
	c.rows.Btree.ReplaceOrInsert(row)
	return nil
}

func (c *Collection[T, PT]) indexRemove(row *T) {
	for _, index := range c.indexes {
		index.RemoveRow(row)
	}
	c.rows.RemoveRow(row)
}

func (c *Collection[T, PT]) lookup(id OID[T]) (*T, bool) {
	return c.rows.Btree.Get(c.pivot(id))
}

// Create allocates the next identity and inserts the record built by init.
// A uniqueness conflict leaves the collection untouched.
func (c *Collection[T, PT]) Create(init func(*T)) (T, error) {

	id := c.nextID

	row := new(T)
	PT(row).SetID(id)
	if init != nil {
		init(row)
	}
	PT(row).SetID(id)

	if err := c.indexInsert(row); err != nil {
		var zero T
		return zero, fmt.Errorf("create %s: %w", c.Name, err)
	}

	c.nextID++
	c.onCreate(id)
	c.cacheCreate(row)

	return *c.clone(row), nil
}

func (c *Collection[T, PT]) Modify(id OID[T], mutator func(*T)) error {

	old, found := c.lookup(id)
	if !found {
		return fmt.Errorf("modify %s %d: %w", c.Name, id, ErrNotFound)
	}

	row := c.clone(old)
	mutator(row)
	PT(row).SetID(id)

	if err := c.checkUnique(row); err != nil {
		return fmt.Errorf("modify %s %d: %w", c.Name, id, err)
	}

	c.onModify(old)
	c.indexRemove(old)
	if err := c.indexInsert(row); err != nil {
		return c.corrupted("modify", id, err)
	}
	c.cacheModify(row)

	return nil
}

func (c *Collection[T, PT]) Remove(id OID[T]) error {

	row, found := c.lookup(id)
	if !found {
		return fmt.Errorf("remove %s %d: %w", c.Name, id, ErrNotFound)
	}

	c.onRemove(row)
	c.cacheRemove(id)
	c.indexRemove(row)

	return nil
}

// RemoveObject removes by raw identity.
func (c *Collection[T, PT]) RemoveObject(id int64) error {
	return c.Remove(OID[T](id))
}

func (c *Collection[T, PT]) Find(id OID[T]) (T, bool) {
	row, found := c.lookup(id)
	if !found {
		var zero T
		return zero, false
	}
	return *c.clone(row), true
}

func (c *Collection[T, PT]) Get(id OID[T]) (T, error) {
	row, found := c.Find(id)
	if !found {
		return row, fmt.Errorf("%s %d: %w", c.Name, id, ErrNotFound)
	}
	return row, nil
}

// FindBy looks a record up by the key fields of key in the named ordering.
func (c *Collection[T, PT]) FindBy(index string, key T) (T, bool) {
	var zero T
	idx, err := c.Index(index)
	if err != nil {
		return zero, false
	}
	row, found := idx.Find(&key)
	if !found {
		return zero, false
	}
	return *c.clone(row), true
}

func (c *Collection[T, PT]) GetBy(index string, key T) (T, error) {
	if _, err := c.Index(index); err != nil {
		var zero T
		return zero, err
	}
	row, found := c.FindBy(index, key)
	if !found {
		return row, fmt.Errorf("%s by %s: %w", c.Name, index, ErrNotFound)
	}
	return row, nil
}

func (c *Collection[T, PT]) Index(name string) (*IndexBtree[T, PT], error) {
	if name == "" || name == PrimaryIndex {
		return c.rows, nil
	}
	index, exists := c.Indexes[name]
	if !exists {
		return nil, fmt.Errorf("%s: index '%s': %w", c.Name, name, ErrIndexNotFound)
	}
	return index, nil
}

// Traverse walks the named ordering, the primary one when index is empty.
func (c *Collection[T, PT]) Traverse(index string, options *TraverseOptions[T], f func(T) bool) error {
	idx, err := c.Index(index)
	if err != nil {
		return err
	}
	idx.Traverse(options, func(row *T) bool {
		return f(*c.clone(row))
	})
	return nil
}

func (c *Collection[T, PT]) Len() int {
	return c.rows.Len()
}

func (c *Collection[T, PT]) NextID() OID[T] {
	return c.nextID
}

func (c *Collection[T, PT]) Revision() int64 {
	return c.revision
}

// Footprint counts every record copy held by the collection, live rows,
// backup image and frames included.
func (c *Collection[T, PT]) Footprint() int {
	n := c.rows.Len() + c.backup.Len()
	for _, state := range c.stack {
		n += len(state.OldValues) + len(state.RemovedValues)
	}
	for _, state := range c.cache {
		n += len(state.NewValues) + len(state.ModifyValues)
	}
	return n
}

func sortedIDs[T any, V any](m map[OID[T]]V) []OID[T] {
	return slices.Sorted(maps.Keys(m))
}
