package collection

import (
	"fmt"

	"github.com/google/btree"
)

// Image is the persisted form of a collection.
type Image[T any] struct {
	Records    []*T
	Backup     []*T
	Stack      []*UndoState[T]
	Cache      []*CacheState[T]
	NextID     OID[T]
	Revision   int64
	Checkpoint bool
}

func (c *Collection[T, PT]) Image() *Image[T] {

	image := &Image[T]{
		Records:    make([]*T, 0, c.rows.Len()),
		Backup:     make([]*T, 0, c.backup.Len()),
		Stack:      c.stack,
		Cache:      c.cache,
		NextID:     c.nextID,
		Revision:   c.revision,
		Checkpoint: c.checkpoint,
	}

	c.rows.Btree.Ascend(func(row *T) bool {
		image.Records = append(image.Records, row)
		return true
	})
	c.backup.Ascend(func(row *T) bool {
		image.Backup = append(image.Backup, row)
		return true
	})

	return image
}

// Restore replaces the whole content of the collection with image.
func (c *Collection[T, PT]) Restore(image *Image[T]) error {

	rows := newPrimaryIndex[T, PT]()
	indexes := make([]*IndexBtree[T, PT], 0, len(c.indexes))
	byName := map[string]*IndexBtree[T, PT]{}
	for _, index := range c.indexes {
		restored := NewIndexBTree[T, PT](index.Options)
		indexes = append(indexes, restored)
		byName[index.Options.Name] = restored
	}

	for _, row := range image.Records {
		id := PT(row).GetID()
		if id >= image.NextID {
			return c.corrupted("restore", id, fmt.Errorf("identity beyond next id %d", image.NextID))
		}
		if rows.Btree.Has(row) {
			return c.corrupted("restore", id, ErrUniqueViolation)
		}
		for _, index := range indexes {
			if err := index.AddRow(row); err != nil {
				return c.corrupted("restore", id, err)
			}
		}
		rows.Btree.ReplaceOrInsert(row)
	}

	revision := image.Revision - int64(len(image.Stack))
	for _, state := range image.Stack {
		revision++
		if state.Revision != revision {
			return fmt.Errorf("restore %s: %w: undo frame revision %d, expected %d", c.Name, ErrCorruption, state.Revision, revision)
		}
		fillUndoState(state)
	}
	for _, state := range image.Cache {
		fillCacheState(state)
	}

	backup := btree.NewG(32, rows.less)
	for _, row := range image.Backup {
		backup.ReplaceOrInsert(row)
	}

	c.rows = rows
	c.indexes = indexes
	c.Indexes = byName
	c.backup = backup
	c.stack = image.Stack
	c.cache = image.Cache
	c.nextID = image.NextID
	c.revision = image.Revision
	c.checkpoint = image.Checkpoint

	if c.cacheOn && len(c.cache) == 0 {
		c.cache = append(c.cache, newCacheState[T](0))
	}
	if !c.cacheOn {
		c.cache = nil
	}

	return nil
}

// Decoders may leave empty maps as nil.
func fillUndoState[T any](state *UndoState[T]) {
	if state.OldValues == nil {
		state.OldValues = map[OID[T]]*T{}
	}
	if state.RemovedValues == nil {
		state.RemovedValues = map[OID[T]]*T{}
	}
	if state.NewIDs == nil {
		state.NewIDs = map[OID[T]]bool{}
	}
}

func fillCacheState[T any](state *CacheState[T]) {
	if state.NewValues == nil {
		state.NewValues = map[OID[T]]*T{}
	}
	if state.ModifyValues == nil {
		state.ModifyValues = map[OID[T]]*T{}
	}
	if state.RemovedIDs == nil {
		state.RemovedIDs = map[OID[T]]bool{}
	}
}
