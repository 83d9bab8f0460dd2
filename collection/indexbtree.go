package collection

import (
	"fmt"
	"math"

	"github.com/google/btree"
)

type IndexBtree[T any, PT Object[T]] struct {
	Btree   *btree.BTreeG[*T]
	Options *IndexOptions[T]
	less    btree.LessFunc[*T]
}

// TraverseOptions bounds an ordered iteration. From is inclusive, To is
// exclusive and Reverse walks the same range backwards. Only the key fields
// of From and To are read.
type TraverseOptions[T any] struct {
	Reverse bool
	From    *T
	To      *T
}

func NewIndexBTree[T any, PT Object[T]](options *IndexOptions[T]) *IndexBtree[T, PT] {

	less := func(a, b *T) bool {
		if options.Less(a, b) {
			return true
		}
		if options.Less(b, a) {
			return false
		}
		if options.Unique {
			return false
		}
		return PT(a).GetID() < PT(b).GetID()
	}

	return &IndexBtree[T, PT]{
		Btree:   btree.NewG(32, less),
		Options: options,
		less:    less,
	}
}

func newPrimaryIndex[T any, PT Object[T]]() *IndexBtree[T, PT] {
	return NewIndexBTree[T, PT](&IndexOptions[T]{
		Name:   PrimaryIndex,
		Unique: true,
		Less: func(a, b *T) bool {
			return PT(a).GetID() < PT(b).GetID()
		},
	})
}

func (b *IndexBtree[T, PT]) Len() int {
	return b.Btree.Len()
}

// Conflict fails when another record already owns the key of r.
func (b *IndexBtree[T, PT]) Conflict(r *T) error {
	if !b.Options.Unique {
		return nil
	}
	existing, found := b.Btree.Get(r)
	if !found || PT(existing).GetID() == PT(r).GetID() {
		return nil
	}
	return fmt.Errorf("%w: index '%s' key already used by %d", ErrUniqueViolation, b.Options.Name, PT(existing).GetID())
}

func (b *IndexBtree[T, PT]) AddRow(r *T) error {
	if err := b.Conflict(r); err != nil {
		return err
	}
	b.Btree.ReplaceOrInsert(r)
	return nil
}

func (b *IndexBtree[T, PT]) RemoveRow(r *T) {
	b.Btree.Delete(r)
}

// pivot turns a key into the lowest position sharing that key.
func (b *IndexBtree[T, PT]) pivot(key *T) *T {
	if b.Options.Unique {
		return key
	}
	p := *key
	PT(&p).SetID(math.MinInt64)
	return &p
}

func (b *IndexBtree[T, PT]) sameKey(a, c *T) bool {
	return !b.Options.Less(a, c) && !b.Options.Less(c, a)
}

// Find returns the first record, in index order, sharing the key fields of key.
func (b *IndexBtree[T, PT]) Find(key *T) (*T, bool) {
	if b.Options.Unique {
		return b.Btree.Get(key)
	}
	var result *T
	b.Btree.AscendGreaterOrEqual(b.pivot(key), func(item *T) bool {
		if b.sameKey(item, key) {
			result = item
		}
		return false
	})
	return result, result != nil
}

func (b *IndexBtree[T, PT]) Traverse(options *TraverseOptions[T], f func(*T) bool) {

	if options == nil {
		options = &TraverseOptions[T]{}
	}

	hasFrom := options.From != nil
	hasTo := options.To != nil

	var pivotFrom, pivotTo *T
	if hasFrom {
		pivotFrom = b.pivot(options.From)
	}
	if hasTo {
		pivotTo = b.pivot(options.To)
	}

	less := b.less

	if !options.Reverse {
		switch {
		case !hasFrom && !hasTo:
			b.Btree.Ascend(f)
		case hasFrom && !hasTo:
			b.Btree.AscendGreaterOrEqual(pivotFrom, f)
		case !hasFrom && hasTo:
			b.Btree.AscendLessThan(pivotTo, f)
		default:
			b.Btree.AscendRange(pivotFrom, pivotTo, f)
		}
		return
	}

	iterator := func(item *T) bool {
		if hasTo && !less(item, pivotTo) {
			return true
		}
		if hasFrom && less(item, pivotFrom) {
			return false
		}
		return f(item)
	}

	if hasTo {
		b.Btree.DescendLessOrEqual(pivotTo, iterator)
	} else {
		b.Btree.Descend(iterator)
	}
}
