package collection

import (
	"fmt"
)

// CacheState is one frame of the cache queue: forward-only deltas used to
// move the backup image from one checkpoint to the next. Its three key sets
// are disjoint.
type CacheState[T any] struct {
	NewValues    map[OID[T]]*T
	ModifyValues map[OID[T]]*T
	RemovedIDs   map[OID[T]]bool

	// Owner is the revision of the undo frame that opened this cache frame
	// while it still holds exactly that frame's changes, 0 otherwise.
	Owner int64
}

func newCacheState[T any](owner int64) *CacheState[T] {
	return &CacheState[T]{
		NewValues:    map[OID[T]]*T{},
		ModifyValues: map[OID[T]]*T{},
		RemovedIDs:   map[OID[T]]bool{},
		Owner:        owner,
	}
}

func (s *CacheState[T]) Len() int {
	return len(s.NewValues) + len(s.ModifyValues) + len(s.RemovedIDs)
}

func (c *Collection[T, PT]) cacheHead() *CacheState[T] {
	if !c.cacheOn || len(c.cache) == 0 {
		return nil
	}
	return c.cache[len(c.cache)-1]
}

func (c *Collection[T, PT]) cacheCreate(row *T) {
	head := c.cacheHead()
	if head == nil {
		return
	}
	head.NewValues[PT(row).GetID()] = row
}

func (c *Collection[T, PT]) cacheModify(row *T) {
	head := c.cacheHead()
	if head == nil {
		return
	}
	id := PT(row).GetID()
	if _, exists := head.NewValues[id]; exists {
		head.NewValues[id] = row
		return
	}
	head.ModifyValues[id] = row
}

func (c *Collection[T, PT]) cacheRemove(id OID[T]) {
	head := c.cacheHead()
	if head == nil {
		return
	}
	if _, exists := head.NewValues[id]; exists {
		delete(head.NewValues, id)
		return
	}
	delete(head.ModifyValues, id)
	head.RemovedIDs[id] = true
}

// cacheRestore records a removed record coming back to life.
func (c *Collection[T, PT]) cacheRestore(row *T) {
	head := c.cacheHead()
	if head == nil {
		return
	}
	id := PT(row).GetID()
	if head.RemovedIDs[id] {
		delete(head.RemovedIDs, id)
		head.ModifyValues[id] = row
		return
	}
	head.NewValues[id] = row
}

// ownsCache tells whether the newest cache frame holds exactly the changes
// of the undo frame with the given revision.
func (c *Collection[T, PT]) ownsCache(revision int64) bool {
	head := c.cacheHead()
	return head != nil && head.Owner == revision
}

func (c *Collection[T, PT]) disownCache(revision int64) {
	if c.ownsCache(revision) {
		c.cacheHead().Owner = 0
	}
}

// releaseCache drops the cache frame owned by the undo frame being reverted.
// It returns false when the changes must be compensated in the newest frame.
func (c *Collection[T, PT]) releaseCache(revision int64) bool {
	if !c.cacheOn || len(c.cache) == 0 {
		return true
	}
	if !c.ownsCache(revision) {
		return false
	}
	if len(c.cache) == 1 {
		c.cache[0] = newCacheState[T](0)
		return true
	}
	c.cache = c.cache[:len(c.cache)-1]
	return true
}

// squashCache merges the newest cache frame into the previous one.
func (c *Collection[T, PT]) squashCache() error {

	if !c.cacheOn || len(c.cache) < 2 {
		return nil
	}

	state := c.cache[len(c.cache)-1]
	prev := c.cache[len(c.cache)-2]

	for id, row := range state.ModifyValues {
		if _, exists := prev.NewValues[id]; exists {
			prev.NewValues[id] = row
			continue
		}
		if prev.RemovedIDs[id] {
			return c.corrupted("squash cache", id, fmt.Errorf("modified after removal"))
		}
		prev.ModifyValues[id] = row
	}

	for id, row := range state.NewValues {
		if prev.RemovedIDs[id] {
			delete(prev.RemovedIDs, id)
			prev.ModifyValues[id] = row
			continue
		}
		prev.NewValues[id] = row
	}

	for id := range state.RemovedIDs {
		if _, exists := prev.NewValues[id]; exists {
			delete(prev.NewValues, id)
			continue
		}
		if prev.RemovedIDs[id] {
			return c.corrupted("squash cache", id, fmt.Errorf("removed twice"))
		}
		delete(prev.ModifyValues, id)
		prev.RemovedIDs[id] = true
	}

	c.cache = c.cache[:len(c.cache)-1]

	return nil
}

func (c *Collection[T, PT]) CacheFrames() int {
	return len(c.cache)
}

// CacheFrame returns the cache frame at position i, the oldest being 0.
func (c *Collection[T, PT]) CacheFrame(i int) *CacheState[T] {
	if i < 0 || i >= len(c.cache) {
		return nil
	}
	return c.cache[i]
}

func (c *Collection[T, PT]) Checkpoint() bool {
	return c.checkpoint
}
