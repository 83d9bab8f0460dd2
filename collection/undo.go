package collection

import (
	"fmt"
)

// UndoState is one frame of the undo stack. An identity appears in at most
// one of OldValues, RemovedValues and NewIDs.
type UndoState[T any] struct {
	OldValues     map[OID[T]]*T
	RemovedValues map[OID[T]]*T
	NewIDs        map[OID[T]]bool
	OldNextID     OID[T]
	Revision      int64
}

func newUndoState[T any](nextID OID[T], revision int64) *UndoState[T] {
	return &UndoState[T]{
		OldValues:     map[OID[T]]*T{},
		RemovedValues: map[OID[T]]*T{},
		NewIDs:        map[OID[T]]bool{},
		OldNextID:     nextID,
		Revision:      revision,
	}
}

func (c *Collection[T, PT]) head() *UndoState[T] {
	if len(c.stack) == 0 {
		return nil
	}
	return c.stack[len(c.stack)-1]
}

func (c *Collection[T, PT]) onCreate(id OID[T]) {
	head := c.head()
	if head == nil {
		return
	}
	head.NewIDs[id] = true
}

func (c *Collection[T, PT]) onModify(old *T) {
	head := c.head()
	if head == nil {
		return
	}
	id := PT(old).GetID()
	if head.NewIDs[id] {
		return
	}
	if _, exists := head.OldValues[id]; exists {
		return
	}
	head.OldValues[id] = old
}

func (c *Collection[T, PT]) onRemove(old *T) {
	head := c.head()
	if head == nil {
		return
	}
	id := PT(old).GetID()
	if head.NewIDs[id] {
		delete(head.NewIDs, id)
		return
	}
	if previous, exists := head.OldValues[id]; exists {
		head.RemovedValues[id] = previous
		delete(head.OldValues, id)
		return
	}
	if _, exists := head.RemovedValues[id]; exists {
		return
	}
	head.RemovedValues[id] = old
}

func (c *Collection[T, PT]) corrupted(operation string, id OID[T], err error) error {
	return fmt.Errorf("%s %s %d: %w: %v", operation, c.Name, id, ErrCorruption, err)
}

// Undo reverts the newest frame and decrements the revision. Creations are
// reverted first, then modifications, then removals, so that a unique key
// released by one step is free for the next.
func (c *Collection[T, PT]) Undo() error {

	head := c.head()
	if head == nil {
		return nil
	}

	compensate := !c.releaseCache(head.Revision)

	for _, id := range sortedIDs(head.NewIDs) {
		row, found := c.lookup(id)
		if !found {
			return c.corrupted("undo create", id, ErrNotFound)
		}
		c.indexRemove(row)
		if compensate {
			c.cacheRemove(id)
		}
	}
	c.nextID = head.OldNextID

	modified := sortedIDs(head.OldValues)
	for _, id := range modified {
		row, found := c.lookup(id)
		if !found {
			return c.corrupted("undo modify", id, ErrNotFound)
		}
		c.indexRemove(row)
	}
	for _, id := range modified {
		old := head.OldValues[id]
		if err := c.indexInsert(old); err != nil {
			return c.corrupted("undo modify", id, err)
		}
		if compensate {
			c.cacheModify(old)
		}
	}

	for _, id := range sortedIDs(head.RemovedValues) {
		old := head.RemovedValues[id]
		if _, exists := c.lookup(id); exists {
			return c.corrupted("undo remove", id, ErrUniqueViolation)
		}
		if err := c.indexInsert(old); err != nil {
			return c.corrupted("undo remove", id, err)
		}
		if compensate {
			c.cacheRestore(old)
		}
	}

	c.stack = c.stack[:len(c.stack)-1]
	c.revision--

	return nil
}

// UndoAll unwinds the whole undo stack.
func (c *Collection[T, PT]) UndoAll() error {
	for len(c.stack) > 0 {
		if err := c.Undo(); err != nil {
			return err
		}
	}
	return nil
}

// Squash merges the two newest frames into one. A lone frame is dropped
// and its changes become part of the base state.
//
//	prev \ last | new  | upd(Y)  | del(Y)  | nop
//	new         | -    | new     | nop     | new
//	upd(X)      | -    | upd(X)  | del(X)  | upd(X)
//	del(X)      | -    | -       | -       | del(X)
//	nop         | new  | upd(Y)  | del(Y)  | nop
//
// Combinations marked "-" cannot happen without corruption.
func (c *Collection[T, PT]) Squash() error {

	if len(c.stack) == 0 {
		return nil
	}

	if len(c.stack) == 1 {
		c.disownCache(c.stack[0].Revision)
		c.stack = c.stack[:0]
		c.revision--
		return nil
	}

	state := c.stack[len(c.stack)-1]
	prev := c.stack[len(c.stack)-2]

	for id := range state.OldValues {
		if _, exists := prev.RemovedValues[id]; exists {
			return c.corrupted("squash", id, fmt.Errorf("modified after removal"))
		}
	}
	for id := range state.NewIDs {
		_, modified := prev.OldValues[id]
		_, removed := prev.RemovedValues[id]
		if prev.NewIDs[id] || modified || removed {
			return c.corrupted("squash", id, fmt.Errorf("identity created twice"))
		}
	}
	for id := range state.RemovedValues {
		if _, exists := prev.RemovedValues[id]; exists {
			return c.corrupted("squash", id, fmt.Errorf("removed twice"))
		}
	}

	owned := c.ownsCache(state.Revision)
	if owned {
		if err := c.squashCache(); err != nil {
			return err
		}
	}

	for id, old := range state.OldValues {
		if prev.NewIDs[id] {
			continue
		}
		if _, exists := prev.OldValues[id]; exists {
			continue
		}
		prev.OldValues[id] = old
	}

	for id := range state.NewIDs {
		prev.NewIDs[id] = true
	}

	for id, old := range state.RemovedValues {
		if prev.NewIDs[id] {
			delete(prev.NewIDs, id)
			continue
		}
		if previous, exists := prev.OldValues[id]; exists {
			prev.RemovedValues[id] = previous
			delete(prev.OldValues, id)
			continue
		}
		prev.RemovedValues[id] = old
	}

	c.stack = c.stack[:len(c.stack)-1]
	if owned {
		c.disownCache(state.Revision)
	}
	c.revision--

	return nil
}

// Commit discards every frame with a revision lower or equal than revision.
// Those changes can not be undone anymore.
func (c *Collection[T, PT]) Commit(revision int64) {
	for len(c.stack) > 0 && c.stack[0].Revision <= revision {
		c.stack = c.stack[1:]
	}
	for _, state := range c.cache {
		if state.Owner > 0 && state.Owner <= revision {
			state.Owner = 0
		}
	}
}

// SetRevision is only allowed with an empty undo stack.
func (c *Collection[T, PT]) SetRevision(revision int64) error {
	if len(c.stack) != 0 {
		return ErrActiveUndoStack
	}
	if revision < 0 {
		return fmt.Errorf("revision %d out of range", revision)
	}
	c.revision = revision
	if c.cacheOn && len(c.cache) == 0 {
		c.cache = append(c.cache, newCacheState[T](0))
	}
	return nil
}

// UndoStackRevisionRange returns the revision before the oldest frame and
// the revision of the newest one.
func (c *Collection[T, PT]) UndoStackRevisionRange() (begin, end int64) {
	begin, end = c.revision, c.revision
	if len(c.stack) > 0 {
		begin = c.stack[0].Revision - 1
		end = c.stack[len(c.stack)-1].Revision
	}
	return
}

// hasFrame tells whether the frame opened at revision is still on the stack.
func (c *Collection[T, PT]) hasFrame(revision int64) bool {
	if len(c.stack) == 0 {
		return false
	}
	return c.stack[0].Revision <= revision && revision <= c.stack[len(c.stack)-1].Revision
}

func (c *Collection[T, PT]) UndoFrames() int {
	return len(c.stack)
}

func (c *Collection[T, PT]) StartUndoSession(enabled bool) *Session {
	if !enabled {
		return &Session{target: c, revision: -1}
	}

	c.revision++
	c.stack = append(c.stack, newUndoState(c.nextID, c.revision))
	if c.cacheOn {
		c.cache = append(c.cache, newCacheState[T](c.revision))
	}

	return &Session{target: c, revision: c.revision, apply: true}
}

func (c *Collection[T, PT]) push(revision int64, checkpoint bool) error {

	if c.checkpoint {
		c.checkpoint = false
		return nil
	}

	if c.ownsCache(revision) {
		if err := c.squashCache(); err != nil {
			return err
		}
		c.disownCache(revision)
	}

	if checkpoint {
		for len(c.cache) > c.cacheDepth {
			if err := c.squashCache(); err != nil {
				return err
			}
		}
		c.checkpoint = true
	}

	return nil
}
