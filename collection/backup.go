package collection

import (
	"fmt"
)

func (c *Collection[T, PT]) front() *CacheState[T] {
	if !c.cacheOn || len(c.cache) == 0 {
		return nil
	}
	front := c.cache[0]
	front.Owner = 0
	return front
}

// popFront drops the oldest cache frame once drained, the newest one always
// stays open to collect writes.
func (c *Collection[T, PT]) popFront() bool {
	if len(c.cache) < 2 || c.cache[0].Len() > 0 {
		return false
	}
	c.cache = c.cache[1:]
	return true
}

func (c *Collection[T, PT]) backupRemove(id OID[T]) error {
	if _, found := c.backup.Delete(c.pivot(id)); !found {
		return c.corrupted("process cache removal", id, ErrNotFound)
	}
	return nil
}

func (c *Collection[T, PT]) backupModify(id OID[T], row *T) error {
	if !c.backup.Has(c.pivot(id)) {
		return c.corrupted("process cache modification", id, ErrNotFound)
	}
	c.backup.ReplaceOrInsert(row)
	return nil
}

func (c *Collection[T, PT]) backupInsert(id OID[T], row *T) error {
	if c.backup.Has(c.pivot(id)) {
		return c.corrupted("process cache creation", id, ErrUniqueViolation)
	}
	c.backup.ReplaceOrInsert(row)
	return nil
}

// ProcessCache drains the oldest cache frame into the backup image. Every
// removed or modified record must already be part of the backup.
func (c *Collection[T, PT]) ProcessCache() error {

	head := c.front()
	if head == nil {
		return nil
	}

	for _, id := range sortedIDs(head.RemovedIDs) {
		if err := c.backupRemove(id); err != nil {
			return err
		}
		delete(head.RemovedIDs, id)
	}

	for _, id := range sortedIDs(head.ModifyValues) {
		if err := c.backupModify(id, head.ModifyValues[id]); err != nil {
			return err
		}
		delete(head.ModifyValues, id)
	}

	for _, id := range sortedIDs(head.NewValues) {
		if err := c.backupInsert(id, head.NewValues[id]); err != nil {
			return err
		}
		delete(head.NewValues, id)
	}

	c.popFront()

	return nil
}

// ProcessTable applies the removals and modifications of the oldest frame
// that touch records present in the backup and moves the new records keep
// accepts. Everything else stays in the frame.
func (c *Collection[T, PT]) ProcessTable(keep func(T) bool) error {

	head := c.front()
	if head == nil {
		return nil
	}

	for _, id := range sortedIDs(head.RemovedIDs) {
		if _, found := c.backup.Delete(c.pivot(id)); found {
			delete(head.RemovedIDs, id)
		}
	}

	for _, id := range sortedIDs(head.ModifyValues) {
		if c.backup.Has(c.pivot(id)) {
			c.backup.ReplaceOrInsert(head.ModifyValues[id])
			delete(head.ModifyValues, id)
		}
	}

	for _, id := range sortedIDs(head.NewValues) {
		row := head.NewValues[id]
		if keep != nil && !keep(*c.clone(row)) {
			continue
		}
		if err := c.backupInsert(id, row); err != nil {
			return err
		}
		delete(head.NewValues, id)
	}

	return nil
}

// ProcessCreate moves a single creation of the oldest frame into the backup.
func (c *Collection[T, PT]) ProcessCreate() (OID[T], bool, error) {

	head := c.front()
	if head == nil || len(head.NewValues) == 0 {
		return 0, false, nil
	}

	id := sortedIDs(head.NewValues)[0]
	if err := c.backupInsert(id, head.NewValues[id]); err != nil {
		return id, false, err
	}
	delete(head.NewValues, id)

	return id, true, nil
}

// ProcessStep drains one entry of the oldest frame, removals first, and
// drops the frame once it is empty. It returns false when there was nothing
// to do.
func (c *Collection[T, PT]) ProcessStep() (bool, error) {

	head := c.front()
	if head == nil {
		return false, nil
	}

	switch {
	case len(head.RemovedIDs) > 0:
		id := sortedIDs(head.RemovedIDs)[0]
		if err := c.backupRemove(id); err != nil {
			return false, err
		}
		delete(head.RemovedIDs, id)
	case len(head.ModifyValues) > 0:
		id := sortedIDs(head.ModifyValues)[0]
		if err := c.backupModify(id, head.ModifyValues[id]); err != nil {
			return false, err
		}
		delete(head.ModifyValues, id)
	case len(head.NewValues) > 0:
		id := sortedIDs(head.NewValues)[0]
		if err := c.backupInsert(id, head.NewValues[id]); err != nil {
			return false, err
		}
		delete(head.NewValues, id)
	default:
		return c.popFront(), nil
	}

	c.popFront()

	return true, nil
}

// BackupEmplace inserts a record straight into the backup image.
func (c *Collection[T, PT]) BackupEmplace(record T) error {
	row := c.clone(&record)
	if c.backup.Has(row) {
		return fmt.Errorf("backup %s %d: %w", c.Name, PT(row).GetID(), ErrUniqueViolation)
	}
	c.backup.ReplaceOrInsert(row)
	return nil
}

func (c *Collection[T, PT]) FindBackup(id OID[T]) (T, bool) {
	row, found := c.backup.Get(c.pivot(id))
	if !found {
		var zero T
		return zero, false
	}
	return *c.clone(row), true
}

func (c *Collection[T, PT]) TraverseBackup(f func(T) bool) {
	c.TraverseBackupFrom(0, f)
}

// TraverseBackupFrom walks the backup image from identity from onwards.
func (c *Collection[T, PT]) TraverseBackupFrom(from OID[T], f func(T) bool) {
	c.backup.AscendGreaterOrEqual(c.pivot(from), func(row *T) bool {
		return f(*c.clone(row))
	})
}

func (c *Collection[T, PT]) BackupLen() int {
	return c.backup.Len()
}
