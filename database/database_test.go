package database

import (
	"errors"
	"testing"
	"time"

	. "github.com/fulldump/biff"

	"github.com/fulldump/ledgerdb/collection"
	"github.com/fulldump/ledgerdb/segment"
)

type account struct {
	ID      collection.OID[account]
	Name    string
	Balance int64
}

func (a *account) GetID() collection.OID[account] {
	return a.ID
}

func (a *account) SetID(id collection.OID[account]) {
	a.ID = id
}

type accountV2 struct {
	ID      collection.OID[accountV2]
	Name    string
	Balance int64
	Frozen  bool
}

func (a *accountV2) GetID() collection.OID[accountV2] {
	return a.ID
}

func (a *accountV2) SetID(id collection.OID[accountV2]) {
	a.ID = id
}

type receipt struct {
	ID     collection.OID[receipt]
	Block  int64
	Amount int64
}

func (r *receipt) GetID() collection.OID[receipt] {
	return r.ID
}

func (r *receipt) SetID(id collection.OID[receipt]) {
	r.ID = id
}

func accountOptions() *collection.Options[account] {
	return &collection.Options[account]{
		Name:   "account",
		TypeID: 1,
		Indexes: []*collection.IndexOptions[account]{
			{Name: "by_name", Unique: true, Less: func(a, b *account) bool {
				return a.Name < b.Name
			}},
		},
	}
}

func receiptOptions() *collection.Options[receipt] {
	return &collection.Options[receipt]{
		Name:   "receipt",
		TypeID: 2,
		Indexes: []*collection.IndexOptions[receipt]{
			{Name: "by_block", Less: func(a, b *receipt) bool {
				return a.Block < b.Block
			}},
		},
	}
}

func open(config *Config) *Database {
	db, err := NewDatabase(config)
	if err != nil {
		panic(err)
	}
	return db
}

func register(db *Database) {
	if _, err := AddIndex[account](db, accountOptions()); err != nil {
		panic(err)
	}
	if _, err := AddIndex[receipt](db, receiptOptions()); err != nil {
		panic(err)
	}
}

func TestDatabase_CreateAndFind(t *testing.T) {

	db := open(&Config{Dir: t.TempDir()})
	register(db)

	alice, err := Create[account](db, func(a *account) {
		a.Name = "alice"
		a.Balance = 10
	})
	AssertNil(err)
	AssertEqual(alice.ID, collection.OID[account](0))

	found, err := Get(db, alice.ID)
	AssertNil(err)
	AssertEqual(found, alice)

	byName, exists := FindBy[account](db, "by_name", account{Name: "alice"})
	AssertTrue(exists)
	AssertEqual(byName.ID, alice.ID)

	_, err = Create[account](db, func(a *account) {
		a.Name = "alice"
	})
	AssertTrue(errors.Is(err, collection.ErrUniqueViolation))

	AssertNil(Modify(db, alice.ID, func(a *account) {
		a.Balance = 20
	}))
	found, _ = Get(db, alice.ID)
	AssertEqual(found.Balance, int64(20))

	AssertNil(Remove(db, alice.ID))
	_, exists = Find(db, alice.ID)
	AssertFalse(exists)

	AssertEqual(db.RowCountPerIndex(), map[string]int{"account": 0, "receipt": 0})
	AssertEqual(db.Revision(), int64(0))
}

func TestDatabase_AddIndexTwice(t *testing.T) {

	db := open(&Config{Dir: t.TempDir()})
	register(db)

	_, err := AddIndex[account](db, accountOptions())
	AssertTrue(errors.Is(err, ErrAlreadyRegistered))
	AssertTrue(IsFatal(err))

	_, err = AddIndex[accountV2](db, &collection.Options[accountV2]{Name: "other", TypeID: 2})
	AssertTrue(errors.Is(err, ErrAlreadyRegistered))

	_, err = IndexOf[accountV2](db)
	AssertTrue(errors.Is(err, ErrIndexNotRegistered))

	names := []string{}
	for _, index := range db.Indexes() {
		names = append(names, index.Name())
	}
	AssertEqual(names, []string{"account", "receipt"})
}

func TestDatabase_Session(t *testing.T) {
	Alternative("Setup", func(a *A) {

		db := open(&Config{Dir: t.TempDir()})
		register(db)

		session := db.StartUndoSession(true)
		AssertEqual(session.Revision(), int64(1))

		alice, _ := Create[account](db, func(a *account) {
			a.Name = "alice"
		})
		_, err := Create[receipt](db, func(r *receipt) {
			r.Block = 1
		})
		AssertNil(err)

		a.Alternative("Undo", func(a *A) {
			AssertNil(session.Undo())
			AssertEqual(db.RowCountPerIndex(), map[string]int{"account": 0, "receipt": 0})
			AssertEqual(db.Revision(), int64(0))
		})

		a.Alternative("Close", func(a *A) {
			AssertNil(session.Close())
			_, exists := Find(db, alice.ID)
			AssertFalse(exists)
		})

		a.Alternative("Push and undo", func(a *A) {
			AssertNil(session.Push())
			AssertNil(session.Close())
			AssertEqual(db.RowCountPerIndex(), map[string]int{"account": 1, "receipt": 1})
			AssertEqual(db.Revision(), int64(1))

			AssertNil(db.Undo())
			AssertEqual(db.RowCountPerIndex(), map[string]int{"account": 0, "receipt": 0})
		})

		a.Alternative("Push and commit", func(a *A) {
			AssertNil(session.Push())
			db.Commit(1)

			AssertNil(db.Undo())
			AssertEqual(db.RowCountPerIndex(), map[string]int{"account": 1, "receipt": 1})
			begin, end := db.UndoStackRevisionRange()
			AssertEqual(begin, int64(1))
			AssertEqual(end, int64(1))
		})

		a.Alternative("Nested squash", func(a *A) {
			nested := db.StartUndoSession(true)
			AssertNil(Modify(db, alice.ID, func(a *account) {
				a.Balance = 5
			}))
			AssertNil(nested.Squash())
			AssertNil(session.Push())

			AssertNil(db.UndoAll())
			AssertEqual(db.RowCountPerIndex(), map[string]int{"account": 0, "receipt": 0})
			AssertEqual(db.Revision(), int64(0))
		})

		a.Alternative("Set revision", func(a *A) {
			err := db.SetRevision(10)
			AssertTrue(errors.Is(err, collection.ErrActiveUndoStack))

			AssertNil(session.Squash())
			AssertNil(db.SetRevision(10))
			AssertEqual(db.Revision(), int64(10))
		})
	})
}

func TestDatabase_Disabled(t *testing.T) {

	db := open(&Config{Dir: t.TempDir()})
	register(db)

	session := db.StartUndoSession(false)
	AssertEqual(session.Revision(), int64(-1))
	AssertFalse(session.Active())

	_, err := Create[account](db, func(a *account) {
		a.Name = "alice"
	})
	AssertNil(err)
	AssertNil(session.Close())

	AssertEqual(db.RowCountPerIndex()["account"], 1)
	AssertEqual(db.Revision(), int64(0))
}

func TestDatabase_Persistence(t *testing.T) {

	for _, codec := range []string{"gob", "cbor"} {

		dir := t.TempDir()

		db := open(&Config{Dir: dir, Codec: codec, Cache: true})
		register(db)

		_, err := Create[account](db, func(a *account) {
			a.Name = "alice"
			a.Balance = 1
		})
		AssertNil(err)

		session := db.StartUndoSession(true)
		bob, _ := Create[account](db, func(a *account) {
			a.Name = "bob"
		})
		AssertNil(session.Push())
		AssertNil(db.Close())

		reopened := open(&Config{Dir: dir, Codec: codec, Cache: true})
		register(reopened)

		found, err := Get(reopened, bob.ID)
		AssertNil(err)
		AssertEqual(found.Name, "bob")
		AssertEqual(reopened.Revision(), int64(1))

		AssertNil(reopened.Undo())
		_, exists := Find(reopened, bob.ID)
		AssertFalse(exists)
		AssertEqual(reopened.RowCountPerIndex()["account"], 1)
		AssertNil(reopened.Close())
	}
}

func TestDatabase_Dirty(t *testing.T) {

	dir := t.TempDir()

	db := open(&Config{Dir: dir})
	register(db)
	AssertNil(db.Flush())

	_, err := NewDatabase(&Config{Dir: dir})
	AssertTrue(errors.Is(err, segment.ErrDirty))
	AssertTrue(IsFatal(err))

	_, err = NewDatabase(&Config{Dir: dir, AllowDirty: true})
	AssertNil(err)
}

func TestDatabase_ReadOnly(t *testing.T) {

	dir := t.TempDir()

	_, err := NewDatabase(&Config{Dir: dir, ReadOnly: true})
	AssertNotNil(err)

	db := open(&Config{Dir: dir})
	if _, err := AddIndex[account](db, accountOptions()); err != nil {
		panic(err)
	}
	_, err = Create[account](db, func(a *account) {
		a.Name = "alice"
	})
	AssertNil(err)
	AssertNil(db.Close())

	readOnly := open(&Config{Dir: dir, ReadOnly: true})
	AssertTrue(readOnly.IsReadOnly())

	_, err = AddIndex[account](readOnly, accountOptions())
	AssertNil(err)
	_, err = AddIndex[receipt](readOnly, receiptOptions())
	AssertTrue(errors.Is(err, ErrNotPersisted))

	alice, exists := FindBy[account](readOnly, "by_name", account{Name: "alice"})
	AssertTrue(exists)
	AssertEqual(alice.Name, "alice")

	_, err = Create[account](readOnly, func(a *account) {
		a.Name = "bob"
	})
	AssertTrue(errors.Is(err, ErrReadOnly))

	err = readOnly.WithWriteLock(time.Second, func() error {
		return nil
	})
	AssertTrue(errors.Is(err, ErrReadOnly))

	AssertNil(readOnly.WithReadLock(time.Second, func() error {
		return nil
	}))
}

func TestDatabase_IncompatibleLayout(t *testing.T) {

	dir := t.TempDir()

	db := open(&Config{Dir: dir})
	if _, err := AddIndex[account](db, accountOptions()); err != nil {
		panic(err)
	}
	AssertNil(db.Close())

	reopened := open(&Config{Dir: dir})
	_, err := AddIndex[accountV2](reopened, &collection.Options[accountV2]{Name: "account", TypeID: 1})
	AssertTrue(errors.Is(err, segment.ErrIncompatibleLayout))
	AssertTrue(IsFatal(err))
}

func TestDatabase_AlignNewIndex(t *testing.T) {

	db := open(&Config{Dir: t.TempDir()})
	if _, err := AddIndex[account](db, accountOptions()); err != nil {
		panic(err)
	}

	AssertNil(db.StartUndoSession(true).Push())
	AssertNil(db.StartUndoSession(true).Push())
	db.Commit(1)

	receipts, err := AddIndex[receipt](db, receiptOptions())
	AssertNil(err)

	begin, end := receipts.UndoStackRevisionRange()
	AssertEqual(begin, int64(1))
	AssertEqual(end, int64(2))
	AssertEqual(receipts.Revision(), int64(2))

	AssertNil(db.Undo())
	AssertEqual(receipts.Revision(), int64(1))
	AssertEqual(db.Revision(), int64(1))
}

func TestDatabase_RevisionMismatch(t *testing.T) {

	dir := t.TempDir()

	db := open(&Config{Dir: dir})
	if _, err := AddIndex[account](db, accountOptions()); err != nil {
		panic(err)
	}
	AssertNil(db.StartUndoSession(true).Push())
	AssertNil(db.Close())

	db = open(&Config{Dir: dir})
	if _, err := AddIndex[receipt](db, receiptOptions()); err != nil {
		panic(err)
	}
	AssertNil(db.Close())

	db = open(&Config{Dir: dir})
	if _, err := AddIndex[account](db, accountOptions()); err != nil {
		panic(err)
	}
	_, err := AddIndex[receipt](db, receiptOptions())
	AssertTrue(errors.Is(err, collection.ErrCorruption))
	AssertTrue(IsFatal(err))
}

func TestDatabase_SegmentFull(t *testing.T) {

	db := open(&Config{Dir: t.TempDir(), SegmentSize: 60})
	register(db)

	_, err := Create[account](db, func(a *account) {
		a.Name = "alice"
	})
	AssertNil(err)

	_, err = Create[account](db, func(a *account) {
		a.Name = "bob"
	})
	AssertTrue(errors.Is(err, segment.ErrSegmentFull))
	AssertEqual(db.FreeMemory(), uint64(60-recordSize[account]()))

	AssertNil(db.Grow(1 << 20))
	_, err = Create[account](db, func(a *account) {
		a.Name = "bob"
	})
	AssertNil(err)
	AssertNil(db.Close())
}

func TestDatabase_Lifecycle(t *testing.T) {

	dir := t.TempDir()

	db := open(&Config{Dir: dir, FlushInterval: time.Millisecond})
	register(db)
	AssertEqual(db.GetStatus(), StatusOpening)

	done := make(chan error)
	go func() {
		done <- db.Start()
	}()

	for db.GetStatus() != StatusOperating {
		time.Sleep(time.Millisecond)
	}

	err := db.WithWriteLock(time.Second, func() error {
		_, err := Create[account](db, func(a *account) {
			a.Name = "alice"
		})
		return err
	})
	AssertNil(err)

	AssertNil(db.Stop())
	AssertNil(<-done)
	AssertEqual(db.GetStatus(), StatusClosing)

	_, err = Create[account](db, func(a *account) {
		a.Name = "bob"
	})
	AssertTrue(errors.Is(err, ErrClosed))

	meta, err := segment.ReadMeta(dir)
	AssertNil(err)
	AssertFalse(meta.Dirty)
}

func TestDatabase_Load(t *testing.T) {

	Alternative("Load", func(a *A) {
		db := open(&Config{Dir: t.TempDir()})
		register(db)

		a.Alternative("Aligned", func(a *A) {
			AssertNil(db.Load())
			AssertEqual(db.GetStatus(), StatusOperating)
			AssertNil(db.Load())
		})

		a.Alternative("Misaligned", func(a *A) {
			index, _ := db.Index("receipt")
			AssertNil(index.StartUndoSession(true).Push())

			err := db.Load()
			AssertTrue(errors.Is(err, collection.ErrCorruption))
			AssertEqual(db.GetStatus(), StatusCorrupted)
		})
	})
}

func TestSession_PushFailure(t *testing.T) {

	db := open(&Config{Dir: t.TempDir(), Cache: true})
	accounts, err := AddIndex[account](db, accountOptions())
	AssertNil(err)
	receipts, err := AddIndex[receipt](db, receiptOptions())
	AssertNil(err)

	alice, err := Create[account](db, func(a *account) {
		a.Name = "alice"
		a.Balance = 1
	})
	AssertNil(err)

	session := db.StartUndoSession(true)
	AssertNil(Modify(db, alice.ID, func(a *account) {
		a.Balance = 2
	}))

	// the same removal in both frames can not be merged
	receipts.CacheFrame(1).RemovedIDs[9] = true
	receipts.CacheFrame(0).RemovedIDs[9] = true

	err = session.Push()
	AssertTrue(errors.Is(err, collection.ErrCorruption))
	AssertFalse(session.Active())

	found, err := Get(db, alice.ID)
	AssertNil(err)
	AssertEqual(found.Balance, int64(1))
	AssertEqual(db.Revision(), int64(0))
	AssertEqual(accounts.Revision(), int64(0))
	AssertEqual(receipts.Revision(), int64(0))
	AssertEqual(accounts.UndoFrames(), 0)
	AssertEqual(receipts.UndoFrames(), 0)

	AssertEqual(db.GetStatus(), StatusCorrupted)
	_, err = Create[account](db, func(a *account) {
		a.Name = "bob"
	})
	AssertTrue(errors.Is(err, ErrCorrupted))
}

func TestSession_SquashFailure(t *testing.T) {

	db := open(&Config{Dir: t.TempDir(), Cache: true})
	accounts, err := AddIndex[account](db, accountOptions())
	AssertNil(err)
	receipts, err := AddIndex[receipt](db, receiptOptions())
	AssertNil(err)

	alice, err := Create[account](db, func(a *account) {
		a.Name = "alice"
		a.Balance = 1
	})
	AssertNil(err)

	outer := db.StartUndoSession(true)
	inner := db.StartUndoSession(true)
	AssertNil(Modify(db, alice.ID, func(a *account) {
		a.Balance = 2
	}))

	accounts.CacheFrame(2).RemovedIDs[9] = true
	accounts.CacheFrame(1).RemovedIDs[9] = true

	err = inner.Squash()
	AssertTrue(errors.Is(err, collection.ErrCorruption))
	AssertFalse(inner.Active())

	AssertEqual(receipts.UndoFrames(), 1)
	AssertEqual(receipts.Revision(), int64(1))
	AssertEqual(accounts.UndoFrames(), 2)
	AssertEqual(accounts.Revision(), int64(2))
	AssertEqual(db.GetStatus(), StatusCorrupted)

	AssertTrue(outer.Active())
}

type chainHead struct {
	Block int64
	Hash  string
}

func TestDatabase_Data(t *testing.T) {

	for _, codec := range []string{"gob", "cbor"} {

		dir := t.TempDir()

		db := open(&Config{Dir: dir, Codec: codec})
		register(db)

		found, err := db.GetData("head", &chainHead{})
		AssertNil(err)
		AssertFalse(found)

		AssertNil(db.SaveData("head", &chainHead{Block: 7, Hash: "abc"}))
		AssertNil(db.Close())

		reopened := open(&Config{Dir: dir, Codec: codec})
		register(reopened)

		head := &chainHead{}
		found, err = reopened.GetData("head", head)
		AssertNil(err)
		AssertTrue(found)
		AssertEqual(head, &chainHead{Block: 7, Hash: "abc"})
		AssertEqual(reopened.RowCountPerIndex(), map[string]int{"account": 0, "receipt": 0})
		AssertNil(reopened.Close())

		readOnly := open(&Config{Dir: dir, Codec: codec, ReadOnly: true})
		err = readOnly.SaveData("head", &chainHead{})
		AssertTrue(errors.Is(err, ErrReadOnly))
	}
}

func TestDatabase_RemoveObject(t *testing.T) {

	db := open(&Config{Dir: t.TempDir()})
	register(db)

	alice, err := Create[account](db, func(a *account) {
		a.Name = "alice"
	})
	AssertNil(err)

	session := db.StartUndoSession(true)
	AssertNil(db.RemoveObject("account", int64(alice.ID)))
	_, exists := Find(db, alice.ID)
	AssertFalse(exists)

	AssertNil(session.Undo())
	_, exists = Find(db, alice.ID)
	AssertTrue(exists)

	err = db.RemoveObject("account", 99)
	AssertTrue(errors.Is(err, collection.ErrNotFound))
	AssertEqual(db.GetStatus(), StatusOpening)

	err = db.RemoveObject("unknown", 0)
	AssertTrue(errors.Is(err, ErrIndexNotRegistered))
}
