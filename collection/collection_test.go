package collection

import (
	"errors"
	"testing"

	. "github.com/fulldump/biff"
)

func TestCreate(t *testing.T) {
	Environment(false, func(c *Collection[account, *account]) {

		a := create(c, "alice", 5)
		b := create(c, "bob", 7)

		AssertEqual(a.ID, OID[account](0))
		AssertEqual(b.ID, OID[account](1))
		AssertEqual(c.Len(), 2)
		AssertEqual(c.NextID(), OID[account](2))

		found, exists := c.Find(1)
		AssertTrue(exists)
		AssertEqual(found.Name, "bob")
	})
}

func TestCreate_IdentityIsForced(t *testing.T) {
	Environment(false, func(c *Collection[account, *account]) {

		a, err := c.Create(func(a *account) {
			a.ID = 99
			a.Name = "alice"
		})

		AssertNil(err)
		AssertEqual(a.ID, OID[account](0))
		_, exists := c.Find(99)
		AssertFalse(exists)
	})
}

func TestGet_NotFound(t *testing.T) {
	Environment(false, func(c *Collection[account, *account]) {

		_, exists := c.Find(3)
		AssertFalse(exists)

		_, err := c.Get(3)
		AssertTrue(errors.Is(err, ErrNotFound))

		err = c.Modify(3, setBalance(1))
		AssertTrue(errors.Is(err, ErrNotFound))

		err = c.Remove(3)
		AssertTrue(errors.Is(err, ErrNotFound))
	})
}

func TestReadsReturnCopies(t *testing.T) {
	Environment(false, func(c *Collection[account, *account]) {

		c.Create(func(a *account) {
			a.Name = "alice"
			a.Tags = []string{"genesis"}
		})

		a, _ := c.Get(0)
		a.Balance = 1000
		a.Tags[0] = "changed"

		stored, _ := c.Get(0)
		AssertEqual(stored.Balance, int64(0))
		AssertEqual(stored.Tags, []string{"genesis"})
	})
}

func TestUniqueness(t *testing.T) {
	Alternative("Setup", func(a *A) {
		Environment(false, func(c *Collection[account, *account]) {

			create(c, "alice", 1)
			create(c, "bob", 2)

			a.Alternative("Create duplicated key", func(a *A) {
				_, err := c.Create(func(a *account) {
					a.Name = "alice"
				})
				AssertTrue(errors.Is(err, ErrUniqueViolation))
				AssertEqual(c.NextID(), OID[account](2))
				AssertEqual(c.Len(), 2)
			})

			a.Alternative("Modify into a used key", func(a *A) {
				session := c.StartUndoSession(true)
				err := c.Modify(1, func(a *account) {
					a.Name = "alice"
				})
				AssertTrue(errors.Is(err, ErrUniqueViolation))
				AssertEqual(len(c.head().OldValues), 0)
				bob, _ := c.Get(1)
				AssertEqual(bob.Name, "bob")
				AssertNil(session.Undo())
			})

			a.Alternative("Modify keeping its own key", func(a *A) {
				err := c.Modify(0, setBalance(10))
				AssertNil(err)
				alice, _ := c.GetBy("by_name", account{Name: "alice"})
				AssertEqual(alice.Balance, int64(10))
			})

			a.Alternative("Key released by removal", func(a *A) {
				AssertNil(c.Remove(0))
				again := create(c, "alice", 3)
				AssertEqual(again.ID, OID[account](2))
			})
		})
	})
}

func TestFindBy(t *testing.T) {
	Environment(false, func(c *Collection[account, *account]) {

		create(c, "alice", 10)
		create(c, "bob", 5)
		create(c, "carol", 10)

		bob, found := c.FindBy("by_name", account{Name: "bob"})
		AssertTrue(found)
		AssertEqual(bob.ID, OID[account](1))

		first, found := c.FindBy("by_balance", account{Balance: 10})
		AssertTrue(found)
		AssertEqual(first.Name, "alice")

		_, found = c.FindBy("by_balance", account{Balance: 7})
		AssertFalse(found)

		_, err := c.GetBy("by_color", account{})
		AssertTrue(errors.Is(err, ErrIndexNotFound))

		_, err = c.GetBy("by_name", account{Name: "dave"})
		AssertTrue(errors.Is(err, ErrNotFound))
	})
}

func TestTraverse(t *testing.T) {
	Environment(false, func(c *Collection[account, *account]) {

		create(c, "alice", 10)
		create(c, "bob", 5)
		create(c, "carol", 10)
		create(c, "dave", 20)

		names := func(index string, options *TraverseOptions[account]) []string {
			result := []string{}
			err := c.Traverse(index, options, func(a account) bool {
				result = append(result, a.Name)
				return true
			})
			AssertNil(err)
			return result
		}

		AssertEqual(names("", nil), []string{"alice", "bob", "carol", "dave"})
		AssertEqual(names("by_balance", nil), []string{"bob", "alice", "carol", "dave"})
		AssertEqual(names("by_balance", &TraverseOptions[account]{
			Reverse: true,
		}), []string{"dave", "carol", "alice", "bob"})
		AssertEqual(names("by_balance", &TraverseOptions[account]{
			From: &account{Balance: 10},
		}), []string{"alice", "carol", "dave"})
		AssertEqual(names("by_balance", &TraverseOptions[account]{
			To: &account{Balance: 10},
		}), []string{"bob"})
		AssertEqual(names("by_balance", &TraverseOptions[account]{
			From: &account{Balance: 10},
			To:   &account{Balance: 20},
		}), []string{"alice", "carol"})
		AssertEqual(names("by_balance", &TraverseOptions[account]{
			From:    &account{Balance: 5},
			To:      &account{Balance: 20},
			Reverse: true,
		}), []string{"carol", "alice", "bob"})
		AssertEqual(names("by_name", &TraverseOptions[account]{
			From:    &account{Name: "b"},
			Reverse: true,
		}), []string{"dave", "carol", "bob"})

		err := c.Traverse("unknown", nil, func(a account) bool { return true })
		AssertTrue(errors.Is(err, ErrIndexNotFound))
	})
}

func TestNewCollection_InvalidOptions(t *testing.T) {

	_, err := NewCollection[account](&Options[account]{})
	AssertTrue(errors.Is(err, ErrInvalidOptions))

	_, err = NewCollection[account](&Options[account]{
		Name: "account",
		Indexes: []*IndexOptions[account]{
			{Name: "by_name", Less: byName},
			{Name: "by_name", Less: byName},
		},
	})
	AssertTrue(errors.Is(err, ErrInvalidOptions))

	_, err = NewCollection[account](&Options[account]{
		Name: "account",
		Indexes: []*IndexOptions[account]{
			{Name: "id", Less: byName},
		},
	})
	AssertTrue(errors.Is(err, ErrInvalidOptions))
}

type label struct {
	ID  OID[label]
	Key *string
}

func (l *label) GetID() OID[label] {
	return l.ID
}

func (l *label) SetID(id OID[label]) {
	l.ID = id
}

func TestModify_SharedKeyStorage(t *testing.T) {

	c, err := NewCollection[label](&Options[label]{
		Name:   "label",
		TypeID: 1,
		Indexes: []*IndexOptions[label]{
			{Name: "by_key", Unique: true, Less: func(a, b *label) bool {
				return *a.Key < *b.Key
			}},
		},
	})
	AssertNil(err)

	for _, key := range []string{"c", "b"} {
		_, err := c.Create(func(l *label) {
			l.Key = &key
		})
		AssertNil(err)
	}

	// the shallow copy shares Key, so the stored record changes too
	err = c.Modify(0, func(l *label) {
		*l.Key = "b"
	})
	AssertTrue(errors.Is(err, ErrCorruption))
}
