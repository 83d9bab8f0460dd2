package ledger

import (
	"errors"
	"testing"
	"time"

	. "github.com/fulldump/biff"

	"github.com/fulldump/ledgerdb/collection"
	"github.com/fulldump/ledgerdb/database"
)

func Environment(t *testing.T, f func(l *Ledger, db *database.Database)) {
	db, err := database.NewDatabase(&database.Config{
		Dir:   t.TempDir(),
		Cache: true,
	})
	if err != nil {
		panic(err)
	}
	l, err := New(db, time.Second, nil)
	if err != nil {
		panic(err)
	}
	if err := l.Genesis(map[string]int64{"alice": 100, "bob": 0}); err != nil {
		panic(err)
	}
	f(l, db)
}

func balances(l *Ledger) map[string]int64 {
	result := map[string]int64{}
	for _, name := range []string{"alice", "bob"} {
		balance, err := l.Balance(name)
		if err != nil {
			panic(err)
		}
		result[name] = balance
	}
	return result
}

var block1 = &Block{
	Number: 1,
	Transfers: []Transfer{
		{From: "alice", To: "bob", Amount: 30},
		{From: "bob", To: "carol", Amount: 5},
		{From: "bob", To: "alice", Amount: 50},
		{From: "alice", To: "bob", Amount: 0},
	},
}

func TestLedger_ApplyBlock(t *testing.T) {
	Alternative("Apply block 1", func(a *A) {
		Environment(t, func(l *Ledger, db *database.Database) {

			result, err := l.ApplyBlock(block1)
			AssertNil(err)
			AssertEqual(result.Revision, int64(1))
			AssertEqual(result.Applied, 1)
			AssertEqual(len(result.Rejected), 3)
			AssertTrue(errors.Is(result.Rejected[0].Err, ErrUnknownAccount))
			AssertTrue(errors.Is(result.Rejected[1].Err, ErrInsufficientFunds))
			AssertTrue(errors.Is(result.Rejected[2].Err, ErrInvalidAmount))

			AssertEqual(balances(l), map[string]int64{"alice": 70, "bob": 30})

			receipts, err := l.Receipts(1)
			AssertNil(err)
			AssertEqual(len(receipts), 1)
			AssertEqual(receipts[0].Amount, int64(30))

			a.Alternative("Rollback", func(a *A) {
				AssertNil(l.Rollback())
				AssertEqual(balances(l), map[string]int64{"alice": 100, "bob": 0})
				receipts, _ := l.Receipts(1)
				AssertEqual(len(receipts), 0)
				AssertEqual(db.Revision(), int64(0))
			})

			a.Alternative("Commit", func(a *A) {
				AssertNil(l.Commit(1))
				AssertNil(l.Rollback())
				AssertEqual(balances(l), map[string]int64{"alice": 70, "bob": 30})
				AssertEqual(db.Revision(), int64(1))
			})

			a.Alternative("Second block", func(a *A) {
				result, err := l.ApplyBlock(&Block{
					Number: 2,
					Transfers: []Transfer{
						{From: "bob", To: "alice", Amount: 10},
						{From: "bob", To: "alice", Amount: 10},
					},
				})
				AssertNil(err)
				AssertEqual(result.Revision, int64(2))
				AssertEqual(result.Applied, 2)
				AssertEqual(balances(l), map[string]int64{"alice": 90, "bob": 10})

				receipts, _ := l.Receipts(2)
				AssertEqual(len(receipts), 2)
				receipts, _ = l.Receipts(1)
				AssertEqual(len(receipts), 1)

				AssertNil(l.Rollback())
				AssertEqual(balances(l), map[string]int64{"alice": 70, "bob": 30})
				AssertNil(l.Rollback())
				AssertEqual(balances(l), map[string]int64{"alice": 100, "bob": 0})
			})
		})
	})
}

func TestLedger_Genesis(t *testing.T) {
	Environment(t, func(l *Ledger, db *database.Database) {

		err := l.Genesis(map[string]int64{"alice": 1})
		AssertTrue(errors.Is(err, collection.ErrUniqueViolation))

		_, err = l.Balance("carol")
		AssertTrue(errors.Is(err, ErrUnknownAccount))

		AssertEqual(db.RowCountPerIndex(), map[string]int{"account": 2, "receipt": 0})
	})
}

func TestParseBalances(t *testing.T) {

	balances, err := ParseBalances("alice=100, bob=0,")
	AssertNil(err)
	AssertEqual(balances, map[string]int64{"alice": 100, "bob": 0})

	_, err = ParseBalances("alice")
	AssertNotNil(err)

	_, err = ParseBalances("alice=-1")
	AssertTrue(errors.Is(err, ErrInvalidAmount))

	_, err = ParseBalances("alice=1,alice=2")
	AssertNotNil(err)
}
