// Package ledger is a minimal account ledger applied block by block on top
// of the database.
package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fulldump/ledgerdb/collection"
	"github.com/fulldump/ledgerdb/database"
	"github.com/fulldump/ledgerdb/utils"
)

const (
	AccountTypeID uint16 = 1
	ReceiptTypeID uint16 = 2
)

var (
	ErrUnknownAccount    = errors.New("unknown account")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
)

type Account struct {
	ID      collection.OID[Account] `json:"id"`
	Name    string                  `json:"name"`
	Balance int64                   `json:"balance"`
}

func (a *Account) GetID() collection.OID[Account] {
	return a.ID
}

func (a *Account) SetID(id collection.OID[Account]) {
	a.ID = id
}

// Receipt records an applied transfer.
type Receipt struct {
	ID     collection.OID[Receipt] `json:"id"`
	Block  int64                   `json:"block"`
	From   collection.OID[Account] `json:"from"`
	To     collection.OID[Account] `json:"to"`
	Amount int64                   `json:"amount"`
}

func (r *Receipt) GetID() collection.OID[Receipt] {
	return r.ID
}

func (r *Receipt) SetID(id collection.OID[Receipt]) {
	r.ID = id
}

type Transfer struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type Block struct {
	Number    int64      `json:"number"`
	Transfers []Transfer `json:"transfers"`

	// Checkpoint keeps the changes of this block apart in the cache so the
	// worldstate can be built at its boundary.
	Checkpoint bool `json:"checkpoint"`
}

type Rejected struct {
	Transfer Transfer
	Err      error
}

type BlockResult struct {
	Revision int64
	Applied  int
	Rejected []Rejected
}

type Ledger struct {
	db      *database.Database
	timeout time.Duration
	logger  *zap.Logger
}

// Register adds the ledger indices to db.
func Register(db *database.Database) error {
	_, err := database.AddIndex[Account](db, &collection.Options[Account]{
		Name:   "account",
		TypeID: AccountTypeID,
		Indexes: []*collection.IndexOptions[Account]{
			{Name: "by_name", Unique: true, Less: func(a, b *Account) bool {
				return a.Name < b.Name
			}},
		},
	})
	if err != nil {
		return err
	}
	_, err = database.AddIndex[Receipt](db, &collection.Options[Receipt]{
		Name:   "receipt",
		TypeID: ReceiptTypeID,
		Indexes: []*collection.IndexOptions[Receipt]{
			{Name: "by_block", Less: func(a, b *Receipt) bool {
				return a.Block < b.Block
			}},
		},
	})
	return err
}

func New(db *database.Database, timeout time.Duration, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := Register(db); err != nil {
		return nil, err
	}
	return &Ledger{
		db:      db,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Genesis creates the initial accounts outside of any undo session.
func (l *Ledger) Genesis(balances map[string]int64) error {
	return l.db.WithWriteLock(l.timeout, func() error {
		for _, name := range utils.GetKeys(balances) {
			_, err := database.Create[Account](l.db, func(a *Account) {
				a.Name = name
				a.Balance = balances[name]
			})
			if err != nil {
				return fmt.Errorf("genesis '%s': %w", name, err)
			}
		}
		return nil
	})
}

// ApplyBlock applies every transfer of block in its own nested session.
// Rejected transfers leave no trace, the block itself stays revertible
// until it is committed.
func (l *Ledger) ApplyBlock(block *Block) (*BlockResult, error) {

	result := &BlockResult{}

	err := l.db.WithWriteLock(l.timeout, func() error {

		session := l.db.StartUndoSession(true)
		defer session.Close()

		for _, transfer := range block.Transfers {
			nested := l.db.StartUndoSession(true)
			err := l.transfer(block.Number, transfer)
			if err == nil {
				err = nested.Squash()
			}
			if err != nil {
				if undoErr := nested.Undo(); undoErr != nil {
					return undoErr
				}
				if database.IsFatal(err) {
					return err
				}
				result.Rejected = append(result.Rejected, Rejected{Transfer: transfer, Err: err})
				continue
			}
			result.Applied++
		}

		result.Revision = session.Revision()
		if block.Checkpoint {
			return session.PushCheckpoint()
		}
		return session.Push()
	})
	if err != nil {
		return nil, fmt.Errorf("apply block %d: %w", block.Number, err)
	}

	l.logger.Info("block applied",
		zap.Int64("block", block.Number),
		zap.Int64("revision", result.Revision),
		zap.Int("applied", result.Applied),
		zap.Int("rejected", len(result.Rejected)),
	)

	return result, nil
}

func (l *Ledger) transfer(block int64, transfer Transfer) error {

	if transfer.Amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, transfer.Amount)
	}

	from, err := l.account(transfer.From)
	if err != nil {
		return err
	}
	to, err := l.account(transfer.To)
	if err != nil {
		return err
	}
	if from.Balance < transfer.Amount {
		return fmt.Errorf("%w: '%s' has %d, needs %d", ErrInsufficientFunds, from.Name, from.Balance, transfer.Amount)
	}

	err = database.Modify(l.db, from.ID, func(a *Account) {
		a.Balance -= transfer.Amount
	})
	if err != nil {
		return err
	}
	err = database.Modify(l.db, to.ID, func(a *Account) {
		a.Balance += transfer.Amount
	})
	if err != nil {
		return err
	}

	_, err = database.Create[Receipt](l.db, func(r *Receipt) {
		r.Block = block
		r.From = from.ID
		r.To = to.ID
		r.Amount = transfer.Amount
	})
	return err
}

func (l *Ledger) account(name string) (Account, error) {
	account, found := database.FindBy[Account](l.db, "by_name", Account{Name: name})
	if !found {
		return account, fmt.Errorf("%w: '%s'", ErrUnknownAccount, name)
	}
	return account, nil
}

// Commit makes every block up to revision irreversible.
func (l *Ledger) Commit(revision int64) error {
	return l.db.WithWriteLock(l.timeout, func() error {
		l.db.Commit(revision)
		return nil
	})
}

// Rollback reverts the newest block that is not committed yet.
func (l *Ledger) Rollback() error {
	return l.db.WithWriteLock(l.timeout, l.db.Undo)
}

func (l *Ledger) Balance(name string) (int64, error) {
	var balance int64
	err := l.db.WithReadLock(l.timeout, func() error {
		account, err := l.account(name)
		balance = account.Balance
		return err
	})
	return balance, err
}

// Receipts returns the receipts of the given block in identity order.
func (l *Ledger) Receipts(block int64) ([]Receipt, error) {
	receipts := []Receipt{}
	err := l.db.WithReadLock(l.timeout, func() error {
		return database.Traverse(l.db, "by_block", &collection.TraverseOptions[Receipt]{
			From: &Receipt{Block: block},
			To:   &Receipt{Block: block + 1},
		}, func(r Receipt) bool {
			receipts = append(receipts, r)
			return true
		})
	})
	return receipts, err
}

// ParseBalances reads balances written as name=amount,name=amount.
func ParseBalances(s string) (map[string]int64, error) {
	balances := map[string]int64{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, amount, found := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !found || name == "" {
			return nil, fmt.Errorf("balance '%s': expected name=amount", pair)
		}
		value, err := strconv.ParseInt(strings.TrimSpace(amount), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("balance '%s': %w", pair, err)
		}
		if value < 0 {
			return nil, fmt.Errorf("balance '%s': %w", pair, ErrInvalidAmount)
		}
		if _, exists := balances[name]; exists {
			return nil, fmt.Errorf("balance '%s': duplicated account", pair)
		}
		balances[name] = value
	}
	return balances, nil
}
