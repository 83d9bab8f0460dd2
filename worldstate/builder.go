// Package worldstate turns the backup image kept by the database into a
// standalone checkpoint file.
package worldstate

import (
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"github.com/fulldump/ledgerdb/database"

	_ "modernc.org/sqlite"
)

const maxBusyTimeoutMs = 5000

type Builder struct {
	db      *database.Database
	timeout time.Duration
	logger  *zap.Logger
}

// Summary describes an exported checkpoint.
type Summary struct {
	Revision     int64          `json:"revision"`
	Irreversible int64          `json:"irreversible"`
	Rows         map[string]int `json:"rows"`
	Digest       string         `json:"digest"`
}

func NewBuilder(db *database.Database, timeout time.Duration, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		db:      db,
		timeout: timeout,
		logger:  logger,
	}
}

// Drain moves the pending cache frames of every index into its backup
// image, one entry per write lock, until only the frame collecting new
// writes is left. It returns the number of steps taken.
func (b *Builder) Drain() (int, error) {

	steps := 0
	for _, index := range b.db.Indexes() {
		for {
			done := false
			err := b.db.WithWriteLock(b.timeout, func() error {
				if index.CacheFrames() <= 1 {
					done = true
					return nil
				}
				processed, err := b.db.ProcessStep(index.Name())
				if err != nil {
					return err
				}
				if !processed {
					done = true
					return nil
				}
				steps++
				return nil
			})
			if err != nil {
				return steps, fmt.Errorf("drain '%s': %w", index.Name(), err)
			}
			if done {
				break
			}
		}
	}

	b.logger.Info("cache drained", zap.Int("steps", steps))

	return steps, nil
}

// Export writes the backup image of every index into a new SQLite file at
// filename, one table per index.
func (b *Builder) Export(filename string) (*Summary, error) {

	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	if err := os.Remove(filename); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove previous export: %w", err)
	}

	conn, err := sql.Open("sqlite", fmt.Sprintf("file:%s", filepath.Clean(filename)))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", maxBusyTimeoutMs)); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	summary := &Summary{
		Rows: map[string]int{},
	}

	err = b.db.WithReadLock(b.timeout, func() error {
		summary.Revision = b.db.Revision()
		summary.Irreversible, _ = b.db.UndoStackRevisionRange()
		return b.export(conn, summary)
	})
	if err != nil {
		return nil, err
	}

	b.logger.Info("worldstate exported",
		zap.String("filename", filename),
		zap.Int64("revision", summary.Revision),
		zap.String("digest", summary.Digest),
	)

	return summary, nil
}

func (b *Builder) export(conn *sql.DB, summary *Summary) error {

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin export: %w", err)
	}

	if _, err := tx.Exec(`CREATE TABLE worldstate (
		revision INTEGER,
		irreversible INTEGER,
		digest TEXT,
		created_at TEXT
	)`); err != nil {
		tx.Rollback()
		return fmt.Errorf("create worldstate table: %w", err)
	}

	digest := sha256.New()

	for _, index := range b.db.Indexes() {

		table := quote(index.Name())
		if _, err := tx.Exec(fmt.Sprintf(`CREATE TABLE %s (
			id INTEGER PRIMARY KEY,
			record TEXT
		)`, table)); err != nil {
			tx.Rollback()
			return fmt.Errorf("create table %s: %w", table, err)
		}

		stmt, err := tx.Prepare(fmt.Sprintf(`INSERT INTO %s (id, record) VALUES (?, ?)`, table))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("prepare insert %s: %w", table, err)
		}

		digest.Write([]byte(index.Name()))
		var insertErr error
		index.TraverseObjects(true, 0, func(id int64, record any) bool {
			data, err := json.Marshal(record, json.Deterministic(true))
			if err != nil {
				insertErr = fmt.Errorf("encode %s %d: %w", table, id, err)
				return false
			}
			if _, err := stmt.Exec(id, string(data)); err != nil {
				insertErr = fmt.Errorf("insert %s %d: %w", table, id, err)
				return false
			}
			digest.Write(binary.BigEndian.AppendUint64(nil, uint64(id)))
			digest.Write(data)
			summary.Rows[index.Name()]++
			return true
		})
		stmt.Close()
		if insertErr != nil {
			tx.Rollback()
			return insertErr
		}
	}

	summary.Digest = base58.Encode(digest.Sum(nil))

	if _, err := tx.Exec(`INSERT INTO worldstate (revision, irreversible, digest, created_at) VALUES (?, ?, ?, ?)`,
		summary.Revision, summary.Irreversible, summary.Digest, time.Now().UTC().Format(time.RFC3339)); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert worldstate: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit export: %w", err)
	}

	return nil
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
