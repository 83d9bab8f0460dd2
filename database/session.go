package database

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/fulldump/ledgerdb/collection"
)

// Session opens one undo session per registered index and terminates all
// of them together. When one index fails the others are reverted, so the
// indices never disagree on the revision.
type Session struct {
	db       *Database
	indexes  []AbstractIndex
	sessions []*collection.Session
	revision int64
	apply    bool
}

func (db *Database) StartUndoSession(enabled bool) *Session {
	s := &Session{
		db:       db,
		indexes:  append([]AbstractIndex{}, db.indexes...),
		revision: -1,
		apply:    enabled,
	}
	for _, index := range s.indexes {
		session := index.StartUndoSession(enabled)
		s.sessions = append(s.sessions, session)
		s.revision = session.Revision()
	}
	return s
}

func (s *Session) Revision() int64 {
	return s.revision
}

func (s *Session) Active() bool {
	return s.apply
}

func (s *Session) Push() error {
	return s.finish("push", (*collection.Session).Push, true)
}

func (s *Session) PushCheckpoint() error {
	return s.finish("push checkpoint", (*collection.Session).PushCheckpoint, true)
}

func (s *Session) Squash() error {
	return s.finish("squash", (*collection.Session).Squash, false)
}

func (s *Session) Undo() error {
	return s.finish("undo", (*collection.Session).Undo, false)
}

// Close reverts the session unless it was already terminated.
func (s *Session) Close() error {
	return s.Undo()
}

// finish applies action to every sub-session. On failure the pending
// sub-sessions are undone and, when pushed is set, the frames already
// pushed are undone too.
func (s *Session) finish(operation string, action func(*collection.Session) error, pushed bool) error {

	if !s.apply {
		return nil
	}
	s.apply = false

	for i, session := range s.sessions {
		err := action(session)
		if err == nil {
			continue
		}
		err = fmt.Errorf("%s '%s': %w", operation, s.indexes[i].Name(), err)
		for _, pending := range s.sessions[i+1:] {
			err = multierr.Append(err, pending.Undo())
		}
		if pushed {
			for _, index := range s.indexes[:i+1] {
				err = multierr.Append(err, index.Undo())
			}
		}
		return s.db.check(err)
	}

	return nil
}
