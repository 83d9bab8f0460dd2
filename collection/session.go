package collection

import "fmt"

type sessionTarget interface {
	Undo() error
	Squash() error
	push(revision int64, checkpoint bool) error
	hasFrame(revision int64) bool
}

// noCopy makes go vet complain about copied sessions.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Session scopes a batch of provisional changes. Exactly one of Push,
// PushCheckpoint, Squash or Undo takes effect, later calls do nothing.
// Close reverts the changes unless one of them already ran:
//
//	session := c.StartUndoSession(true)
//	defer session.Close()
type Session struct {
	noCopy   noCopy
	target   sessionTarget
	revision int64
	apply    bool
}

func (s *Session) Revision() int64 {
	return s.revision
}

// Active tells whether a terminal action is still pending.
func (s *Session) Active() bool {
	return s.apply
}

// Push keeps the frame on the undo stack, an enclosing session can still
// revert it.
func (s *Session) Push() error {
	return s.push(false)
}

// PushCheckpoint pushes the frame and marks a checkpoint boundary.
func (s *Session) PushCheckpoint() error {
	return s.push(true)
}

func (s *Session) push(checkpoint bool) error {
	if !s.apply {
		return nil
	}
	s.apply = false
	return s.target.push(s.revision, checkpoint)
}

// Squash merges the frame into its parent.
func (s *Session) Squash() error {
	if !s.apply {
		return nil
	}
	s.apply = false
	if !s.target.hasFrame(s.revision) {
		return fmt.Errorf("squash session %d: %w", s.revision, ErrFrameCommitted)
	}
	return s.target.Squash()
}

func (s *Session) Undo() error {
	if !s.apply {
		return nil
	}
	s.apply = false
	if !s.target.hasFrame(s.revision) {
		return fmt.Errorf("undo session %d: %w", s.revision, ErrFrameCommitted)
	}
	return s.target.Undo()
}

func (s *Session) Close() error {
	return s.Undo()
}
