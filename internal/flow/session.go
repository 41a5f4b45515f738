// internal/flow/session.go
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/xoflow/internal/eligibility"
	"github.com/xkilldash9x/xoflow/internal/fragment"
	"github.com/xkilldash9x/xoflow/internal/navigation"
	"github.com/xkilldash9x/xoflow/internal/transport"
)

var (
	// ErrFlowClosed is the outcome of a session ended by CloseFlow before completing.
	ErrFlowClosed = errors.New("flow closed before completion")
	// ErrContextClosed is the outcome when the user closes the popup without a result.
	ErrContextClosed = errors.New("checkout window closed without a result")
)

// Phase is a FlowSession's position in the state machine.
type Phase int

const (
	Idle Phase = iota
	Opened
	Navigated
	Completed
	Closed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Opened:
		return "opened"
	case Navigated:
		return "navigated"
	case Completed:
		return "completed"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Session is one attempt at driving the remote checkout. Its mutable fields are
// written only while the owning Controller's lock is held.
type Session struct {
	id        string
	createdAt time.Time
	verdict   eligibility.Verdict

	mu         sync.RWMutex
	phase      Phase
	plan       *navigation.Plan
	handle     *transport.Handle
	fragWatch  *fragment.Handle
	closeWatch *fragment.Handle
	// reported is set once a failure has been handed back to a caller.
	reported bool

	done     chan struct{}
	doneOnce sync.Once
	result   string
	err      error
}

func newSession(id string, verdict eligibility.Verdict) *Session {
	return &Session{
		id:        id,
		createdAt: time.Now(),
		verdict:   verdict,
		done:      make(chan struct{}),
	}
}

// ID uniquely identifies the session in logs and metrics.
func (s *Session) ID() string { return s.id }

// CreatedAt is when InitXO or StartFlow created the session.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Verdict is the eligibility decided when the session was created.
func (s *Session) Verdict() eligibility.Verdict { return s.verdict }

// Phase is where the session currently sits in the state machine.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Plan is the committed navigation, or false before StartFlow succeeded.
func (s *Session) Plan() (navigation.Plan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.plan == nil {
		return navigation.Plan{}, false
	}
	return *s.plan, true
}

// HasContext reports whether a popup is currently held open by the session.
func (s *Session) HasContext() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle != nil && s.handle.Window() != nil && !s.handle.Released()
}

// Done is closed when the session reaches an outcome.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result returns the outcome. It is only meaningful once Done is closed.
func (s *Session) Result() (string, error) {
	select {
	case <-s.done:
		return s.result, s.err
	default:
		return "", errors.New("flow: session has no outcome yet")
	}
}

// Wait blocks until the session reaches an outcome or ctx ends. The fragment is
// returned verbatim, e.g. "#return?token=EC-...&PayerID=...".
func (s *Session) Wait(ctx context.Context) (string, error) {
	select {
	case <-s.done:
		return s.result, s.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

func (s *Session) setHandle(h *transport.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = h
}

func (s *Session) commit(plan navigation.Plan, h *transport.Handle, fw *fragment.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plan = &plan
	s.handle = h
	s.fragWatch = fw
	s.phase = Navigated
}

func (s *Session) setCloseWatch(h *fragment.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeWatch = h
}

// finish records the outcome exactly once.
func (s *Session) finish(result string, err error) {
	s.doneOnce.Do(func() {
		s.result = result
		s.err = err
		close(s.done)
	})
}

// failure returns the outcome error of a session that ended in failure.
func (s *Session) failure() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}
