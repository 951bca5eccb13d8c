// Package verification is the step-by-step state machine a redeemed token
// walks through before its payload may be shown.
package verification

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"healthsnap/core/ledger"
	"healthsnap/core/token"
	"healthsnap/types/ids"
)

type StepID string

const (
	StepDecrypt        StepID = "decrypt"
	StepHash           StepID = "hash"
	StepLedgerFetch    StepID = "ledger-fetch"
	StepIntegrityCheck StepID = "integrity-check"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusLoading  Status = "loading"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Phase is the redemption-level state of a session.
type Phase string

const (
	PhaseDecoding        Phase = "decoding"
	PhaseVerifying       Phase = "verifying"
	PhaseExpirationCheck Phase = "expiration-check"
	PhaseReady           Phase = "ready"
	PhaseFailed          Phase = "failed"
)

// ErrClosed is returned when a transition is attempted on an abandoned session.
var ErrClosed = errors.New("verification session closed")

// Step is a point-in-time view of one verification step.
type Step struct {
	ID     StepID `json:"id"`
	Label  string `json:"label"`
	Status Status `json:"status"`
}

// Event describes one applied transition. Step is empty for phase changes.
type Event struct {
	SessionID uuid.UUID
	Seq       int
	Phase     Phase
	Step      StepID
	Status    Status
	At        time.Time
	Err       error
}

// Session holds the state of one redemption attempt. It is safe for
// concurrent readers; transitions are applied by a single Machine.Run.
type Session struct {
	id   uuid.UUID
	defs Pipeline

	mu        sync.Mutex
	closed    bool
	phase     Phase
	steps     []Step
	tok       *token.ShareToken
	digest    ids.ID
	anchor    *ledger.Anchor
	seq       int
	observers map[int]func(Event)
	nextObs   int
}

// NewSession starts a fresh session in PhaseDecoding with every step pending.
func NewSession(p Pipeline) *Session {
	s := &Session{
		id:        uuid.New(),
		defs:      append(Pipeline(nil), p...),
		phase:     PhaseDecoding,
		steps:     make([]Step, len(p)),
		observers: make(map[int]func(Event)),
	}
	for i, d := range p {
		s.steps[i] = Step{ID: d.ID, Label: d.Label, Status: StatusPending}
	}
	return s
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Steps returns a copy of the step list in declared order.
func (s *Session) Steps() []Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Step(nil), s.steps...)
}

// FailedStep returns the step that ended in error, if any.
func (s *Session) FailedStep() (StepID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.steps {
		if st.Status == StatusError {
			return st.ID, true
		}
	}
	return "", false
}

// Subscribe registers fn for every subsequent transition and returns a func
// that removes it. fn runs on the goroutine applying the transition.
func (s *Session) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Close abandons the session. No transition is applied afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Token is the decoded token under verification (nil while decoding).
func (s *Session) Token() *token.ShareToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tok
}

func (s *Session) SetToken(tok *token.ShareToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.tok = tok
	return nil
}

// Digest is set by the hash step.
func (s *Session) Digest() (ids.ID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.digest, !s.digest.IsZero()
}

func (s *Session) SetDigest(d ids.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.digest = d
	}
}

// Anchor is set by the ledger-fetch step.
func (s *Session) Anchor() (ledger.Anchor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.anchor == nil {
		return ledger.Anchor{}, false
	}
	return *s.anchor, true
}

func (s *Session) SetAnchor(a ledger.Anchor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.anchor = &a
	}
}

// SetPhase moves the session to p. It returns ErrClosed on an abandoned session.
func (s *Session) SetPhase(p Phase) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.phase = p
	ev, obs := s.eventLocked(Event{Phase: p})
	s.mu.Unlock()
	notify(obs, ev)
	return nil
}

// setStatus applies a step transition, enforcing pending → loading →
// {complete|error}.
func (s *Session) setStatus(i int, st Status, err error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	cur := s.steps[i].Status
	valid := (cur == StatusPending && st == StatusLoading) ||
		(cur == StatusLoading && (st == StatusComplete || st == StatusError))
	if !valid {
		s.mu.Unlock()
		return errors.New("invalid step transition " + string(cur) + " -> " + string(st))
	}
	s.steps[i].Status = st
	ev, obs := s.eventLocked(Event{Phase: s.phase, Step: s.steps[i].ID, Status: st, Err: err})
	s.mu.Unlock()
	notify(obs, ev)
	return nil
}

func (s *Session) eventLocked(ev Event) (Event, []func(Event)) {
	s.seq++
	ev.SessionID = s.id
	ev.Seq = s.seq
	ev.At = time.Now()
	obs := make([]func(Event), 0, len(s.observers))
	for i := 0; i < s.nextObs; i++ {
		if fn, ok := s.observers[i]; ok {
			obs = append(obs, fn)
		}
	}
	return ev, obs
}

func notify(obs []func(Event), ev Event) {
	for _, fn := range obs {
		fn(ev)
	}
}
