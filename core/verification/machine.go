package verification

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultStepTimeout bounds each step unless the Machine overrides it.
const DefaultStepTimeout = 10 * time.Second

// StepError reports the step a verification run stopped at.
type StepError struct {
	Step    StepID
	Err     error
	timeout bool
}

func (e *StepError) Error() string {
	if e.timeout {
		return fmt.Sprintf("step %s timed out", e.Step)
	}
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Timeout reports whether the step exceeded its deadline.
func (e *StepError) Timeout() bool { return e.timeout }

// Machine runs a pipeline one step at a time.
type Machine struct {
	Pipeline    Pipeline
	StepTimeout time.Duration // 0 means DefaultStepTimeout, negative disables
}

// NewSession starts a session for m.Pipeline.
func (m *Machine) NewSession() *Session {
	return NewSession(m.Pipeline)
}

// Run drives s through its steps in declared order. The first failing step
// is marked error and later steps stay pending. If ctx is cancelled the
// session is closed and no further transition is applied.
func (m *Machine) Run(ctx context.Context, s *Session) error {
	s.mu.Lock()
	defs := s.defs
	s.mu.Unlock()

	for i, def := range defs {
		if err := ctx.Err(); err != nil {
			s.Close()
			return err
		}
		if err := s.setStatus(i, StatusLoading, nil); err != nil {
			return err
		}

		timedOut, err := m.runStep(ctx, def, s)
		if ctx.Err() != nil {
			s.Close()
			return ctx.Err()
		}
		if err != nil {
			se := &StepError{Step: def.ID, Err: err, timeout: timedOut}
			if terr := s.setStatus(i, StatusError, se); terr != nil {
				return terr
			}
			return se
		}
		if err := s.setStatus(i, StatusComplete, nil); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) timeout() time.Duration {
	if m.StepTimeout == 0 {
		return DefaultStepTimeout
	}
	return m.StepTimeout
}

// runStep runs the step's work under its own deadline. A step that ignores
// its context is left behind once the deadline passes.
func (m *Machine) runStep(ctx context.Context, def Definition, s *Session) (timedOut bool, err error) {
	stepCtx, cancel := ctx, context.CancelFunc(func() {})
	if d := m.timeout(); d > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, d)
	}
	defer cancel()

	if def.Work == nil {
		return false, nil
	}
	done := make(chan error, 1)
	go func() { done <- def.Work.Run(stepCtx, s) }()

	select {
	case err = <-done:
		return err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil, err
	case <-stepCtx.Done():
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, stepCtx.Err()
	}
}
