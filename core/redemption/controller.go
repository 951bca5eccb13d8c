// Package redemption turns an opaque share token back into a snapshot
// payload, gated by the verification steps and the expiry check.
package redemption

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"healthsnap/core/audit"
	"healthsnap/core/snapshot"
	"healthsnap/core/token"
	"healthsnap/core/verification"
)

// Result is the outcome of one redemption attempt. Session is always set;
// Payload only when the attempt reached Ready.
type Result struct {
	Session *verification.Session
	Token   *token.ShareToken
	Payload snapshot.Payload
}

type Controller struct {
	Decode  func(string) (*token.ShareToken, error) // defaults to token.Decode
	Machine *verification.Machine
	Now     func() time.Time
	Audit   audit.AuditLogger
	Metrics *Metrics
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Start builds a fresh session so callers can Subscribe before Run.
func (c *Controller) Start() *verification.Session {
	return c.Machine.NewSession()
}

// Redeem runs a full redemption on a fresh session.
func (c *Controller) Redeem(ctx context.Context, opaque string) (*Result, error) {
	return c.Run(ctx, c.Start(), opaque)
}

// RedeemScan accepts whatever a reader produced: a full redemption URL or a
// bare opaque string.
func (c *Controller) RedeemScan(ctx context.Context, scanned string) (*Result, error) {
	s := c.Start()
	opaque, err := token.OpaqueFromScan(scanned)
	if err != nil {
		return c.fail(s, nil, &Error{Kind: KindNoToken, Err: err})
	}
	return c.Run(ctx, s, opaque)
}

// Run drives s through Decoding, the verification steps and the expiry
// check. Expiry is only checked once every step has completed.
func (c *Controller) Run(ctx context.Context, s *verification.Session, opaque string) (*Result, error) {
	if strings.TrimSpace(opaque) == "" {
		return c.fail(s, nil, &Error{Kind: KindNoToken, Err: token.ErrNoData})
	}

	decode := c.Decode
	if decode == nil {
		decode = token.Decode
	}
	tok, err := decode(opaque)
	if err != nil {
		return c.fail(s, nil, &Error{Kind: KindMalformed, Err: err})
	}
	if err := s.SetToken(tok); err != nil {
		return c.fail(s, tok, &Error{Kind: KindAbandoned, Err: err})
	}
	if err := s.SetPhase(verification.PhaseVerifying); err != nil {
		return c.fail(s, tok, &Error{Kind: KindAbandoned, Err: err})
	}

	unsub := c.timeSteps(s)
	err = c.Machine.Run(ctx, s)
	unsub()
	if err != nil {
		return c.fail(s, tok, classify(err))
	}

	if err := s.SetPhase(verification.PhaseExpirationCheck); err != nil {
		return c.fail(s, tok, &Error{Kind: KindAbandoned, Err: err})
	}
	if now := c.now(); tok.Expired(now) {
		return c.fail(s, tok, &Error{Kind: KindExpired, Err: errors.New("expired at " + tok.ExpiresAt().Format(token.TimestampLayout))})
	}
	if err := s.SetPhase(verification.PhaseReady); err != nil {
		return c.fail(s, tok, &Error{Kind: KindAbandoned, Err: err})
	}

	log.Printf("[REDEEM] session %s ready for subject %s\n", s.ID(), tok.SubjectID())
	c.Metrics.outcome("ready")
	c.audit(s, tok, audit.ResultSuccess, "ready", nil)
	return &Result{Session: s, Token: tok, Payload: tok.Payload()}, nil
}

func classify(err error) *Error {
	var se *verification.StepError
	switch {
	case errors.As(err, &se) && se.Timeout():
		return &Error{Kind: KindTimeout, StepID: se.Step, Err: err}
	case errors.As(err, &se):
		return &Error{Kind: KindVerificationFailed, StepID: se.Step, Err: err}
	default:
		// context cancellation or a closed session
		return &Error{Kind: KindAbandoned, Err: err}
	}
}

// fail moves s to PhaseFailed unless it was abandoned, in which case no
// further transition is applied.
func (c *Controller) fail(s *verification.Session, tok *token.ShareToken, re *Error) (*Result, error) {
	if re.Kind != KindAbandoned {
		_ = s.SetPhase(verification.PhaseFailed)
	} else {
		s.Close()
	}
	log.Printf("[REDEEM] session %s failed: %v\n", s.ID(), re)
	c.Metrics.outcome(string(re.Kind))
	c.audit(s, tok, audit.ResultFailure, re.Error(), re)
	return &Result{Session: s, Token: tok}, re
}

func (c *Controller) audit(s *verification.Session, tok *token.ShareToken, result, reason string, re *Error) {
	if c.Audit == nil {
		return
	}
	meta := map[string]string{"session": s.ID().String()}
	entity := ""
	if tok != nil {
		entity = tok.SubjectID()
		meta["issuedAt"] = tok.IssuedAt().Format(token.TimestampLayout)
	}
	if re != nil {
		meta["kind"] = string(re.Kind)
		if re.StepID != "" {
			meta["step"] = string(re.StepID)
		}
	}
	c.Audit.LogEvent(audit.AuditEvent{
		Timestamp: c.now(),
		EventType: audit.EventSnapshotRedemption,
		EntityID:  entity,
		Result:    result,
		Reason:    reason,
		Metadata:  meta,
	})
}

// timeSteps records step durations while the machine runs.
func (c *Controller) timeSteps(s *verification.Session) func() {
	if c.Metrics == nil {
		return func() {}
	}
	started := map[verification.StepID]time.Time{}
	return s.Subscribe(func(ev verification.Event) {
		switch ev.Status {
		case verification.StatusLoading:
			started[ev.Step] = ev.At
		case verification.StatusComplete, verification.StatusError:
			if t0, ok := started[ev.Step]; ok {
				c.Metrics.step(string(ev.Step), ev.At.Sub(t0).Seconds())
			}
		}
	})
}
