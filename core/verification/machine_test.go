package verification

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthsnap/core/ledger"
	"healthsnap/core/seal"
	"healthsnap/core/snapshot"
	"healthsnap/core/token"
)

const tick = time.Millisecond

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) observe(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) transitions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Step != "" {
			out = append(out, string(ev.Step)+":"+string(ev.Status))
		}
	}
	return out
}

func statuses(s *Session) []Status {
	var out []Status
	for _, st := range s.Steps() {
		out = append(out, st.Status)
	}
	return out
}

func TestRunIsStrictlySequential(t *testing.T) {
	m := &Machine{Pipeline: SimulatedPipeline(UniformDelays(tick))}
	s := m.NewSession()
	rec := &recorder{}
	s.Subscribe(rec.observe)

	var violations []string
	s.Subscribe(func(Event) {
		steps := s.Steps()
		loading := 0
		for i, st := range steps {
			if st.Status == StatusLoading {
				loading++
			}
			if st.Status == StatusComplete {
				for _, prev := range steps[:i] {
					if prev.Status != StatusComplete {
						violations = append(violations, string(st.ID)+" complete before "+string(prev.ID))
					}
				}
			}
			if st.Status == StatusLoading {
				for _, prev := range steps[:i] {
					if prev.Status != StatusComplete {
						violations = append(violations, string(st.ID)+" loading before "+string(prev.ID))
					}
				}
			}
		}
		if loading > 1 {
			violations = append(violations, "more than one step loading")
		}
	})

	require.NoError(t, m.Run(context.Background(), s))
	assert.Empty(t, violations)
	assert.Equal(t, []string{
		"hash:loading", "hash:complete",
		"ledger-fetch:loading", "ledger-fetch:complete",
		"integrity-check:loading", "integrity-check:complete",
	}, rec.transitions())
	assert.Equal(t, []Status{StatusComplete, StatusComplete, StatusComplete}, statuses(s))
}

func TestFreshSessionStartsPending(t *testing.T) {
	p := SimulatedPipeline(DefaultDelays)
	s := NewSession(p)
	assert.Equal(t, PhaseDecoding, s.Phase())
	assert.Equal(t, []Status{StatusPending, StatusPending, StatusPending}, statuses(s))
	assert.Equal(t, []StepID{StepHash, StepLedgerFetch, StepIntegrityCheck}, p.IDs())
	assert.Equal(t, LabelLedgerFetch, s.Steps()[1].Label)

	// the copy is detached from the session
	steps := s.Steps()
	steps[0].Status = StatusComplete
	assert.Equal(t, StatusPending, s.Steps()[0].Status)
}

func TestFailFastOnHash(t *testing.T) {
	boom := errors.New("boom")
	p := SimulatedPipeline(UniformDelays(tick))
	p[0].Work = WorkFunc(func(context.Context, *Session) error { return boom })

	m := &Machine{Pipeline: p}
	s := m.NewSession()
	rec := &recorder{}
	s.Subscribe(rec.observe)

	err := m.Run(context.Background(), s)
	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StepHash, se.Step)
	assert.ErrorIs(t, err, boom)
	assert.False(t, se.Timeout())

	assert.Equal(t, []Status{StatusError, StatusPending, StatusPending}, statuses(s))
	assert.Equal(t, []string{"hash:loading", "hash:error"}, rec.transitions())
	failed, ok := s.FailedStep()
	assert.True(t, ok)
	assert.Equal(t, StepHash, failed)
}

func TestStepTimeout(t *testing.T) {
	m := &Machine{
		Pipeline:    SimulatedPipeline(Delays{Hash: tick, LedgerFetch: time.Minute, Integrity: tick}),
		StepTimeout: 20 * time.Millisecond,
	}
	s := m.NewSession()
	err := m.Run(context.Background(), s)

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Timeout())
	assert.Equal(t, StepLedgerFetch, se.Step)
	assert.Equal(t, []Status{StatusComplete, StatusError, StatusPending}, statuses(s))
}

func TestStepTimeoutWithUncooperativeWork(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	p := Pipeline{{ID: StepHash, Label: LabelHash, Work: WorkFunc(func(context.Context, *Session) error {
		<-release
		return nil
	})}}
	m := &Machine{Pipeline: p, StepTimeout: 10 * time.Millisecond}

	err := m.Run(context.Background(), m.NewSession())
	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Timeout())
}

func TestCancelAppliesNoTransitions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := SimulatedPipeline(Delays{Hash: tick, LedgerFetch: time.Minute, Integrity: tick})
	m := &Machine{Pipeline: p}
	s := m.NewSession()

	rec := &recorder{}
	s.Subscribe(func(ev Event) {
		rec.observe(ev)
		if ev.Step == StepLedgerFetch && ev.Status == StatusLoading {
			cancel()
		}
	})

	err := m.Run(ctx, s)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, s.Closed())
	assert.Equal(t, []string{"hash:loading", "hash:complete", "ledger-fetch:loading"}, rec.transitions())
	assert.Equal(t, []Status{StatusComplete, StatusLoading, StatusPending}, statuses(s))
	assert.ErrorIs(t, s.SetPhase(PhaseFailed), ErrClosed)
}

func TestCloseAbandonsRun(t *testing.T) {
	p := SimulatedPipeline(UniformDelays(tick))
	m := &Machine{Pipeline: p}
	s := m.NewSession()
	s.Subscribe(func(ev Event) {
		if ev.Step == StepHash && ev.Status == StatusLoading {
			s.Close()
		}
	})

	err := m.Run(context.Background(), s)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, []Status{StatusLoading, StatusPending, StatusPending}, statuses(s))
}

func TestInvalidTransitionRejected(t *testing.T) {
	s := NewSession(SimulatedPipeline(DefaultDelays))
	assert.Error(t, s.setStatus(0, StatusComplete, nil))
	require.NoError(t, s.setStatus(0, StatusLoading, nil))
	require.NoError(t, s.setStatus(0, StatusComplete, nil))
	assert.Error(t, s.setStatus(0, StatusLoading, nil))
}

func TestUnsubscribe(t *testing.T) {
	s := NewSession(nil)
	var n int
	unsub := s.Subscribe(func(Event) { n++ })
	require.NoError(t, s.SetPhase(PhaseVerifying))
	unsub()
	require.NoError(t, s.SetPhase(PhaseReady))
	assert.Equal(t, 1, n)
	assert.Equal(t, PhaseReady, s.Phase())
}

func TestWithDecrypt(t *testing.T) {
	p := WithDecrypt(SimulatedPipeline(DefaultDelays), Simulated(tick))
	assert.Equal(t, []StepID{StepDecrypt, StepHash, StepLedgerFetch, StepIntegrityCheck}, p.IDs())
	assert.Equal(t, LabelDecrypt, p[0].Label)
}

func ledgerFixture(t *testing.T) (*ledger.Memory, *seal.Ed25519Signer, *token.ShareToken) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := seal.NewEd25519Signer(priv)
	require.NoError(t, err)

	tok, err := token.New("p-001", 3600, snapshot.Payload{
		Symptoms:    []snapshot.Symptom{{ID: 1, Name: "Cough", Severity: snapshot.SeverityModerate, Date: "2024-04-29"}},
		Medications: []snapshot.Medication{{Name: "Ibuprofen", Dosage: "200mg", Frequency: "as needed"}},
	}, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	l := ledger.NewMemory()
	_, err = (&ledger.Anchorer{Ledger: l, Signer: signer}).Anchor(context.Background(), tok)
	require.NoError(t, err)
	return l, signer, tok
}

func TestLedgerPipeline(t *testing.T) {
	l, signer, tok := ledgerFixture(t)
	m := &Machine{Pipeline: LedgerPipeline(l, seal.NewEd25519Verifier(signer.PublicKey()), Delays{})}

	s := m.NewSession()
	require.NoError(t, s.SetToken(tok))
	require.NoError(t, m.Run(context.Background(), s))

	digest, ok := s.Digest()
	require.True(t, ok)
	assert.Equal(t, token.Digest(tok), digest)
	a, ok := s.Anchor()
	require.True(t, ok)
	assert.Equal(t, "p-001", a.SubjectID)
}

func TestLedgerPipelineDetectsTampering(t *testing.T) {
	l, signer, tok := ledgerFixture(t)
	m := &Machine{Pipeline: LedgerPipeline(l, seal.NewEd25519Verifier(signer.PublicKey()), Delays{})}

	p := tok.Payload()
	p.Medications[0].Dosage = "800mg"
	forged, err := token.New(tok.SubjectID(), tok.TTLSeconds(), p, tok.IssuedAt())
	require.NoError(t, err)

	s := m.NewSession()
	require.NoError(t, s.SetToken(forged))
	err = m.Run(context.Background(), s)
	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StepLedgerFetch, se.Step)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.Equal(t, []Status{StatusComplete, StatusError, StatusPending}, statuses(s))
}

func TestLedgerPipelineRejectsUnknownSigner(t *testing.T) {
	l, _, tok := ledgerFixture(t)
	stranger, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	m := &Machine{Pipeline: LedgerPipeline(l, seal.NewEd25519Verifier(stranger), Delays{})}

	s := m.NewSession()
	require.NoError(t, s.SetToken(tok))
	err = m.Run(context.Background(), s)
	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StepIntegrityCheck, se.Step)
	assert.ErrorIs(t, err, seal.ErrUnknownSigner)
}

func TestHashStepWithoutToken(t *testing.T) {
	m := &Machine{Pipeline: LedgerPipeline(ledger.NewMemory(), seal.Verifiers{}, Delays{})}
	err := m.Run(context.Background(), m.NewSession())
	assert.ErrorIs(t, err, ErrNoToken)
}
