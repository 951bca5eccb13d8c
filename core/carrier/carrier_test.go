package carrier

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"image/png"
	"sync"
	"testing"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthsnap/core/ledger"
	"healthsnap/core/reader"
	"healthsnap/core/seal"
	"healthsnap/core/snapshot"
	"healthsnap/core/token"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func payload() snapshot.Payload {
	return snapshot.Payload{
		Symptoms:    []snapshot.Symptom{{ID: 1, Name: "Headache", Severity: snapshot.SeverityMild, Date: "2024-04-30"}},
		Medications: []snapshot.Medication{},
	}
}

func newCarrier(t *testing.T, clk *clock) (*Carrier, *ledger.Memory) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := seal.NewEd25519Signer(priv)
	require.NoError(t, err)
	l := ledger.NewMemory()
	return &Carrier{
		Encoder:  token.Encoder{Now: clk.Now},
		Anchorer: &ledger.Anchorer{Ledger: l, Signer: signer},
		Registry: NewRegistry(),
		QRSize:   128,
	}, l
}

func TestIssue(t *testing.T) {
	clk := &clock{now: t0}
	c, l := newCarrier(t, clk)

	share, err := c.Issue(context.Background(), "p-001", 3600, payload())
	require.NoError(t, err)

	assert.Contains(t, share.URL, "http://localhost:3000/doctor-dashboard?data=")
	opaque, err := token.OpaqueFromScan(share.URL)
	require.NoError(t, err)
	assert.Equal(t, share.Opaque, opaque)

	img, err := png.Decode(bytes.NewReader(share.QRPNG))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, img.Bounds().Dx(), 128)
	assert.Equal(t, img.Bounds().Dx(), img.Bounds().Dy())

	require.NotNil(t, share.Anchor)
	_, err = l.Get(context.Background(), token.Digest(share.Token))
	assert.NoError(t, err)

	active, ok := c.Registry.Active("p-001")
	require.True(t, ok)
	assert.Equal(t, share.ID, active.ID)

	assert.Equal(t, 60, share.RemainingMinutes(t0))
	assert.Equal(t, 59, share.RemainingMinutes(t0.Add(61*time.Second)))
	assert.Equal(t, 0, share.RemainingMinutes(t0.Add(2*time.Hour)))
}

func TestIssueRejectsInvalidInput(t *testing.T) {
	c, _ := newCarrier(t, &clock{now: t0})
	_, err := c.Issue(context.Background(), "", 3600, payload())
	assert.ErrorIs(t, err, token.ErrEmptySubject)
	_, err = c.Issue(context.Background(), "p-001", 0, payload())
	assert.ErrorIs(t, err, token.ErrInvalidTTL)
	assert.Zero(t, c.Registry.Len())
}

func TestRefreshIssuesFreshToken(t *testing.T) {
	clk := &clock{now: t0}
	c, _ := newCarrier(t, clk)
	old, err := c.Issue(context.Background(), "p-001", 3600, payload())
	require.NoError(t, err)

	clk.Advance(30 * time.Minute)
	fresh, err := c.RefreshActive(context.Background(), "p-001")
	require.NoError(t, err)

	assert.NotEqual(t, old.Opaque, fresh.Opaque)
	assert.Equal(t, t0.Add(30*time.Minute), fresh.Token.IssuedAt())
	assert.Equal(t, old.Token.TTLSeconds(), fresh.Token.TTLSeconds())
	assert.Equal(t, old.Token.Payload(), fresh.Token.Payload())
	// the old token keeps its own expiry
	assert.Equal(t, t0.Add(time.Hour), old.Token.ExpiresAt())

	archive := c.Registry.Archived()
	require.Len(t, archive, 1)
	assert.Equal(t, ReasonReplaced, archive[0].Reason)
	assert.Equal(t, old.ID, archive[0].ShareID)
	assert.Equal(t, fresh.ID, archive[0].ReplacedBy)

	_, err = c.RefreshActive(context.Background(), "p-404")
	assert.ErrorIs(t, err, ErrNoShare)
}

func TestRegistryPurgeExpired(t *testing.T) {
	clk := &clock{now: t0}
	c, _ := newCarrier(t, clk)
	_, err := c.Issue(context.Background(), "p-001", 60, payload())
	require.NoError(t, err)
	_, err = c.Issue(context.Background(), "p-002", 3600, payload())
	require.NoError(t, err)

	assert.Empty(t, c.Registry.PurgeExpired(t0.Add(60*time.Second)))

	purged := c.Registry.PurgeExpired(t0.Add(61 * time.Second))
	require.Len(t, purged, 1)
	assert.Equal(t, "p-001", purged[0].SubjectID)
	assert.Equal(t, ReasonExpired, purged[0].Reason)
	assert.Equal(t, 1, c.Registry.Len())
	_, ok := c.Registry.Active("p-001")
	assert.False(t, ok)
}

func TestCountdown(t *testing.T) {
	clk := &clock{now: t0}
	c, _ := newCarrier(t, clk)
	share, err := c.Issue(context.Background(), "p-001", 180, payload())
	require.NoError(t, err)

	// each read of the clock moves it a minute forward
	now := func() time.Time {
		n := clk.Now()
		clk.Advance(time.Minute)
		return n
	}
	var minutes []int
	for tick := range countdown(context.Background(), share, time.Millisecond, now) {
		minutes = append(minutes, tick.Minutes)
	}
	assert.Equal(t, []int{3, 2, 1, 0}, minutes)
}

func TestCountdownStopsOnCancel(t *testing.T) {
	c, _ := newCarrier(t, &clock{now: time.Now()})
	share, err := c.Issue(context.Background(), "p-001", 3600, payload())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ticks := Countdown(ctx, share, time.Hour)
	first := <-ticks
	assert.Equal(t, 60, first.Minutes)
	assert.False(t, first.Expired)

	cancel()
	for range ticks {
	}
}

func dashboardPayload() snapshot.Payload {
	return snapshot.Payload{
		Symptoms: []snapshot.Symptom{
			{ID: 1, Name: "Headache", Severity: snapshot.SeverityModerate, Date: "2024-04-30"},
			{ID: 2, Name: "Fatigue", Severity: snapshot.SeverityMild, Date: "2024-04-29"},
			{ID: 3, Name: "Chest pain", Severity: snapshot.SeveritySevere, Date: "2024-04-28"},
		},
		VitalSigns: &snapshot.VitalSigns{
			BloodPressure: "120/80",
			HeartRate:     "72",
			Temperature:   "98.6",
			LastChecked:   time.Date(2024, 4, 30, 8, 15, 0, 0, time.UTC),
		},
		Medications: []snapshot.Medication{
			{Name: "Lisinopril", Dosage: "10mg", Frequency: "daily"},
			{Name: "Metformin", Dosage: "500mg", Frequency: "twice daily"},
		},
	}
}

func TestIssuedQRScansBack(t *testing.T) {
	for _, size := range []int{0, 128, 256, 512} {
		clk := &clock{now: t0}
		c, _ := newCarrier(t, clk)
		c.QRSize = size

		share, err := c.Issue(context.Background(), "p-001", 3600, dashboardPayload())
		require.NoError(t, err)

		scanned, ok := reader.ScanImage(bytes.NewReader(share.QRPNG))
		require.True(t, ok, "QR size %d did not decode", size)
		assert.Equal(t, share.URL, scanned)
	}
}

func TestRenderQRWholeModules(t *testing.T) {
	b, err := RenderQR("http://localhost:3000/doctor-dashboard?data=x", 10)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	q, err := qrcode.New("http://localhost:3000/doctor-dashboard?data=x", qrcode.Medium)
	require.NoError(t, err)
	assert.Equal(t, MinModulePixels*len(q.Bitmap()), img.Bounds().Dx())
}
