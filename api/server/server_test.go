package server

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthsnap/core/auth"
	"healthsnap/core/carrier"
	"healthsnap/core/ledger"
	"healthsnap/core/redemption"
	"healthsnap/core/seal"
	"healthsnap/core/snapshot"
	"healthsnap/core/verification"
	"healthsnap/core/view"
)

var testSecret = []byte("test-secret")

const samplePayload = `{
  "recentSymptoms": [{"id": 1, "name": "Headache", "severity": "Severe", "date": "2024-04-30"}],
  "vitalSigns": {"bloodPressure": "120/80", "heartRate": "72", "temperature": "98.6", "lastChecked": "2024-04-30T08:15:00Z"},
  "medications": [{"name": "Lisinopril", "dosage": "10mg", "frequency": "daily"}]
}`

type fixture struct {
	srv     *Server
	router  http.Handler
	carrier *carrier.Carrier
	ledger  *ledger.Memory
}

func newFixture(t *testing.T, now func() time.Time) *fixture {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := seal.NewEd25519Signer(priv)
	require.NoError(t, err)
	verifier := seal.NewEd25519Verifier(signer.PublicKey())

	l := ledger.NewMemory()
	c := &carrier.Carrier{
		Anchorer: &ledger.Anchorer{Ledger: l, Signer: signer},
		Registry: carrier.NewRegistry(),
		QRSize:   256,
	}
	reg := prometheus.NewRegistry()
	ctrl := &redemption.Controller{
		Machine: &verification.Machine{
			Pipeline: verification.LedgerPipeline(l, seal.Verifiers{seal.AlgorithmEd25519: verifier}, verification.UniformDelays(time.Millisecond)),
		},
		Now:     now,
		Metrics: redemption.NewMetrics(reg),
	}
	authorizer := &auth.Authorizer{Verifier: &auth.Verifier{KeyProvider: &auth.StaticKeyProvider{Secret: testSecret}}}

	srv := NewServer(Config{ListenAddr: ":0", LedgerBackend: "memory"}, c, ctrl, authorizer, l, reg)
	return &fixture{srv: srv, router: srv.Router(), carrier: c, ledger: l}
}

func bearer(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	tok, err := auth.Mint(testSecret, subject, roles, time.Hour, time.Now())
	require.NoError(t, err)
	return "Bearer " + tok
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) issue(t *testing.T, body string) ShareResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/shares", strings.NewReader(body))
	req.Header.Set("Authorization", bearer(t, "p-001", auth.RolePatient))
	rec := f.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp ShareResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeScreen(t *testing.T, rec *httptest.ResponseRecorder) view.Screen {
	t.Helper()
	var sc view.Screen
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sc))
	return sc
}

func TestIssueShareRequiresPatient(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/shares", strings.NewReader(`{}`))
	assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/shares", strings.NewReader(`{}`))
	req.Header.Set("Authorization", bearer(t, "dr-7", auth.RoleClinician))
	assert.Equal(t, http.StatusForbidden, f.do(req).Code)
}

func TestIssueShare(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.issue(t, `{"payload": `+samplePayload+`}`)

	assert.Equal(t, "p-001", resp.SubjectID)
	assert.Equal(t, 3600, resp.TTLSeconds)
	assert.Equal(t, 60, resp.RemainingMinutes)
	assert.True(t, resp.Anchored)
	assert.NotEmpty(t, resp.QRPNG)
	assert.Contains(t, resp.URL, "/doctor-dashboard?data=")
	assert.Equal(t, 1, f.ledger.Len())
}

func TestIssueShareRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)
	cases := map[string]string{
		"bad json":     `{`,
		"bad severity": `{"payload": {"recentSymptoms": [{"id": 1, "name": "x", "severity": "Extreme", "date": "2024-04-30"}]}}`,
		"negative ttl": `{"ttlSeconds": -5, "payload": {}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/shares", strings.NewReader(body))
			req.Header.Set("Authorization", bearer(t, "p-001", auth.RolePatient))
			assert.Equal(t, http.StatusBadRequest, f.do(req).Code)
		})
	}
}

func TestRedeemURL(t *testing.T) {
	f := newFixture(t, nil)
	share := f.issue(t, `{"payload": `+samplePayload+`}`)

	u, err := url.Parse(share.URL)
	require.NoError(t, err)
	rec := f.do(httptest.NewRequest(http.MethodGet, u.RequestURI(), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sc := decodeScreen(t, rec)
	assert.Equal(t, view.ScreenSnapshot, sc.Kind)
	require.NotNil(t, sc.Snapshot)
	assert.Equal(t, "p-001", sc.Snapshot.SubjectID)
	require.Len(t, sc.Snapshot.View.Symptoms, 1)
	assert.Equal(t, view.ToneSevere, sc.Snapshot.View.Symptoms[0].Tone)
}

func TestRedeemErrors(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/doctor-dashboard", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(redemption.KindNoToken), decodeScreen(t, rec).Error.Kind)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/doctor-dashboard?data=%21%21%21", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(redemption.KindMalformed), decodeScreen(t, rec).Error.Kind)
}

func TestRedeemExpired(t *testing.T) {
	later := func() time.Time { return time.Now().Add(2 * time.Hour) }
	f := newFixture(t, later)
	share := f.issue(t, `{"ttlSeconds": 60, "payload": `+samplePayload+`}`)

	body, _ := json.Marshal(redeemRequest{Scanned: share.URL})
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/redeem", bytes.NewReader(body)))
	assert.Equal(t, http.StatusGone, rec.Code)

	sc := decodeScreen(t, rec)
	assert.Equal(t, view.ScreenError, sc.Kind)
	assert.Equal(t, string(redemption.KindExpired), sc.Error.Kind)
	// every step ran before expiry was judged
	for _, st := range sc.Steps {
		assert.Equal(t, verification.StatusComplete, st.Status)
	}
}

func TestRedeemTamperedFailsVerification(t *testing.T) {
	f := newFixture(t, nil)
	// issued without an anchor: the ledger has no record of it
	f.carrier.Anchorer = nil
	share, err := f.carrier.Issue(context.Background(), "p-002", 600, carrierPayload(t))
	require.NoError(t, err)

	body, _ := json.Marshal(redeemRequest{Scanned: share.Opaque})
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/redeem", bytes.NewReader(body)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	sc := decodeScreen(t, rec)
	assert.Equal(t, string(redemption.KindVerificationFailed), sc.Error.Kind)
	assert.Equal(t, string(verification.StepLedgerFetch), sc.Error.Step)
}

func TestScanUpload(t *testing.T) {
	f := newFixture(t, nil)
	share := f.issue(t, `{"payload": `+samplePayload+`}`)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "qr.png")
	require.NoError(t, err)
	_, err = part.Write(share.QRPNG)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/scan", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, view.ScreenSnapshot, decodeScreen(t, rec).Kind)
}

func TestScanWithoutCode(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/scan", strings.NewReader(`{"dataUrl": "data:image/png;base64,AAAA"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(redemption.KindNoToken), decodeScreen(t, rec).Error.Kind)
}

func TestRefreshAndCountdown(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/shares/refresh", nil)
	req.Header.Set("Authorization", bearer(t, "p-001", auth.RolePatient))
	assert.Equal(t, http.StatusNotFound, f.do(req).Code)

	first := f.issue(t, `{"payload": `+samplePayload+`}`)

	req = httptest.NewRequest(http.MethodPost, "/api/shares/refresh", nil)
	req.Header.Set("Authorization", bearer(t, "p-001", auth.RolePatient))
	rec := f.do(req)
	require.Equal(t, http.StatusCreated, rec.Code)
	var second ShareResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.TTLSeconds, second.TTLSeconds)

	req = httptest.NewRequest(http.MethodGet, "/api/shares/countdown", nil)
	req.Header.Set("Authorization", bearer(t, "p-001", auth.RolePatient))
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	var cd countdownResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cd))
	assert.Equal(t, second.ID, cd.ShareID)
	assert.Equal(t, 60, cd.RemainingMinutes)
	assert.False(t, cd.Expired)
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	f.issue(t, `{"payload": `+samplePayload+`}`)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/health/liveness", nil))
	assert.JSONEq(t, `{"alive": true}`, rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/health/readiness", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ready": true}`, rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var st StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "healthy", st.Status)
	assert.Equal(t, 1, st.ActiveShares)
	assert.Equal(t, 1, st.AnchorCount)
	assert.Equal(t, APIVersion(), st.APIVersion)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.do(httptest.NewRequest(http.MethodGet, "/doctor-dashboard", nil))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `healthsnap_redemptions_total{outcome="NoToken"} 1`)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(&redemption.Error{Kind: redemption.KindTimeout}))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(&redemption.Error{Kind: redemption.KindAbandoned}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}

func carrierPayload(t *testing.T) snapshot.Payload {
	t.Helper()
	var p snapshot.Payload
	require.NoError(t, json.Unmarshal([]byte(samplePayload), &p))
	return p
}
