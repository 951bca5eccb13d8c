package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"healthsnap/core/auth"
	"healthsnap/core/carrier"
	"healthsnap/core/snapshot"
	"healthsnap/core/token"
)

type issueRequest struct {
	TTLSeconds int             `json:"ttlSeconds,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// ShareResponse is what the patient's app renders. QRPNG is base64 in JSON.
type ShareResponse struct {
	ID               string `json:"id"`
	SubjectID        string `json:"subjectId"`
	URL              string `json:"url"`
	Opaque           string `json:"opaque"`
	IssuedAt         string `json:"issuedAt"`
	ExpiresAt        string `json:"expiresAt"`
	TTLSeconds       int    `json:"ttlSeconds"`
	RemainingMinutes int    `json:"remainingMinutes"`
	Anchored         bool   `json:"anchored"`
	QRPNG            []byte `json:"qrPng"`
}

// NewShareResponse renders s as seen at now.
func NewShareResponse(s *carrier.Share, now time.Time) ShareResponse {
	return ShareResponse{
		ID:               s.ID.String(),
		SubjectID:        s.SubjectID(),
		URL:              s.URL,
		Opaque:           s.Opaque,
		IssuedAt:         s.Token.IssuedAt().Format(token.TimestampLayout),
		ExpiresAt:        s.Token.ExpiresAt().Format(token.TimestampLayout),
		TTLSeconds:       s.Token.TTLSeconds(),
		RemainingMinutes: s.RemainingMinutes(now),
		Anchored:         s.Anchor != nil,
		QRPNG:            s.QRPNG,
	}
}

// decodePayload checks the raw payload against the schema before binding it.
func decodePayload(raw json.RawMessage) (snapshot.Payload, error) {
	var p snapshot.Payload
	if len(raw) == 0 || string(raw) == "null" {
		return p, nil
	}
	if err := snapshot.ValidateJSON(raw); err != nil {
		return p, err
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, err
	}
	return p, p.Validate()
}

func (s *Server) handleIssueShare(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	var req issueRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, s.cfg.MaxUploadBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	payload, err := decodePayload(req.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ttl := req.TTLSeconds
	if ttl == 0 {
		ttl = s.cfg.DefaultTTL
	}

	share, err := s.carrier.Issue(r.Context(), claims.Subject, ttl, payload)
	if err != nil {
		if errors.Is(err, token.ErrInvalidTTL) || errors.Is(err, snapshot.ErrInvalidPayload) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[API] issue share for %s failed: %v\n", claims.Subject, err)
		writeError(w, http.StatusInternalServerError, "failed to issue share")
		return
	}
	writeJSON(w, http.StatusCreated, NewShareResponse(share, share.Token.IssuedAt()))
}

func (s *Server) handleRefreshShare(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	share, err := s.carrier.RefreshActive(r.Context(), claims.Subject)
	if errors.Is(err, carrier.ErrNoShare) {
		writeError(w, http.StatusNotFound, "no active share to refresh")
		return
	}
	if err != nil {
		log.Printf("[API] refresh share for %s failed: %v\n", claims.Subject, err)
		writeError(w, http.StatusInternalServerError, "failed to refresh share")
		return
	}
	writeJSON(w, http.StatusCreated, NewShareResponse(share, share.Token.IssuedAt()))
}

type countdownResponse struct {
	ShareID          string `json:"shareId"`
	RemainingSeconds int64  `json:"remainingSeconds"`
	RemainingMinutes int    `json:"remainingMinutes"`
	Expired          bool   `json:"expired"`
}

func (s *Server) handleCountdown(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	if s.carrier.Registry == nil {
		writeError(w, http.StatusNotFound, "no active share")
		return
	}
	share, ok := s.carrier.Registry.Active(claims.Subject)
	if !ok {
		writeError(w, http.StatusNotFound, "no active share")
		return
	}
	now := time.Now()
	if s.carrier.Encoder.Now != nil {
		now = s.carrier.Encoder.Now()
	}
	writeJSON(w, http.StatusOK, countdownResponse{
		ShareID:          share.ID.String(),
		RemainingSeconds: int64(share.Remaining(now).Seconds()),
		RemainingMinutes: share.RemainingMinutes(now),
		Expired:          share.Token.Expired(now),
	})
}
