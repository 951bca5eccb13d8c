package server

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"healthsnap/core/reader"
	"healthsnap/core/redemption"
	"healthsnap/core/token"
	"healthsnap/core/view"
)

func (s *Server) writeScreen(w http.ResponseWriter, res *redemption.Result, err error) {
	screen := view.ScreenFor(nil, res, err)
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
	}
	writeJSON(w, status, screen)
}

// handleRedeemURL serves <redemption-path>?data=<opaque>, the URL inside the QR code.
func (s *Server) handleRedeemURL(w http.ResponseWriter, r *http.Request) {
	res, err := s.controller.Redeem(r.Context(), r.URL.Query().Get(token.QueryParam))
	s.writeScreen(w, res, err)
}

type redeemRequest struct {
	Scanned string `json:"scanned"`
}

// handleRedeem accepts a scanned URL or a bare opaque string.
func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, s.cfg.MaxUploadBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	res, err := s.controller.RedeemScan(r.Context(), req.Scanned)
	s.writeScreen(w, res, err)
}

type scanRequest struct {
	DataURL string `json:"dataUrl"`
}

// handleScan reads a QR code from an uploaded image (multipart field
// "image" or a JSON data URL) and redeems it.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var (
		scanned string
		ok      bool
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid upload: "+err.Error())
			return
		}
		f, _, err := r.FormFile("image")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing image field")
			return
		}
		defer f.Close()
		scanned, ok = reader.ScanImage(f)
	} else {
		var req scanRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, s.cfg.MaxUploadBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
			return
		}
		scanned, ok = reader.ScanDataURL(req.DataURL)
	}
	if !ok {
		log.Printf("[API] scan from %s: no QR code found\n", r.RemoteAddr)
		scanned = ""
	}
	res, err := s.controller.RedeemScan(r.Context(), scanned)
	s.writeScreen(w, res, err)
}
