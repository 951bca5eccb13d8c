package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"healthsnap/core/auth"
	"healthsnap/core/carrier"
	"healthsnap/core/redemption"
)

// AnchorCounter is implemented by ledgers that can report their size.
type AnchorCounter interface {
	Count() (int, error)
}

type Config struct {
	ListenAddr     string
	RedemptionPath string
	DefaultTTL     int
	LedgerBackend  string
	EnableHTTPS    bool
	TLSCertPath    string
	TLSKeyPath     string
	MaxUploadBytes int64
}

type Server struct {
	ListenAddr string
	cfg        Config
	carrier    *carrier.Carrier
	controller *redemption.Controller
	authorizer *auth.Authorizer
	anchors    AnchorCounter
	gatherer   prometheus.Gatherer
	startTime  time.Time
}

// NewServer wires the HTTP surface. anchors and gatherer may be nil.
func NewServer(cfg Config, c *carrier.Carrier, ctrl *redemption.Controller, authorizer *auth.Authorizer, anchors AnchorCounter, gatherer prometheus.Gatherer) *Server {
	if cfg.RedemptionPath == "" {
		cfg.RedemptionPath = carrier.DefaultRedemptionPath
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 3600
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 8 << 20
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		ListenAddr: cfg.ListenAddr,
		cfg:        cfg,
		carrier:    c,
		controller: ctrl,
		authorizer: authorizer,
		anchors:    anchors,
		gatherer:   gatherer,
		startTime:  time.Now(),
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	// Patient endpoints (Bearer, role patient)
	r.HandleFunc("/api/shares", s.requireRole(auth.RolePatient, s.handleIssueShare)).Methods(http.MethodPost)
	r.HandleFunc("/api/shares/refresh", s.requireRole(auth.RolePatient, s.handleRefreshShare)).Methods(http.MethodPost)
	r.HandleFunc("/api/shares/countdown", s.requireRole(auth.RolePatient, s.handleCountdown)).Methods(http.MethodGet)

	// Redemption is open: the token in the URL is the capability
	r.HandleFunc(s.cfg.RedemptionPath, s.handleRedeemURL).Methods(http.MethodGet)
	r.HandleFunc("/api/redeem", s.handleRedeem).Methods(http.MethodPost)
	r.HandleFunc("/api/scan", s.handleScan).Methods(http.MethodPost)

	// Modular health/status endpoints
	r.HandleFunc("/nodehealth", s.HandleNodeHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/liveness", s.HandleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/health/readiness", s.HandleReadiness).Methods(http.MethodGet)
	r.HandleFunc("/status", s.HandleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return r
}

func (s *Server) Start() error {
	handler := s.Router()
	fmt.Println("API server listening at", s.ListenAddr)

	if s.cfg.EnableHTTPS {
		fmt.Println("[HTTPS] Enabled. Using cert:", s.cfg.TLSCertPath, "key:", s.cfg.TLSKeyPath)
		return http.ListenAndServeTLS(s.ListenAddr, s.cfg.TLSCertPath, s.cfg.TLSKeyPath, handler)
	}
	fmt.Println("[HTTPS] Disabled. Serving HTTP only!")
	return http.ListenAndServe(s.ListenAddr, handler)
}

type claimsHandler func(w http.ResponseWriter, r *http.Request, claims *auth.Claims)

// requireRole enforces a Bearer token carrying role.
func (s *Server) requireRole(role string, next claimsHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authorizer == nil {
			writeError(w, http.StatusUnauthorized, "authorization not configured")
			return
		}
		res := s.authorizer.Authorize(r.Header.Get("Authorization"), role)
		if !res.Authorized {
			log.Printf("[API] %s %s rejected: %s\n", r.Method, r.URL.Path, res.Reason)
			writeError(w, res.Status, res.Reason)
			return
		}
		next(w, r, res.Claims)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] encode response: %v\n", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps a redemption error onto an HTTP status.
func statusFor(err error) int {
	var re *redemption.Error
	if !errors.As(err, &re) {
		return http.StatusInternalServerError
	}
	switch re.Kind {
	case redemption.KindNoToken, redemption.KindMalformed:
		return http.StatusBadRequest
	case redemption.KindVerificationFailed:
		return http.StatusUnprocessableEntity
	case redemption.KindExpired:
		return http.StatusGone
	case redemption.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusServiceUnavailable
	}
}
