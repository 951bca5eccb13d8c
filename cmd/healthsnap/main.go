package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"healthsnap/api/server"
	"healthsnap/core/audit"
	"healthsnap/core/auth"
	"healthsnap/core/carrier"
	"healthsnap/core/config"
	"healthsnap/core/ledger"
	"healthsnap/core/redemption"
	"healthsnap/core/seal"
	"healthsnap/core/storage"
	"healthsnap/core/token"
	"healthsnap/core/verification"
)

// How often expired shares are archived and expired anchors pruned.
var purgeInterval = time.Minute

type closer func() error

func main() {
	cfg, err := config.Load(".env", "Dummy.env")
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	// Log to file as well as stdout
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		log.Fatalf("Failed to create log dir: %v", err)
	}
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer logFile.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))

	fmt.Println("🚀 Starting healthsnap node")

	// === Seal keys ===
	signer, verifier, err := loadSeal(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to load seal key: %v", err)
	}
	fmt.Printf("[KEY] %s sealing address: %s\n", signer.Algorithm(), signer.Address())

	// === Ledger ===
	l, counter, pruner, closeLedger, err := openLedger(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to open ledger: %v", err)
	}
	defer closeLedger()

	// === Audit ===
	var auditLogger audit.AuditLogger = audit.NewStdoutAuditLogger()
	if cfg.AuditLogPath != "" {
		fl, err := audit.NewFileAuditLogger(cfg.AuditLogPath)
		if err != nil {
			log.Fatalf("❌ Failed to open audit log: %v", err)
		}
		defer fl.Close()
		auditLogger = fl
	}

	// === Verification pipeline ===
	delays := cfg.Delays()
	var pipeline verification.Pipeline
	var anchorer *ledger.Anchorer
	if l == nil {
		log.Println("[LEDGER] no ledger configured; verification steps are simulated and prove nothing")
		pipeline = verification.SimulatedPipeline(delays)
	} else {
		pipeline = verification.LedgerPipeline(l, verifier, delays)
		anchorer = &ledger.Anchorer{Ledger: l, Signer: signer}
	}
	if cfg.EnableDecryptStep {
		pipeline = verification.WithDecrypt(pipeline, verification.Simulated(delays.Hash))
	}

	stepTimeout := cfg.StepTimeout
	if stepTimeout == 0 {
		stepTimeout = -1
	}

	// === Metrics ===
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	controller := &redemption.Controller{
		Machine: &verification.Machine{Pipeline: pipeline, StepTimeout: stepTimeout},
		Audit:   auditLogger,
		Metrics: redemption.NewMetrics(reg),
	}

	registry := carrier.NewRegistry()
	c := &carrier.Carrier{
		Encoder:        token.Encoder{},
		Origin:         cfg.Origin,
		RedemptionPath: cfg.RedemptionPath,
		Anchorer:       anchorer,
		Registry:       registry,
		QRSize:         cfg.QRSize,
		Audit:          auditLogger,
	}

	// === Auth ===
	if cfg.JWTSecret == "" {
		log.Println("[AUTH] JWT_SECRET not set; share issuance endpoints will reject every request")
	}
	authorizer := &auth.Authorizer{
		Verifier:    &auth.Verifier{KeyProvider: &auth.StaticKeyProvider{Secret: []byte(cfg.JWTSecret)}},
		AuditLogger: auditLogger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go purgeLoop(ctx, registry, pruner, cfg.AnchorRetention, auditLogger)

	srv := server.NewServer(server.Config{
		ListenAddr:     cfg.ListenAddr,
		RedemptionPath: cfg.RedemptionPath,
		DefaultTTL:     cfg.TTLSeconds,
		LedgerBackend:  cfg.LedgerBackend,
		EnableHTTPS:    cfg.EnableHTTPS,
		TLSCertPath:    cfg.TLSCertPath,
		TLSKeyPath:     cfg.TLSKeyPath,
	}, c, controller, authorizer, counter, reg)

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()
	select {
	case err := <-errc:
		log.Printf("[API] server stopped: %v\n", err)
	case <-ctx.Done():
		log.Println("[API] shutting down")
	}
}

func loadSeal(cfg *config.Config) (seal.Signer, seal.Verifier, error) {
	switch cfg.SealAlgorithm {
	case seal.AlgorithmSchnorr:
		x, err := seal.LoadOrCreateSchnorrKey(cfg.SealKeyPath)
		if err != nil {
			return nil, nil, err
		}
		s, err := seal.NewSchnorrSigner(x)
		if err != nil {
			return nil, nil, err
		}
		return s, seal.Verifiers{seal.AlgorithmSchnorr: seal.NewSchnorrVerifier(s.PublicKey())}, nil
	case seal.AlgorithmEd25519:
		pub, priv, err := seal.GenerateAndSaveKeypair(cfg.SealKeyPath, cfg.SealKeyPath+".pub")
		if err != nil {
			return nil, nil, err
		}
		s, err := seal.NewEd25519Signer(priv)
		if err != nil {
			return nil, nil, err
		}
		return s, seal.Verifiers{seal.AlgorithmEd25519: seal.NewEd25519Verifier(pub)}, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", seal.ErrUnsupported, cfg.SealAlgorithm)
	}
}

type anchorPruner interface {
	PruneExpired(now time.Time, retention time.Duration) (int, error)
}

// openLedger returns a nil ledger for LedgerNone.
func openLedger(cfg *config.Config) (ledger.Ledger, server.AnchorCounter, anchorPruner, closer, error) {
	noop := func() error { return nil }
	switch cfg.LedgerBackend {
	case config.LedgerLevelDB:
		var cipher *storage.Cipher
		if cfg.DEK != "" {
			dek, err := storage.LoadDEK(cfg.DEK)
			if err != nil {
				return nil, nil, nil, noop, err
			}
			if cipher, err = storage.NewCipher(dek); err != nil {
				return nil, nil, nil, noop, err
			}
		} else {
			log.Println("[LEDGER] SNAPSHOT_DEK not set; anchors stored unencrypted")
		}
		store, err := storage.NewStorage(cfg.LedgerPath, cipher)
		if err != nil {
			return nil, nil, nil, noop, err
		}
		lv := ledger.NewLevelDB(store)
		log.Printf("[LEDGER] LevelDB anchors at %s\n", cfg.LedgerPath)
		return lv, lv, lv, store.Close, nil
	case config.LedgerFabric:
		f, closeFn, err := ledger.DialFabric(cfg.Fabric)
		if err != nil {
			return nil, nil, nil, noop, err
		}
		log.Printf("[LEDGER] Fabric anchors on %s/%s via %s\n", cfg.Fabric.Channel, cfg.Fabric.Chaincode, cfg.Fabric.PeerEndpoint)
		return f, nil, nil, closeFn, nil
	default:
		return nil, nil, nil, noop, nil
	}
}

func purgeLoop(ctx context.Context, registry *carrier.Registry, pruner anchorPruner, retention time.Duration, auditLogger audit.AuditLogger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, a := range registry.PurgeExpired(now) {
				auditLogger.LogEvent(audit.AuditEvent{
					EventType: audit.EventSharePurged,
					EntityID:  a.SubjectID,
					Result:    audit.ResultSuccess,
					Reason:    a.Reason,
					Metadata:  map[string]string{"share_id": a.ShareID.String()},
					Timestamp: now,
				})
			}
			if pruner != nil {
				if n, err := pruner.PruneExpired(now, retention); err != nil {
					log.Printf("[LEDGER] prune failed: %v\n", err)
				} else if n > 0 {
					log.Printf("[LEDGER] pruned %d expired anchors\n", n)
				}
			}
		}
	}
}
