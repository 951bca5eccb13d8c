// Package config reads node settings from the environment, after loading
// any .env files given.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"healthsnap/core/ledger"
	"healthsnap/core/verification"
)

const (
	LedgerNone    = "none"
	LedgerLevelDB = "leveldb"
	LedgerFabric  = "fabric"
)

type Config struct {
	ListenAddr        string
	Origin            string
	RedemptionPath    string
	TTLSeconds        int
	StepTimeout       time.Duration
	StepDelay         time.Duration // 0 means the default per-step delays
	EnableDecryptStep bool
	LedgerBackend     string
	LedgerPath        string
	DEK               string // base64, 32 bytes
	SealAlgorithm     string
	SealKeyPath       string
	JWTSecret         string
	EnableHTTPS       bool
	TLSCertPath       string
	TLSKeyPath        string
	AuditLogPath      string
	LogFile           string
	QRSize            int           // minimum PNG width; grows with the QR module count
	AnchorRetention   time.Duration // how long anchors are kept past token expiry
	Fabric            ledger.FabricConfig
}

// Load reads the given .env files (missing ones are skipped) and then the
// environment. Variables already set in the environment win.
func Load(files ...string) (*Config, error) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	var errs []string
	intVar := func(key string, def int) int {
		v := os.Getenv(key)
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
			return def
		}
		return n
	}

	c := &Config{
		ListenAddr:        env("API_LISTEN_ADDR", ":8080"),
		Origin:            env("SNAPSHOT_ORIGIN", "http://localhost:3000"),
		RedemptionPath:    env("REDEMPTION_PATH", "/doctor-dashboard"),
		TTLSeconds:        intVar("SNAPSHOT_TTL_SECONDS", 3600),
		StepTimeout:       time.Duration(intVar("STEP_TIMEOUT_MS", 10000)) * time.Millisecond,
		StepDelay:         time.Duration(intVar("STEP_DELAY_MS", 0)) * time.Millisecond,
		EnableDecryptStep: os.Getenv("ENABLE_DECRYPT_STEP") == "true",
		LedgerBackend:     strings.ToLower(env("LEDGER_BACKEND", LedgerNone)),
		LedgerPath:        env("LEDGER_PATH", "./healthsnap_db"),
		DEK:               os.Getenv("SNAPSHOT_DEK"),
		SealAlgorithm:     env("SEAL_ALGORITHM", "Ed25519"),
		SealKeyPath:       env("SEAL_KEY_PATH", "seal_ed25519.key"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		EnableHTTPS:       os.Getenv("ENABLE_HTTPS") == "true",
		TLSCertPath:       os.Getenv("TLS_CERT_PATH"),
		TLSKeyPath:        os.Getenv("TLS_KEY_PATH"),
		AuditLogPath:      os.Getenv("AUDIT_LOG_PATH"),
		LogFile:           env("LOG_FILE", "logs/healthsnap-node.log"),
		QRSize:            intVar("QR_SIZE", 256),
		AnchorRetention:   time.Duration(intVar("ANCHOR_RETENTION_HOURS", 168)) * time.Hour,
		Fabric: ledger.FabricConfig{
			PeerEndpoint: env("FABRIC_PEER_ENDPOINT", "localhost:7051"),
			GatewayPeer:  env("FABRIC_GATEWAY_PEER", "peer0.org1.example.com"),
			MSPID:        env("FABRIC_MSP_ID", "Org1MSP"),
			CertPath:     os.Getenv("FABRIC_CERT_PATH"),
			KeyDir:       os.Getenv("FABRIC_KEY_DIR"),
			TLSCertPath:  os.Getenv("FABRIC_TLS_CERT_PATH"),
			Channel:      env("FABRIC_CHANNEL", "mychannel"),
			Chaincode:    env("FABRIC_CHAINCODE", "healthsnap"),
		},
	}

	switch c.LedgerBackend {
	case LedgerNone, LedgerLevelDB, LedgerFabric:
	default:
		errs = append(errs, fmt.Sprintf("LEDGER_BACKEND: unknown backend %q", c.LedgerBackend))
	}
	if c.TTLSeconds <= 0 {
		errs = append(errs, "SNAPSHOT_TTL_SECONDS must be positive")
	}
	if c.AnchorRetention <= 0 {
		errs = append(errs, "ANCHOR_RETENTION_HOURS must be positive")
	}
	if c.EnableHTTPS && (c.TLSCertPath == "" || c.TLSKeyPath == "") {
		errs = append(errs, "ENABLE_HTTPS requires TLS_CERT_PATH and TLS_KEY_PATH")
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return c, nil
}

// Delays returns the per-step latencies for the verification pipeline.
func (c *Config) Delays() verification.Delays {
	if c.StepDelay > 0 {
		return verification.UniformDelays(c.StepDelay)
	}
	return verification.DefaultDelays
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
