package ledger

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-gateway/pkg/identity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"healthsnap/types/ids"
)

// Chaincode transaction names.
const (
	TxAnchorSnapshot     = "AnchorSnapshot"
	TxReadSnapshotAnchor = "ReadSnapshotAnchor"
)

// Contract is the part of *client.Contract the Fabric ledger needs.
type Contract interface {
	SubmitTransaction(name string, args ...string) ([]byte, error)
	EvaluateTransaction(name string, args ...string) ([]byte, error)
}

// Fabric records anchors through a Hyperledger Fabric chaincode.
type Fabric struct {
	contract Contract
}

func NewFabric(contract Contract) *Fabric {
	return &Fabric{contract: contract}
}

// Put submits synchronously; it returns once the transaction is committed.
func (f *Fabric) Put(ctx context.Context, a Anchor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	if _, err := f.contract.SubmitTransaction(TxAnchorSnapshot, a.Digest, string(data)); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			prev, gerr := f.read(a.Digest)
			if gerr == nil && prev.sameAs(a) {
				return nil
			}
			return ErrConflict
		}
		return fmt.Errorf("failed to submit transaction: %w", err)
	}
	return nil
}

func (f *Fabric) Get(ctx context.Context, digest ids.ID) (Anchor, error) {
	if err := ctx.Err(); err != nil {
		return Anchor{}, err
	}
	return f.read(digest.String())
}

func (f *Fabric) read(digest string) (Anchor, error) {
	result, err := f.contract.EvaluateTransaction(TxReadSnapshotAnchor, digest)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") {
			return Anchor{}, ErrNotFound
		}
		return Anchor{}, fmt.Errorf("failed to evaluate transaction: %w", err)
	}
	if len(result) == 0 {
		return Anchor{}, ErrNotFound
	}
	var a Anchor
	if err := json.Unmarshal(result, &a); err != nil {
		return Anchor{}, fmt.Errorf("corrupt anchor %s: %w", digest, err)
	}
	return a, nil
}

// FabricConfig locates the gateway peer and the client identity.
type FabricConfig struct {
	PeerEndpoint string
	GatewayPeer  string
	MSPID        string
	CertPath     string
	KeyDir       string
	TLSCertPath  string
	Channel      string
	Chaincode    string
}

// DialFabric connects to a Fabric gateway. The returned close func releases
// both the gateway and the gRPC connection.
func DialFabric(cfg FabricConfig) (*Fabric, func() error, error) {
	tlsCert, err := loadCertificate(cfg.TLSCertPath)
	if err != nil {
		return nil, nil, err
	}
	certPool := x509.NewCertPool()
	certPool.AddCert(tlsCert)
	transportCredentials := credentials.NewClientTLSFromCert(certPool, cfg.GatewayPeer)

	conn, err := grpc.Dial(cfg.PeerEndpoint, grpc.WithTransportCredentials(transportCredentials))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	id, err := newIdentity(cfg)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	sign, err := newSign(cfg.KeyDir)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	gw, err := client.Connect(
		id,
		client.WithSign(sign),
		client.WithClientConnection(conn),
		client.WithEvaluateTimeout(5*time.Second),
		client.WithEndorseTimeout(15*time.Second),
		client.WithSubmitTimeout(5*time.Second),
		client.WithCommitStatusTimeout(1*time.Minute),
	)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	contract := gw.GetNetwork(cfg.Channel).GetContract(cfg.Chaincode)
	closeFn := func() error {
		gw.Close()
		return conn.Close()
	}
	return NewFabric(contract), closeFn, nil
}

func newIdentity(cfg FabricConfig) (*identity.X509Identity, error) {
	certificate, err := loadCertificate(cfg.CertPath)
	if err != nil {
		return nil, err
	}
	return identity.NewX509Identity(cfg.MSPID, certificate)
}

func loadCertificate(filename string) (*x509.Certificate, error) {
	certificatePEM, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}
	return identity.CertificateFromPEM(certificatePEM)
}

// newSign uses the first key found in keyDir.
func newSign(keyDir string) (identity.Sign, error) {
	files, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no private key in %s", keyDir)
	}
	privateKeyPEM, err := os.ReadFile(path.Join(keyDir, files[0].Name()))
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	privateKey, err := identity.PrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, err
	}
	return identity.NewPrivateKeySign(privateKey)
}
