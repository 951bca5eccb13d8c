package carrier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"healthsnap/core/audit"
	"healthsnap/core/ledger"
	"healthsnap/core/snapshot"
	"healthsnap/core/token"
)

const (
	DefaultOrigin         = "http://localhost:3000"
	DefaultRedemptionPath = "/doctor-dashboard"
	DefaultQRSize         = 256
	// MinModulePixels keeps every QR module a whole number of pixels, at
	// least this wide, however long the URL gets.
	MinModulePixels = 4
)

var ErrNoShare = errors.New("no active share")

type Carrier struct {
	Encoder        token.Encoder
	Origin         string
	RedemptionPath string
	Anchorer       *ledger.Anchorer // optional
	Registry       *Registry        // optional
	QRSize         int
	Audit          audit.AuditLogger
}

func (c *Carrier) now() time.Time {
	if c.Encoder.Now != nil {
		return c.Encoder.Now()
	}
	return time.Now()
}

// Issue encodes a new token for subjectID, anchors it when a ledger is
// configured and renders its redemption URL as a QR code.
func (c *Carrier) Issue(ctx context.Context, subjectID string, ttlSeconds int, payload snapshot.Payload) (*Share, error) {
	share, err := c.build(ctx, subjectID, ttlSeconds, payload)
	if err != nil {
		return nil, err
	}
	if c.Registry != nil {
		c.Registry.Register(share, share.Token.IssuedAt())
	}
	log.Printf("[CARRIER] issued share %s for %s, valid %ds\n", share.ID, subjectID, ttlSeconds)
	c.audit(audit.EventShareIssued, share, nil)
	return share, nil
}

// Refresh issues a brand-new token for the same subject, ttl and payload.
// The old token is not extended; it stays valid until its own expiry.
func (c *Carrier) Refresh(ctx context.Context, old *Share) (*Share, error) {
	if old == nil || old.Token == nil {
		return nil, ErrNoShare
	}
	share, err := c.build(ctx, old.SubjectID(), old.Token.TTLSeconds(), old.Token.Payload())
	if err != nil {
		return nil, err
	}
	if c.Registry != nil {
		c.Registry.Register(share, share.Token.IssuedAt())
	}
	log.Printf("[CARRIER] refreshed share %s -> %s for %s\n", old.ID, share.ID, share.SubjectID())
	c.audit(audit.EventShareRefreshed, share, map[string]string{"replaces": old.ID.String()})
	return share, nil
}

// RefreshActive refreshes the subject's registered share.
func (c *Carrier) RefreshActive(ctx context.Context, subjectID string) (*Share, error) {
	if c.Registry == nil {
		return nil, ErrNoShare
	}
	old, ok := c.Registry.Active(subjectID)
	if !ok {
		return nil, ErrNoShare
	}
	return c.Refresh(ctx, old)
}

func (c *Carrier) build(ctx context.Context, subjectID string, ttlSeconds int, payload snapshot.Payload) (*Share, error) {
	opaque, tok, err := c.Encoder.Encode(subjectID, ttlSeconds, payload)
	if err != nil {
		return nil, err
	}
	share := &Share{ID: uuid.New(), Token: tok, Opaque: opaque}

	if c.Anchorer != nil {
		a, err := c.Anchorer.Anchor(ctx, tok)
		if err != nil {
			return nil, fmt.Errorf("anchor share: %w", err)
		}
		share.Anchor = &a
	}

	origin, path := c.Origin, c.RedemptionPath
	if origin == "" {
		origin = DefaultOrigin
	}
	if path == "" {
		path = DefaultRedemptionPath
	}
	share.URL, err = token.RedemptionURL(origin, path, opaque)
	if err != nil {
		return nil, err
	}

	size := c.QRSize
	if size <= 0 {
		size = DefaultQRSize
	}
	share.QRPNG, err = RenderQR(share.URL, size)
	if err != nil {
		return nil, err
	}
	return share, nil
}

// RenderQR encodes content as a square PNG QR code at least minSize pixels
// wide. The image grows with the module count so each module stays at
// least MinModulePixels wide and is never resampled.
func RenderQR(content string, minSize int) ([]byte, error) {
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("render QR: %w", err)
	}
	modules := len(q.Bitmap())
	perModule := MinModulePixels
	if n := (minSize + modules - 1) / modules; n > perModule {
		perModule = n
	}
	png, err := q.PNG(perModule * modules)
	if err != nil {
		return nil, fmt.Errorf("render QR: %w", err)
	}
	return png, nil
}

func (c *Carrier) audit(eventType string, s *Share, meta map[string]string) {
	if c.Audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]string{}
	}
	meta["share"] = s.ID.String()
	meta["ttlSeconds"] = strconv.Itoa(s.Token.TTLSeconds())
	c.Audit.LogEvent(audit.AuditEvent{
		Timestamp: c.now(),
		EventType: eventType,
		EntityID:  s.SubjectID(),
		Result:    audit.ResultSuccess,
		Reason:    "issued until " + s.Token.ExpiresAt().Format(token.TimestampLayout),
		Metadata:  meta,
	})
}
