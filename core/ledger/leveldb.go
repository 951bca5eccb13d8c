package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"healthsnap/core/storage"
	"healthsnap/types/ids"
)

const anchorPrefix = "anchor:"

// LevelDB keeps anchors in a storage.Storage under anchor:<digest>.
type LevelDB struct {
	store *storage.Storage
}

func NewLevelDB(store *storage.Storage) *LevelDB {
	return &LevelDB{store: store}
}

func anchorKey(digest string) string { return anchorPrefix + digest }

func (l *LevelDB) Put(ctx context.Context, a Anchor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := ids.FromString(a.Digest); err != nil {
		return err
	}
	prev, err := l.get(a.Digest)
	switch {
	case err == nil:
		if prev.sameAs(a) {
			return nil
		}
		return ErrConflict
	case !errors.Is(err, ErrNotFound):
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return l.store.Put(anchorKey(a.Digest), data)
}

func (l *LevelDB) Get(ctx context.Context, digest ids.ID) (Anchor, error) {
	if err := ctx.Err(); err != nil {
		return Anchor{}, err
	}
	return l.get(digest.String())
}

func (l *LevelDB) get(digest string) (Anchor, error) {
	data, err := l.store.Get(anchorKey(digest))
	if errors.Is(err, storage.ErrNotFound) {
		return Anchor{}, ErrNotFound
	}
	if err != nil {
		return Anchor{}, err
	}
	var a Anchor
	if err := json.Unmarshal(data, &a); err != nil {
		return Anchor{}, fmt.Errorf("corrupt anchor %s: %w", digest, err)
	}
	return a, nil
}

// Count returns the number of recorded anchors.
func (l *LevelDB) Count() (int, error) {
	return l.store.Count(anchorPrefix)
}

// DefaultAnchorRetention is how long an anchor outlives its token's expiry.
// A stale copy redeemed inside this window still reports Expired rather
// than a missing anchor.
const DefaultAnchorRetention = 7 * 24 * time.Hour

// PruneExpired deletes anchors whose token expired more than retention
// before now and returns how many were removed. A non-positive retention
// means DefaultAnchorRetention.
func (l *LevelDB) PruneExpired(now time.Time, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = DefaultAnchorRetention
	}
	cutoff := now.Add(-retention)
	var stale []string
	err := l.store.Iterate(anchorPrefix, func(key string, value []byte) bool {
		var a Anchor
		if json.Unmarshal(value, &a) == nil && a.ExpiresAt.Before(cutoff) {
			stale = append(stale, key)
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	for _, key := range stale {
		if err := l.store.Delete(key); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}
