package carrier

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	ReasonReplaced = "replaced"
	ReasonExpired  = "expired"
)

// ArchivedShare is a share that is no longer the subject's active one.
type ArchivedShare struct {
	ShareID    uuid.UUID
	SubjectID  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ArchivedAt time.Time
	Reason     string    // "replaced" or "expired"
	ReplacedBy uuid.UUID // set when Reason is "replaced"
}

// Registry is a thread-safe in-memory record of each subject's active share.
type Registry struct {
	lock    sync.RWMutex
	active  map[string]*Share
	archive []ArchivedShare
}

func NewRegistry() *Registry {
	return &Registry{active: make(map[string]*Share)}
}

func archived(s *Share, now time.Time, reason string) ArchivedShare {
	return ArchivedShare{
		ShareID:    s.ID,
		SubjectID:  s.SubjectID(),
		IssuedAt:   s.Token.IssuedAt(),
		ExpiresAt:  s.Token.ExpiresAt(),
		ArchivedAt: now,
		Reason:     reason,
	}
}

// Register makes s the subject's active share. A previous active share is
// archived as replaced and returned.
func (r *Registry) Register(s *Share, now time.Time) *Share {
	r.lock.Lock()
	defer r.lock.Unlock()
	prev, ok := r.active[s.SubjectID()]
	if ok {
		a := archived(prev, now, ReasonReplaced)
		a.ReplacedBy = s.ID
		r.archive = append(r.archive, a)
	}
	r.active[s.SubjectID()] = s
	if !ok {
		return nil
	}
	return prev
}

// Active returns the subject's current share.
func (r *Registry) Active(subjectID string) (*Share, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	s, ok := r.active[subjectID]
	return s, ok
}

// PurgeExpired archives every active share that has expired at now.
func (r *Registry) PurgeExpired(now time.Time) []ArchivedShare {
	r.lock.Lock()
	defer r.lock.Unlock()
	var purged []ArchivedShare
	for subject, s := range r.active {
		if s.Token.Expired(now) {
			a := archived(s, now, ReasonExpired)
			purged = append(purged, a)
			r.archive = append(r.archive, a)
			delete(r.active, subject)
		}
	}
	return purged
}

// Archived returns all archive entries, oldest first.
func (r *Registry) Archived() []ArchivedShare {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return append([]ArchivedShare(nil), r.archive...)
}

func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.active)
}
