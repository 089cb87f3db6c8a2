package approval

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/logger"
)

// SessionStore keeps approval sessions in memory. Sessions idle longer than
// the TTL, and completed sessions older than the retention, are evicted.
// Get and Set copy, so no caller shares state with the store.
type SessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]*domain.ApprovalSession
	ttl       time.Duration
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewSessionStore creates a session store.
func NewSessionStore(ttl, retention time.Duration, log *slog.Logger) *SessionStore {
	return &SessionStore{
		sessions:  make(map[string]*domain.ApprovalSession),
		ttl:       ttl,
		retention: retention,
		now:       time.Now,
		logger:    logger.OrDiscard(log),
	}
}

// Get returns a copy of a live session.
func (s *SessionStore) Get(id string) (*domain.ApprovalSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok || s.expired(sess, s.now()) {
		return nil, false
	}
	return sess.Clone(), true
}

// Set stores a copy of sess, replacing any previous version.
func (s *SessionStore) Set(sess *domain.ApprovalSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess.Clone()
}

// Delete removes a session. Unknown ids are ignored.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len returns the number of stored sessions, expired or not.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep evicts expired sessions and returns how many were removed.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps every interval until ctx is canceled.
func (s *SessionStore) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					s.logger.Info("Approval sessions evicted", "count", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *SessionStore) expired(sess *domain.ApprovalSession, now time.Time) bool {
	if sess.CompletedAt != nil && s.retention > 0 && now.Sub(*sess.CompletedAt) >= s.retention {
		return true
	}
	return s.ttl > 0 && now.Sub(sess.UpdatedAt) >= s.ttl
}
