// Package session holds the conversation state backends. A session remembers
// whether its queries go to the book corpus or to text the user supplied.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"bookrag/internal/domain"
)

// MemoryStore keeps sessions in a process-local go-cache table. Each write
// renews the item's expiration to the idle timeout; LastActive is also checked
// against the store clock. One mutex covers create, flip, touch and sweep.
type MemoryStore struct {
	mu      sync.Mutex
	cache   *cache.Cache
	timeout time.Duration
	now     func() time.Time
}

func NewMemoryStore(timeout time.Duration) *MemoryStore {
	return &MemoryStore{
		cache:   cache.New(timeout, 0),
		timeout: timeout,
		now:     time.Now,
	}
}

// Resolve returns the live session for id updated for this turn, or a new
// one. Supplying ad hoc text switches the session to ad hoc mode and replaces
// any earlier text; omitting it switches back to corpus mode.
func (s *MemoryStore) Resolve(ctx context.Context, id, adHocText string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	id = normalizeID(id)

	var sess domain.Session
	if x, found := s.cache.Get(id); found && !x.(domain.Session).Expired(now, s.timeout) {
		sess = x.(domain.Session)
	} else {
		sess = domain.Session{ID: id, CreatedAt: now}
	}

	sess = applyTurn(sess, adHocText, now)
	s.cache.Set(id, sess, cache.DefaultExpiration)
	return sess, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	x, found := s.cache.Get(id)
	if !found {
		return domain.Session{}, false, nil
	}
	sess := x.(domain.Session)
	if sess.Expired(s.now(), s.timeout) {
		return domain.Session{}, false, nil
	}
	return sess, true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(id)
	return nil
}

// Sweep removes every session idle for longer than the timeout and reports
// how many were removed.
func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.cache.ItemCount()
	s.cache.DeleteExpired()
	removed := before - s.cache.ItemCount()

	now := s.now()
	for id, item := range s.cache.Items() {
		if item.Object.(domain.Session).Expired(now, s.timeout) {
			s.cache.Delete(id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	return s.cache.ItemCount(), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// normalizeID keeps well-formed UUIDs and replaces anything else.
func normalizeID(id string) string {
	if _, err := uuid.Parse(id); err != nil {
		return uuid.NewString()
	}
	return id
}

func applyTurn(sess domain.Session, adHocText string, now time.Time) domain.Session {
	if strings.TrimSpace(adHocText) != "" {
		sess.Mode = domain.ModeAdHoc
		sess.AdHocText = adHocText
	} else {
		sess.Mode = domain.ModeCorpus
		sess.AdHocText = ""
	}
	sess.LastActive = now
	return sess
}
