// Package session provides the in-process session registry: presentation
// metadata per chat session with sliding-TTL eviction. It is a cache over the
// durable workflow state, never the source of truth.
package session

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dkrenev/supportflow/internal/domain"
)

// Defaults mirror the original cache policy.
const (
	DefaultIdleTimeout = 30 * time.Minute
	DefaultMaxAge      = 24 * time.Hour
	DefaultMaxEntries  = 10000
)

// Config bounds the registry. A nil Now uses the wall clock.
type Config struct {
	IdleTimeout time.Duration
	MaxAge      time.Duration
	MaxEntries  int
	Now         func() time.Time
}

// Stats is a snapshot of registry counters.
type Stats struct {
	Size           int     `json:"totalSessions"`
	PausedForHuman int     `json:"pausedForHuman"`
	Requests       int64   `json:"requestCount"`
	HitRate        float64 `json:"hitRate"`
	MissRate       float64 `json:"missRate"`
}

type entry struct {
	session domain.Session
	elem    *list.Element
}

// Registry maps session ids to presentation metadata. Every read-through
// access refreshes the last-access time; expired entries are reclaimed lazily
// on access and by the periodic sweeper, and least-recently-used entries are
// evicted on capacity overflow.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	lru     *list.List // front = most recently accessed, element value = session id

	idleTimeout time.Duration
	maxAge      time.Duration
	maxEntries  int
	now         func() time.Time

	hits   int64
	misses int64
}

// NewRegistry creates a registry with the given bounds, falling back to the
// defaults for zero values.
func NewRegistry(cfg Config) *Registry {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{
		entries:     make(map[string]*entry),
		lru:         list.New(),
		idleTimeout: cfg.IdleTimeout,
		maxAge:      cfg.MaxAge,
		maxEntries:  cfg.MaxEntries,
		now:         cfg.Now,
	}
}

// GetOrCreate returns the live session for the id, creating it when absent or
// expired. The returned value is a copy; mutate through registry methods.
func (r *Registry) GetOrCreate(sessionID, userName string) domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if e := r.live(sessionID, now); e != nil {
		r.hits++
		r.touchLocked(e, now)
		return e.session
	}
	r.misses++

	s := domain.Session{
		SessionID:      sessionID,
		UserName:       userName,
		CreationTime:   now,
		LastAccessTime: now,
	}
	e := &entry{session: s}
	e.elem = r.lru.PushFront(sessionID)
	r.entries[sessionID] = e
	r.evictOverflowLocked()
	return s
}

// Get returns the live session for the id, refreshing its access time.
func (r *Registry) Get(sessionID string) (domain.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	e := r.live(sessionID, now)
	if e == nil {
		r.misses++
		return domain.Session{}, false
	}
	r.hits++
	r.touchLocked(e, now)
	return e.session, true
}

// Touch refreshes the session's access time without reading it.
func (r *Registry) Touch(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if e := r.live(sessionID, now); e != nil {
		r.touchLocked(e, now)
	}
}

// MarkPaused sets the human-review pause flag. Reports whether the session
// was present.
func (r *Registry) MarkPaused(sessionID string, paused bool) bool {
	return r.update(sessionID, func(s *domain.Session) { s.PausedForHuman = paused })
}

// SetTyping sets the typing indicator. Reports whether the session was present.
func (r *Registry) SetTyping(sessionID string, typing bool) bool {
	return r.update(sessionID, func(s *domain.Session) { s.Typing = typing })
}

func (r *Registry) update(sessionID string, fn func(*domain.Session)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	e := r.live(sessionID, now)
	if e == nil {
		return false
	}
	fn(&e.session)
	r.touchLocked(e, now)
	return true
}

// InvalidateAll removes every session and returns how many were removed.
func (r *Registry) InvalidateAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := len(r.entries)
	r.entries = make(map[string]*entry)
	r.lru.Init()
	return removed
}

// Stats returns a snapshot of the registry counters.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	paused := 0
	for _, e := range r.entries {
		if e.session.PausedForHuman {
			paused++
		}
	}

	requests := r.hits + r.misses
	stats := Stats{
		Size:           len(r.entries),
		PausedForHuman: paused,
		Requests:       requests,
	}
	if requests > 0 {
		stats.HitRate = float64(r.hits) / float64(requests)
		stats.MissRate = float64(r.misses) / float64(requests)
	}
	return stats
}

// StartSweeper runs a background goroutine that periodically removes expired
// sessions until the context is canceled.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := r.sweep(); removed > 0 {
					slog.Info("Session sweeper removed expired sessions", "count", removed)
				}
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func (r *Registry) sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, e := range r.entries {
		if e.session.ExpiredAt(now, r.idleTimeout, r.maxAge) {
			r.removeLocked(id, e)
			removed++
		}
	}
	return removed
}

// live returns the entry for the id if present and not expired, lazily
// evicting it when expired.
func (r *Registry) live(sessionID string, now time.Time) *entry {
	e, ok := r.entries[sessionID]
	if !ok {
		return nil
	}
	if e.session.ExpiredAt(now, r.idleTimeout, r.maxAge) {
		r.removeLocked(sessionID, e)
		return nil
	}
	return e
}

func (r *Registry) touchLocked(e *entry, now time.Time) {
	e.session.LastAccessTime = now
	r.lru.MoveToFront(e.elem)
}

func (r *Registry) removeLocked(sessionID string, e *entry) {
	r.lru.Remove(e.elem)
	delete(r.entries, sessionID)
}

// evictOverflowLocked drops least-recently-accessed entries until the
// registry is within capacity. Expired entries at the tail go first by
// construction.
func (r *Registry) evictOverflowLocked() {
	for len(r.entries) > r.maxEntries {
		tail := r.lru.Back()
		if tail == nil {
			return
		}
		id := tail.Value.(string)
		r.removeLocked(id, r.entries[id])
		slog.Debug("Session evicted on capacity overflow", "session_id", id)
	}
}
