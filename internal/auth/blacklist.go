package auth

import (
	"sync"
	"time"
)

const (
	// defaultRevocationHorizon bounds how long an undecodable token can
	// sit in the blacklist. Without it a malformed token would be
	// denylisted forever.
	defaultRevocationHorizon = 24 * time.Hour

	defaultSweepInterval = 5 * time.Minute
)

// Blacklist is a process-local set of explicitly invalidated tokens,
// consulted before trusting an otherwise-valid access token. It makes
// logout effective immediately, without waiting for natural expiry.
//
// The list is not authoritative across process restarts: a restart
// forgets all revocations and outstanding access tokens become valid
// again until they expire. Propagating revocations across multiple
// server processes requires a shared store instead of this cache.
type Blacklist struct {
	codec *TokenCodec
	now   func() time.Time

	mu      sync.RWMutex
	entries map[string]int64 // token -> expiry horizon, unix millis

	sweepEvery time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

// BlacklistOption configures Blacklist.
type BlacklistOption func(*Blacklist)

// WithSweepInterval overrides the background sweep period.
func WithSweepInterval(d time.Duration) BlacklistOption {
	return func(b *Blacklist) {
		if d > 0 {
			b.sweepEvery = d
		}
	}
}

// WithBlacklistClock overrides the time source (tests).
func WithBlacklistClock(fn func() time.Time) BlacklistOption {
	return func(b *Blacklist) {
		if fn != nil {
			b.now = fn
		}
	}
}

// NewBlacklist constructs a Blacklist. Call Start to launch the sweep
// goroutine and Stop on shutdown.
func NewBlacklist(codec *TokenCodec, opts ...BlacklistOption) *Blacklist {
	b := &Blacklist{
		codec:      codec,
		now:        time.Now,
		entries:    make(map[string]int64),
		sweepEvery: defaultSweepInterval,
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add revokes a token. Its horizon is the token's own expiry when the
// payload decodes, or a conservative default otherwise. Decoding is
// unverified on purpose: revocation bookkeeping must work even for
// tokens we would refuse to trust.
func (b *Blacklist) Add(token string) {
	if token == "" {
		return
	}
	horizon := b.now().Add(defaultRevocationHorizon)
	if claims, ok := b.codec.DecodeUnverified(token); ok && claims.ExpiresAt != nil {
		horizon = claims.ExpiresAt.Time
	}
	b.mu.Lock()
	b.entries[token] = horizon.UnixMilli()
	b.mu.Unlock()
}

// IsRevoked reports whether the token was revoked and its horizon has
// not passed. Expired entries are evicted lazily on lookup.
func (b *Blacklist) IsRevoked(token string) bool {
	b.mu.RLock()
	horizon, ok := b.entries[token]
	b.mu.RUnlock()
	if !ok {
		return false
	}
	if horizon < b.now().UnixMilli() {
		b.mu.Lock()
		// Re-check under the write lock: a concurrent Add may have
		// refreshed the entry.
		if h, ok := b.entries[token]; ok && h < b.now().UnixMilli() {
			delete(b.entries, token)
		}
		b.mu.Unlock()
		return false
	}
	return true
}

// Len returns the current entry count, exported as a metrics gauge.
func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Sweep evicts every entry whose horizon has passed and returns the
// number removed. It bounds worst-case memory even for tokens that are
// never looked up again.
func (b *Blacklist) Sweep() int {
	cutoff := b.now().UnixMilli()
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for token, horizon := range b.entries {
		if horizon < cutoff {
			delete(b.entries, token)
			removed++
		}
	}
	return removed
}

// Start launches the periodic sweep goroutine.
func (b *Blacklist) Start() {
	go func() {
		ticker := time.NewTicker(b.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.Sweep()
			case <-b.stop:
				return
			}
		}
	}()
}

// Stop terminates the sweep goroutine. Safe to call more than once.
func (b *Blacklist) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
}
