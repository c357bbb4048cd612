package auth

import (
	"testing"
	"time"
)

func TestBlacklistRevokesImmediately(t *testing.T) {
	codec := newTestCodec(t)
	bl := NewBlacklist(codec)

	token, _, err := codec.IssueAccess("user-1", "a@b.com")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if bl.IsRevoked(token) {
		t.Fatal("token revoked before Add")
	}
	bl.Add(token)
	if !bl.IsRevoked(token) {
		t.Fatal("token not revoked after Add")
	}
}

func TestBlacklistHorizonFallback(t *testing.T) {
	codec := newTestCodec(t)
	now := time.Now()
	bl := NewBlacklist(codec, WithBlacklistClock(func() time.Time { return now }))

	// Undecodable tokens still get denylisted, bounded by the default
	// horizon instead of a token expiry.
	bl.Add("not-a-jwt")
	if !bl.IsRevoked("not-a-jwt") {
		t.Fatal("opaque token not revoked")
	}

	now = now.Add(25 * time.Hour)
	if bl.IsRevoked("not-a-jwt") {
		t.Fatal("opaque token still revoked past the horizon")
	}
	if bl.Len() != 0 {
		t.Fatalf("lazy eviction left %d entries", bl.Len())
	}
}

func TestBlacklistLazyEviction(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t,
		WithAccessTTL(time.Minute),
		WithCodecClock(func() time.Time { return now }),
	)
	bl := NewBlacklist(codec, WithBlacklistClock(func() time.Time { return now }))

	token, _, err := codec.IssueAccess("user-1", "a@b.com")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	bl.Add(token)
	if !bl.IsRevoked(token) {
		t.Fatal("token not revoked")
	}

	now = now.Add(2 * time.Minute)
	if bl.IsRevoked(token) {
		t.Fatal("expired entry still reported revoked")
	}
	if bl.Len() != 0 {
		t.Fatalf("expected entry evicted, have %d", bl.Len())
	}
}

func TestBlacklistSweep(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t,
		WithAccessTTL(time.Minute),
		WithCodecClock(func() time.Time { return now }),
	)
	bl := NewBlacklist(codec, WithBlacklistClock(func() time.Time { return now }))

	for _, email := range []string{"a@b.com", "b@b.com", "c@b.com", "d@b.com", "e@b.com"} {
		token, _, err := codec.IssueAccess("user-"+email, email)
		if err != nil {
			t.Fatalf("IssueAccess: %v", err)
		}
		bl.Add(token)
	}
	if bl.Len() != 5 {
		t.Fatalf("expected 5 entries, got %d", bl.Len())
	}

	now = now.Add(2 * time.Minute)
	if removed := bl.Sweep(); removed != 5 {
		t.Fatalf("expected sweep to remove 5, removed %d", removed)
	}
	if bl.Len() != 0 {
		t.Fatalf("expected empty blacklist, have %d", bl.Len())
	}
}

func TestBlacklistStopIdempotent(t *testing.T) {
	bl := NewBlacklist(newTestCodec(t), WithSweepInterval(time.Millisecond))
	bl.Start()
	bl.Stop()
	bl.Stop()
}
