package nip46

import "testing"

// Compile-time assertion that RedisReplayLedger satisfies the same
// interface Signer.replay holds for the in-memory ReplayLedger.
var _ replayStore = (*RedisReplayLedger)(nil)

func TestRedisReplayLedgerKeyPrefixing(t *testing.T) {
	r := &RedisReplayLedger{prefix: "bunker:abc123:"}
	if got, want := r.key("req-1"), "bunker:abc123:replay:req-1"; got != want {
		t.Errorf("key(req-1) = %q, want %q", got, want)
	}
}

func TestNewRedisReplayLedgerRejectsInvalidURL(t *testing.T) {
	if _, err := NewRedisReplayLedger("not-a-redis-url", "bunker:", 0); err == nil {
		t.Fatal("expected invalid redis URL to be rejected")
	}
}
