package nip46

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/nostrkit/remotesign/nostrevent"
)

func genKeyPair(t *testing.T) (skHex, pkHex string) {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sk := priv.Serialize()
	pub := priv.PubKey().SerializeCompressed()[1:]
	return hex.EncodeToString(sk), hex.EncodeToString(pub)
}

func testPolicy(defaultPerms ...string) *Policy {
	p := DefaultPolicy()
	p.DefaultPermissions = defaultPerms
	p.RateLimitBurst = 100
	p.RateLimitPerMinute = 1000
	p.RateLimitPerHour = 100000
	p.ReplayWindow = time.Minute
	p.RequestTimeout = 2 * time.Second
	return p
}

func startPair(t *testing.T, defaultPerms ...string) (*Signer, *RemoteSignerClient, string) {
	t.Helper()
	userSK, userPK := genKeyPair(t)

	bus := newFakeBus()
	policy := testPolicy(defaultPerms...)

	signer, err := NewSigner(userSK, bus.endpoint(), policy)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	ctx := context.Background()
	if err := signer.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(signer.Stop)

	client, err := newClient(userPK, policy.Relays, bus.endpoint())
	if err != nil {
		t.Fatalf("newClient: %v", err)
	}
	t.Cleanup(client.Disconnect)

	return signer, client, userPK
}

func TestConnectAndSignEvent(t *testing.T) {
	_, client, userPK := startPair(t, "connect", "sign_event:1")

	ctx := context.Background()
	result, err := client.Connect(ctx, "", nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if result != "ack" {
		t.Fatalf("Connect result = %q, want ack", result)
	}

	gotPK, err := client.GetPublicKey(ctx)
	if err != nil {
		t.Fatalf("GetPublicKey: %v", err)
	}
	if gotPK != userPK {
		t.Fatalf("GetPublicKey = %s, want %s", gotPK, userPK)
	}

	unsigned := &nostrevent.Unsigned{Kind: 1, Content: "hello", Tags: [][]string{}, CreatedAt: 1700000000}
	evt, err := client.SignEvent(ctx, unsigned)
	if err != nil {
		t.Fatalf("SignEvent: %v", err)
	}
	if evt.PubKey != userPK {
		t.Fatalf("signed event pubkey = %s, want %s", evt.PubKey, userPK)
	}
	if !nostrevent.ValidateSignature(evt) {
		t.Fatal("signed event failed signature validation")
	}
}

func TestPermissionDenied(t *testing.T) {
	_, client, _ := startPair(t, "connect", "sign_event:1")

	ctx := context.Background()
	if _, err := client.Connect(ctx, "", nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Session only has sign_event:1; a kind-4 request must be denied.
	unsigned := &nostrevent.Unsigned{Kind: 4, Content: "dm", Tags: [][]string{}, CreatedAt: 1700000000}
	_, err := client.SignEvent(ctx, unsigned)
	if err == nil {
		t.Fatal("expected permission denied error, got nil")
	}
}

func TestPingPong(t *testing.T) {
	_, client, _ := startPair(t, "connect", "ping")
	ctx := context.Background()
	if _, err := client.Connect(ctx, "", nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := client.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestConnectWithSecretEchoesIt(t *testing.T) {
	_, client, _ := startPair(t, "connect")
	ctx := context.Background()
	result, err := client.Connect(ctx, "supersecret", nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if result != "supersecret" {
		t.Fatalf("Connect result = %q, want echoed secret", result)
	}
}

func TestReplayedRequestIsRejectedSecondTime(t *testing.T) {
	signer, client, _ := startPair(t, "connect", "ping")
	ctx := context.Background()
	if _, err := client.Connect(ctx, "", nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Drive the signer's replay ledger directly with a fixed request id,
	// simulating the same encrypted event delivered twice.
	const id = "fixed-id-123"
	if replay, err := signer.replay.CheckAndInsert(ctx, id); err != nil || replay {
		t.Fatalf("first submission should not be flagged as replay (err=%v)", err)
	}
	if replay, err := signer.replay.CheckAndInsert(ctx, id); err != nil || !replay {
		t.Fatalf("second submission with same id should be flagged as replay (err=%v)", err)
	}
}

func TestAuthURLChallengeIsTwoPhase(t *testing.T) {
	signer, client, _ := startPair(t, "connect", "ping")
	ctx := context.Background()
	if _, err := client.Connect(ctx, "", nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	const challengeURL = "https://example.com/approve"
	var gotAuthURL string
	authURLSeen := make(chan struct{})
	client.SetAuthURLHandler(func(authURL string) {
		gotAuthURL = authURL
		close(authURLSeen)
		go signer.ResolveAuthChallenge(client.ClientPubkey(), true)
	})

	signer.SetAuthURLFunc(func(clientPubkey, method string) (string, bool) {
		return challengeURL, true
	})

	if err := client.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	select {
	case <-authURLSeen:
	default:
		t.Fatal("expected auth_url handler to have fired before Ping returned")
	}
	if gotAuthURL != challengeURL {
		t.Fatalf("authURLHandler url = %q, want %q", gotAuthURL, challengeURL)
	}
}

func TestAuthURLChallengeDeniedReturnsError(t *testing.T) {
	signer, client, _ := startPair(t, "connect", "ping")
	ctx := context.Background()
	if _, err := client.Connect(ctx, "", nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	client.SetAuthURLHandler(func(authURL string) {
		go signer.ResolveAuthChallenge(client.ClientPubkey(), false)
	})
	signer.SetAuthURLFunc(func(clientPubkey, method string) (string, bool) {
		return "https://example.com/approve", true
	})

	if err := client.Ping(ctx); err == nil {
		t.Fatal("expected denied auth challenge to surface an error")
	}
}

func TestGetRelaysServesConcurrentCallers(t *testing.T) {
	_, client, _ := startPair(t, "connect", "get_relays")
	ctx := context.Background()
	if _, err := client.Connect(ctx, "", nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	type result struct {
		relays []string
		err    error
	}
	n := 5
	results := make(chan result, n)
	for i := 0; i < n; i++ {
		go func() {
			relays, err := client.GetRelays(ctx)
			results <- result{relays, err}
		}()
	}
	for i := 0; i < n; i++ {
		r := <-results
		if r.err != nil {
			t.Fatalf("GetRelays: %v", r.err)
		}
		if len(r.relays) == 0 {
			t.Fatal("expected non-empty relay list")
		}
	}
}
