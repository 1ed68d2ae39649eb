package nostrevent

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
)

func genKeyPair(t *testing.T) (sk []byte, pkHex string) {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return priv.Serialize(), hex.EncodeToString(priv.PubKey().SerializeCompressed()[1:])
}

func TestSignEventThenValidate(t *testing.T) {
	sk, pk := genKeyPair(t)
	unsigned := &Unsigned{
		Kind:      1,
		Content:   "hello nostr",
		Tags:      [][]string{{"p", pk}},
		CreatedAt: 1700000000,
	}

	signer := SchnorrSigner{}
	evt, err := signer.SignEvent(unsigned, pk, sk)
	if err != nil {
		t.Fatalf("SignEvent: %v", err)
	}
	if len(evt.ID) != 64 {
		t.Fatalf("event id length = %d, want 64", len(evt.ID))
	}
	if len(evt.Sig) != 128 {
		t.Fatalf("signature length = %d, want 128", len(evt.Sig))
	}
	if !ValidateSignature(evt) {
		t.Fatal("expected signature to validate")
	}
}

func TestValidateSignatureRejectsTamperedContent(t *testing.T) {
	sk, pk := genKeyPair(t)
	unsigned := &Unsigned{Kind: 1, Content: "original", CreatedAt: 1700000000}

	signer := SchnorrSigner{}
	evt, err := signer.SignEvent(unsigned, pk, sk)
	if err != nil {
		t.Fatalf("SignEvent: %v", err)
	}

	evt.Content = "tampered"
	if ValidateSignature(evt) {
		t.Fatal("expected tampered content to invalidate the signature")
	}
}

func TestValidateSignatureRejectsWrongPubkey(t *testing.T) {
	sk, _ := genKeyPair(t)
	_, otherPK := genKeyPair(t)
	unsigned := &Unsigned{Kind: 1, Content: "hi", CreatedAt: 1700000000}

	signer := SchnorrSigner{}
	evt, err := signer.SignEvent(unsigned, otherPK, sk)
	if err != nil {
		t.Fatalf("SignEvent: %v", err)
	}
	if ValidateSignature(evt) {
		t.Fatal("expected mismatched signer/pubkey to fail validation")
	}
}

func TestGetTagValueAndHasTagValue(t *testing.T) {
	tags := [][]string{{"p", "abc"}, {"e", "def"}}
	if GetTagValue(tags, "p") != "abc" {
		t.Errorf("GetTagValue(p) = %q, want abc", GetTagValue(tags, "p"))
	}
	if GetTagValue(tags, "missing") != "" {
		t.Errorf("GetTagValue(missing) should be empty")
	}
	if !HasTagValue(tags, "e", "def") {
		t.Error("expected HasTagValue(e, def) to be true")
	}
	if HasTagValue(tags, "e", "xyz") {
		t.Error("expected HasTagValue(e, xyz) to be false")
	}
}
