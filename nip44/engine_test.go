package nip44

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
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

func TestEncryptDecryptRoundTrip(t *testing.T) {
	skA, pkA := genKeyPair(t)
	skB, pkB := genKeyPair(t)

	messages := []string{"hi", "", "a longer message with spaces and punctuation!", strings.Repeat("x", 2000)}
	for _, m := range messages {
		if m == "" {
			continue // empty plaintext is out of range (min length 1)
		}
		ct, err := Encrypt(m, skA, pkB, nil)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", m, err)
		}
		pt, err := Decrypt(ct, skB, pkA)
		if err != nil {
			t.Fatalf("Decrypt(%q): %v", m, err)
		}
		if pt != m {
			t.Errorf("round trip mismatch: got %q want %q", pt, m)
		}
	}
}

func TestEncryptRejectsEmptyPlaintext(t *testing.T) {
	skA, _ := genKeyPair(t)
	_, pkB := genKeyPair(t)
	if _, err := Encrypt("", skA, pkB, nil); err != ErrInvalidPlaintextLen {
		t.Errorf("Encrypt(\"\") = %v, want ErrInvalidPlaintextLen", err)
	}
}

func TestDecryptTamperLastByte(t *testing.T) {
	skA, pkA := genKeyPair(t)
	skB, pkB := genKeyPair(t)

	ct, err := Encrypt("hello bunker", skA, pkB, nil)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	tampered := []byte(ct)
	last := tampered[len(tampered)-1]
	if last == 'A' {
		tampered[len(tampered)-1] = 'B'
	} else {
		tampered[len(tampered)-1] = 'A'
	}

	_, err = Decrypt(string(tampered), skB, pkA)
	if err != ErrAuthenticationFailed && err != ErrInvalidBase64 {
		t.Errorf("Decrypt(tampered) = %v, want ErrAuthenticationFailed or ErrInvalidBase64", err)
	}
}

func TestDecryptTamperVersionByte(t *testing.T) {
	skA, pkA := genKeyPair(t)
	skB, pkB := genKeyPair(t)

	ct, err := Encrypt("hello bunker", skA, pkB, nil)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	raw, err := decodePayload(ct)
	if err != nil {
		t.Fatalf("decodePayload: %v", err)
	}
	tampered := encodePayload(9, raw.nonce, raw.ciphertext, raw.mac)

	_, err = Decrypt(tampered, skB, pkA)
	if err != ErrUnsupportedVersion {
		t.Errorf("Decrypt(bad version) = %v, want ErrUnsupportedVersion", err)
	}
}

func TestEncryptForbidsV0AndV1(t *testing.T) {
	skA, _ := genKeyPair(t)
	_, pkB := genKeyPair(t)

	for _, v := range []int{0, 1} {
		v := v
		_, err := Encrypt("m", skA, pkB, &Options{Version: &v})
		if err != ErrEncVersionForbidden {
			t.Errorf("Encrypt with version %d = %v, want ErrEncVersionForbidden", v, err)
		}
	}
}

func TestEncryptRejectsUnknownVersion(t *testing.T) {
	skA, _ := genKeyPair(t)
	_, pkB := genKeyPair(t)
	v := 5
	if _, err := Encrypt("m", skA, pkB, &Options{Version: &v}); err != ErrUnsupportedEncVersion {
		t.Errorf("Encrypt with version 5 = %v, want ErrUnsupportedEncVersion", err)
	}
}

func TestEncryptRejectsShortNonce(t *testing.T) {
	skA, _ := genKeyPair(t)
	_, pkB := genKeyPair(t)
	if _, err := Encrypt("m", skA, pkB, &Options{Nonce: make([]byte, 16)}); err != ErrInvalidNonce {
		t.Errorf("Encrypt with short nonce = %v, want ErrInvalidNonce", err)
	}
}

func TestConversationKeySymmetric(t *testing.T) {
	skA, pkA := genKeyPair(t)
	skB, pkB := genKeyPair(t)

	kAB, err := ConversationKey(skA, pkB)
	if err != nil {
		t.Fatalf("ConversationKey(A,B): %v", err)
	}
	kBA, err := ConversationKey(skB, pkA)
	if err != nil {
		t.Fatalf("ConversationKey(B,A): %v", err)
	}
	if hex.EncodeToString(kAB) != hex.EncodeToString(kBA) {
		t.Error("conversation key is not symmetric")
	}
}
