package crypto

import "testing"

func TestConstantTimeEqual(t *testing.T) {
	cases := []struct {
		name string
		a, b []byte
		want bool
	}{
		{"equal", []byte("abcdef"), []byte("abcdef"), true},
		{"differ-first-byte", []byte("abcdef"), []byte("zbcdef"), false},
		{"differ-last-byte", []byte("abcdef"), []byte("abcdeZ"), false},
		{"different-length", []byte("abc"), []byte("abcd"), false},
		{"both-empty", []byte{}, []byte{}, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ConstantTimeEqual(c.a, c.b); got != c.want {
				t.Errorf("ConstantTimeEqual(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
			}
		})
	}
}

func TestChaCha20RoundTrip(t *testing.T) {
	key, _ := RandomBytes(32)
	nonce, _ := RandomBytes(12)
	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	ciphertext, err := ChaCha20(key, nonce, plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if string(ciphertext) == string(plaintext) {
		t.Fatalf("ciphertext equals plaintext")
	}

	decrypted, err := ChaCha20(key, nonce, ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(decrypted) != string(plaintext) {
		t.Errorf("round trip mismatch: got %q, want %q", decrypted, plaintext)
	}
}

func TestHKDFExpandLength(t *testing.T) {
	prk, _ := RandomBytes(32)
	info, _ := RandomBytes(32)

	out, err := HKDFExpand(prk, info, 76)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(out) != 76 {
		t.Fatalf("expected 76 bytes, got %d", len(out))
	}
}

func TestZero(t *testing.T) {
	b := []byte{1, 2, 3, 4, 5}
	Zero(b)
	for i, v := range b {
		if v != 0 {
			t.Errorf("byte %d not zeroed: %d", i, v)
		}
	}
}
