// Package crypto wraps the cryptographic primitives the NIP-44/NIP-46
// engine is built from: secp256k1 ECDH, HKDF-SHA-256, HMAC-SHA-256,
// ChaCha20, SHA-256 and a CSPRNG. Every function here is byte-oriented
// and holds no state of its own, matching the teacher's nip44.go
// primitive helpers (GetConversationKey, getMessageKeys, hmacAAD)
// generalized into standalone, independently testable steps.
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

// ErrInvalidPublicKey is returned when neither the 02 nor 03 parity
// prefix produces a valid curve point for the given x-coordinate.
var ErrInvalidPublicKey = errors.New("crypto: invalid public key")

// ECDHSharedPoint multiplies the 32-byte x-only public key (tried with
// both the 02 and 03 parity prefixes) by the private scalar and returns
// the resulting compressed point (33 bytes: parity byte || x).
func ECDHSharedPoint(sk, pkXOnly []byte) ([]byte, error) {
	priv, _ := btcec.PrivKeyFromBytes(sk)
	if priv == nil {
		return nil, errors.New("crypto: invalid private key")
	}

	candidate := make([]byte, 33)
	candidate[0] = 0x02
	copy(candidate[1:], pkXOnly)

	pub, err := btcec.ParsePubKey(candidate)
	if err != nil {
		candidate[0] = 0x03
		pub, err = btcec.ParsePubKey(candidate)
		if err != nil {
			return nil, ErrInvalidPublicKey
		}
	}

	curve := pub.ToECDSA().Curve
	sharedX, sharedY := curve.ScalarMult(pub.X(), pub.Y(), priv.Serialize())

	x := make([]byte, 32)
	raw := sharedX.Bytes()
	copy(x[32-len(raw):], raw)

	point := make([]byte, 33)
	point[0] = 0x02 | byte(sharedY.Bit(0))
	copy(point[1:], x)
	return point, nil
}

// HKDFExtract is RFC 5869's extract step.
func HKDFExtract(salt, ikm []byte) []byte {
	return hkdf.Extract(sha256.New, ikm, salt)
}

// HKDFExpand is RFC 5869's expand step, producing exactly n bytes.
func HKDFExpand(prk, info []byte, n int) ([]byte, error) {
	reader := hkdf.Expand(sha256.New, prk, info)
	out := make([]byte, n)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}

// HMACSHA256 computes an HMAC-SHA256 tag over msg with the given key.
func HMACSHA256(key, msg []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(msg)
	return h.Sum(nil)
}

// ChaCha20 XORs data against the ChaCha20 keystream derived from the
// given 32-byte key and 12-byte nonce (IETF layout, counter 0), producing
// a same-length output buffer. Used for both encryption and decryption
// since ChaCha20 is its own inverse over the keystream.
func ChaCha20(key32, nonce12, data []byte) ([]byte, error) {
	cipher, err := chacha20.NewUnauthenticatedCipher(key32, nonce12)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.XORKeyStream(out, data)
	return out, nil
}

// SHA256 returns the SHA-256 digest of msg.
func SHA256(msg []byte) [32]byte {
	return sha256.Sum256(msg)
}

// RandomBytes returns n bytes of CSPRNG output.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// ConstantTimeEqual reports whether a and b are equal, without taking a
// fast path on the byte offset of the first difference. Unequal lengths
// still short-circuit: that leaks only a public length (MAC and key
// sizes are fixed by protocol version in every caller here), never a
// secret one.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}

// Zero overwrites b with zero bytes. Call on every exit path (success or
// error) for buffers holding private keys, conversation keys, message
// keys, or padded plaintext.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
