// Package nip44 implements NIP-44 versioned authenticated encryption:
// ECDH conversation keys, HKDF message keys, length-hiding padding, and
// ChaCha20+HMAC-SHA256 sealing, grounded on the teacher's nip44.go with
// the version-gating and error taxonomy from SPEC_FULL.md §4.7/§7 layered
// on top.
package nip44

import (
	"github.com/nostrkit/remotesign/crypto"
)

const currentVersion = 2

// Options controls non-default Encrypt behavior.
type Options struct {
	// Version requests a specific wire version. nil means "use the
	// default" (2). Passing 0 or 1 explicitly is rejected with
	// ErrEncVersionForbidden; the zero value of this struct does not
	// count as "explicitly passing 0" since Version is unset (nil).
	Version *int

	// Nonce, if non-nil, must be exactly 32 bytes and is used in place
	// of a freshly generated one. Intended for deterministic test
	// vectors only.
	Nonce []byte
}

// Encrypt seals plaintext for the recipient pkHex using the sender's
// skHex, returning a base64 NIP-44 payload. The emitted version is
// always 2; callers may not request 0 or 1.
func Encrypt(plaintext string, skHex, pkHex string, opts *Options) (string, error) {
	version := currentVersion
	var nonce []byte
	var err error

	if opts != nil {
		if opts.Version != nil {
			switch *opts.Version {
			case 0, 1:
				return "", ErrEncVersionForbidden
			case 2:
				version = 2
			default:
				return "", ErrUnsupportedEncVersion
			}
		}
		if opts.Nonce != nil {
			if len(opts.Nonce) != nonceSize {
				return "", ErrInvalidNonce
			}
			nonce = opts.Nonce
		}
	}

	if nonce == nil {
		nonce, err = crypto.RandomBytes(nonceSize)
		if err != nil {
			return "", err
		}
	}

	convKey, err := ConversationKey(skHex, pkHex)
	if err != nil {
		return "", err
	}
	defer crypto.Zero(convKey)

	keys, err := deriveMessageKeys(convKey, nonce)
	if err != nil {
		return "", err
	}
	defer keys.zero()

	padded, err := pad([]byte(plaintext))
	if err != nil {
		return "", err
	}
	defer crypto.Zero(padded)

	ciphertext, err := crypto.ChaCha20(keys.chachaKey, keys.chachaNonce, padded)
	if err != nil {
		return "", err
	}

	mac := hmacWithAAD(keys.hmacKey, nonce, ciphertext)

	return encodePayload(byte(version), nonce, ciphertext, mac), nil
}

// Decrypt opens a base64 NIP-44 payload sealed between skHex and pkHex.
// Versions 0, 1 and 2 are all accepted (see convkey.go for why v0/v1 use
// the v2 derivation). Failures return distinct errors so callers can
// tell them apart locally: ErrUnsupportedVersion for any other version,
// ErrInvalidBase64 / ErrUnsupportedEncoding for a malformed payload,
// ErrAuthenticationFailed for a MAC mismatch, and ErrInvalidPadding for a
// padding inconsistency.
func Decrypt(payload string, skHex, pkHex string) (string, error) {
	_, _, err := ValidateKeyPair(skHex, pkHex)
	if err != nil {
		return "", err
	}

	decoded, err := decodePayload(payload)
	if err != nil {
		return "", err
	}

	convKey, err := ConversationKey(skHex, pkHex)
	if err != nil {
		return "", err
	}
	defer crypto.Zero(convKey)

	keys, err := deriveMessageKeys(convKey, decoded.nonce)
	if err != nil {
		return "", err
	}
	defer keys.zero()

	expectedMAC := hmacWithAAD(keys.hmacKey, decoded.nonce, decoded.ciphertext)
	if !crypto.ConstantTimeEqual(expectedMAC, decoded.mac) {
		return "", ErrAuthenticationFailed
	}

	padded, err := crypto.ChaCha20(keys.chachaKey, keys.chachaNonce, decoded.ciphertext)
	if err != nil {
		return "", ErrAuthenticationFailed
	}
	defer crypto.Zero(padded)

	plaintext, err := unpad(padded)
	if err != nil {
		return "", ErrInvalidPadding
	}
	return string(plaintext), nil
}

// hmacWithAAD computes HMAC-SHA256 over aad||message, matching the
// teacher's hmacAAD (nonce is authenticated-but-not-encrypted data
// prepended before the ciphertext).
func hmacWithAAD(key, aad, message []byte) []byte {
	buf := make([]byte, 0, len(aad)+len(message))
	buf = append(buf, aad...)
	buf = append(buf, message...)
	return crypto.HMACSHA256(key, buf)
}
