package nip44

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/nostrkit/remotesign/crypto"
)

// ErrNip04Malformed is returned when a NIP-04 payload does not match the
// "<base64 ciphertext>?iv=<base64 iv>" wire format.
var ErrNip04Malformed = errors.New("nip44: malformed nip04 payload")

// Nip04SharedSecret derives the legacy NIP-04 shared secret: the raw
// x-coordinate of the ECDH point, with no HKDF step. It backs
// Nip04Encrypt and Nip04Decrypt, which let a bunker serve clients that
// still speak NIP-04; nothing in this package ever emits NIP-04
// ciphertext by default.
func Nip04SharedSecret(skHex, pkHex string) ([]byte, error) {
	sk, pk, err := ValidateKeyPair(skHex, pkHex)
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(sk)

	point, err := crypto.ECDHSharedPoint(sk, pk)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	defer crypto.Zero(point)

	secret := make([]byte, 32)
	copy(secret, point[1:33])
	return secret, nil
}

// Nip04Encrypt encrypts plaintext with AES-256-CBC under the legacy
// NIP-04 shared secret, returning "<base64 ciphertext>?iv=<base64 iv>".
// Callers must opt into this explicitly; it is never used by Encrypt.
func Nip04Encrypt(plaintext string, skHex, pkHex string) (string, error) {
	key, err := Nip04SharedSecret(skHex, pkHex)
	if err != nil {
		return "", err
	}
	defer crypto.Zero(key)

	iv, err := crypto.RandomBytes(aes.BlockSize)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(ciphertext) + "?iv=" + base64.StdEncoding.EncodeToString(iv), nil
}

// Nip04Decrypt reverses Nip04Encrypt.
func Nip04Decrypt(payload string, skHex, pkHex string) (string, error) {
	parts := strings.SplitN(payload, "?iv=", 2)
	if len(parts) != 2 {
		return "", ErrNip04Malformed
	}

	ciphertext, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", ErrNip04Malformed
	}
	iv, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(iv) != aes.BlockSize {
		return "", ErrNip04Malformed
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", ErrNip04Malformed
	}

	key, err := Nip04SharedSecret(skHex, pkHex)
	if err != nil {
		return "", err
	}
	defer crypto.Zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return "", ErrNip04Malformed
	}
	return string(plaintext), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrNip04Malformed
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, ErrNip04Malformed
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, ErrNip04Malformed
		}
	}
	return data[:len(data)-padLen], nil
}
