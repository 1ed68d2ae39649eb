package nip44

import (
	"encoding/hex"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

var (
	curveParams = btcec.S256().Params()
	fieldPrime  = curveParams.P // secp256k1 field prime p
	groupOrder  = curveParams.N // secp256k1 group order n
)

// IsValidPublicKeyFormat reports whether hexKey is syntactically a
// 64-hex-character x-only public key whose integer value is strictly
// less than the secp256k1 field prime. It rejects the all-zero and
// all-ones special values along with any value >= p, but does not check
// curve membership — use IsValidPublicKeyPoint for that.
func IsValidPublicKeyFormat(hexKey string) bool {
	if len(hexKey) != 64 {
		return false
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != 32 {
		return false
	}

	v := new(big.Int).SetBytes(raw)
	if v.Sign() == 0 {
		return false
	}
	if v.Cmp(fieldPrime) >= 0 {
		return false
	}
	return true
}

// IsValidPublicKeyPoint reports whether hexKey is a valid public-key
// format (IsValidPublicKeyFormat) AND at least one of 02||x or 03||x
// deserializes to a point on the secp256k1 curve.
func IsValidPublicKeyPoint(hexKey string) bool {
	if !IsValidPublicKeyFormat(hexKey) {
		return false
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return false
	}

	candidate := make([]byte, 33)
	candidate[0] = 0x02
	copy(candidate[1:], raw)
	if _, err := btcec.ParsePubKey(candidate); err == nil {
		return true
	}
	candidate[0] = 0x03
	_, err = btcec.ParsePubKey(candidate)
	return err == nil
}

// IsValidPrivateKey reports whether hexKey is a 64-hex-character scalar
// d with 1 <= d < n, n the secp256k1 group order.
func IsValidPrivateKey(hexKey string) bool {
	if len(hexKey) != 64 {
		return false
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != 32 {
		return false
	}

	d := new(big.Int).SetBytes(raw)
	if d.Sign() == 0 {
		return false
	}
	return d.Cmp(groupOrder) < 0
}

// ValidateKeyPair decodes and validates both keys, returning
// ErrInvalidPrivateKey / ErrInvalidPublicKey on the first failure.
func ValidateKeyPair(skHex, pkHex string) (sk, pk []byte, err error) {
	if !IsValidPrivateKey(skHex) {
		return nil, nil, ErrInvalidPrivateKey
	}
	if !IsValidPublicKeyPoint(pkHex) {
		return nil, nil, ErrInvalidPublicKey
	}
	sk, _ = hex.DecodeString(skHex)
	pk, _ = hex.DecodeString(pkHex)
	return sk, pk, nil
}
