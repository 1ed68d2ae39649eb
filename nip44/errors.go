package nip44

import "errors"

// Input errors.
var (
	ErrInvalidPublicKey      = errors.New("nip44: invalid public key")
	ErrInvalidPrivateKey     = errors.New("nip44: invalid private key")
	ErrInvalidPlaintextLen   = errors.New("nip44: invalid plaintext length")
	ErrInvalidPadding        = errors.New("nip44: invalid padding")
	ErrInvalidBase64         = errors.New("nip44: invalid base64")
	ErrUnsupportedEncoding   = errors.New("nip44: unsupported encoding")
	ErrUnsupportedVersion    = errors.New("nip44: unsupported version")
	ErrUnsupportedEncVersion = errors.New("nip44: unsupported encryption version")
	ErrEncVersionForbidden   = errors.New("nip44: emitting version 0 or 1 is forbidden")
	ErrAuthenticationFailed  = errors.New("nip44: authentication failed")
	ErrInvalidNonce          = errors.New("nip44: nonce must be exactly 32 bytes")
)
