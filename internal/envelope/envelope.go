// Package envelope implements the crypto boundary (spec.md §4.12, C2):
// RSA-wrapping small control payloads and hybrid AES-GCM+RSA-wrapped-key
// encryption for image-sized blobs. The mesh core treats ciphertext as
// opaque bytes everywhere except here and at the command-center unwrap.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
)

// MaxRSAPlaintext is the largest payload RSA wrap will accept (spec.md
// §4.12: "recipient's public key encrypts payloads ≤ 117 bytes").
const MaxRSAPlaintext = 117

// ErrTooLarge is returned by WrapRSA when the plaintext exceeds
// MaxRSAPlaintext; spec.md §7 calls this the "EnvelopeTooLarge" kind and
// specifies the caller should bypass the wrap rather than fail outright,
// so this is a sentinel the caller checks, not a reason to abort.
var ErrTooLarge = errors.New("envelope: plaintext too large for RSA wrap")

// WrapRSA encrypts a small control payload (heartbeat/event-text) with the
// recipient's RSA public key using OAEP. Callers that get ErrTooLarge are
// expected to send the plaintext unwrapped (spec.md §7 "explicit
// downgrade").
func WrapRSA(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	if len(plaintext) > MaxRSAPlaintext {
		return nil, ErrTooLarge
	}
	return rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
}

// UnwrapRSA decrypts a payload produced by WrapRSA.
func UnwrapRSA(priv *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	return rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ciphertext, nil)
}

// WrapHybrid encrypts an arbitrarily large blob (an image) with a fresh
// AES-256-GCM key, then RSA-wraps that symmetric key and prepends it to
// the ciphertext: [2-byte big-endian wrapped-key length][wrapped
// key][nonce][ciphertext+tag]. The command center is the only party that
// ever reverses this (spec.md §4.12).
func WrapHybrid(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)

	wrappedKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 2+len(wrappedKey)+len(nonce)+len(sealed))
	out = append(out, byte(len(wrappedKey)>>8), byte(len(wrappedKey)))
	out = append(out, wrappedKey...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// UnwrapHybrid reverses WrapHybrid using the command center's RSA private
// key.
func UnwrapHybrid(priv *rsa.PrivateKey, envelope []byte) ([]byte, error) {
	if len(envelope) < 2 {
		return nil, errors.New("envelope: truncated hybrid envelope")
	}
	keyLen := int(envelope[0])<<8 | int(envelope[1])
	envelope = envelope[2:]
	if len(envelope) < keyLen {
		return nil, errors.New("envelope: truncated wrapped key")
	}
	wrappedKey := envelope[:keyLen]
	rest := envelope[keyLen:]

	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrappedKey, nil)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(rest) < gcm.NonceSize() {
		return nil, errors.New("envelope: truncated nonce")
	}
	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}
