package codec

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Encrypter turns a plaintext payload into the opaque string stored in a
// record, and back. The registry never looks inside the opaque form.
type Encrypter interface {
	Obfuscate(plaintext []byte) (string, error)
	Deobfuscate(opaque string) ([]byte, error)
}

// ErrNotObfuscated is returned by Deobfuscate for input that was not produced
// by the same Encrypter.
var ErrNotObfuscated = errors.New("codec: payload not produced by this encrypter")

const fhePrefix = "FHE-"

// PlaceholderFHE stands in for a homomorphic encryption service. It performs
// no encryption at all: the payload is "FHE-" followed by standard base64.
type PlaceholderFHE struct{}

// Obfuscate implements Encrypter.
func (PlaceholderFHE) Obfuscate(plaintext []byte) (string, error) {
	return fhePrefix + base64.StdEncoding.EncodeToString(plaintext), nil
}

// Deobfuscate implements Encrypter.
func (PlaceholderFHE) Deobfuscate(opaque string) ([]byte, error) {
	rest, ok := strings.CutPrefix(opaque, fhePrefix)
	if !ok {
		return nil, ErrNotObfuscated
	}
	b, err := base64.StdEncoding.DecodeString(rest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObfuscated, err)
	}
	return b, nil
}

const sealedPrefix = "SBX1-"

// SealedBox encrypts payloads with XChaCha20-Poly1305 under a key derived from
// a passphrase with Argon2id. The opaque form is "SBX1-" + base64url(nonce|ciphertext).
type SealedBox struct {
	key []byte
}

// NewSealedBox derives the box key from passphrase and salt. The same pair
// must be configured on every registry instance that reads the payloads.
func NewSealedBox(passphrase, salt string) (*SealedBox, error) {
	if passphrase == "" {
		return nil, errors.New("sealed box: passphrase is required")
	}
	if salt == "" {
		salt = "careerledger"
	}
	key := argon2.IDKey([]byte(passphrase), []byte(salt), 1, 64*1024, 4, chacha20poly1305.KeySize)
	return &SealedBox{key: key}, nil
}

// Obfuscate implements Encrypter.
func (s *SealedBox) Obfuscate(plaintext []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("sealed box: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("sealed box nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Deobfuscate implements Encrypter.
func (s *SealedBox) Deobfuscate(opaque string) ([]byte, error) {
	rest, ok := strings.CutPrefix(opaque, sealedPrefix)
	if !ok {
		return nil, ErrNotObfuscated
	}
	raw, err := base64.RawURLEncoding.DecodeString(rest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObfuscated, err)
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("sealed box: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return nil, ErrNotObfuscated
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("sealed box open: %w", err)
	}
	return plaintext, nil
}

// SealJSON encodes v and obfuscates the result with enc.
func SealJSON(enc Encrypter, v any) (string, error) {
	plaintext, err := Encode(v)
	if err != nil {
		return "", err
	}
	return enc.Obfuscate(plaintext)
}

// OpenJSON reverses SealJSON.
func OpenJSON[T any](enc Encrypter, opaque string) (T, error) {
	plaintext, err := enc.Deobfuscate(opaque)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](plaintext)
}
