package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

const sealedPrefix = "v1."

var errSealedPayload = errors.New("sealed token payload is malformed")

// encryptToken seals a provider refresh token with AES-GCM. Keys of any length
// are stretched with SHA-256 so operators can use a passphrase.
func encryptToken(key, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead, err := sealer(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), []byte(googleProvider))
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func decryptToken(key, sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	body, ok := strings.CutPrefix(sealed, sealedPrefix)
	if !ok {
		return "", errSealedPayload
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return "", errSealedPayload
	}
	aead, err := sealer(key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", errSealedPayload
	}
	plain, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], []byte(googleProvider))
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func sealer(key string) (cipher.AEAD, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("token encryption key is empty")
	}
	digest := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(digest[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
