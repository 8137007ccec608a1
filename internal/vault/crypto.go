package vault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

// ErrDecrypt is returned when a stored token cannot be decoded with the
// current key. This is fatal for the connection; the caller must prompt the
// user to reconnect.
var ErrDecrypt = errors.New("token decryption failed")

// encPrefix marks the modern encrypted envelope. Values without it are
// legacy rows written before encryption-at-rest landed: reversible base64
// that must stay readable until the rows age out on the next token refresh.
const encPrefix = "enc1:"

const nonceSize = 24

// seal encrypts plaintext with the vault key and returns the stored form:
// marker + base64(nonce || box).
func seal(key *[32]byte, plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, key)
	return encPrefix + base64.StdEncoding.EncodeToString(box), nil
}

// open decodes a stored token value, dispatching on the format marker.
func open(key *[32]byte, stored string) (string, error) {
	if stored == "" {
		return "", nil
	}

	if !strings.HasPrefix(stored, encPrefix) {
		return openLegacy(stored)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, encPrefix))
	if err != nil {
		return "", fmt.Errorf("corrupt token envelope: %w", ErrDecrypt)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", fmt.Errorf("token envelope too short: %w", ErrDecrypt)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plaintext, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, key)
	if !ok {
		return "", fmt.Errorf("token envelope does not open with current key: %w", ErrDecrypt)
	}

	return string(plaintext), nil
}

// openLegacy reads the pre-encryption storage format.
func openLegacy(stored string) (string, error) {
	plaintext, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("legacy token is not valid base64: %w", ErrDecrypt)
	}
	return string(plaintext), nil
}
