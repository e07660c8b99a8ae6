// Package crypto implements password hashing, device auth codes and token digests.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"math/big"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32

	// SaltLen is the per-user salt size.
	SaltLen = 16
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// dummySalt/dummyHash are verified against when the username is unknown so that
// both branches of a login cost one Argon2id evaluation.
var (
	dummySalt = []byte("fieldsync-dummy!")
	dummyHash = HashPassword([]byte("fieldsync-dummy-password"), dummySalt)
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashPassword returns Argon2id hash of password using the provided salt.
func HashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifyPassword verifies password against expected Argon2id hash and salt.
func VerifyPassword(password, salt, expected []byte) bool {
	got := HashPassword(password, salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}

// VerifyDummy burns the same work as VerifyPassword and always reports false.
func VerifyDummy(password []byte) bool {
	_ = VerifyPassword(password, dummySalt, dummyHash)
	return false
}

// RandomCode returns an n-character uppercase code without ambiguous glyphs (0/O, 1/I).
func RandomCode(n int) (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	out := make([]byte, n)
	for i := range out {
		k, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = codeAlphabet[k.Int64()]
	}
	return string(out), nil
}

// HashToken returns the SHA-256 digest under which a refresh token is stored.
func HashToken(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return h[:]
}
