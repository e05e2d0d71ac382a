package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// tokenLength is the length of reset and verification tokens. The nanoid
// alphabet is URL-safe, so 32 characters carry about 190 bits.
const tokenLength = 32

// GenerateToken returns a URL-safe random token of n characters.
func GenerateToken(n int) (string, error) {
	return gonanoid.New(n)
}

// HashToken returns the hex SHA-256 of a raw token, the form tokens are
// stored and looked up in.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func randomBytes(b []byte) (int, error) {
	return rand.Read(b)
}
