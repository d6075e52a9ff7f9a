package util

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"

	"github.com/siparmail/sipar-server/global"
	"github.com/siparmail/sipar-server/types"
	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLength   = 16 // bytes
	digestLength = 32 // bytes
	tokenLength  = 32 // bytes of entropy per bearer token
)

// HashPassword derives a PBKDF2-SHA256 digest for the given password,
// salt and work factor. Iterations below the platform floor are raised
// to it; iterations above the ceiling fail with
// types.ErrUnsupportedIterations so a caller holding an old,
// now-unsupported hash can prompt for a credential reset instead of
// silently verifying against a truncated work factor.
func HashPassword(password string, salt []byte, iterations int) (string, error) {
	if iterations > global.MaxPbkdf2Iterations {
		return "", types.ErrUnsupportedIterations
	}
	if iterations < global.MinPbkdf2Iterations {
		iterations = global.MinPbkdf2Iterations
	}
	dk := pbkdf2.Key([]byte(password), salt, iterations, digestLength, sha256.New)
	return base64.RawURLEncoding.EncodeToString(dk), nil
}

// DeriveNewCredential generates a fresh random salt and hashes the
// password with the configured work factor. Returns salt (base64),
// digest (base64url) and the iterations actually used; the caller
// stores all three.
func DeriveNewCredential(password string) (string, string, int, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", "", 0, err
	}
	iterations := global.Conf.Sipar.Pbkdf2Iterations
	digest, hErr := HashPassword(password, salt, iterations)
	if hErr != nil {
		return "", "", 0, hErr
	}
	return base64.StdEncoding.EncodeToString(salt), digest, iterations, nil
}

// VerifyPassword re-derives the digest with the stored salt and work
// factor and compares.
func VerifyPassword(password, saltBase64, storedDigest string, iterations int) (bool, error) {
	salt, err := base64.StdEncoding.DecodeString(saltBase64)
	if err != nil {
		return false, types.ErrBadRequest
	}
	digest, hErr := HashPassword(password, salt, iterations)
	if hErr != nil {
		return false, hErr
	}
	return subtle.ConstantTimeCompare([]byte(digest), []byte(storedDigest)) == 1, nil
}

// GenerateToken creates the plaintext of a new bearer token: 32 random
// bytes, base64url without padding. The plaintext leaves the process
// exactly once; only its digest is stored.
func GenerateToken() (string, error) {
	b := make([]byte, tokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// TokenDigest returns the hex SHA-256 of a token plaintext, used as
// the token document id.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
