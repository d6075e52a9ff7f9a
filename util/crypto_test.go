package util

import (
	"encoding/base64"
	"testing"

	"github.com/siparmail/sipar-server/global"
	"github.com/siparmail/sipar-server/types"
	"github.com/stretchr/testify/assert"
)

func TestHashPasswordDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")
	first, err := HashPassword("password1", salt, 10000)
	if err != nil {
		t.Fatal(err)
	}
	second, err := HashPassword("password1", salt, 10000)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, first, second)

	other, err := HashPassword("password2", salt, 10000)
	if err != nil {
		t.Fatal(err)
	}
	assert.NotEqual(t, first, other)
}

func TestHashPasswordIterationCeiling(t *testing.T) {
	salt := []byte("0123456789abcdef")
	_, err := HashPassword("password1", salt, global.MaxPbkdf2Iterations+1)
	assert.Equal(t, types.ErrUnsupportedIterations, err)
}

func TestHashPasswordIterationFloor(t *testing.T) {
	salt := []byte("0123456789abcdef")
	low, err := HashPassword("password1", salt, 1)
	if err != nil {
		t.Fatal(err)
	}
	floor, err := HashPassword("password1", salt, global.MinPbkdf2Iterations)
	if err != nil {
		t.Fatal(err)
	}
	// an out-of-range work factor is raised to the floor, not honored
	assert.Equal(t, floor, low)
}

func TestDeriveNewCredentialFreshSalts(t *testing.T) {
	global.Conf.Sipar.Pbkdf2Iterations = global.MinPbkdf2Iterations

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		salt, digest, iterations, err := DeriveNewCredential("password1")
		if err != nil {
			t.Fatal(err)
		}
		assert.False(t, seen[salt], "salt reused across derivations")
		seen[salt] = true
		assert.Equal(t, global.MinPbkdf2Iterations, iterations)

		rawSalt, dErr := base64.StdEncoding.DecodeString(salt)
		if dErr != nil {
			t.Fatal(dErr)
		}
		assert.Len(t, rawSalt, 16)

		ok, vErr := VerifyPassword("password1", salt, digest, iterations)
		if vErr != nil {
			t.Fatal(vErr)
		}
		assert.True(t, ok)
	}
}

func TestVerifyPasswordWrongPassword(t *testing.T) {
	global.Conf.Sipar.Pbkdf2Iterations = global.MinPbkdf2Iterations

	salt, digest, iterations, err := DeriveNewCredential("password1")
	if err != nil {
		t.Fatal(err)
	}
	ok, vErr := VerifyPassword("password2", salt, digest, iterations)
	if vErr != nil {
		t.Fatal(vErr)
	}
	assert.False(t, ok)
}

func TestVerifyPasswordUnsupportedIterations(t *testing.T) {
	_, err := VerifyPassword("password1", base64.StdEncoding.EncodeToString([]byte("0123456789abcdef")), "whatever", global.MaxPbkdf2Iterations+1)
	assert.Equal(t, types.ErrUnsupportedIterations, err)
}

func TestGenerateToken(t *testing.T) {
	first, err := GenerateToken()
	if err != nil {
		t.Fatal(err)
	}
	second, err := GenerateToken()
	if err != nil {
		t.Fatal(err)
	}
	assert.NotEqual(t, first, second)

	raw, dErr := base64.RawURLEncoding.DecodeString(first)
	if dErr != nil {
		t.Fatal(dErr)
	}
	assert.Len(t, raw, 32)
}

func TestTokenDigest(t *testing.T) {
	digest := TokenDigest("token")
	assert.Len(t, digest, 64)
	assert.Equal(t, digest, TokenDigest("token"))
	assert.NotEqual(t, digest, TokenDigest("token2"))
	assert.NotContains(t, digest, "token")
}
