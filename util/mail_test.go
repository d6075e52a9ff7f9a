package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidUsername(t *testing.T) {
	valid := []string{"bob", "sipar_dev", "user123", "a_b_c"}
	for _, username := range valid {
		assert.True(t, IsValidUsername(username), username)
	}
	invalid := []string{"", "ab", "Bob", "user name", "user@name", "waytoolongusernamethatkeepsgoing"}
	for _, username := range invalid {
		assert.False(t, IsValidUsername(username), username)
	}
}

func TestIsValidLocalPart(t *testing.T) {
	valid := []string{"info", "a", "first.last", "tag+promo", "x-1.2"}
	for _, local := range valid {
		assert.True(t, IsValidLocalPart(local), local)
	}
	invalid := []string{"", ".leading", "UPPER", "spa ce", "local@part"}
	for _, local := range invalid {
		assert.False(t, IsValidLocalPart(local), local)
	}
}

func TestSplitRecipient(t *testing.T) {
	local, domain, err := SplitRecipient("Info <Info@Sipar.ID>")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "info", local)
	assert.Equal(t, "sipar.id", domain)

	_, _, err = SplitRecipient("not-an-address")
	assert.Error(t, err)

	_, _, err = SplitRecipient("")
	assert.Error(t, err)
}

func TestNormalizeEmail(t *testing.T) {
	email, err := NormalizeEmail("  Bob@Example.COM ")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "bob@example.com", email)

	_, err = NormalizeEmail("nope")
	assert.Error(t, err)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", TruncateRunes("abc", 10))
	assert.Equal(t, "abc", TruncateRunes("abcdef", 3))
	assert.Equal(t, "", TruncateRunes("abc", 0))
	// rune boundaries, never byte boundaries
	assert.Equal(t, "héll", TruncateRunes("héllo", 4))
}
