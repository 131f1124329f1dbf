package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "jane.doe@example.com", Normalize("  Jane.Doe@Example.COM "))
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "example.com", Domain("a@Example.com"))
	assert.Equal(t, "", Domain("no-at-sign"))
	assert.Equal(t, "", Domain("trailing@"))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("jane@example.com"))
	assert.False(t, Valid("@example.com"))
	assert.False(t, Valid("jane@localhost"))
	assert.False(t, Valid("jane@.com"))
	assert.False(t, Valid("ja ne@example.com"))
}

func TestBlocklist(t *testing.T) {
	b := NewBlocklist(" Burner.Example ", "")

	t.Run("built-in domain", func(t *testing.T) {
		assert.True(t, b.Blocked("someone@mailinator.com"))
		assert.True(t, b.Blocked("someone@MAILINATOR.COM"))
	})
	t.Run("subdomain of listed domain", func(t *testing.T) {
		assert.True(t, b.Blocked("someone@eu.mailinator.com"))
	})
	t.Run("extra domain", func(t *testing.T) {
		assert.True(t, b.Blocked("someone@burner.example"))
	})
	t.Run("ordinary domain", func(t *testing.T) {
		assert.False(t, b.Blocked("someone@gmail.com"))
		assert.False(t, b.Blocked("someone@notmailinator.com"))
	})
}
