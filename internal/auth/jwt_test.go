package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	token, expires, err := m.Issue("user-123", "alice")
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.Subject)
	assert.Equal(t, "alice", claims.Username)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	_, err := m.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, _, err := NewManager("secret-a", time.Hour).Issue("user-1", "bob")
	require.NoError(t, err)

	_, err = NewManager("secret-b", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := NewManager("test-secret", time.Nanosecond)

	token, _, err := m.Issue("user-1", "bob")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = m.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
