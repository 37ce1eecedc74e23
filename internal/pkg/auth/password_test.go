// internal/pkg/auth/password_test.go
package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	t.Parallel()

	mgr := NewPasswordManager(testConfig())

	hash, err := mgr.HashPassword("Secret123")
	require.NoError(t, err)
	require.NotEqual(t, "Secret123", hash)

	require.NoError(t, mgr.VerifyPassword("Secret123", hash))
	require.Error(t, mgr.VerifyPassword("Secret124", hash))
}

func TestValidatePassword(t *testing.T) {
	t.Parallel()

	mgr := NewPasswordManager(testConfig())

	require.NoError(t, mgr.ValidatePassword("Secret123"))

	// Too short
	require.Error(t, mgr.ValidatePassword("Ab1"))
	// Letters only
	require.Error(t, mgr.ValidatePassword("OnlyLetters"))
	// Digits only
	require.Error(t, mgr.ValidatePassword("1234567890"))
}

func TestHashPasswordRejectsWeakPassword(t *testing.T) {
	t.Parallel()

	mgr := NewPasswordManager(testConfig())
	_, err := mgr.HashPassword("weak")
	require.Error(t, err)
}
