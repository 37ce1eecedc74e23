// internal/pkg/auth/jwt_test.go
package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/your-org/milkcart-backend/internal/config"
	"github.com/your-org/milkcart-backend/internal/domain/user"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "Milkcart API"},
		JWT: config.JWTConfig{
			Secret:             "test-secret-key-for-unit-tests",
			AccessTokenExpiry:  15 * time.Minute,
			RefreshTokenExpiry: 7 * 24 * time.Hour,
		},
		Security: config.SecurityConfig{BcryptCost: 4},
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	t.Parallel()

	mgr := NewJWTManager(testConfig())
	token, err := mgr.GenerateAccessToken(42, "customer@example.com", user.RoleCustomer)
	require.NoError(t, err)

	claims, err := mgr.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, uint(42), claims.UserID)
	require.Equal(t, "customer@example.com", claims.Email)
	require.Equal(t, user.RoleCustomer, claims.Role)
	require.Equal(t, "access", claims.TokenType)
}

func TestRefreshTokenCarriesNoRole(t *testing.T) {
	t.Parallel()

	mgr := NewJWTManager(testConfig())
	token, err := mgr.GenerateRefreshToken(42, "customer@example.com")
	require.NoError(t, err)

	claims, err := mgr.ValidateRefreshToken(token)
	require.NoError(t, err)
	require.Equal(t, "refresh", claims.TokenType)
	require.Empty(t, claims.Role)
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	t.Parallel()

	mgr := NewJWTManager(testConfig())

	access, err := mgr.GenerateAccessToken(1, "a@example.com", user.RoleAdmin)
	require.NoError(t, err)
	refresh, err := mgr.GenerateRefreshToken(1, "a@example.com")
	require.NoError(t, err)

	_, err = mgr.ValidateRefreshToken(access)
	require.Error(t, err)
	_, err = mgr.ValidateAccessToken(refresh)
	require.Error(t, err)
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	t.Parallel()

	mgr := NewJWTManager(testConfig())
	token, err := mgr.GenerateAccessToken(1, "a@example.com", user.RoleCustomer)
	require.NoError(t, err)

	other := testConfig()
	other.JWT.Secret = "a-completely-different-secret"
	_, err = NewJWTManager(other).ValidateToken(token)
	require.Error(t, err)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.JWT.AccessTokenExpiry = -time.Minute
	mgr := NewJWTManager(cfg)

	token, err := mgr.GenerateAccessToken(1, "a@example.com", user.RoleCustomer)
	require.NoError(t, err)

	_, err = mgr.ValidateToken(token)
	require.Error(t, err)
}

func TestExtractTokenFromHeader(t *testing.T) {
	t.Parallel()

	require.Equal(t, "abc.def.ghi", ExtractTokenFromHeader("Bearer abc.def.ghi"))
	require.Equal(t, "abc.def.ghi", ExtractTokenFromHeader("bearer abc.def.ghi"))
	require.Empty(t, ExtractTokenFromHeader("abc.def.ghi"))
	require.Empty(t, ExtractTokenFromHeader("Basic dXNlcjpwYXNz"))
	require.Empty(t, ExtractTokenFromHeader(""))
}
