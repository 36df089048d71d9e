package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/farmlink-backend/pkg/config"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "farmlink", ExpirationMinutes: 30, LeewaySeconds: 5}
}

func newVerifier(t *testing.T, cfg config.JWTConfig) *Verifier {
	t.Helper()
	v, err := NewVerifier(cfg)
	require.NoError(t, err)
	return v
}

func signRaw(t *testing.T, cfg config.JWTConfig, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)
	return token
}

func TestMintAndVerify(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := Mint(cfg, now, userID, enums.RoleFarmer)
	require.NoError(t, err)

	claims, err := newVerifier(t, cfg).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, enums.RoleFarmer, claims.Role)
	assert.Equal(t, "farmlink", claims.Issuer)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestVerifyRejects(t *testing.T) {
	cfg := testJWTConfig()
	valid, err := Mint(cfg, time.Now(), uuid.New(), enums.RoleBuyer)
	require.NoError(t, err)
	expired, err := Mint(cfg, time.Now().Add(-time.Hour), uuid.New(), enums.RoleLogistics)
	require.NoError(t, err)

	future := jwt.NewNumericDate(time.Now().Add(time.Hour))
	cases := map[string]struct {
		cfg   config.JWTConfig
		token string
	}{
		"wrong secret": {cfg: config.JWTConfig{Secret: "different", Issuer: "farmlink"}, token: valid},
		"wrong issuer": {cfg: config.JWTConfig{Secret: "secret", Issuer: "someone-else"}, token: valid},
		"expired":      {cfg: cfg, token: expired},
		"garbage":      {cfg: cfg, token: "not-a-jwt"},
		"unknown role": {cfg: cfg, token: signRaw(t, cfg, Claims{
			UserID:           uuid.New(),
			Role:             "superuser",
			RegisteredClaims: jwt.RegisteredClaims{Issuer: cfg.Issuer, ExpiresAt: future},
		})},
		"missing expiry": {cfg: cfg, token: signRaw(t, cfg, Claims{
			UserID:           uuid.New(),
			Role:             enums.RoleBuyer,
			RegisteredClaims: jwt.RegisteredClaims{Issuer: cfg.Issuer},
		})},
		"subject mismatch": {cfg: cfg, token: signRaw(t, cfg, Claims{
			UserID:           uuid.New(),
			Role:             enums.RoleBuyer,
			RegisteredClaims: jwt.RegisteredClaims{Issuer: cfg.Issuer, Subject: uuid.NewString(), ExpiresAt: future},
		})},
		"issued in the future": {cfg: cfg, token: signRaw(t, cfg, Claims{
			UserID:           uuid.New(),
			Role:             enums.RoleBuyer,
			RegisteredClaims: jwt.RegisteredClaims{Issuer: cfg.Issuer, IssuedAt: future, ExpiresAt: jwt.NewNumericDate(time.Now().Add(2 * time.Hour))},
		})},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newVerifier(t, tc.cfg).Verify(tc.token)
			assert.Error(t, err)
		})
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	cfg := testJWTConfig()
	claims := Claims{
		UserID:           uuid.New(),
		Role:             enums.RoleBuyer,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: cfg.Issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	_, err = newVerifier(t, cfg).Verify(token)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestMintValidatesInput(t *testing.T) {
	cfg := testJWTConfig()
	_, err := Mint(cfg, time.Now(), uuid.New(), "")
	assert.Error(t, err)
	_, err = Mint(cfg, time.Now(), uuid.Nil, enums.RoleBuyer)
	assert.Error(t, err)
	_, err = Mint(config.JWTConfig{Secret: "s"}, time.Now(), uuid.New(), enums.RoleBuyer)
	assert.Error(t, err)
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier(config.JWTConfig{})
	assert.Error(t, err)
}
