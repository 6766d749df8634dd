package security

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/atymri/Promptino/internal/core/domain"
	"github.com/atymri/Promptino/internal/core/port"
)

var (
	// ErrInvalidToken indicates the token is malformed, signed with another key or algorithm,
	// or was issued for a different issuer or audience.
	ErrInvalidToken = errors.New("jwt: invalid token")
	// ErrTokenExpired indicates an otherwise valid token is past its expiry.
	ErrTokenExpired = errors.New("jwt: token expired")
)

var signingMethod = jwt.SigningMethodHS256

// AccessTokenClaims is the payload signed into every access token.
type AccessTokenClaims struct {
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the claim the refresh exchange resolves accounts by.
func (c *AccessTokenClaims) Identity() string {
	if c == nil {
		return ""
	}
	if name := strings.TrimSpace(c.Name); name != "" {
		return name
	}
	return strings.TrimSpace(c.Email)
}

// SignerOptions configures the token signer.
type SignerOptions struct {
	Issuer     string
	Audience   string
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenSigner mints HS256 access tokens and opaque refresh tokens.
type TokenSigner struct {
	opts  SignerOptions
	key   []byte
	roles port.RoleLookup
	now   func() time.Time
}

// NewTokenSigner validates the options and builds a signer that resolves roles through the lookup.
func NewTokenSigner(opts SignerOptions, roles port.RoleLookup) (*TokenSigner, error) {
	opts.Issuer = strings.TrimSpace(opts.Issuer)
	opts.Audience = strings.TrimSpace(opts.Audience)

	switch {
	case opts.Issuer == "":
		return nil, fmt.Errorf("jwt: issuer is required")
	case opts.Audience == "":
		return nil, fmt.Errorf("jwt: audience is required")
	case opts.Secret == "":
		return nil, fmt.Errorf("jwt: secret is required")
	case opts.AccessTTL <= 0:
		return nil, fmt.Errorf("jwt: access token ttl must be positive")
	case opts.RefreshTTL <= 0:
		return nil, fmt.Errorf("jwt: refresh token ttl must be positive")
	case roles == nil:
		return nil, fmt.Errorf("jwt: role lookup is required")
	}

	return &TokenSigner{
		opts:  opts,
		key:   []byte(opts.Secret),
		roles: roles,
		now:   time.Now,
	}, nil
}

// WithClock allows injection of a custom clock (primarily for testing).
func (s *TokenSigner) WithClock(now func() time.Time) *TokenSigner {
	if now != nil {
		s.now = now
	}
	return s
}

// CreateToken signs an access token for the account and pairs it with a fresh refresh token.
// Persisting the refresh token is left to the caller.
func (s *TokenSigner) CreateToken(ctx context.Context, account domain.Account) (domain.Credential, error) {
	roles, err := s.roles.RolesForAccount(ctx, account.ID)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("jwt: resolve roles: %w", err)
	}
	roles = normalizeRoles(roles)

	now := s.now().UTC()
	expiresAt := now.Add(s.opts.AccessTTL)

	claims := &AccessTokenClaims{
		Email: account.Email,
		Name:  account.Email,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			Issuer:    s.opts.Issuer,
			Audience:  jwt.ClaimStrings{s.opts.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(s.key)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("jwt: sign token: %w", err)
	}

	refresh, err := s.GenerateRefreshToken()
	if err != nil {
		return domain.Credential{}, err
	}

	lastLogin := now
	return domain.Credential{
		AccountID:             account.ID,
		FirstName:             account.FirstName,
		LastName:              account.LastName,
		Email:                 account.Email,
		PhoneNumber:           account.PhoneNumber,
		IsLockedOut:           account.IsLockedOut(now),
		CreatedAt:             account.CreatedAt,
		LastLoginAt:           &lastLogin,
		Token:                 signed,
		TokenExpiresAt:        expiresAt,
		RefreshToken:          refresh,
		RefreshTokenExpiresAt: now.Add(s.opts.RefreshTTL),
		IsAdmin:               domain.HasRole(roles, domain.RoleAdmin),
		Roles:                 roles,
	}, nil
}

// GetPrincipalFromToken verifies signature, algorithm, issuer, and audience but ignores expiry,
// so an expired access token can still identify its subject during a refresh exchange.
func (s *TokenSigner) GetPrincipalFromToken(raw string) (*AccessTokenClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := &AccessTokenClaims{}
	token, err := parser.ParseWithClaims(raw, claims, s.keyFunc)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Issuer != s.opts.Issuer || !slices.Contains(claims.Audience, s.opts.Audience) {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ParseAccessToken fully validates an access token, including its expiry.
func (s *TokenSigner) ParseAccessToken(raw string) (*AccessTokenClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(s.opts.Issuer),
		jwt.WithAudience(s.opts.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	claims := &AccessTokenClaims{}
	token, err := parser.ParseWithClaims(raw, claims, s.keyFunc)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, ErrInvalidToken
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrInvalidToken
		}
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GenerateRefreshToken returns an opaque refresh token. See NewRefreshToken.
func (s *TokenSigner) GenerateRefreshToken() (string, error) {
	return NewRefreshToken()
}

func (s *TokenSigner) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("jwt: unexpected signing method %v", token.Header["alg"])
	}
	return s.key, nil
}

func normalizeRoles(input []string) []string {
	if len(input) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(input))
	result := make([]string, 0, len(input))
	for _, role := range input {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, exists := seen[role]; exists {
			continue
		}
		seen[role] = struct{}{}
		result = append(result, role)
	}

	if len(result) == 0 {
		return nil
	}

	return result
}
