package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clipstream/backend/internal/models"
)

var (
	// ErrTokenExpired indicates the token was well formed but is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid indicates the token could not be verified.
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims is the identity payload carried by issued tokens. Refresh tokens
// only populate the subject; access tokens carry the profile fields too.
type Claims struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"fullName,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the user identifier the token was issued for.
func (c *Claims) UserID() string {
	return c.Subject
}

// Issuer mints and verifies the access and refresh token pair. The two token
// kinds are signed with distinct secrets and expire independently.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration

	now func() time.Time
}

// NewIssuer constructs an Issuer with the provided secrets and lifetimes.
func NewIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Issuer {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 10 * 24 * time.Hour
	}
	return &Issuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// WithNowFunc overrides the time source. Useful for tests.
func (i *Issuer) WithNowFunc(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// IssueAccessToken signs a short-lived token carrying the user's identity claim.
func (i *Issuer) IssueAccessToken(user models.User) (string, error) {
	if user.ID == "" {
		return "", errors.New("user id must be provided")
	}
	now := i.now().UTC()
	claims := &Claims{
		Username: user.Username,
		Email:    user.Email,
		FullName: user.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	}
	return i.sign(claims, i.accessSecret)
}

// IssueRefreshToken signs a long-lived token carrying only the user identifier.
func (i *Issuer) IssueRefreshToken(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("user id must be provided")
	}
	now := i.now().UTC()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.refreshTTL)),
		},
	}
	return i.sign(claims, i.refreshSecret)
}

// VerifyAccess parses and verifies an access token.
func (i *Issuer) VerifyAccess(token string) (*Claims, error) {
	return i.verify(token, i.accessSecret)
}

// VerifyRefresh parses and verifies a refresh token.
func (i *Issuer) VerifyRefresh(token string) (*Claims, error) {
	return i.verify(token, i.refreshSecret)
}

func (i *Issuer) sign(claims *Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (i *Issuer) verify(token string, secret []byte) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time { return i.now() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
