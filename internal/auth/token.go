package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

const (
	// TokenHeader carries the session token on every protected request.
	TokenHeader = "X-Auth-Token"

	// DefaultTokenTTL is the fixed validity window of a session token.
	DefaultTokenTTL = 7 * 24 * time.Hour

	// MinSecretLength is the shortest signing key accepted at startup.
	MinSecretLength = 32
)

// Claims is the signed payload of a session token.
type Claims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager issues and validates HS256 session tokens. The key is fixed at
// construction and only read afterwards.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewTokenManager(secret []byte, ttl time.Duration, issuer string) (*TokenManager, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("token signing key must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &TokenManager{
		secret: key,
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}, nil
}

// Issue signs a token for the given identity. The expiry is returned so callers
// can echo it without decoding the token again.
func (m *TokenManager) Issue(userID int64, email string, role Role) (string, time.Time, error) {
	if userID <= 0 || email == "" || !role.Valid() {
		return "", time.Time{}, errors.New("issue token: incomplete identity")
	}

	now := m.now()
	expiresAt := now.Add(m.ttl)
	claims := &Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate checks the signature first and the expiry second. The returned error
// is one of the ErrToken* values; all of them wrap ErrUnauthenticated.
func (m *TokenManager) Validate(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrTokenMissing
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, classifyTokenError(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.UserID <= 0 || !claims.Role.Valid() || claims.Subject != strconv.FormatInt(claims.UserID, 10) {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenMalformed
	}
}

// TokenFromRequest reads the session token from X-Auth-Token, falling back to a
// bearer Authorization header.
func TokenFromRequest(r *http.Request) (string, error) {
	if r == nil {
		return "", ErrTokenMissing
	}
	if token := strings.TrimSpace(r.Header.Get(TokenHeader)); token != "" {
		return token, nil
	}
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		return TokenFromHeader(authHeader)
	}
	return "", ErrTokenMissing
}

func TokenFromHeader(authHeader string) (string, error) {
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrTokenMissing
	}
	return strings.TrimSpace(parts[1]), nil
}
