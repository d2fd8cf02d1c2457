package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"truek-settlement/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
)

// clockSkew tolerates small drift between this service and the auth issuer.
const clockSkew = 30 * time.Second

// accessClaims is the token body minted by the auth service: the numeric
// user id travels in "sub" and the role in a private "role" claim.
type accessClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTTokenService verifies HS256 access tokens. Signing lives here too so
// operators and tests can mint tokens with the shared secret.
type JWTTokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	parser *jwt.Parser
}

func NewJWTTokenService(secret string, ttl time.Duration, issuer string) *JWTTokenService {
	return &JWTTokenService{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
		),
	}
}

// Generate signs a token for userID that expires after the configured TTL.
func (s *JWTTokenService) Generate(userID int64, role string) (string, time.Time, error) {
	issued := time.Now().UTC().Truncate(time.Second)
	expires := issued.Add(s.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token for user %d: %w", userID, err)
	}
	return signed, expires, nil
}

// Validate checks signature, issuer and expiry and returns the caller's
// identity. Only positive numeric subjects are accepted.
func (s *JWTTokenService) Validate(raw string) (*ports.TokenClaims, error) {
	var claims accessClaims
	if _, err := s.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}

	if claims.Subject == "" {
		return nil, errors.New("verify token: missing subject")
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("verify token: subject %q is not a user id", claims.Subject)
	}

	return &ports.TokenClaims{UserID: userID, Role: claims.Role}, nil
}
