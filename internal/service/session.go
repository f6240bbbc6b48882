package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultSessionTTL is the lifetime of a session token.
	DefaultSessionTTL = 24 * time.Hour
	// MinSigningKeyLength is the shortest accepted HS256 key, in bytes.
	MinSigningKeyLength = 32

	sessionIssuer = "reconnoiter"
)

// TokenFailure classifies why a session token was rejected.
type TokenFailure int

const (
	TokenValid TokenFailure = iota
	TokenMalformed
	TokenExpired
	TokenInvalidSignature
)

func (f TokenFailure) String() string {
	switch f {
	case TokenValid:
		return "valid"
	case TokenMalformed:
		return "malformed"
	case TokenExpired:
		return "expired"
	case TokenInvalidSignature:
		return "invalid_signature"
	default:
		return "unknown"
	}
}

// SessionClaims are the claims carried by a session token.
type SessionClaims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// VerifyResult is the outcome of SessionCodec.Verify. Claims is set only
// when Failure is TokenValid.
type VerifyResult struct {
	Claims  *SessionClaims
	Failure TokenFailure
}

// OK reports whether the token verified.
func (r VerifyResult) OK() bool {
	return r.Failure == TokenValid && r.Claims != nil
}

// SessionCodec issues and verifies HS256 session tokens. The key and TTL
// are fixed at construction.
type SessionCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewSessionCodec returns a codec signing with key. A zero ttl selects
// DefaultSessionTTL.
func NewSessionCodec(key []byte, ttl time.Duration) (*SessionCodec, error) {
	if len(key) < MinSigningKeyLength {
		return nil, fmt.Errorf("%w: signing key must be at least %d bytes", ErrInvalidArgument, MinSigningKeyLength)
	}
	if ttl < 0 {
		return nil, fmt.Errorf("%w: session ttl must be positive", ErrInvalidArgument)
	}
	if ttl == 0 {
		ttl = DefaultSessionTTL
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &SessionCodec{key: k, ttl: ttl, now: time.Now}, nil
}

// TTL returns the configured token lifetime.
func (c *SessionCodec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token for the user. It returns the token and its expiry.
func (c *SessionCodec) Issue(userID int64, email string) (string, time.Time, error) {
	now := c.now()
	exp := now.Add(c.ttl)
	claims := SessionClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return token, exp, nil
}

// Verify checks a token's shape, signature and expiry, in that order.
//
// A token that is not three non-empty base64url segments is malformed. Once
// the shape is right, any failure to decode or authenticate the content is
// reported as an invalid signature, so altering any character of a genuine
// token never yields TokenMalformed. Expiry is only checked on tokens whose
// signature verified.
func (c *SessionCodec) Verify(token string) VerifyResult {
	if !wellFormed(token) {
		return VerifyResult{Failure: TokenMalformed}
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return c.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(c.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return VerifyResult{Failure: TokenInvalidSignature}
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return VerifyResult{Failure: TokenMalformed}
	case errors.Is(err, jwt.ErrTokenExpired):
		return VerifyResult{Failure: TokenExpired}
	default:
		return VerifyResult{Failure: TokenInvalidSignature}
	}

	if claims.UserID <= 0 || claims.Email == "" {
		return VerifyResult{Failure: TokenMalformed}
	}
	return VerifyResult{Claims: claims}
}

// wellFormed reports whether token is three non-empty segments of the
// unpadded base64url alphabet.
func wellFormed(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for i := 0; i < len(p); i++ {
			ch := p[i]
			switch {
			case ch >= 'A' && ch <= 'Z', ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9', ch == '-', ch == '_':
			default:
				return false
			}
		}
	}
	return true
}
