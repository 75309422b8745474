package utils // package utils provides token signing and hashing helpers shared by handlers and services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned by the parse helpers for any token that is
// malformed, expired, or signed with the wrong key or algorithm.
var ErrInvalidToken = errors.New("invalid token")

// AccessToken is a signed HS256 JWT together with its expiry.  Access
// tokens are short-lived and sent as "Authorization: Bearer <token>".
type AccessToken struct {
	Token string
	Exp   time.Time
}

// RefreshToken is the raw random string handed to the client.  Only its
// SHA-256 hash is stored.
type RefreshToken struct {
	Raw string
	Exp time.Time
}

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	UserID uint64
	Role   string
}

// NewAccessToken signs an access token for userID with role.  The claims
// are sub (user id), role, exp and iat.
func NewAccessToken(secret string, userID uint64, role string, ttlMin int) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":  fmt.Sprintf("%d", userID),
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken validates raw and returns its subject and role.
func ParseAccessToken(secret, raw string) (AccessClaims, error) {
	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, hmacKey(secret))
	if err != nil || !tok.Valid {
		return AccessClaims{}, ErrInvalidToken
	}
	var out AccessClaims
	switch sub := claims["sub"].(type) {
	case string:
		if _, err := fmt.Sscan(sub, &out.UserID); err != nil {
			return AccessClaims{}, ErrInvalidToken
		}
	case float64:
		out.UserID = uint64(sub)
	default:
		return AccessClaims{}, ErrInvalidToken
	}
	out.Role, _ = claims["role"].(string)
	if out.UserID == 0 || out.Role == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	return out, nil
}

// NewRefreshToken returns 48 random bytes hex encoded, valid for ttlDays.
func NewRefreshToken(ttlDays int) (RefreshToken, error) {
	raw, err := randomHex(48)
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{
		Raw: raw,
		Exp: time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour),
	}, nil
}

// HashRefreshRaw returns the hex SHA-256 of a raw refresh token.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// hmacKey rejects any algorithm other than HMAC before handing out the key.
func hmacKey(secret string) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}
}
