// Package auth issues the signed session tokens that scope per-user state
// such as conversation memory.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pilothub/api/internal/util"
)

type Claims struct {
	Sub      string `json:"sub"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	JTI      string `json:"jti"`
	Exp      int64  `json:"exp"`
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// NewSession issues a token for a user signed in through provider.
func NewSession(secret []byte, provider, userID, name string, ttl time.Duration) (string, Claims, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	userID = strings.TrimSpace(userID)
	if provider == "" || userID == "" {
		return "", Claims{}, fmt.Errorf("issue session: %w: provider and user id required", ErrInvalidToken)
	}
	if strings.TrimSpace(name) == "" {
		name = userID
	}
	claims := Claims{
		Sub:      userID,
		Name:     name,
		Provider: provider,
		JTI:      util.NewID("jti"),
		Exp:      time.Now().Add(ttl).Unix(),
	}
	token, err := IssueToken(secret, claims)
	if err != nil {
		return "", Claims{}, err
	}
	return token, claims, nil
}

func IssueToken(secret []byte, claims Claims) (string, error) {
	payloadBytes, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	signature := sign(secret, payload)
	return payload + "." + signature, nil
}

func ParseToken(secret []byte, token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return Claims{}, ErrInvalidToken
	}
	payload := parts[0]
	signature := parts[1]

	expected := sign(secret, payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return Claims{}, ErrInvalidToken
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	var claims Claims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if claims.Sub == "" || claims.Provider == "" || claims.JTI == "" || claims.Exp == 0 {
		return Claims{}, ErrInvalidToken
	}
	if time.Now().Unix() >= claims.Exp {
		return Claims{}, ErrExpiredToken
	}
	return claims, nil
}

func sign(secret []byte, payload string) string {
	sum := hmac.New(sha256.New, secret)
	_, _ = sum.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(sum.Sum(nil))
}
