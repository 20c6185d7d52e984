package server

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidToken = errors.New("invalid token")

// tokenIssuer hands out short-lived anti-forgery tokens for the generate
// endpoint: expiry, random nonce, and an HMAC over both.
type tokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func newTokenIssuer(secret string, ttl time.Duration) *tokenIssuer {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &tokenIssuer{secret: []byte(secret), ttl: ttl}
}

func (t *tokenIssuer) Issue() (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	expiry := strconv.FormatInt(time.Now().Add(t.ttl).Unix(), 10)
	nonceHex := hex.EncodeToString(nonce)
	return expiry + "." + nonceHex + "." + t.sign(expiry, nonceHex), nil
}

func (t *tokenIssuer) Verify(token string) error {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return ErrInvalidToken
	}

	expiry, nonceHex, sig := parts[0], parts[1], parts[2]
	expiresAt, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil || time.Now().Unix() > expiresAt {
		return ErrInvalidToken
	}

	if !hmac.Equal([]byte(sig), []byte(t.sign(expiry, nonceHex))) {
		return ErrInvalidToken
	}
	return nil
}

func (t *tokenIssuer) sign(expiry, nonceHex string) string {
	h := hmac.New(sha256.New, t.secret)
	h.Write([]byte(expiry + "." + nonceHex))
	return strings.TrimRight(base64.URLEncoding.EncodeToString(h.Sum(nil)), "=")
}
