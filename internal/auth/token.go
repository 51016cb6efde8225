package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTokenFormat = errors.New("invalid token format")
	ErrTokenSig    = errors.New("invalid token signature")
	ErrTokenExp    = errors.New("token expired")
	ErrTokenClient = errors.New("client id mismatch")
	ErrNoSecret    = errors.New("token secret not configured")
)

// GenerateStreamToken builds a token letting clientID use the event stream
// until expUnix.
// Format: base64url(client_id + "." + exp_unix + "." + hex(hmac_sha256(secret, client_id+"."+exp)))
func GenerateStreamToken(secret, clientID string, expUnix int64) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	if clientID == "" || strings.Contains(clientID, ".") {
		return "", ErrTokenFormat
	}
	msg := clientID + "." + strconv.FormatInt(expUnix, 10)
	raw := msg + "." + sign(secret, msg)
	return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}

// ValidateStreamToken checks the signature and expiry of token and returns
// the embedded client id and expiry. An empty expectClientID accepts any
// client. Tokens stay valid for skewSeconds past their expiry.
func ValidateStreamToken(secret, token, expectClientID string, now time.Time, skewSeconds int) (string, int64, error) {
	if secret == "" {
		return "", 0, ErrNoSecret
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", 0, ErrTokenFormat
	}
	parts := strings.Split(string(b), ".")
	if len(parts) != 3 {
		return "", 0, ErrTokenFormat
	}
	cid, expStr, sigHex := parts[0], parts[1], parts[2]
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return "", 0, ErrTokenFormat
	}
	if expectClientID != "" && cid != expectClientID {
		return "", 0, ErrTokenClient
	}
	want, _ := hex.DecodeString(sign(secret, cid+"."+expStr))
	got, err := hex.DecodeString(sigHex)
	if err != nil {
		return "", 0, ErrTokenFormat
	}
	if !hmac.Equal(want, got) {
		return "", 0, ErrTokenSig
	}
	if now.Unix() > exp+int64(skewSeconds) {
		return "", 0, ErrTokenExp
	}
	return cid, exp, nil
}

func sign(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}
