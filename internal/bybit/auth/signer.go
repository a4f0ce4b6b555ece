package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderAPIKey     = "X-BAPI-API-KEY"
	HeaderTimestamp  = "X-BAPI-TIMESTAMP"
	HeaderRecvWindow = "X-BAPI-RECV-WINDOW"
	HeaderSign       = "X-BAPI-SIGN"
)

// Signer holds the account key pair and produces Bybit v5 HMAC-SHA256
// signatures. The secret never leaves the signer.
type Signer struct {
	apiKey string
	secret []byte
}

func NewSigner(apiKey, secret string) (*Signer, error) {
	apiKey = strings.TrimSpace(apiKey)
	secret = strings.TrimSpace(secret)
	if apiKey == "" || secret == "" {
		return nil, errors.New("api key and secret are required")
	}
	return &Signer{apiKey: apiKey, secret: []byte(secret)}, nil
}

func (s *Signer) APIKey() string {
	return s.apiKey
}

// Sign returns the lowercase hex HMAC-SHA256 of payload.
func (s *Signer) Sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// RESTHeaders signs timestamp + apiKey + recvWindow + payload, where payload
// is the query string for GET and the JSON body for POST.
func (s *Signer) RESTHeaders(ts time.Time, recvWindow int64, payload string) map[string]string {
	timestamp := strconv.FormatInt(ts.UnixMilli(), 10)
	window := strconv.FormatInt(recvWindow, 10)
	return map[string]string{
		HeaderAPIKey:     s.apiKey,
		HeaderTimestamp:  timestamp,
		HeaderRecvWindow: window,
		HeaderSign:       s.Sign(timestamp + s.apiKey + window + payload),
	}
}

// Wipe zeroes the secret. The signer is unusable afterwards.
func (s *Signer) Wipe() {
	if s == nil {
		return
	}
	for i := range s.secret {
		s.secret[i] = 0
	}
}
