package auth

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// AuthWindow is how long a stream auth signature stays valid.
const AuthWindow = 10 * time.Second

const realtimePrefix = "GET/realtime"

type AuthMessage struct {
	Op    string `json:"op"`
	ReqID string `json:"req_id"`
	Args  []any  `json:"args"`
}

// StreamAuthenticator builds the auth control message for private streams.
// It must be used once per connection, before any subscribe message.
type StreamAuthenticator struct {
	signer *Signer
	now    func() time.Time
	reqID  func() string
}

func NewStreamAuthenticator(signer *Signer) *StreamAuthenticator {
	return &StreamAuthenticator{signer: signer, now: time.Now, reqID: uuid.NewString}
}

func (a *StreamAuthenticator) BuildAuthMessage() (string, error) {
	if a == nil || a.signer == nil {
		return "", errors.New("stream authenticator has no signer")
	}
	expires := a.now().Add(AuthWindow).UnixMilli()
	signature := a.signer.Sign(realtimePrefix + strconv.FormatInt(expires, 10))
	msg := AuthMessage{
		Op:    "auth",
		ReqID: a.reqID(),
		Args:  []any{a.signer.APIKey(), expires, signature},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
