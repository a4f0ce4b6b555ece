package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const authTimeout = 10 * time.Second

type ControlMessage struct {
	Op    string   `json:"op"`
	ReqID string   `json:"req_id,omitempty"`
	Args  []string `json:"args,omitempty"`
}

func NewSubscribe(topics []string) ControlMessage {
	return ControlMessage{Op: "subscribe", ReqID: uuid.NewString(), Args: append([]string(nil), topics...)}
}

func NewPing() ControlMessage {
	return ControlMessage{Op: "ping", ReqID: uuid.NewString()}
}

// Response is the exchange's reply to a control message.
type Response struct {
	Op      string `json:"op"`
	Success *bool  `json:"success"`
	RetMsg  string `json:"ret_msg"`
	ReqID   string `json:"req_id"`
	ConnID  string `json:"conn_id"`
}

type AuthMessageBuilder interface {
	BuildAuthMessage() (string, error)
}

// Authenticate returns an OnOpen hook that sends a freshly signed auth
// message and waits for a successful acknowledgement.
func Authenticate(builder AuthMessageBuilder) func(ctx context.Context, s Session) error {
	return func(ctx context.Context, s Session) error {
		if builder == nil {
			return errors.New("ws auth builder is required")
		}
		msg, err := builder.BuildAuthMessage()
		if err != nil {
			return fmt.Errorf("build auth message: %w", err)
		}
		ctx, cancel := context.WithTimeout(ctx, authTimeout)
		defer cancel()
		if err := s.Send(ctx, []byte(msg)); err != nil {
			return fmt.Errorf("send auth: %w", err)
		}
		for {
			raw, err := s.Receive(ctx)
			if err != nil {
				return fmt.Errorf("await auth ack: %w", err)
			}
			var resp Response
			if err := json.Unmarshal(raw, &resp); err != nil {
				continue
			}
			if resp.Op != "auth" {
				continue
			}
			if resp.Success == nil || !*resp.Success {
				reason := strings.TrimSpace(resp.RetMsg)
				if reason == "" {
					reason = "unknown reason"
				}
				return fmt.Errorf("ws auth rejected: %s", reason)
			}
			return nil
		}
	}
}
