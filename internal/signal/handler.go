package signal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"bybit-exec-bot/internal/strategy"

	"go.uber.org/zap"
)

const maxSignalBody = 64 << 10

type response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Handler accepts a JSON signal over HTTP POST.
func Handler(p *Processor, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, response{Status: "error", Error: "method not allowed"})
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxSignalBody))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, response{Status: "error", Error: err.Error()})
			return
		}
		var sig Signal
		if err := json.Unmarshal(body, &sig); err != nil {
			writeJSON(w, http.StatusBadRequest, response{Status: "error", Error: "invalid signal: " + err.Error()})
			return
		}
		if strings.TrimSpace(sig.User) == "" || strings.TrimSpace(sig.Strategy) == "" {
			writeJSON(w, http.StatusBadRequest, response{Status: "error", Error: "userName and strategyName are required"})
			return
		}
		// A caller that hangs up must not cancel an order already sent or
		// the save that follows it.
		if err := p.Process(context.WithoutCancel(r.Context()), sig); err != nil {
			var notFound *strategy.NotFoundError
			if errors.As(err, &notFound) {
				writeJSON(w, http.StatusNotFound, response{Status: "error", Error: err.Error()})
				return
			}
			log.Error("signal processing failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, response{Status: "error", Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, response{Status: "accepted"})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
