package state

import (
	"context"
	"fmt"
	"time"

	"bybit-exec-bot/internal/strategy"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

const strategyKeyPrefix = "strategy:"

func StrategyKey(user, name string) string {
	return strategyKeyPrefix + user + ":" + name
}

// StrategyRecord is the runtime state of a strategy. Active and mode are
// configuration and never persisted. Decimals are kept as strings so
// precision survives the round trip.
type StrategyRecord struct {
	Position    string `msgpack:"position"`
	LastError   string `msgpack:"last_error,omitempty"`
	LastErrorMS int64  `msgpack:"last_error_ms,omitempty"`
	UpdatedAtMS int64  `msgpack:"updated_at_ms"`
}

// StrategyRepo persists strategies in a Store.
type StrategyRepo struct {
	store Store
	now   func() time.Time
}

func NewStrategyRepo(store Store) *StrategyRepo {
	return &StrategyRepo{store: store, now: time.Now}
}

func (r *StrategyRepo) SaveStrategy(ctx context.Context, user string, st strategy.Strategy) error {
	if r == nil || r.store == nil {
		return nil
	}
	rec := StrategyRecord{
		Position:    st.Position.String(),
		UpdatedAtMS: r.now().UnixMilli(),
	}
	if st.LastError != nil {
		rec.LastError = st.LastError.Message
		rec.LastErrorMS = st.LastError.Time.UnixMilli()
	}
	payload, err := msgpack.Marshal(&rec)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, StrategyKey(user, st.Name), payload)
}

// Restore overlays the persisted position and last error, if any, onto a
// declared strategy. Everything else comes from the declaration.
func (r *StrategyRepo) Restore(ctx context.Context, user string, declared strategy.Strategy) (strategy.Strategy, bool, error) {
	if r == nil || r.store == nil {
		return declared, false, nil
	}
	raw, ok, err := r.store.Get(ctx, StrategyKey(user, declared.Name))
	if err != nil {
		return declared, false, err
	}
	if !ok || len(raw) == 0 {
		return declared, false, nil
	}
	var rec StrategyRecord
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return declared, false, fmt.Errorf("decode strategy %s/%s: %w", user, declared.Name, err)
	}
	position, err := decimal.NewFromString(rec.Position)
	if err != nil {
		return declared, false, fmt.Errorf("decode strategy %s/%s position: %w", user, declared.Name, err)
	}
	restored := declared
	restored.Position = position
	restored.LastError = nil
	if rec.LastError != "" {
		restored.LastError = &strategy.ErrorData{
			Message: rec.LastError,
			Time:    time.UnixMilli(rec.LastErrorMS).UTC(),
		}
	}
	return restored, true, nil
}
