package app

import (
	"context"
	"fmt"
	"strings"

	"bybit-exec-bot/internal/config"
	"bybit-exec-bot/internal/strategy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type strategyRestorer interface {
	Restore(ctx context.Context, user string, declared strategy.Strategy) (strategy.Strategy, bool, error)
}

// loadStrategies registers every declared strategy with its persisted
// position and last error when a record exists. Active and mode always
// follow the declaration. A record that cannot be decoded is
// logged and the declaration wins.
func loadStrategies(ctx context.Context, users []config.UserConfig, repo strategyRestorer, store *strategy.Store, log *zap.Logger) error {
	for _, user := range users {
		for _, sc := range user.Strategies {
			declared, err := declaredStrategy(sc)
			if err != nil {
				return fmt.Errorf("user %q strategy %q: %w", user.Name, sc.Name, err)
			}
			st := declared
			if repo != nil {
				restored, ok, err := repo.Restore(ctx, user.Name, declared)
				switch {
				case err != nil:
					log.Warn("strategy restore failed; using declaration",
						zap.String("user", user.Name),
						zap.String("strategy", sc.Name),
						zap.Error(err),
					)
				case ok:
					st = restored
					log.Info("strategy restored",
						zap.String("user", user.Name),
						zap.String("strategy", st.Name),
						zap.String("position", st.Position.String()),
						zap.Bool("active", st.Active),
					)
				}
			}
			store.Put(user.Name, st)
		}
	}
	return nil
}

func declaredStrategy(sc config.StrategyConfig) (strategy.Strategy, error) {
	position := decimal.Zero
	if raw := strings.TrimSpace(sc.Position); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			return strategy.Strategy{}, fmt.Errorf("invalid position %q: %w", sc.Position, err)
		}
		position = parsed
	}
	return strategy.Strategy{
		Name:       sc.Name,
		Instrument: strings.ToUpper(strings.TrimSpace(sc.Instrument)),
		Position:   position,
		Active:     sc.Active,
		Mode:       strategy.ConsumerMode(strings.ToLower(strings.TrimSpace(sc.Mode))),
	}, nil
}
