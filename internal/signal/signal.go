package signal

import (
	"fmt"

	"bybit-exec-bot/internal/strategy"

	"github.com/shopspring/decimal"
)

// Signal asks a strategy to move to a target position. Quantity is the
// target, never a delta.
type Signal struct {
	User      string          `json:"userName"`
	Strategy  string          `json:"strategyName"`
	Direction string          `json:"direction"`
	Quantity  decimal.Decimal `json:"requestedQuantity"`
}

// OrderSequenceError reports a buy that would not increase the position or
// a sell that would not decrease it.
type OrderSequenceError struct {
	Direction string
	Requested decimal.Decimal
	Position  decimal.Decimal
}

func (e *OrderSequenceError) Error() string {
	return fmt.Sprintf("%s signal to %s is out of sequence with position %s",
		e.Direction, e.Requested.String(), e.Position.String())
}

// ResolveDirection validates an explicit buy/sell against the position and
// infers one for anything else: short positions buy, flat or long sell.
func ResolveDirection(direction string, requested, position decimal.Decimal) (strategy.Direction, error) {
	switch strategy.Direction(direction) {
	case strategy.DirectionBuy:
		if requested.GreaterThan(position) {
			return strategy.DirectionBuy, nil
		}
		return "", &OrderSequenceError{Direction: direction, Requested: requested, Position: position}
	case strategy.DirectionSell:
		if requested.LessThan(position) {
			return strategy.DirectionSell, nil
		}
		return "", &OrderSequenceError{Direction: direction, Requested: requested, Position: position}
	}
	if position.IsNegative() {
		return strategy.DirectionBuy, nil
	}
	return strategy.DirectionSell, nil
}
