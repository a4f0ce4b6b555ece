package exec

import (
	"fmt"
	"time"

	"bybit-exec-bot/internal/strategy"

	"github.com/shopspring/decimal"
)

// OrderNotExecutedError reports an order the exchange answered with a
// non-zero retCode.
type OrderNotExecutedError struct {
	Instrument string
	Direction  strategy.Direction
	Quantity   decimal.Decimal
	RetCode    int
	RetMsg     string
}

func (e *OrderNotExecutedError) Error() string {
	return fmt.Sprintf("order not executed: %s %s %s (retCode %d: %s)",
		e.Direction, e.Quantity.String(), e.Instrument, e.RetCode, e.RetMsg)
}

type TimeoutError struct {
	Instrument string
	Timeout    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("order submission for %s timed out after %s", e.Instrument, e.Timeout)
}
