package strategy

import (
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// ConsumerMode decides what a processed signal does on the exchange.
type ConsumerMode string

const (
	ModeLive     ConsumerMode = "live"
	ModeSimulate ConsumerMode = "simulate"
)

type ErrorData struct {
	Message string
	Time    time.Time
}

type Strategy struct {
	Name       string
	Instrument string
	Position   decimal.Decimal
	Active     bool
	Mode       ConsumerMode
	LastError  *ErrorData
}

func (s Strategy) clone() Strategy {
	if s.LastError != nil {
		errData := *s.LastError
		s.LastError = &errData
	}
	return s
}

// Order is the history record produced for every processed signal. Price is
// nil when nothing was executed or priced.
type Order struct {
	User       string
	Strategy   string
	Instrument string
	Price      *decimal.Decimal
	Quantity   decimal.Decimal
	Direction  string
	Date       time.Time
}
