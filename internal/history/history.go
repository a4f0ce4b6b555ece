package history

import (
	"context"

	"bybit-exec-bot/internal/strategy"
)

type Recorder interface {
	Record(ctx context.Context, order strategy.Order)
}

// Fanout hands each record to every recorder in order.
type Fanout []Recorder

func NewFanout(recorders ...Recorder) Fanout {
	out := make(Fanout, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (f Fanout) Record(ctx context.Context, order strategy.Order) {
	for _, r := range f {
		r.Record(ctx, order)
	}
}
