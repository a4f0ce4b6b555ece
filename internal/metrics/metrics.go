package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	OrdersPlaced     Counter
	OrdersFailed     Counter
	OrdersSimulated  Counter
	SignalsProcessed Counter
	SignalsRejected  Counter
	SignalsIgnored   Counter
	TicksApplied     Counter
	StreamFailures   Counter
	HistoryDropped   Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		OrdersPlaced:     n,
		OrdersFailed:     n,
		OrdersSimulated:  n,
		SignalsProcessed: n,
		SignalsRejected:  n,
		SignalsIgnored:   n,
		TicksApplied:     n,
		StreamFailures:   n,
		HistoryDropped:   n,
	}
}
