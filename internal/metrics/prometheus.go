package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "bybit_exec_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry         *prometheus.Registry
	ordersPlaced     prometheus.Counter
	ordersFailed     prometheus.Counter
	ordersSimulated  prometheus.Counter
	signalsProcessed prometheus.Counter
	signalsRejected  prometheus.Counter
	signalsIgnored   prometheus.Counter
	ticksApplied     prometheus.Counter
	streamFailures   prometheus.Counter
	historyDropped   prometheus.Counter
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	p := &Prometheus{
		registry:         registry,
		ordersPlaced:     newCounter("orders_placed_total", "Total number of orders accepted by the exchange."),
		ordersFailed:     newCounter("orders_failed_total", "Total number of order submissions that failed or were rejected."),
		ordersSimulated:  newCounter("orders_simulated_total", "Total number of orders recorded in simulate mode."),
		signalsProcessed: newCounter("signals_processed_total", "Total number of signals that reached an order decision."),
		signalsRejected:  newCounter("signals_rejected_total", "Total number of signals that ended with a recorded error."),
		signalsIgnored:   newCounter("signals_ignored_total", "Total number of signals for inactive strategies."),
		ticksApplied:     newCounter("ticks_applied_total", "Total number of ticker updates written to the price cache."),
		streamFailures:   newCounter("stream_failures_total", "Total number of websocket connection failures."),
		historyDropped:   newCounter("history_dropped_total", "Total number of order history records dropped on a full queue."),
	}
	registry.MustRegister(
		p.ordersPlaced,
		p.ordersFailed,
		p.ordersSimulated,
		p.signalsProcessed,
		p.signalsRejected,
		p.signalsIgnored,
		p.ticksApplied,
		p.streamFailures,
		p.historyDropped,
	)
	p.Metrics = &Metrics{
		OrdersPlaced:     promCounter{p.ordersPlaced},
		OrdersFailed:     promCounter{p.ordersFailed},
		OrdersSimulated:  promCounter{p.ordersSimulated},
		SignalsProcessed: promCounter{p.signalsProcessed},
		SignalsRejected:  promCounter{p.signalsRejected},
		SignalsIgnored:   promCounter{p.signalsIgnored},
		TicksApplied:     promCounter{p.ticksApplied},
		StreamFailures:   promCounter{p.streamFailures},
		HistoryDropped:   promCounter{p.historyDropped},
	}
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
