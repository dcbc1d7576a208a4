package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hakimelghazi/quoter/internal/engine"
)

// Collector turns journal events into Prometheus series.
type Collector struct {
	quoteEvents    *prometheus.CounterVec
	trades         *prometheus.CounterVec
	volumeExecuted *prometheus.CounterVec
	volumeUnfilled *prometheus.CounterVec
}

// NewCollector registers the series on reg. dropped, when non-nil, is
// exported as the number of events the journal had to discard.
func NewCollector(reg prometheus.Registerer, dropped func() uint64) (*Collector, error) {
	c := &Collector{
		quoteEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quoter",
			Name:      "quote_events_total",
			Help:      "Quote upserts and removals applied, by event type.",
		}, []string{"type"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quoter",
			Name:      "trades_executed_total",
			Help:      "Trades executed, by symbol.",
		}, []string{"symbol"}),
		volumeExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quoter",
			Name:      "volume_executed_total",
			Help:      "Units executed, by symbol.",
		}, []string{"symbol"}),
		volumeUnfilled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quoter",
			Name:      "volume_unfilled_total",
			Help:      "Units requested but not executed for lack of liquidity, by symbol.",
		}, []string{"symbol"}),
	}

	cs := []prometheus.Collector{c.quoteEvents, c.trades, c.volumeExecuted, c.volumeUnfilled}
	if dropped != nil {
		cs = append(cs, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "quoter",
			Name:      "journal_events_dropped_total",
			Help:      "Events discarded because the journal buffer was full.",
		}, func() float64 { return float64(dropped()) }))
	}
	for _, col := range cs {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) Name() string { return "metrics" }

func (c *Collector) Write(_ context.Context, events []engine.Event) error {
	for _, ev := range events {
		switch ev.Type {
		case engine.EventTradeExecuted:
			if ev.Trade == nil {
				continue
			}
			c.trades.WithLabelValues(ev.Symbol).Inc()
			c.volumeExecuted.WithLabelValues(ev.Symbol).Add(float64(ev.Trade.VolumeExecuted))
			c.volumeUnfilled.WithLabelValues(ev.Symbol).Add(float64(ev.Trade.Unfilled()))
		default:
			c.quoteEvents.WithLabelValues(ev.Type.String()).Inc()
		}
	}
	return nil
}
