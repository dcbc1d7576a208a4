package pricefeed

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hakimelghazi/quoter/internal/engine"
)

// LastTrade is the most recent execution seen for a symbol.
type LastTrade struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Volume uint64          `json:"volume"`
	At     time.Time       `json:"at"`
}

// PriceCache stores the latest execution price per symbol in memory.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]LastTrade
}

func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[string]LastTrade)}
}

func (c *PriceCache) Set(t LastTrade) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// never move a symbol's last trade backwards in time
	if cur, ok := c.prices[t.Symbol]; ok && cur.At.After(t.At) {
		return
	}
	c.prices[t.Symbol] = t
}

func (c *PriceCache) Get(symbol string) (LastTrade, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.prices[symbol]
	return t, ok
}

func (c *PriceCache) Name() string { return "last-price" }

// Write records the average price of every trade event in the batch.
func (c *PriceCache) Write(_ context.Context, events []engine.Event) error {
	for _, ev := range events {
		if ev.Type != engine.EventTradeExecuted || ev.Trade == nil {
			continue
		}
		c.Set(LastTrade{
			Symbol: ev.Trade.Symbol,
			Price:  ev.Trade.VolumeWeightedAveragePrice,
			Volume: ev.Trade.VolumeExecuted,
			At:     ev.Trade.ExecutedAt,
		})
	}
	return nil
}
