package engine

import (
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// vwapPlaces is the number of decimal places the average price is rounded to.
const vwapPlaces = 8

type Matcher struct {
	store *Store
}

func NewMatcher(store *Store) *Matcher {
	return &Matcher{store: store}
}

// Best returns the cheapest live quote for symbol.
func (m *Matcher) Best(symbol string, now time.Time) (Quote, bool) {
	b := m.store.lookup(symbol)
	if b == nil {
		return Quote{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var (
		best  Quote
		found bool
	)
	b.walkLive(now, func(e *entry) bool {
		best, found = e.quote, true
		return false
	})
	return best, found
}

// Execute buys up to volume units of symbol at market, cheapest quotes
// first, and decrements the matched quotes in place. It reports false when
// nothing could be executed.
//
// The symbol's book stays locked for the whole walk so two executions can
// never both consume the same volume.
func (m *Matcher) Execute(symbol string, volume uint64, now time.Time) (TradeResult, bool) {
	if volume == 0 {
		return TradeResult{}, false
	}
	b := m.store.lookup(symbol)
	if b == nil {
		return TradeResult{}, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := volume
	notional := decimal.Zero
	fills := make([]Fill, 0)

	b.walkLive(now, func(e *entry) bool {
		// how much this quote can give
		qty := min(remaining, e.quote.AvailableVolume)

		e.quote.AvailableVolume -= qty
		remaining -= qty
		notional = notional.Add(e.quote.Price.Mul(volumeDecimal(qty)))
		fills = append(fills, Fill{
			QuoteID: e.quote.ID,
			Price:   e.quote.Price,
			Volume:  qty,
		})
		return remaining > 0
	})

	executed := volume - remaining
	if executed == 0 {
		return TradeResult{}, false
	}

	return TradeResult{
		ID:                         uuid.New(),
		Symbol:                     symbol,
		VolumeRequested:            volume,
		VolumeExecuted:             executed,
		VolumeWeightedAveragePrice: notional.DivRound(volumeDecimal(executed), vwapPlaces),
		Fills:                      fills,
		ExecutedAt:                 now,
	}, true
}

func volumeDecimal(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
