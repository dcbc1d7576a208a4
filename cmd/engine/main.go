package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hakimelghazi/quoter/internal/engine"
)

const symbol = "EUR/USD"

func main() {
	mgr := engine.NewManager(nil, nil, nil)
	expires := time.Now().Add(48 * time.Hour)

	// two makers: 1000 @ 1 and 2000 @ 2
	cheap := engine.Quote{
		ID:              uuid.New(),
		Symbol:          symbol,
		Price:           decimal.NewFromInt(1),
		AvailableVolume: 1000,
		ExpirationDate:  expires,
	}
	dear := engine.Quote{
		ID:              uuid.New(),
		Symbol:          symbol,
		Price:           decimal.NewFromInt(2),
		AvailableVolume: 2000,
		ExpirationDate:  expires,
	}
	mgr.AddOrUpdateQuote(cheap)
	mgr.AddOrUpdateQuote(dear)

	if best, ok := mgr.GetBestQuoteWithAvailableVolume(symbol); ok {
		fmt.Printf("best: %s @ %s (%d available)\n", best.ID, best.Price, best.AvailableVolume)
	}

	// taker buys 1500 at market, then asks for 3500 against what is left
	for _, volume := range []uint64{1500, 3500} {
		res, ok := mgr.ExecuteTrade(symbol, volume)
		if !ok {
			fmt.Printf("buy %d: no liquidity\n", volume)
			continue
		}
		fmt.Printf("buy %d: executed %d @ vwap %s, fills %+v\n",
			volume, res.VolumeExecuted, res.VolumeWeightedAveragePrice, res.Fills)
	}

	mgr.RemoveAllQuotes(symbol)
	fmt.Printf("after clear: %d live quotes\n", len(mgr.LiveQuotes(symbol)))
}
