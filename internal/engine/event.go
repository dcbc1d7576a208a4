package engine

import (
	"time"

	"github.com/google/uuid"
)

type EventType int

const (
	EventQuoteUpserted EventType = iota
	EventQuoteRemoved
	EventQuotesCleared
	EventTradeExecuted
)

func (t EventType) String() string {
	switch t {
	case EventQuoteUpserted:
		return "quote_upserted"
	case EventQuoteRemoved:
		return "quote_removed"
	case EventQuotesCleared:
		return "quotes_cleared"
	case EventTradeExecuted:
		return "trade_executed"
	default:
		return "unknown"
	}
}

// Event describes one state change applied by the Manager.
type Event struct {
	Type    EventType
	Symbol  string
	Quote   *Quote       // used when Type == EventQuoteUpserted
	QuoteID uuid.UUID    // used when Type == EventQuoteRemoved
	Trade   *TradeResult // used when Type == EventTradeExecuted
	At      time.Time
}

// Publisher receives events after the change is visible in the store.
// Publish must not block.
type Publisher interface {
	Publish(ev Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}
