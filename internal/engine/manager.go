package engine

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hakimelghazi/quoter/internal/util"
)

// Manager is the single entry point into the quote store and matcher.
type Manager struct {
	store   *Store
	matcher *Matcher
	clock   util.Clock
	pub     Publisher
	log     *zap.Logger
}

// NewManager wires a fresh store. A nil clock, publisher or logger falls
// back to the wall clock, a no-op publisher and a no-op logger.
func NewManager(log *zap.Logger, clock util.Clock, pub Publisher) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	if pub == nil {
		pub = nopPublisher{}
	}
	store := NewStore()
	return &Manager{
		store:   store,
		matcher: NewMatcher(store),
		clock:   clock,
		pub:     pub,
		log:     log.Named("quotes"),
	}
}

func (m *Manager) AddOrUpdateQuote(q Quote) {
	m.store.Upsert(q)
	m.log.Debug("quote upserted",
		zap.Stringer("id", q.ID),
		zap.String("symbol", q.Symbol),
		zap.Stringer("price", q.Price),
		zap.Uint64("available_volume", q.AvailableVolume),
		zap.Time("expiration_date", q.ExpirationDate),
	)
	m.pub.Publish(Event{Type: EventQuoteUpserted, Symbol: q.Symbol, Quote: &q, At: m.clock.Now()})
}

func (m *Manager) RemoveAllQuotes(symbol string) {
	if !m.store.RemoveAllForSymbol(symbol) {
		return
	}
	m.log.Debug("quotes cleared", zap.String("symbol", symbol))
	m.pub.Publish(Event{Type: EventQuotesCleared, Symbol: symbol, At: m.clock.Now()})
}

func (m *Manager) RemoveQuote(id uuid.UUID) {
	symbol, ok := m.store.RemoveByID(id)
	if !ok {
		return
	}
	m.log.Debug("quote removed", zap.Stringer("id", id), zap.String("symbol", symbol))
	m.pub.Publish(Event{Type: EventQuoteRemoved, Symbol: symbol, QuoteID: id, At: m.clock.Now()})
}

// ExecuteTrade buys volume units of symbol against the cheapest live quotes.
// The bool is false when no unit could be executed, including volume == 0.
// A partial fill is a normal result.
func (m *Manager) ExecuteTrade(symbol string, volume uint64) (TradeResult, bool) {
	res, ok := m.matcher.Execute(symbol, volume, m.clock.Now())
	if !ok {
		m.log.Info("no liquidity", zap.String("symbol", symbol), zap.Uint64("volume_requested", volume))
		return TradeResult{}, false
	}

	m.log.Info("trade executed",
		zap.Stringer("trade_id", res.ID),
		zap.String("symbol", symbol),
		zap.Uint64("volume_requested", res.VolumeRequested),
		zap.Uint64("volume_executed", res.VolumeExecuted),
		zap.Stringer("vwap", res.VolumeWeightedAveragePrice),
		zap.Int("fills", len(res.Fills)),
	)
	// fills are shared with the caller and never mutated after this point
	trade := res
	m.pub.Publish(Event{Type: EventTradeExecuted, Symbol: symbol, Trade: &trade, At: res.ExecutedAt})
	return res, true
}

func (m *Manager) GetBestQuoteWithAvailableVolume(symbol string) (Quote, bool) {
	return m.matcher.Best(symbol, m.clock.Now())
}

// LiveQuotes returns the symbol's live quotes, cheapest first.
func (m *Manager) LiveQuotes(symbol string) []Quote {
	return m.store.LiveQuotesFor(symbol, m.clock.Now())
}

func (m *Manager) Symbols() []string {
	return m.store.Symbols()
}
