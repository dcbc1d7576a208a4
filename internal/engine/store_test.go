package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestQuote(symbol, price string, volume uint64) Quote {
	return Quote{
		ID:              uuid.New(),
		Symbol:          symbol,
		Price:           decimal.RequireFromString(price),
		AvailableVolume: volume,
		ExpirationDate:  testNow.Add(48 * time.Hour),
	}
}

func TestUpsertStoresQuote(t *testing.T) {
	s := NewStore()
	q := newTestQuote("SEC1", "10", 1000)
	s.Upsert(q)

	got, ok := s.Get("SEC1", q.ID)
	if !ok {
		t.Fatalf("quote not found after upsert")
	}
	if !got.Price.Equal(q.Price) || got.AvailableVolume != 1000 || !got.ExpirationDate.Equal(q.ExpirationDate) {
		t.Fatalf("unexpected quote: %+v", got)
	}
	if live := s.LiveQuotesFor("SEC1", testNow); len(live) != 1 {
		t.Fatalf("expected 1 live quote, got %d", len(live))
	}
}

func TestUpsertReplacesExistingID(t *testing.T) {
	s := NewStore()
	q := newTestQuote("SEC1", "10", 1000)
	s.Upsert(q)

	updated := q
	updated.Price = decimal.NewFromInt(15)
	updated.AvailableVolume = 700
	updated.ExpirationDate = testNow.Add(96 * time.Hour)
	s.Upsert(updated)

	live := s.LiveQuotesFor("SEC1", testNow)
	if len(live) != 1 {
		t.Fatalf("expected replacement, got %d quotes", len(live))
	}
	got := live[0]
	if !got.Price.Equal(decimal.NewFromInt(15)) || got.AvailableVolume != 700 || !got.ExpirationDate.Equal(updated.ExpirationDate) {
		t.Fatalf("fields not replaced: %+v", got)
	}
}

func TestUpsertMovesIDAcrossSymbols(t *testing.T) {
	s := NewStore()
	q := newTestQuote("SEC1", "10", 1000)
	s.Upsert(q)

	moved := q
	moved.Symbol = "SEC2"
	s.Upsert(moved)

	if _, ok := s.Get("SEC1", q.ID); ok {
		t.Fatalf("id still stored under old symbol")
	}
	if _, ok := s.Get("SEC2", q.ID); !ok {
		t.Fatalf("id missing under new symbol")
	}
}

func TestLiveQuotesSortedByPriceThenUpsertOrder(t *testing.T) {
	s := NewStore()
	a := newTestQuote("SEC1", "2", 10)
	b := newTestQuote("SEC1", "1", 10)
	c := newTestQuote("SEC1", "2", 10)
	d := newTestQuote("SEC1", "0.5", 10)
	for _, q := range []Quote{a, b, c, d} {
		s.Upsert(q)
	}

	live := s.LiveQuotesFor("SEC1", testNow)
	want := []uuid.UUID{d.ID, b.ID, a.ID, c.ID}
	if len(live) != len(want) {
		t.Fatalf("expected %d quotes, got %d", len(want), len(live))
	}
	for i, id := range want {
		if live[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s (price %s)", i, id, live[i].ID, live[i].Price)
		}
	}

	// re-upserting moves a quote behind its equal-priced siblings
	s.Upsert(a)
	live = s.LiveQuotesFor("SEC1", testNow)
	if live[2].ID != c.ID || live[3].ID != a.ID {
		t.Fatalf("expected re-upserted quote last among equal prices")
	}
}

func TestLiveQuotesFiltersExpiredAndEmpty(t *testing.T) {
	s := NewStore()
	expired := newTestQuote("SEC1", "1", 10)
	expired.ExpirationDate = testNow.Add(-time.Second)
	atNow := newTestQuote("SEC1", "1", 10)
	atNow.ExpirationDate = testNow
	empty := newTestQuote("SEC1", "1", 0)
	live := newTestQuote("SEC1", "3", 10)
	for _, q := range []Quote{expired, atNow, empty, live} {
		s.Upsert(q)
	}

	got := s.LiveQuotesFor("SEC1", testNow)
	if len(got) != 1 || got[0].ID != live.ID {
		t.Fatalf("expected only the live quote, got %+v", got)
	}

	// filtered quotes stay stored
	if _, ok := s.Get("SEC1", expired.ID); !ok {
		t.Fatalf("expired quote should remain stored")
	}
}

func TestLiveQuotesUnknownSymbolIsEmpty(t *testing.T) {
	s := NewStore()
	got := s.LiveQuotesFor("NOPE", testNow)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestRemoveAllForSymbol(t *testing.T) {
	s := NewStore()
	s.Upsert(newTestQuote("SEC1", "1", 10))
	s.Upsert(newTestQuote("SEC1", "2", 10))
	other := newTestQuote("SEC2", "1", 10)
	s.Upsert(other)

	if !s.RemoveAllForSymbol("SEC1") {
		t.Fatalf("expected SEC1 to exist")
	}
	if got := s.LiveQuotesFor("SEC1", testNow); len(got) != 0 {
		t.Fatalf("expected no quotes after clear, got %d", len(got))
	}
	if s.RemoveAllForSymbol("SEC1") {
		t.Fatalf("second clear should be a no-op")
	}
	if _, ok := s.Get("SEC2", other.ID); !ok {
		t.Fatalf("other symbol affected by clear")
	}
	if syms := s.Symbols(); len(syms) != 1 || syms[0] != "SEC2" {
		t.Fatalf("unexpected symbols: %v", syms)
	}
}

func TestRemoveByID(t *testing.T) {
	s := NewStore()
	a := newTestQuote("SEC1", "1", 10)
	b := newTestQuote("SEC1", "2", 10)
	c := newTestQuote("SEC2", "1", 10)
	for _, q := range []Quote{a, b, c} {
		s.Upsert(q)
	}

	sym, ok := s.RemoveByID(b.ID)
	if !ok || sym != "SEC1" {
		t.Fatalf("expected removal from SEC1, got %q %v", sym, ok)
	}
	if _, ok := s.Get("SEC1", b.ID); ok {
		t.Fatalf("quote still present")
	}
	if _, ok := s.Get("SEC1", a.ID); !ok {
		t.Fatalf("sibling removed")
	}
	if _, ok := s.Get("SEC2", c.ID); !ok {
		t.Fatalf("other symbol touched")
	}
	if _, ok := s.RemoveByID(uuid.New()); ok {
		t.Fatalf("unknown id should be a no-op")
	}
}

func TestConcurrentFirstInsertCreatesOneBook(t *testing.T) {
	s := NewStore()
	const writers = 64

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			s.Upsert(newTestQuote("RACE", "1", 1))
		}()
	}
	close(start)
	wg.Wait()

	if got := len(s.LiveQuotesFor("RACE", testNow)); got != writers {
		t.Fatalf("expected %d quotes, got %d (lost book?)", writers, got)
	}
}

func TestUpsertRacingClearNeverLandsInDetachedBook(t *testing.T) {
	s := NewStore()
	for i := 0; i < 200; i++ {
		q := newTestQuote("SEC1", "1", 1)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); s.Upsert(q) }()
		go func() { defer wg.Done(); s.RemoveAllForSymbol("SEC1") }()
		wg.Wait()

		// either the clear won and the quote is in a fresh book, or the
		// upsert won and was cleared; a detached book would hide it silently
		if b := s.lookup("SEC1"); b != nil {
			b.mu.Lock()
			detached := b.detached
			b.mu.Unlock()
			if detached {
				t.Fatalf("store still references a detached book")
			}
		}
		s.RemoveAllForSymbol("SEC1")
	}
}
