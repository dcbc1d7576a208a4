package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/hakimelghazi/quoter/internal/util"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

func newTestManager() (*Manager, *util.FixedClock, *recordingPublisher) {
	clock := util.NewFixedClock(testNow)
	pub := &recordingPublisher{}
	return NewManager(nil, clock, pub), clock, pub
}

func TestManagerCanAddAndUpdateQuote(t *testing.T) {
	mgr, _, _ := newTestManager()
	q := newTestQuote("SEC1", "10", 1000)
	mgr.AddOrUpdateQuote(q)

	if got := mgr.LiveQuotes("SEC1"); len(got) != 1 {
		t.Fatalf("expected one quote, got %d", len(got))
	}

	q.Price = decimal.NewFromInt(15)
	q.AvailableVolume = 700
	mgr.AddOrUpdateQuote(q)

	got := mgr.LiveQuotes("SEC1")
	if len(got) != 1 || !got[0].Price.Equal(decimal.NewFromInt(15)) || got[0].AvailableVolume != 700 {
		t.Fatalf("update not applied: %+v", got)
	}
}

func TestGetBestQuoteWithAvailableVolume(t *testing.T) {
	mgr, clock, _ := newTestManager()

	if _, ok := mgr.GetBestQuoteWithAvailableVolume("SEC1"); ok {
		t.Fatalf("unknown symbol should have no best quote")
	}

	cheapShort := newTestQuote("SEC1", "1", 10)
	cheapShort.ExpirationDate = testNow.Add(time.Hour)
	empty := newTestQuote("SEC1", "0.5", 0)
	dear := newTestQuote("SEC1", "3", 10)
	for _, q := range []Quote{cheapShort, empty, dear} {
		mgr.AddOrUpdateQuote(q)
	}

	best, ok := mgr.GetBestQuoteWithAvailableVolume("SEC1")
	if !ok || best.ID != cheapShort.ID {
		t.Fatalf("expected cheapest live quote, got %+v", best)
	}

	clock.Add(2 * time.Hour)
	best, ok = mgr.GetBestQuoteWithAvailableVolume("SEC1")
	if !ok || best.ID != dear.ID {
		t.Fatalf("expected expired quote to be skipped, got %+v", best)
	}

	clock.Add(100 * time.Hour)
	if _, ok := mgr.GetBestQuoteWithAvailableVolume("SEC1"); ok {
		t.Fatalf("all quotes expired, expected none")
	}
}

func TestManagerExecuteTradeScenario(t *testing.T) {
	mgr, _, pub := newTestManager()
	a := newTestQuote("SEC1", "1", 1000)
	b := newTestQuote("SEC1", "2", 2000)
	mgr.AddOrUpdateQuote(a)
	mgr.AddOrUpdateQuote(b)

	res, ok := mgr.ExecuteTrade("SEC1", 1500)
	if !ok {
		t.Fatalf("expected trade")
	}
	if res.ID == uuid.Nil || res.Symbol != "SEC1" || res.VolumeExecuted != 1500 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !res.ExecutedAt.Equal(testNow) {
		t.Fatalf("executed at %s", res.ExecutedAt)
	}

	if _, ok := mgr.ExecuteTrade("NOPE", 10); ok {
		t.Fatalf("expected no trade for unknown symbol")
	}

	types := pub.types()
	want := []EventType{EventQuoteUpserted, EventQuoteUpserted, EventTradeExecuted}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("events = %v, want %v", types, want)
		}
	}
	if tr := pub.events[2].Trade; tr == nil || tr.ID != res.ID {
		t.Fatalf("trade event does not carry the result")
	}
}

func TestManagerRemovals(t *testing.T) {
	mgr, _, pub := newTestManager()
	a := newTestQuote("SEC1", "1", 10)
	b := newTestQuote("SEC2", "1", 10)
	mgr.AddOrUpdateQuote(a)
	mgr.AddOrUpdateQuote(b)

	mgr.RemoveQuote(a.ID)
	mgr.RemoveQuote(a.ID) // no-op
	if got := mgr.LiveQuotes("SEC1"); len(got) != 0 {
		t.Fatalf("quote not removed")
	}
	if got := mgr.LiveQuotes("SEC2"); len(got) != 1 {
		t.Fatalf("other symbol touched")
	}

	mgr.RemoveAllQuotes("SEC2")
	mgr.RemoveAllQuotes("SEC2") // no-op
	if _, ok := mgr.GetBestQuoteWithAvailableVolume("SEC2"); ok {
		t.Fatalf("expected no quotes after clear")
	}

	last := pub.events[len(pub.events)-1]
	if last.Type != EventQuotesCleared || last.Symbol != "SEC2" {
		t.Fatalf("unexpected last event %+v", last)
	}
	if removed := pub.events[2]; removed.Type != EventQuoteRemoved || removed.QuoteID != a.ID || removed.Symbol != "SEC1" {
		t.Fatalf("unexpected remove event %+v", removed)
	}
	if len(pub.events) != 4 {
		t.Fatalf("no-ops should not publish, got %d events", len(pub.events))
	}
}

func TestManagerConcurrentMixedOperations(t *testing.T) {
	mgr, _, _ := newTestManager()

	const symbols = 4
	var g errgroup.Group
	for i := range 200 {
		sym := "SEC" + decimal.NewFromInt(int64(i%symbols)).String()
		g.Go(func() error {
			q := newTestQuote(sym, "1", 10)
			mgr.AddOrUpdateQuote(q)
			mgr.ExecuteTrade(sym, 5)
			mgr.GetBestQuoteWithAvailableVolume(sym)
			if i%10 == 0 {
				mgr.RemoveQuote(q.ID)
			}
			if i%50 == 0 {
				mgr.RemoveAllQuotes(sym)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	for _, sym := range mgr.Symbols() {
		for _, q := range mgr.LiveQuotes(sym) {
			if q.AvailableVolume > 10 {
				t.Fatalf("volume grew: %+v", q)
			}
		}
	}
}
