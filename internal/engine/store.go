package engine

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/skiplist"
)

// entry is a stored quote plus the sequence number it was last upserted
// with. The price and seq of an entry never change while it is indexed.
type entry struct {
	quote Quote
	seq   uint64
}

// bySeqPrice orders entries by ascending price, oldest upsert first on ties.
type bySeqPrice struct{}

var _ skiplist.Comparable = bySeqPrice{}

func (bySeqPrice) Compare(lhs, rhs interface{}) int {
	l := lhs.(*entry)
	r := rhs.(*entry)
	if c := l.quote.Price.Cmp(r.quote.Price); c != 0 {
		return c
	}
	switch {
	case l.seq < r.seq:
		return -1
	case l.seq > r.seq:
		return 1
	}
	return 0
}

func (bySeqPrice) CalcScore(key interface{}) float64 {
	return key.(*entry).quote.Price.InexactFloat64()
}

// book holds every quote of one symbol.
type book struct {
	mu     sync.Mutex
	symbol string
	byID   map[uuid.UUID]*entry
	index  *skiplist.SkipList // of *entry, ascending price then seq

	// detached is set once the book has been cleared out of the store;
	// writers holding a stale pointer must go back to the store.
	detached bool
}

func newBook(symbol string) *book {
	return &book{
		symbol: symbol,
		byID:   make(map[uuid.UUID]*entry),
		index:  skiplist.New(bySeqPrice{}),
	}
}

func (b *book) put(q Quote, seq uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.detached {
		return false
	}
	if old, ok := b.byID[q.ID]; ok {
		b.index.Remove(old)
	}
	e := &entry{quote: q, seq: seq}
	b.byID[q.ID] = e
	b.index.Set(e, e)
	return true
}

func (b *book) remove(id uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.byID[id]
	if !ok {
		return false
	}
	b.index.Remove(e)
	delete(b.byID, id)
	return true
}

// walkLive calls fn for each live entry in ascending price order until fn
// returns false. Caller must hold b.mu.
func (b *book) walkLive(now time.Time, fn func(e *entry) bool) {
	for el := b.index.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if !e.quote.Live(now) {
			continue
		}
		if !fn(e) {
			return
		}
	}
}

// Store keeps quotes grouped by symbol. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	books map[string]*book

	seq atomic.Uint64
}

func NewStore() *Store {
	return &Store{books: make(map[string]*book)}
}

// lookup returns the symbol's book or nil.
func (s *Store) lookup(symbol string) *book {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.books[symbol]
}

// bookFor returns the symbol's book, creating it if absent. Creation happens
// once even when several writers race on the first quote of a symbol.
func (s *Store) bookFor(symbol string) *book {
	if b := s.lookup(symbol); b != nil {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.books[symbol]; ok {
		return b
	}
	b := newBook(symbol)
	s.books[symbol] = b
	return b
}

func (s *Store) snapshotBooks() []*book {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*book, 0, len(s.books))
	for _, b := range s.books {
		out = append(out, b)
	}
	return out
}

// Upsert inserts q or replaces every field of the quote with the same id.
// An id lives under one symbol only, so a quote re-sent under another
// symbol is moved there.
func (s *Store) Upsert(q Quote) {
	for _, b := range s.snapshotBooks() {
		if b.symbol != q.Symbol && b.remove(q.ID) {
			break
		}
	}

	for {
		if s.bookFor(q.Symbol).put(q, s.seq.Add(1)) {
			return
		}
	}
}

// RemoveAllForSymbol detaches the symbol's whole collection. It reports
// whether the symbol had one.
func (s *Store) RemoveAllForSymbol(symbol string) bool {
	s.mu.Lock()
	b, ok := s.books[symbol]
	delete(s.books, symbol)
	s.mu.Unlock()

	if !ok {
		return false
	}
	b.mu.Lock()
	b.detached = true
	b.mu.Unlock()
	return true
}

// RemoveByID deletes the quote with the given id from whichever symbol
// holds it and returns that symbol.
func (s *Store) RemoveByID(id uuid.UUID) (string, bool) {
	for _, b := range s.snapshotBooks() {
		if b.remove(id) {
			return b.symbol, true
		}
	}
	return "", false
}

// Get returns a copy of one stored quote, live or not.
func (s *Store) Get(symbol string, id uuid.UUID) (Quote, bool) {
	b := s.lookup(symbol)
	if b == nil {
		return Quote{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.byID[id]
	if !ok {
		return Quote{}, false
	}
	return e.quote, true
}

// LiveQuotesFor returns copies of the symbol's live quotes, cheapest first.
// Equal prices keep upsert order. The result is never nil.
func (s *Store) LiveQuotesFor(symbol string, now time.Time) []Quote {
	out := make([]Quote, 0)
	b := s.lookup(symbol)
	if b == nil {
		return out
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.walkLive(now, func(e *entry) bool {
		out = append(out, e.quote)
		return true
	})
	return out
}

// Symbols lists every symbol that currently has a collection, sorted.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.books))
	for sym := range s.books {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
