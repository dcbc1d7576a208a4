package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/hakimelghazi/quoter/internal/engine"
)

// QuoteFeed fetches the current quotes of a symbol from an upstream provider.
type QuoteFeed interface {
	Quotes(ctx context.Context, symbol string) ([]engine.Quote, error)
}

// Upserter is where fetched quotes are sent; *engine.Manager satisfies it.
type Upserter interface {
	AddOrUpdateQuote(q engine.Quote)
}

// HTTPFeed pulls quotes from GET {baseURL}/quotes?symbol=SYM, which must
// answer with a JSON array of quotes.
type HTTPFeed struct {
	client  *http.Client
	baseURL string
}

func NewHTTPFeed(baseURL string, timeout time.Duration) *HTTPFeed {
	return &HTTPFeed{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (f *HTTPFeed) Quotes(ctx context.Context, symbol string) ([]engine.Quote, error) {
	u := fmt.Sprintf("%s/quotes?symbol=%s", f.baseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote feed: unexpected status %d", resp.StatusCode)
	}

	var quotes []engine.Quote
	if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil {
		return nil, fmt.Errorf("quote feed: decode: %w", err)
	}
	return quotes, nil
}

// StartQuoteUpdater periodically pulls quotes for the given symbols and
// upserts them until ctx is cancelled.
func StartQuoteUpdater(
	ctx context.Context,
	feed QuoteFeed,
	dst Upserter,
	symbols []string,
	interval time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	refreshOnce(ctx, feed, dst, symbols, log)

	for {
		select {
		case <-ticker.C:
			refreshOnce(ctx, feed, dst, symbols, log)
		case <-ctx.Done():
			return
		}
	}
}

func refreshOnce(ctx context.Context, feed QuoteFeed, dst Upserter, symbols []string, log *zap.Logger) {
	for _, sym := range symbols {
		quotes, err := feed.Quotes(ctx, sym)
		if err != nil {
			log.Warn("quote update failed", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		accepted := 0
		for _, q := range quotes {
			// the feed may only speak for the symbol it was asked about
			if q.Symbol != sym || q.Price.IsNegative() {
				continue
			}
			dst.AddOrUpdateQuote(q)
			accepted++
		}
		log.Debug("quote update", zap.String("symbol", sym), zap.Int("received", len(quotes)), zap.Int("accepted", accepted))
	}
}
