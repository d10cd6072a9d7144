package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestMarketFetchNoSymbols(t *testing.T) {
	m := NewMarket(MarketOptions{}, noopLogger())
	if _, err := m.FetchPrices(context.Background()); err == nil {
		t.Fatal("expected error when no symbols configured")
	}
}

func TestMarketFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-CMC_PRO_API_KEY") != "key" {
			t.Fatalf("missing api key header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"BTC":{"quote":{"USD":{
			"price": 64250.5,
			"volume_24h": 31e9,
			"market_cap": 1.2e12,
			"percent_change_24h": -2.4,
			"last_updated": "2026-08-29T12:05:00Z"
		}}}}}`))
	}))
	defer srv.Close()

	m := NewMarket(MarketOptions{
		BaseURL: srv.URL,
		APIKey:  "key",
		Symbols: []string{"BTC"},
		Timeout: time.Second,
	}, noopLogger())

	points, err := m.FetchPrices(context.Background())
	if err != nil {
		t.Fatalf("FetchPrices failed: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}

	p := points[0]
	if p.Symbol != "BTC" {
		t.Fatalf("unexpected symbol %q", p.Symbol)
	}
	if p.Close.InexactFloat64() != 64250.5 {
		t.Fatalf("unexpected close %s", p.Close)
	}
	if p.PriceChange24h != -2.4 {
		t.Fatalf("unexpected 24h change %v", p.PriceChange24h)
	}
	want := time.Date(2026, 8, 29, 12, 5, 0, 0, time.UTC)
	if !p.Timestamp.Equal(want) {
		t.Fatalf("unexpected timestamp %s", p.Timestamp)
	}
}

func TestMarketFetchErrorTaxonomy(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusBadGateway, ErrUnavailable},
		{http.StatusBadRequest, ErrMalformedResponse},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		m := NewMarket(MarketOptions{
			BaseURL: srv.URL,
			Symbols: []string{"BTC"},
			Timeout: time.Second,
		}, noopLogger())

		_, err := m.FetchPrices(context.Background())
		srv.Close()

		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: got %v, want %v", tc.status, err, tc.want)
		}
	}
}

func TestMarketFetchMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	m := NewMarket(MarketOptions{
		BaseURL: srv.URL,
		Symbols: []string{"BTC"},
		Timeout: time.Second,
	}, noopLogger())

	if _, err := m.FetchPrices(context.Background()); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected malformed response error, got %v", err)
	}
}

func TestMarketFetchHistorical(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("symbol") != "BTC" || q.Get("interval") != "1h" {
			t.Fatalf("unexpected query %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"quotes":[
			{"time_open":"2026-08-01T00:00:00Z","quote":{"USD":{
				"open":60000,"high":60500,"low":59800,"close":60200,
				"volume":1e9,"market_cap":1.1e12}}},
			{"time_open":"2026-08-01T01:00:00Z","quote":{"USD":{
				"open":60200,"high":60400,"low":60000,"close":60100,
				"volume":9e8,"market_cap":1.1e12}}}
		]}}`))
	}))
	defer srv.Close()

	m := NewMarket(MarketOptions{
		BaseURL: srv.URL,
		Symbols: []string{"BTC"},
		Timeout: time.Second,
	}, noopLogger())

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	points, err := m.FetchHistorical(context.Background(), "BTC", from, from.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("FetchHistorical failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[0].Symbol != "BTC" || !points[0].Timestamp.Equal(from) {
		t.Fatalf("unexpected first point %+v", points[0])
	}
	if points[1].Close.InexactFloat64() != 60100 {
		t.Fatalf("unexpected close %s", points[1].Close)
	}
}

func TestMarketFetchHistoricalRequiresSymbol(t *testing.T) {
	m := NewMarket(MarketOptions{}, noopLogger())
	if _, err := m.FetchHistorical(context.Background(), "", time.Now().Add(-time.Hour), time.Now()); err == nil {
		t.Fatal("expected error for empty symbol")
	}
}
