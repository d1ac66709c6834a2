package oracle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"solana-perp-engine/internal/domain"
)

const (
	feedSOL  = "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d"
	feedUSDC = "eaa020c61cc479712813461ce153894a96a6c00b21ed0cfc2798d1f9a9e9c94a"
)

func testTokens() []domain.Token {
	return []domain.Token{
		{Symbol: "SOL", Mint: "So11111111111111111111111111111111111111112", Decimals: 9, FeedID: feedSOL},
		{Symbol: "USDC", Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6, FeedID: feedUSDC},
	}
}

func feedJSON(id, price, ema string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"price": {"price": %q, "conf": "120000", "expo": -8, "publish_time": 1700000000},
		"ema_price": {"price": %q, "conf": "130000", "expo": -8, "publish_time": 1700000000}
	}`, id, price, ema)
}

func TestGetLatestPrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/updates/price/latest" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		ids := r.URL.Query()["ids[]"]
		if len(ids) != 2 {
			t.Errorf("requested feeds = %d, want 2", len(ids))
		}
		fmt.Fprintf(w, `{"parsed": [%s, %s]}`,
			feedJSON(feedSOL, "15000000000", "14900000000"),
			feedJSON(feedUSDC, "100000000", "100000000"))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	snap, err := client.GetLatestPrices(context.Background(), testTokens())
	if err != nil {
		t.Fatalf("GetLatestPrices: %v", err)
	}

	sol, err := snap.Get("SOL")
	if err != nil {
		t.Fatalf("Get SOL: %v", err)
	}
	if sol.Price != 15_000_000_000 || sol.EMAPrice != 14_900_000_000 {
		t.Errorf("SOL reading = %d/%d", sol.Price, sol.EMAPrice)
	}
	if sol.Exponent != -8 || sol.Confidence != 120_000 {
		t.Errorf("SOL expo/conf = %d/%d", sol.Exponent, sol.Confidence)
	}

	usd, err := sol.Usd6()
	if err != nil {
		t.Fatalf("Usd6: %v", err)
	}
	if usd != 150_000_000 {
		t.Errorf("SOL usd6 = %d, want 150000000", usd)
	}
	ema, err := sol.EMAUsd6()
	if err != nil {
		t.Fatalf("EMAUsd6: %v", err)
	}
	if ema != 149_000_000 {
		t.Errorf("SOL ema usd6 = %d, want 149000000", ema)
	}
}

func TestGetLatestPrices_PartialSnapshotIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"parsed": [%s]}`, feedJSON(feedSOL, "15000000000", "14900000000"))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.GetLatestPrices(context.Background(), testTokens())
	if !errors.Is(err, ErrFeedMissing) {
		t.Fatalf("expected ErrFeedMissing, got %v", err)
	}
	if !strings.Contains(err.Error(), "USDC") {
		t.Errorf("error should name the missing token: %v", err)
	}
}

func TestGetLatestPrices_EmptyRequest(t *testing.T) {
	client := NewClient("http://unused.invalid")
	snap, err := client.GetLatestPrices(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetLatestPrices: %v", err)
	}
	if len(snap) != 0 {
		t.Errorf("expected empty snapshot, got %d entries", len(snap))
	}
}

func TestGetLatestPrices_RetriesRateLimit(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprintf(w, `{"parsed": [%s, %s]}`,
			feedJSON(feedSOL, "15000000000", "14900000000"),
			feedJSON(feedUSDC, "100000000", "100000000"))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.retryDelay = time.Millisecond

	if _, err := client.GetLatestPrices(context.Background(), testTokens()); err != nil {
		t.Fatalf("GetLatestPrices: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestGetLatestPrices_RetriesExhausted(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithMaxRetries(1))
	client.retryDelay = time.Millisecond

	if _, err := client.GetLatestPrices(context.Background(), testTokens()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestGetLatestPrices_MalformedPriceNotRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		fmt.Fprintf(w, `{"parsed": [%s, %s]}`,
			feedJSON(feedSOL, "not-a-number", "14900000000"),
			feedJSON(feedUSDC, "100000000", "100000000"))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.retryDelay = time.Millisecond

	if _, err := client.GetLatestPrices(context.Background(), testTokens()); err == nil {
		t.Fatal("expected parse error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRescale_Directions(t *testing.T) {
	cases := []struct {
		name  string
		value int64
		expo  int32
		want  uint64
	}{
		{"shift down", 15_000_000_000, -8, 150_000_000},
		{"already usd6", 150_000_000, -6, 150_000_000},
		{"shift up", 150, 0, 150_000_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := rescale(tc.value, tc.expo)
			if err != nil {
				t.Fatalf("rescale: %v", err)
			}
			if got != tc.want {
				t.Errorf("rescale(%d, %d) = %d, want %d", tc.value, tc.expo, got, tc.want)
			}
		})
	}

	if _, err := rescale(-1, -6); err == nil {
		t.Error("expected error for negative price")
	}
}

func TestRescale_OverflowRejected(t *testing.T) {
	cases := []struct {
		name  string
		value int64
		expo  int32
	}{
		{"huge exponent", 1, 40},
		{"large value small shift", math.MaxInt64, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got, err := rescale(tc.value, tc.expo); err == nil {
				t.Errorf("rescale(%d, %d) = %d, want overflow error", tc.value, tc.expo, got)
			}
		})
	}

	// The largest representable results still rescale exactly.
	got, err := rescale(math.MaxInt64/10, -5)
	if err != nil {
		t.Fatalf("rescale: %v", err)
	}
	if want := uint64(math.MaxInt64/10) * 10; got != want {
		t.Errorf("rescale = %d, want %d", got, want)
	}
}
