package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"TradeSim/internal/domain/models"
)

func TestFetchParsesProxyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/market-data" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req quoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Market != "international" {
			t.Errorf("expected market international, got %q", req.Market)
		}
		_ = json.NewEncoder(w).Encode(quoteResponse{
			Success: true,
			Data: map[string]models.PriceTick{
				"AAPL": {Symbol: "AAPL", Price: 210.5, ChangePercent: 1.1, Currency: "USD"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, WithCasablancaMock(false), WithTimeout(2*time.Second))
	ticks, err := c.Fetch(context.Background(), "international", []string{"AAPL"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	tk, ok := ticks["AAPL"]
	if !ok || tk.Price != 210.5 {
		t.Fatalf("unexpected ticks %+v", ticks)
	}
}

func TestFetchErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(quoteResponse{Success: false, Error: "upstream down"})
	}))
	defer srv.Close()

	c := New(srv.URL, WithCasablancaMock(false))
	if _, err := c.Fetch(context.Background(), "international", nil); err == nil {
		t.Fatalf("expected envelope error")
	}
}

func TestFetchFallsBackToMockedVenue(t *testing.T) {
	// Unreachable proxy: mocked Casablanca quotes keep the venue alive.
	c := New("http://127.0.0.1:1", WithCasablancaMock(true), WithTimeout(200*time.Millisecond))
	ticks, err := c.Fetch(context.Background(), "morocco", nil)
	if err != nil {
		t.Fatalf("expected mock fallback, got %v", err)
	}
	if len(ticks) != len(casablancaStocks) {
		t.Fatalf("expected %d mocked quotes, got %d", len(casablancaStocks), len(ticks))
	}
	iam, ok := ticks["IAM.MA"]
	if !ok {
		t.Fatalf("expected IAM.MA in mocked quotes")
	}
	if iam.Price < 124.5 || iam.Price > 126.5 {
		t.Fatalf("mocked IAM.MA price out of band: %v", iam.Price)
	}
	if iam.Currency != "MAD" {
		t.Fatalf("expected MAD currency, got %q", iam.Currency)
	}
}

func TestFetchNoMockSurfacesTransportError(t *testing.T) {
	c := New("http://127.0.0.1:1", WithCasablancaMock(false), WithTimeout(200*time.Millisecond))
	if _, err := c.Fetch(context.Background(), "morocco", nil); err == nil {
		t.Fatalf("expected transport error without mock")
	}
}

func TestFetchMergesMockForMissingSymbols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(quoteResponse{
			Success: true,
			Data: map[string]models.PriceTick{
				"IAM.MA": {Symbol: "IAM.MA", Price: 126.0, Currency: "MAD"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, WithCasablancaMock(true))
	ticks, err := c.Fetch(context.Background(), "morocco", nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	// Real quote wins over the mock for the same symbol.
	if ticks["IAM.MA"].Price != 126.0 {
		t.Fatalf("proxy quote must win, got %v", ticks["IAM.MA"].Price)
	}
	if _, ok := ticks["ATW.MA"]; !ok {
		t.Fatalf("expected mock to fill symbols the proxy omitted")
	}
}
