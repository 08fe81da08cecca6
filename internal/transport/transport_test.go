package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestResolveSelectsByConfiguration(t *testing.T) {
	if _, ok := Resolve(Options{}).(*Direct); !ok {
		t.Error("no proxy configured must resolve to the direct transport")
	}
	if _, ok := Resolve(Options{ProxyBaseURL: "http://relay.local/fetch"}).(*Proxy); !ok {
		t.Error("a relay base URL must resolve to the proxy transport")
	}
}

func TestDirectReturnsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != userAgent {
			t.Errorf("user agent = %q", got)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	d := NewDirect(Options{RequestsPerSec: 100})
	resp, err := d.Request(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("status = %d", resp.Status)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("body = %s", resp.Body)
	}
}

func TestDirectPassesThroughClientErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewDirect(Options{RequestsPerSec: 100})
	resp, err := d.Request(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("429 must come back as a response, got error %v", err)
	}
	if resp.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d", resp.Status)
	}
	if calls != 1 {
		t.Errorf("4xx must not be retried, got %d calls", calls)
	}
}

func TestDirectRetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	d := NewDirect(Options{RequestsPerSec: 100})
	resp, err := d.Request(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.Status != http.StatusOK || string(resp.Body) != "recovered" {
		t.Errorf("expected recovery after retries, got %d %s", resp.Status, resp.Body)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestProxyRelaysTargetAsQueryParam(t *testing.T) {
	const target = "https://query1.finance.yahoo.com/v8/finance/chart/AAPL?period1=1&period2=2"

	var gotTarget string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTarget = r.URL.Query().Get("url")
		w.Write([]byte("relayed"))
	}))
	defer srv.Close()

	p := NewProxy(Options{ProxyBaseURL: srv.URL + "/fetch", RequestsPerSec: 100})
	resp, err := p.Request(context.Background(), target)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if string(resp.Body) != "relayed" {
		t.Errorf("body = %s", resp.Body)
	}
	if gotTarget != target {
		t.Errorf("relayed target = %q, want %q", gotTarget, target)
	}
	if _, err := url.Parse(gotTarget); err != nil {
		t.Errorf("relayed target does not survive a round trip: %v", err)
	}
}

func TestDirectHonorsCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDirect(Options{RequestsPerSec: 100})
	if _, err := d.Request(ctx, srv.URL); err == nil {
		t.Error("cancelled context must fail the request")
	}
}
