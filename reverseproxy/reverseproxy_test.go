package reverseproxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vetis/vetis/config"
)

func TestHandleForwardsToUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/widgets" {
			t.Errorf("upstream saw path %q, want %q", r.URL.Path, "/widgets")
		}
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("upstream body"))
	}))
	defer upstream.Close()

	cfg, err := config.NewProxyPathConfig().URI("/api").Target(upstream.URL).Build()
	if err != nil {
		t.Fatal(err)
	}
	p := New(cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/widgets", nil)
	resp, err := p.Handle(req, "/widgets")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Upstream") != "yes" {
		t.Fatal("expected upstream header to be forwarded")
	}

	rec := httptest.NewRecorder()
	resp.WriteTo(rec)
	if rec.Body.String() != "upstream body" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestHandleUnreachableUpstreamIsProxyError(t *testing.T) {
	cfg, err := config.NewProxyPathConfig().URI("/api").Target("http://127.0.0.1:1").Build()
	if err != nil {
		t.Fatal(err)
	}
	p := New(cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/widgets", nil)
	if _, err := p.Handle(req, "/widgets"); err == nil {
		t.Fatal("expected an error for an unreachable upstream")
	}
}
