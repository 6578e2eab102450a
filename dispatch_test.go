package vetis

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vetis/vetis/config"
)

func newDispatchTestVHost(t *testing.T, hostname string, port uint16) *VirtualHost {
	t.Helper()
	cfg, err := config.NewVirtualHostConfig().
		Hostname(hostname).
		Port(port).
		AddDefaultHeader("X-Served-By", "vetis").
		AddDefaultHeader("Bad Name", "value").
		Build()
	if err != nil {
		t.Fatal(err)
	}
	return NewVirtualHost(cfg)
}

func TestDispatcherRoutesByAuthorityAndPort(t *testing.T) {
	reg := newRegistry()

	vhA := newDispatchTestVHost(t, "a.example.com", 8080)
	vhA.AddPath(NewHandlerPath("/", func(r *http.Request) (*Response, error) {
		return TextResponse(http.StatusOK, "A"), nil
	}))
	reg.add(vhA)

	vhB := newDispatchTestVHost(t, "b.example.com", 8080)
	vhB.AddPath(NewHandlerPath("/", func(r *http.Request) (*Response, error) {
		return TextResponse(http.StatusOK, "B"), nil
	}))
	reg.add(vhB)

	d := &dispatcher{port: 8080, registry: reg}

	req := httptest.NewRequest(http.MethodGet, "http://a.example.com/", nil)
	req.Host = "a.example.com"
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)
	if rec.Body.String() != "A" {
		t.Fatalf("body = %q, want %q", rec.Body.String(), "A")
	}
	if rec.Header().Get("X-Served-By") != "vetis" {
		t.Fatal("expected default header to be spliced in")
	}
	if rec.Header().Get("Bad Name") != "" {
		t.Fatal("expected invalid header name to be skipped")
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected a request id header")
	}

	req2 := httptest.NewRequest(http.MethodGet, "http://b.example.com/", nil)
	req2.Host = "b.example.com"
	rec2 := httptest.NewRecorder()
	d.ServeHTTP(rec2, req2)
	if rec2.Body.String() != "B" {
		t.Fatalf("body = %q, want %q", rec2.Body.String(), "B")
	}
}

func TestDispatcherUnknownHostIs404(t *testing.T) {
	d := &dispatcher{port: 8080, registry: newRegistry()}
	req := httptest.NewRequest(http.MethodGet, "http://nowhere.example.com/", nil)
	req.Host = "nowhere.example.com"
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Code = %d, want 404", rec.Code)
	}
}

func TestDispatcherSameHostDifferentPort(t *testing.T) {
	reg := newRegistry()
	vh1 := newDispatchTestVHost(t, "example.com", 8080)
	vh1.AddPath(NewHandlerPath("/", func(r *http.Request) (*Response, error) {
		return TextResponse(http.StatusOK, "plain"), nil
	}))
	vh2 := newDispatchTestVHost(t, "example.com", 8443)
	vh2.AddPath(NewHandlerPath("/", func(r *http.Request) (*Response, error) {
		return TextResponse(http.StatusOK, "secure"), nil
	}))
	reg.add(vh1)
	reg.add(vh2)

	d8080 := &dispatcher{port: 8080, registry: reg}
	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	req.Host = "example.com"
	rec := httptest.NewRecorder()
	d8080.ServeHTTP(rec, req)
	if rec.Body.String() != "plain" {
		t.Fatalf("body = %q, want %q", rec.Body.String(), "plain")
	}

	d8443 := &dispatcher{port: 8443, registry: reg}
	rec2 := httptest.NewRecorder()
	d8443.ServeHTTP(rec2, req)
	if rec2.Body.String() != "secure" {
		t.Fatalf("body = %q, want %q", rec2.Body.String(), "secure")
	}
}
