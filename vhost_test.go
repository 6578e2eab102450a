package vetis

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/vetis/vetis/config"
	"github.com/vetis/vetis/verrors"
)

func newTestVHost(t *testing.T) *VirtualHost {
	t.Helper()
	cfg, err := config.NewVirtualHostConfig().Hostname("example.com").Port(8080).Build()
	if err != nil {
		t.Fatal(err)
	}
	return NewVirtualHost(cfg)
}

func TestVirtualHostLongestPrefixWins(t *testing.T) {
	vh := newTestVHost(t)
	vh.AddPath(NewHandlerPath("/api", func(r *http.Request) (*Response, error) {
		return TextResponse(http.StatusOK, "short"), nil
	}))
	vh.AddPath(NewHandlerPath("/api/v2", func(r *http.Request) (*Response, error) {
		return TextResponse(http.StatusOK, "long"), nil
	}))

	resp := vh.Route(httptest.NewRequest(http.MethodGet, "/api/v2/widgets", nil))
	if body := bodyString(t, resp); body != "long" {
		t.Fatalf("body = %q, want %q", body, "long")
	}

	resp = vh.Route(httptest.NewRequest(http.MethodGet, "/api/widgets", nil))
	if body := bodyString(t, resp); body != "short" {
		t.Fatalf("body = %q, want %q", body, "short")
	}
}

func TestVirtualHostNoMatchIs404(t *testing.T) {
	vh := newTestVHost(t)
	resp := vh.Route(httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("StatusCode = %d, want 404", resp.StatusCode)
	}
}

func TestVirtualHostCustomStatusPage(t *testing.T) {
	dir := t.TempDir()
	page := filepath.Join(dir, "404.html")
	if err := os.WriteFile(page, []byte("<h1>missing</h1>"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.NewVirtualHostConfig().Hostname("example.com").Port(8080).StatusPage(404, page).Build()
	if err != nil {
		t.Fatal(err)
	}
	vh := NewVirtualHost(cfg)

	resp := vh.Route(httptest.NewRequest(http.MethodGet, "/missing", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("StatusCode = %d, want 404", resp.StatusCode)
	}
	if body := bodyString(t, resp); body != "<h1>missing</h1>" {
		t.Fatalf("body = %q", body)
	}
}

func TestVirtualHostErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid path", verrors.NewInvalidPathError("nope"), http.StatusNotFound},
		{"file missing", verrors.NewFileError("nope"), http.StatusNotFound},
		{"auth rejected", verrors.NewAuthError("nope"), http.StatusUnauthorized},
		{"proxy failure", verrors.NewProxyError("nope"), http.StatusBadGateway},
		{"handler failure", verrors.NewHandlerError("nope"), http.StatusInternalServerError},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			vh := newTestVHost(t)
			vh.AddPath(NewHandlerPath("/x", func(r *http.Request) (*Response, error) {
				return nil, c.err
			}))
			resp := vh.Route(httptest.NewRequest(http.MethodGet, "/x", nil))
			if resp.StatusCode != c.want {
				t.Fatalf("StatusCode = %d, want %d", resp.StatusCode, c.want)
			}
		})
	}
}

func bodyString(t *testing.T, resp *Response) string {
	t.Helper()
	rec := httptest.NewRecorder()
	if err := resp.WriteTo(rec); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	return rec.Body.String()
}
