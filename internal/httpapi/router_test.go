package httpapi

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/destiny-evidence/reference-repository/pkg/capability"
)

func TestCORSHandlerUsesAllowedOriginsEnv(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://example.org,https://other.example.org")

	opts := corsOptions()
	if len(opts.AllowedOrigins) != 2 || opts.AllowedOrigins[0] != "https://example.org" {
		t.Fatalf("unexpected allowed origins: %+v", opts.AllowedOrigins)
	}
}

func TestCORSHandlerDefaultsToWildcard(t *testing.T) {
	os.Unsetenv("CORS_ALLOWED_ORIGINS")

	opts := corsOptions()
	if len(opts.AllowedOrigins) != 1 || opts.AllowedOrigins[0] != "*" {
		t.Fatalf("expected wildcard default, got %+v", opts.AllowedOrigins)
	}
}

func TestNewRouterMountsReferencesSearch(t *testing.T) {
	r := NewRouter(Dependencies{
		Store: fakeReferenceStoreForRouter{},
	})

	req := httptest.NewRequest(http.MethodGet, "/references/search/?q=test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code == http.StatusNotFound {
		t.Fatalf("expected /references/search/ to be mounted, got 404")
	}
}

func TestNewRouterMountsImports(t *testing.T) {
	r := NewRouter(Dependencies{
		Store: fakeReferenceStoreForRouter{},
	})

	req := httptest.NewRequest(http.MethodPost, "/imports/records/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code == http.StatusNotFound {
		t.Fatalf("expected /imports/records/ to be mounted, got 404")
	}
}

// fakeReferenceStoreForRouter is a minimal stand-in satisfying
// capability.ReferenceStore for router-construction tests; methods these
// tests' request paths never reach are left unimplemented since NewRouter
// itself never calls them at mount time.
type fakeReferenceStoreForRouter struct {
	capability.ReferenceStore
}
