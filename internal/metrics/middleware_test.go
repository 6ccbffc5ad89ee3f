package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Post("/v1/chat", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"text":"ok"}`))
	})
	r.Route("/v1/sessions", func(r chi.Router) {
		r.Get("/{id}", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	})
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	return r
}

func serve(h http.Handler, method, path string) int {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, http.NoBody))
	return rr.Code
}

func TestMiddleware_ImplicitOK(t *testing.T) {
	h := newRouter()
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "/v1/chat", "200"))

	if code := serve(h, "POST", "/v1/chat"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "/v1/chat", "200"))
	if after-before != 1 {
		t.Errorf("expected one counted request, got %v", after-before)
	}
	if testutil.CollectAndCount(httpRequestDuration) == 0 {
		t.Error("expected duration observations")
	}
}

func TestMiddleware_RoutePatternLabels(t *testing.T) {
	h := newRouter()

	tests := []struct {
		method, path, route, status string
	}{
		{"GET", "/v1/sessions/abc", "/v1/sessions/{id}", "404"},
		{"GET", "/v1/sessions/def", "/v1/sessions/{id}", "404"},
		{"GET", "/boom", "/boom", "500"},
		{"GET", "/nowhere", unmatchedRoute, "404"},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(tc.method, tc.route, tc.status))
			serve(h, tc.method, tc.path)
			after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(tc.method, tc.route, tc.status))
			if after-before != 1 {
				t.Errorf("expected %s %s counted under %q/%s", tc.method, tc.path, tc.route, tc.status)
			}
		})
	}
}

func TestMiddleware_InFlightReturnsToZero(t *testing.T) {
	h := newRouter()
	base := testutil.ToFloat64(httpInFlight)

	var during float64
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/slow", func(w http.ResponseWriter, _ *http.Request) {
		during = testutil.ToFloat64(httpInFlight)
		w.WriteHeader(http.StatusNoContent)
	})
	serve(r, "GET", "/slow")
	serve(h, "POST", "/v1/chat")

	if during != base+1 {
		t.Errorf("expected in-flight %v during request, got %v", base+1, during)
	}
	if got := testutil.ToFloat64(httpInFlight); got != base {
		t.Errorf("expected in-flight back to %v, got %v", base, got)
	}
}

func TestRouteLabel_NoRouteContext(t *testing.T) {
	req := httptest.NewRequest("GET", "/x", http.NoBody)
	if got := routeLabel(req); got != unmatchedRoute {
		t.Errorf("expected %q, got %q", unmatchedRoute, got)
	}
}
