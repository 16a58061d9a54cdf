package idempotency

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestMiddleware(t *testing.T, handler http.HandlerFunc) (http.Handler, *int) {
	t.Helper()
	store := NewMemoryStore(1000, time.Hour)
	callCount := 0
	wrapped := Middleware(store, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		handler(w, r)
	}))
	return wrapped, &callCount
}

func TestMiddlewareNoKeyPassesThrough(t *testing.T) {
	handler, callCount := newTestMiddleware(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("success"))
	})

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "success" {
		t.Errorf("expected 'success', got %s", rec.Body.String())
	}
	if *callCount != 1 {
		t.Errorf("expected handler called once, got %d", *callCount)
	}
}

func TestMiddlewareFirstRequestRunsHandler(t *testing.T) {
	handler, callCount := newTestMiddleware(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("first request"))
	})

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"a":1}`))
	req.Header.Set(HeaderKey, "key-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "first request" {
		t.Fatalf("unexpected response: %d %q", rec.Code, rec.Body.String())
	}
	if *callCount != 1 {
		t.Errorf("expected handler called once, got %d", *callCount)
	}
}

func TestMiddlewareReplaysCachedResponseForMatchingBody(t *testing.T) {
	handler, callCount := newTestMiddleware(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("original response"))
	})

	body := `{"amount":500}`
	req1 := httptest.NewRequest(http.MethodPost, "/payments/execute", strings.NewReader(body))
	req1.Header.Set(HeaderKey, "key-2")
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)

	req2 := httptest.NewRequest(http.MethodPost, "/payments/execute", strings.NewReader(body))
	req2.Header.Set(HeaderKey, "key-2")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)

	if rec2.Code != http.StatusCreated {
		t.Errorf("expected replayed status 201, got %d", rec2.Code)
	}
	if rec2.Body.String() != "original response" {
		t.Errorf("expected replayed body preserved, got %q", rec2.Body.String())
	}
	if *callCount != 1 {
		t.Errorf("expected handler invoked exactly once across both calls, got %d", *callCount)
	}
}

func TestMiddlewareConflictsOnDifferentBodySameKey(t *testing.T) {
	handler, callCount := newTestMiddleware(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("response"))
	})

	req1 := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"amount":1}`))
	req1.Header.Set(HeaderKey, "key-3")
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)

	req2 := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"amount":2}`))
	req2.Header.Set(HeaderKey, "key-3")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)

	if rec2.Code != http.StatusConflict {
		t.Errorf("expected 409 on conflicting replay body, got %d", rec2.Code)
	}
	if *callCount != 1 {
		t.Errorf("expected handler not re-invoked on conflict, got %d calls", *callCount)
	}
}

func TestMiddlewareDifferentKeysBothExecute(t *testing.T) {
	handler, callCount := newTestMiddleware(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("response"))
	})

	req1 := httptest.NewRequest(http.MethodPost, "/test", nil)
	req1.Header.Set(HeaderKey, "key-4a")
	handler.ServeHTTP(httptest.NewRecorder(), req1)

	req2 := httptest.NewRequest(http.MethodPost, "/test", nil)
	req2.Header.Set(HeaderKey, "key-4b")
	handler.ServeHTTP(httptest.NewRecorder(), req2)

	if *callCount != 2 {
		t.Errorf("expected handler called twice for distinct keys, got %d", *callCount)
	}
}

func TestMiddlewarePreservesResponseHeaders(t *testing.T) {
	handler, _ := newTestMiddleware(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Custom-Header", "custom-value")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	req1 := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("body"))
	req1.Header.Set(HeaderKey, "key-5")
	handler.ServeHTTP(httptest.NewRecorder(), req1)

	req2 := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("body"))
	req2.Header.Set(HeaderKey, "key-5")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)

	if rec2.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected Content-Type preserved, got %q", rec2.Header().Get("Content-Type"))
	}
	if rec2.Header().Get("X-Custom-Header") != "custom-value" {
		t.Errorf("expected custom header preserved, got %q", rec2.Header().Get("X-Custom-Header"))
	}
}

func TestMiddlewareZeroTTLUsesDefault(t *testing.T) {
	store := NewMemoryStore(1000, time.Hour)
	handler := Middleware(store, 0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("response"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	req.Header.Set(HeaderKey, "key-6")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}
