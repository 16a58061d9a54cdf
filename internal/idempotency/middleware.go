package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

const (
	// HeaderKey is the standard idempotency key header, per spec.md §6:
	// retries with the same key and request body return the stored
	// response instead of re-running the handler.
	HeaderKey = "Idempotency-Key"

	// DefaultTTL is the default cache duration for idempotent responses.
	DefaultTTL = 24 * time.Hour
)

// HTTPResponse is the cached response RunIdempotent stores for one
// (method, path, Idempotency-Key) triple.
type HTTPResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// bufferedResponseWriter captures a handler's response in memory instead
// of writing it straight to the client, so Middleware can defer the
// actual write until after RunIdempotent has resolved (fresh run or
// cached replay) to a single HTTPResponse.
type bufferedResponseWriter struct {
	header     http.Header
	statusCode int
	body       bytes.Buffer
}

func newBufferedResponseWriter() *bufferedResponseWriter {
	return &bufferedResponseWriter{header: make(http.Header), statusCode: http.StatusOK}
}

func (rw *bufferedResponseWriter) Header() http.Header { return rw.header }

func (rw *bufferedResponseWriter) WriteHeader(statusCode int) { rw.statusCode = statusCode }

func (rw *bufferedResponseWriter) Write(b []byte) (int, error) { return rw.body.Write(b) }

// Middleware wraps next so that a request carrying an Idempotency-Key
// header runs at most once per (method, path, key, body) combination.
// A differing body reusing the same key is rejected as a conflict; a
// matching replay returns the first call's stored response untouched,
// without invoking next a second time.
func Middleware(store Store, ttl time.Duration) func(http.Handler) http.Handler {
	if ttl == 0 {
		ttl = DefaultTTL
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := r.Header.Get(HeaderKey)
			if rawKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body.Close()

			op := r.Method + ":" + r.URL.Path

			resp, err := RunIdempotent(r.Context(), store, op, rawKey, bodyBytes, ttl, func(ctx context.Context) (HTTPResponse, error) {
				rw := newBufferedResponseWriter()
				req := r.Clone(ctx)
				req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
				next.ServeHTTP(rw, req)
				return HTTPResponse{StatusCode: rw.statusCode, Header: rw.header, Body: rw.body.Bytes()}, nil
			})

			switch {
			case errors.Is(err, ErrConflict):
				http.Error(w, "idempotency key reused with a different request body", http.StatusConflict)
				return
			case errors.Is(err, ErrInProgress):
				http.Error(w, "a request with this idempotency key is still being processed", http.StatusConflict)
				return
			case err != nil:
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			for k, values := range resp.Header {
				for _, v := range values {
					w.Header().Add(k, v)
				}
			}
			statusCode := resp.StatusCode
			if statusCode == 0 {
				statusCode = http.StatusOK
			}
			w.WriteHeader(statusCode)
			_, _ = w.Write(resp.Body)
		})
	}
}
