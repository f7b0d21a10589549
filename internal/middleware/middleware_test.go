package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"orderline-be/internal/auth"
	"orderline-be/internal/logger"
	"orderline-be/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := logger.Replace(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestAuthenticate(t *testing.T) {
	gate := auth.NewJWTGate("test-secret")
	mw := Authenticate(gate)

	t.Run("Missing token passes through anonymously", func(t *testing.T) {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok := auth.PrincipalFrom(r.Context())
			assert.False(t, ok, "context should not contain a principal")
			w.WriteHeader(http.StatusOK)
		})

		w := httptest.NewRecorder()
		mw(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/1", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Invalid token is ignored", func(t *testing.T) {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok := auth.PrincipalFrom(r.Context())
			assert.False(t, ok)
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/orders/1", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		w := httptest.NewRecorder()
		mw(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Valid token attaches principal", func(t *testing.T) {
		token, err := gate.Issue(auth.Principal{UserID: "user-1", Role: auth.RoleCustomer}, time.Hour)
		require.NoError(t, err)

		var got *auth.Principal
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = auth.PrincipalFrom(r.Context())
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/orders/my-orders", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		mw(next).ServeHTTP(httptest.NewRecorder(), req)

		require.NotNil(t, got)
		assert.Equal(t, "user-1", got.UserID)
	})

	t.Run("Cookie token attaches principal", func(t *testing.T) {
		token, err := gate.Issue(auth.Principal{UserID: "user-2", Role: auth.RoleAdmin}, time.Hour)
		require.NoError(t, err)

		var got *auth.Principal
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = auth.PrincipalFrom(r.Context())
		})

		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		req.AddCookie(&http.Cookie{Name: auth.AccessTokenCookie, Value: token})
		mw(next).ServeHTTP(httptest.NewRecorder(), req)

		require.NotNil(t, got)
		assert.True(t, got.IsAdmin())
	})
}

func TestCORS(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	handler := CORS("http://localhost:3000")(next)

	t.Run("Preflight stops here", func(t *testing.T) {
		called = false
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/orders", nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
		assert.False(t, called)
	})

	t.Run("Regular request reaches handler", func(t *testing.T) {
		called = false
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/1", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.True(t, called)
	})
}

func TestRecover(t *testing.T) {
	logs := observeLogs(t)

	handler := Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/1", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"api_error"`)
	assert.NotContains(t, w.Body.String(), "boom")
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestAccessLog(t *testing.T) {
	logs := observeLogs(t)
	m := metrics.New()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	handler := AccessLog(mux, m)(mux)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/42", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, "GET /orders/{id}", first["route"])
	assert.Equal(t, int64(http.StatusNotFound), first["status"])
	assert.Equal(t, "/orders/42", first["path"])
	assert.Equal(t, unmatchedRoute, entries[1].ContextMap()["route"])

	n, err := testutil.GatherAndCount(m.Registry(), "orderline_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStatusRecorder_DefaultsToOK(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	_, err := rec.Write([]byte("ok"))
	require.NoError(t, err)
	rec.WriteHeader(http.StatusTeapot)

	assert.Equal(t, http.StatusOK, rec.statusCode)
}

func TestRateLimiter(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("Burst exhausted returns 429 envelope", func(t *testing.T) {
		rl := newRateLimiter(0.001, 2, time.Now)
		handler := rl.Middleware(ok)

		codes := make([]int, 0, 3)
		for range 3 {
			req := httptest.NewRequest(http.MethodGet, "/orders/1", nil)
			req.RemoteAddr = "10.0.0.1:5555"
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			codes = append(codes, w.Code)
			if w.Code == http.StatusTooManyRequests {
				assert.Contains(t, w.Body.String(), `"rate_limit_error"`)
				assert.Equal(t, "1", w.Header().Get("Retry-After"))
			}
		}
		assert.Equal(t, []int{200, 200, 429}, codes)
	})

	t.Run("Identities have separate buckets", func(t *testing.T) {
		rl := newRateLimiter(0.001, 1, time.Now)
		handler := rl.Middleware(ok)

		send := func(mod func(*http.Request)) int {
			req := httptest.NewRequest(http.MethodGet, "/orders/1", nil)
			req.RemoteAddr = "10.0.0.2:1234"
			mod(req)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			return w.Code
		}

		assert.Equal(t, http.StatusOK, send(func(*http.Request) {}))
		assert.Equal(t, http.StatusTooManyRequests, send(func(*http.Request) {}))
		assert.Equal(t, http.StatusOK, send(func(r *http.Request) { r.RemoteAddr = "10.0.0.9:1234" }))
		assert.Equal(t, http.StatusOK, send(func(r *http.Request) {
			*r = *r.WithContext(auth.WithPrincipal(r.Context(), &auth.Principal{UserID: "u-1"}))
		}))
	})

	t.Run("Device header does not open a new bucket", func(t *testing.T) {
		rl := newRateLimiter(1000, 1000, time.Now)
		handler := rl.Middleware(ok)

		limited := 0
		for i := range burstStrict + 1 {
			req := httptest.NewRequest(http.MethodPost, "/orders", nil)
			req.RemoteAddr = "10.0.0.4:1"
			req.Header.Set("X-Device-ID", fmt.Sprintf("device-%d", i))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code == http.StatusTooManyRequests {
				limited++
			}
		}
		assert.Equal(t, 1, limited)
		assert.Len(t, rl.visitors, 1)
	})

	t.Run("Order creation uses the strict tier", func(t *testing.T) {
		rl := newRateLimiter(1000, 1000, time.Now)
		handler := rl.Middleware(ok)

		limited := 0
		for range burstStrict + 1 {
			req := httptest.NewRequest(http.MethodPost, "/orders", nil)
			req.RemoteAddr = "10.0.0.3:1"
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code == http.StatusTooManyRequests {
				limited++
			}
		}
		assert.Equal(t, 1, limited)
	})

	t.Run("Cleanup drops idle visitors", func(t *testing.T) {
		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		rl := newRateLimiter(10, 10, func() time.Time { return now })

		rl.getVisitor("ip:old", rl.general, rl.burst)
		now = now.Add(visitorTTL + time.Second)
		rl.getVisitor("ip:new", rl.general, rl.burst)
		rl.cleanup()

		assert.NotContains(t, rl.visitors, "ip:old")
		assert.Contains(t, rl.visitors, "ip:new")
	})

	t.Run("Close stops the loop and is idempotent", func(t *testing.T) {
		rl := NewRateLimiter(10, 10)
		rl.Close()
		rl.Close()

		select {
		case <-rl.done:
		default:
			t.Fatal("cleanup loop still running")
		}
	})
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mark("outer"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
