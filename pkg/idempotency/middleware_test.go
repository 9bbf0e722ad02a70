package idempotency

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: map[string]string{}}
}

func (f *fakeClient) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeClient) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeClient) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func newHandler(t *testing.T, client Client, status int, calls *atomic.Int32) http.Handler {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := Middleware(log, NewStore(client, time.Minute), func(r *http.Request) string { return r.Header.Get("X-User-ID") })
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, `{"call":%d}`, n)
	}))
}

func post(h http.Handler, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req.Header.Set("X-User-ID", "7")
	if key != "" {
		req.Header.Set(Header, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_ReplaysStoredResponse(t *testing.T) {
	var calls atomic.Int32
	h := newHandler(t, newFakeClient(), http.StatusCreated, &calls)

	first := post(h, "abc")
	second := post(h, "abc")

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
}

func TestMiddleware_NoKeyPassesThrough(t *testing.T) {
	var calls atomic.Int32
	h := newHandler(t, newFakeClient(), http.StatusCreated, &calls)

	post(h, "")
	post(h, "")

	assert.Equal(t, int32(2), calls.Load())
}

func TestMiddleware_InFlightIsConflict(t *testing.T) {
	var calls atomic.Int32
	client := newFakeClient()
	h := newHandler(t, client, http.StatusCreated, &calls)

	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req.Header.Set("X-User-ID", "7")
	req.Header.Set(Header, "abc")
	client.data[NewStore(client, time.Minute).Key(req, "7")] = inFlight

	rec := post(h, "abc")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, calls.Load())
}

func TestMiddleware_ServerErrorReleasesKey(t *testing.T) {
	var calls atomic.Int32
	client := newFakeClient()
	h := newHandler(t, client, http.StatusInternalServerError, &calls)

	post(h, "abc")
	post(h, "abc")

	assert.Equal(t, int32(2), calls.Load())
	require.Empty(t, client.data)
}

func TestMiddleware_ConflictReleasesKey(t *testing.T) {
	var calls atomic.Int32
	client := newFakeClient()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := Middleware(log, NewStore(client, time.Minute), func(r *http.Request) string { return r.Header.Get("X-User-ID") })
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusCreated
		if calls.Add(1) == 1 {
			status = http.StatusConflict
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{}`))
	}))

	first := post(h, "abc")
	second := post(h, "abc")

	assert.Equal(t, http.StatusConflict, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Empty(t, second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestMiddleware_PanicReleasesKey(t *testing.T) {
	client := newFakeClient()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := Middleware(log, NewStore(client, time.Minute), func(r *http.Request) string { return r.Header.Get("X-User-ID") })
	h := mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	assert.PanicsWithValue(t, "boom", func() { post(h, "abc") })
	assert.Empty(t, client.data)
}
