package redisrest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := MustNew(Config{URL: srv.URL, Token: "token", Timeout: 2 * time.Second})
	// Tests should not sleep.
	client.retry.BaseDelay = time.Millisecond
	client.retry.MaxDelay = 2 * time.Millisecond
	client.retry.Jitter = 0
	return client
}

func TestDoSendsCommandArray(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody []any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Write([]byte(`{"result":"OK"}`))
	})

	if err := client.SetString(context.Background(), "k", "v", 90*time.Second); err != nil {
		t.Fatalf("SetString() error = %v", err)
	}
	if gotAuth != "Bearer token" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	want := []any{"SET", "k", "v", "EX", float64(90)}
	if len(gotBody) != len(want) {
		t.Fatalf("command = %v, want %v", gotBody, want)
	}
	for i := range want {
		if gotBody[i] != want[i] {
			t.Fatalf("command[%d] = %v, want %v", i, gotBody[i], want[i])
		}
	}
}

func TestGetStringMissingKey(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":null}`))
	})

	value, ok, err := client.GetString(context.Background(), "absent")
	if err != nil {
		t.Fatalf("GetString() error = %v", err)
	}
	if ok || value != "" {
		t.Fatalf("missing key must return not-found, got %q %v", value, ok)
	}
}

func TestDoRetriesTransientServerError(t *testing.T) {
	t.Parallel()

	attempts := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"result":1}`))
	})

	n, err := client.Incr(context.Background(), "counter")
	if err != nil {
		t.Fatalf("Incr() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("Incr() = %d", n)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestDoSurfacesRedisError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"WRONGTYPE Operation against a key holding the wrong kind of value"}`))
	})

	if _, err := client.Do(context.Background(), "GET", "k"); err == nil {
		t.Fatal("redis-level error must surface")
	}
}
