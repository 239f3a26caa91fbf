package ollama_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/germanamz/mender/pkg/modeladapter/usage"
	"github.com/germanamz/mender/pkg/ollama"
	"github.com/germanamz/mender/pkg/outcome"
	"github.com/germanamz/mender/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return srv
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	assert.NoError(t, json.NewEncoder(w).Encode(v))
}

func readBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()

	data, err := io.ReadAll(r.Body)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))

	return m
}

func newClient(p retry.Policy, opts ...ollama.Option) (*ollama.Client, *[]time.Duration) {
	var delays []time.Duration

	r := retry.New(p, nil)
	r.SetSleepFunc(func(d time.Duration) { delays = append(delays, d) })

	return ollama.New(r, opts...), &delays
}

func baseConfig(url string) ollama.RequestConfig {
	return ollama.RequestConfig{
		BaseURL:  url,
		Model:    "qwen2.5-coder:7b",
		Timeout:  5 * time.Second,
		Options:  ollama.DefaultOptions(),
		Endpoint: ollama.EndpointGenerate,
	}
}

func TestListModels(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/tags", r.URL.Path)
		writeJSON(t, w, map[string]any{"models": []map[string]any{
			{"name": "llama3:latest", "size": 123, "details": map[string]any{"parameter_size": "8B"}},
			{"name": "bar"},
		}})
	})

	c, _ := newClient(retry.DefaultPolicy())

	models, err := c.ListModels(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3:latest", "bar"}, ollama.Names(models))
	assert.Equal(t, int64(123), models[0].Size)
	assert.Equal(t, "8B", models[0].Details.ParameterSize)
}

func TestCatalog_FailureIsEmpty(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	c, delays := newClient(retry.Policy{MaxRetries: 2, InitialDelay: time.Second, Multiplier: 2})

	models := c.Catalog(context.Background(), srv.URL)
	assert.NotNil(t, models)
	assert.Empty(t, models)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
}

func TestGenerate_Payload(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		body := readBody(t, r)
		assert.Equal(t, "qwen2.5-coder:7b", body["model"])
		assert.Equal(t, "fix me", body["prompt"])
		assert.Equal(t, false, body["stream"])

		opts, ok := body["options"].(map[string]any)
		require.True(t, ok)
		for _, key := range []string{
			"temperature", "top_p", "top_k", "repeat_penalty", "presence_penalty",
			"frequency_penalty", "mirostat", "mirostat_tau", "mirostat_eta",
			"num_ctx", "num_predict", "seed",
		} {
			assert.Contains(t, opts, key)
		}
		assert.Equal(t, []any{"```\n\n"}, opts["stop"])
		assert.InDelta(t, -1, opts["seed"], 0)

		writeJSON(t, w, map[string]any{"response": "fixed", "prompt_eval_count": 7, "eval_count": 3})
	})

	var tracker usage.Tracker
	c, _ := newClient(retry.DefaultPolicy(), ollama.WithUsage(&tracker))

	cfg := baseConfig(srv.URL)
	cfg.Stop = []string{"```\n\n"}

	res := c.Generate(context.Background(), cfg, "fix me")
	require.True(t, res.OK(), res.String())
	assert.Equal(t, "fixed", res.Text)
	assert.Equal(t, 10, tracker.Total().Total())
}

func TestGenerate_RawBodyFallback(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"done":true}`))
	})

	c, _ := newClient(retry.DefaultPolicy())

	res := c.Generate(context.Background(), baseConfig(srv.URL), "x")
	require.True(t, res.OK())
	assert.Equal(t, `{"done":true}`, res.Text)
}

func TestGenerate_MalformedBody(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`<html>`))
	})

	c, _ := newClient(retry.DefaultPolicy())

	res := c.Generate(context.Background(), baseConfig(srv.URL), "x")
	require.True(t, res.Failed())
	assert.Equal(t, outcome.Unknown, res.Kind)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerate_UnauthorizedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	})

	c, delays := newClient(retry.DefaultPolicy())

	res := c.Generate(context.Background(), baseConfig(srv.URL), "x")
	require.True(t, res.Failed())
	assert.Equal(t, outcome.API, res.Kind)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.JSONEq(t, `{"error":"unauthorized"}`, res.Body)
	assert.Contains(t, res.Message, "unauthorized")
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, *delays)
}

func TestGenerate_RetriesServiceUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		writeJSON(t, w, map[string]any{"response": "ok"})
	})

	c, delays := newClient(retry.Policy{MaxRetries: 3, InitialDelay: time.Second, Multiplier: 1.5})

	res := c.Generate(context.Background(), baseConfig(srv.URL), "x")
	require.True(t, res.OK(), res.String())
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 1500 * time.Millisecond, 2250 * time.Millisecond}, *delays)
}

func TestGenerate_InvalidBaseURL(t *testing.T) {
	var calls atomic.Int32
	newTestServer(t, func(http.ResponseWriter, *http.Request) { calls.Add(1) })

	c, _ := newClient(retry.DefaultPolicy())

	res := c.Generate(context.Background(), baseConfig("not a url"), "x")
	require.True(t, res.Failed())
	assert.Equal(t, outcome.Configuration, res.Kind)
	assert.Equal(t, int32(0), calls.Load())
}

func TestGenerate_Timeout(t *testing.T) {
	srv := newTestServer(t, func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	c, _ := newClient(retry.Policy{MaxRetries: 0, InitialDelay: time.Millisecond, Multiplier: 1})

	cfg := baseConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond

	res := c.Generate(context.Background(), cfg, "x")
	require.True(t, res.Failed())
	assert.Equal(t, outcome.Network, res.Kind)
}

func TestGenerate_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, delays := newClient(retry.Policy{MaxRetries: 1, InitialDelay: time.Millisecond, Multiplier: 1})

	res := c.Generate(context.Background(), baseConfig(url), "x")
	require.True(t, res.Failed())
	assert.Equal(t, outcome.Network, res.Kind)
	assert.Len(t, *delays, 1)
}

func TestChat(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		body := readBody(t, r)
		msgs, ok := body["messages"].([]any)
		require.True(t, ok)
		require.Len(t, msgs, 2)
		assert.Equal(t, map[string]any{"role": "system", "content": "be brief"}, msgs[0])
		assert.Equal(t, map[string]any{"role": "user", "content": "hi"}, msgs[1])

		writeJSON(t, w, map[string]any{"message": map[string]any{"role": "assistant", "content": "hello"}})
	})

	c, _ := newClient(retry.DefaultPolicy())

	cfg := baseConfig(srv.URL)
	cfg.System = "be brief"

	res := c.Chat(context.Background(), cfg, []ollama.Message{{Role: "user", Content: "hi"}})
	require.True(t, res.OK(), res.String())
	assert.Equal(t, "hello", res.Text)
}

func TestComplete_ChatEndpoint(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		writeJSON(t, w, map[string]any{"message": map[string]any{"content": "done"}})
	})

	c, _ := newClient(retry.DefaultPolicy())

	cfg := baseConfig(srv.URL)
	cfg.Endpoint = ollama.EndpointChat

	res := c.Complete(context.Background(), cfg, "x")
	require.True(t, res.OK())
	assert.Equal(t, "done", res.Text)
}

func TestPing(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		_, _ = w.Write([]byte("Ollama is running"))
	})

	c, _ := newClient(retry.DefaultPolicy())

	assert.True(t, c.Ping(context.Background(), srv.URL))
	assert.False(t, c.Ping(context.Background(), "ftp://example.com"))
}

func TestPing_Down(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, _ := newClient(retry.DefaultPolicy())
	assert.False(t, c.Ping(context.Background(), url))
}
