package metrics_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutrilogic/datacache"
	"github.com/nutrilogic/datacache/backend/memory"
	"github.com/nutrilogic/datacache/clock"
	"github.com/nutrilogic/datacache/internal/metrics"
)

const expositionHeader = `
# HELP nutrilogic_session_cache_events_total Session cache events by type
# TYPE nutrilogic_session_cache_events_total counter
`

func TestCache_CountsStoreEvents(t *testing.T) {
	ctx := context.Background()
	m := metrics.NewCache("nutrilogic")
	clk := clock.NewManual(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	store, err := datacache.New(datacache.Config{Backend: memory.New(), TTL: time.Minute, Clock: clk, Metrics: m})
	require.NoError(t, err)

	store.Get(ctx, "k")
	store.Set(ctx, "k", json.RawMessage(`1`))
	store.Get(ctx, "k")
	store.Set(ctx, "j", json.RawMessage(`1`))
	store.Invalidate(ctx, "k", "j")
	store.Set(ctx, "x", json.RawMessage(`1`))
	clk.Advance(time.Minute)
	store.Get(ctx, "x")

	expected := expositionHeader + `
nutrilogic_session_cache_events_total{event="expire"} 1
nutrilogic_session_cache_events_total{event="hit"} 1
nutrilogic_session_cache_events_total{event="invalidate"} 2
nutrilogic_session_cache_events_total{event="miss"} 2
nutrilogic_session_cache_events_total{event="set"} 3
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "nutrilogic_session_cache_events_total"))
}

func TestCache_Handler(t *testing.T) {
	m := metrics.NewCache("nutrilogic")
	m.Hit()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `nutrilogic_session_cache_events_total{event="hit"} 1`)
	assert.Contains(t, string(body), `nutrilogic_session_cache_events_total{event="miss"} 0`)
}
