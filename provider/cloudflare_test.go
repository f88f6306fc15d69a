package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentuity/go-common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCloudflareServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Cloudflare) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cf := NewCloudflare(logger.NewTestLogger(), "zone-1",
		Configuration{Enabled: true, Credentials: "token-abc"},
		WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	return srv, cf
}

func TestCloudflarePurgeURL(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody purgeRequest
	_, cf := newCloudflareServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(purgeResponse{Success: true})
	})

	res := cf.PurgeURL(context.Background(), "https://cdn.example.com/a")

	assert.True(t, res.Success)
	assert.NoError(t, res.Err)
	assert.Equal(t, "cloudflare:zone-1", res.Provider)
	assert.Equal(t, OpPurgeURL, res.Operation)
	assert.Equal(t, "/zones/zone-1/purge_cache", gotPath)
	assert.Equal(t, "Bearer token-abc", gotAuth)
	assert.Equal(t, []string{"https://cdn.example.com/a"}, gotBody.Files)
}

func TestCloudflarePurgeTagAndAll(t *testing.T) {
	var bodies []purgeRequest
	_, cf := newCloudflareServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body purgeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		json.NewEncoder(w).Encode(purgeResponse{Success: true})
	})

	require.True(t, cf.PurgeTag(context.Background(), "products").Success)
	require.True(t, cf.PurgeAll(context.Background()).Success)

	require.Len(t, bodies, 2)
	assert.Equal(t, []string{"products"}, bodies[0].Tags)
	assert.True(t, bodies[1].PurgeEverything)
}

func TestCloudflareAPIError(t *testing.T) {
	_, cf := newCloudflareServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(purgeResponse{
			Success: false,
			Errors: []struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			}{{Code: 1107, Message: "cache tags not supported"}},
		})
	})

	res := cf.PurgeTag(context.Background(), "t")

	assert.False(t, res.Success)
	assert.ErrorContains(t, res.Err, "cache tags not supported")
}

func TestCloudflareRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int64
	_, cf := newCloudflareServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(purgeResponse{Success: true})
	})

	res := cf.PurgeURL(context.Background(), "https://cdn.example.com/a")

	assert.True(t, res.Success)
	assert.Equal(t, int64(2), calls.Load())
}

func TestCloudflareHealthTracking(t *testing.T) {
	var fail atomic.Bool
	_, cf := newCloudflareServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(purgeResponse{Success: !fail.Load()})
	})
	ctx := context.Background()

	require.True(t, cf.Healthy(ctx))

	fail.Store(true)
	for i := 0; i < unhealthyAfter; i++ {
		cf.PurgeAll(ctx)
	}
	assert.False(t, cf.Healthy(ctx))

	// One success restores health.
	fail.Store(false)
	cf.PurgeAll(ctx)
	assert.True(t, cf.Healthy(ctx))

	stats := cf.Stats()
	assert.Equal(t, int64(unhealthyAfter+1), stats.Requests)
	assert.Equal(t, int64(unhealthyAfter), stats.Failures)
	assert.Equal(t, int64(1), stats.Successes)
	assert.Greater(t, stats.AvgLatency, time.Duration(0))
}

func TestCloudflareDisabledIsUnhealthy(t *testing.T) {
	cf := NewCloudflare(logger.NewTestLogger(), "zone-1", Configuration{Enabled: false})
	assert.False(t, cf.Healthy(context.Background()))
}
