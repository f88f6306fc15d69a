package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/agentuity/go-common/logger"
)

const (
	cloudflareAPIBase = "https://api.cloudflare.com/client/v4"

	// unhealthyAfter consecutive transport-level failures the provider
	// stops receiving traffic until a purge succeeds again.
	unhealthyAfter = 3

	purgeRetries = 3
)

// Cloudflare purges content through the zone purge_cache endpoint. Tag
// purges use cache-tags, so they require a plan that supports them; the
// API reports that as an ordinary error result.
type Cloudflare struct {
	logger  logger.Logger
	cfg     Configuration
	zoneID  string
	baseURL string
	client  *http.Client

	mutex            sync.Mutex
	requests         int64
	successes        int64
	failures         int64
	totalLatency     time.Duration
	consecutiveFails int64
}

var _ Provider = (*Cloudflare)(nil)

// CloudflareOption configures a Cloudflare provider.
type CloudflareOption func(*Cloudflare)

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) CloudflareOption {
	return func(c *Cloudflare) { c.client = client }
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) CloudflareOption {
	return func(c *Cloudflare) { c.baseURL = strings.TrimSuffix(baseURL, "/") }
}

// NewCloudflare creates a provider purging the given zone. The API token
// comes from cfg.Credentials.
func NewCloudflare(log logger.Logger, zoneID string, cfg Configuration, opts ...CloudflareOption) *Cloudflare {
	c := &Cloudflare{
		logger:  log.With(map[string]interface{}{"provider": "cloudflare", "zone": zoneID}),
		cfg:     cfg,
		zoneID:  zoneID,
		baseURL: cloudflareAPIBase,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cloudflare) ID() string {
	return "cloudflare:" + c.zoneID
}

type purgeRequest struct {
	Files           []string `json:"files,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	PurgeEverything bool     `json:"purge_everything,omitempty"`
}

type purgeResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Cloudflare) PurgeURL(ctx context.Context, url string) Result {
	return c.purge(ctx, OpPurgeURL, purgeRequest{Files: []string{url}})
}

func (c *Cloudflare) PurgeTag(ctx context.Context, tag string) Result {
	return c.purge(ctx, OpPurgeTag, purgeRequest{Tags: []string{tag}})
}

func (c *Cloudflare) PurgeAll(ctx context.Context) Result {
	return c.purge(ctx, OpPurgeAll, purgeRequest{PurgeEverything: true})
}

func (c *Cloudflare) purge(ctx context.Context, op Operation, payload purgeRequest) Result {
	started := time.Now()
	err := c.do(ctx, payload)
	latency := time.Since(started)
	c.record(err == nil, latency)
	if err != nil {
		c.logger.Warn("%s failed: %s", op, err)
	}
	return Result{
		Provider:  c.ID(),
		Operation: op,
		Success:   err == nil,
		Latency:   latency,
		Err:       err,
	}
}

func (c *Cloudflare) do(ctx context.Context, payload purgeRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshalling payload: %w", err)
	}
	endpoint := c.baseURL + "/zones/" + c.zoneID + "/purge_cache"

	var resp *http.Response
	for i := range purgeRetries {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("error creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.Credentials != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.Credentials)
		}
		resp, err = c.client.Do(req)
		if shouldRetry(resp, err) && i < purgeRetries-1 {
			c.logger.Trace("retryable purge error, retrying...")
			if resp != nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
			// exponential backoff
			v := 150 * math.Pow(2, float64(i))
			select {
			case <-time.After(time.Duration(v) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("error sending request: %w", err)
		}
		break
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}
	var parsed purgeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return fmt.Errorf("error decoding response (%s): %w", resp.Status, err)
	}
	if !parsed.Success {
		if len(parsed.Errors) > 0 {
			var msgs []string
			for _, apiErr := range parsed.Errors {
				msgs = append(msgs, fmt.Sprintf("%s (%d)", apiErr.Message, apiErr.Code))
			}
			return fmt.Errorf("purge rejected: %s", strings.Join(msgs, ". "))
		}
		return fmt.Errorf("purge failed with status (%s)", resp.Status)
	}
	return nil
}

func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
			return true
		} else if msg := err.Error(); strings.Contains(msg, "EOF") {
			return true
		}
	}
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusRequestTimeout, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests:
			return true
		}
	}
	return false
}

func (c *Cloudflare) record(success bool, latency time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.requests++
	c.totalLatency += latency
	if success {
		c.successes++
		c.consecutiveFails = 0
	} else {
		c.failures++
		c.consecutiveFails++
	}
}

// Healthy reports false when the provider is disabled or has failed too
// many times in a row. One successful purge restores it.
func (c *Cloudflare) Healthy(context.Context) bool {
	if !c.cfg.Enabled {
		return false
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.consecutiveFails < unhealthyAfter
}

func (c *Cloudflare) Stats() Statistics {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	stats := Statistics{
		Requests:  c.requests,
		Successes: c.successes,
		Failures:  c.failures,
	}
	if c.requests > 0 {
		stats.AvgLatency = c.totalLatency / time.Duration(c.requests)
	}
	return stats
}

func (c *Cloudflare) Config() Configuration {
	return c.cfg
}
