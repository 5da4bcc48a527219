package pricedata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"dex-signal-lab/internal/domain"
	"dex-signal-lab/internal/observability"
)

// 429 handling modes.
const (
	On429Wait = "wait"
	On429Fail = "fail"
)

// Default client configuration values.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultMaxRetries    = 3
	DefaultBackoffFactor = 2.0
	DefaultBackoffFloor  = 2 * time.Second
	DefaultNetwork       = "solana"

	// maxBatchSize is the API page size for OHLCV requests.
	maxBatchSize = 1000
	// maxPages bounds backward pagination per fetch.
	maxPages = 200
)

// retryableStatuses are retried with exponential backoff.
var retryableStatuses = map[int]bool{
	500: true,
	502: true,
	503: true,
	504: true,
}

// Client fetches pools and OHLCV candles from the external HTTP source.
// All requests go through the shared rate limiter.
type Client struct {
	baseURL string
	network string
	client  *http.Client
	limiter *RateLimiter
	logger  zerolog.Logger
	metrics *observability.Metrics

	maxRetries    int
	backoffFactor float64
	backoffFloor  time.Duration
	on429         string

	totalRequests     atomic.Int64
	http429           atomic.Int64
	rateLimitFailures atomic.Int64

	// sleep is injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.client = hc }
}

// WithNetwork sets the network path segment (default "solana").
func WithNetwork(network string) ClientOption {
	return func(c *Client) { c.network = network }
}

// WithMaxRetries sets maximum retry attempts for retryable failures.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) { c.maxRetries = n }
}

// WithBackoffFactor sets the exponential backoff base.
func WithBackoffFactor(f float64) ClientOption {
	return func(c *Client) { c.backoffFactor = f }
}

// WithOn429 sets the 429 policy: On429Wait retries honoring Retry-After,
// On429Fail raises RateLimitExceededError immediately.
func WithOn429(mode string) ClientOption {
	return func(c *Client) { c.on429 = mode }
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics attaches Prometheus counters.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates an OHLCV API client sharing the given rate limiter.
func NewClient(baseURL string, limiter *RateLimiter, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:       baseURL,
		network:       DefaultNetwork,
		client:        &http.Client{Timeout: DefaultTimeout},
		limiter:       limiter,
		logger:        zerolog.Nop(),
		maxRetries:    DefaultMaxRetries,
		backoffFactor: DefaultBackoffFactor,
		backoffFloor:  DefaultBackoffFloor,
		on429:         On429Wait,
		sleep:         sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClientStats is a snapshot of request counters.
type ClientStats struct {
	TotalRequests     int64
	HTTP429           int64
	RateLimitFailures int64
	ModeOn429         string
}

// Stats returns a snapshot of the request counters.
func (c *Client) Stats() ClientStats {
	return ClientStats{
		TotalRequests:     c.totalRequests.Load(),
		HTTP429:           c.http429.Load(),
		RateLimitFailures: c.rateLimitFailures.Load(),
		ModeOn429:         c.on429,
	}
}

// Pool is one liquidity pool of a token.
type Pool struct {
	Address      string
	Name         string
	ReserveInUSD *float64 // nil when the pool does not report reserve
}

type poolsResponse struct {
	Data []struct {
		Attributes struct {
			Address      string `json:"address"`
			Name         string `json:"name"`
			ReserveInUSD string `json:"reserve_in_usd"`
		} `json:"attributes"`
	} `json:"data"`
}

type ohlcvResponse struct {
	Data struct {
		Attributes struct {
			OhlcvList [][]float64 `json:"ohlcv_list"`
		} `json:"attributes"`
	} `json:"data"`
}

// ListPools retrieves the pools of a token contract.
func (c *Client) ListPools(ctx context.Context, contract string) ([]Pool, error) {
	url := fmt.Sprintf("%s/networks/%s/tokens/%s/pools", c.baseURL, c.network, contract)

	var resp poolsResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	pools := make([]Pool, 0, len(resp.Data))
	for _, d := range resp.Data {
		p := Pool{
			Address: d.Attributes.Address,
			Name:    d.Attributes.Name,
		}
		// reserve_in_usd arrives as a decimal string; unparseable values
		// count as "does not report reserve".
		if d.Attributes.ReserveInUSD != "" {
			if v, err := strconv.ParseFloat(d.Attributes.ReserveInUSD, 64); err == nil {
				p.ReserveInUSD = &v
			}
		}
		pools = append(pools, p)
	}
	return pools, nil
}

// SelectPool picks the pool with the largest reserve_in_usd, declaration
// order breaking ties. When no pool reports reserve the first pool wins.
func SelectPool(pools []Pool) (Pool, error) {
	if len(pools) == 0 {
		return Pool{}, ErrNoPools
	}

	best := -1
	for i, p := range pools {
		if p.ReserveInUSD == nil {
			continue
		}
		if best < 0 || *p.ReserveInUSD > *pools[best].ReserveInUSD {
			best = i
		}
	}
	if best < 0 {
		return pools[0], nil
	}
	return pools[best], nil
}

// ResolvePool looks up and selects the trading pool for a contract.
func (c *Client) ResolvePool(ctx context.Context, contract string) (Pool, error) {
	pools, err := c.ListPools(ctx, contract)
	if err != nil {
		return Pool{}, err
	}
	return SelectPool(pools)
}

// FetchOHLCV fetches candles for a pool covering [startMs, endMs], walking
// backward from endMs in batches of up to 1000 rows. Pagination terminates
// on an empty batch, a wholly already-seen batch, a batch reaching back to
// startMs, or the page cap. Result is ascending and de-duplicated.
func (c *Client) FetchOHLCV(ctx context.Context, pool string, tf Timeframe, startMs, endMs int64) ([]domain.Candle, error) {
	seen := make(map[int64]bool)
	var candles []domain.Candle

	before := endMs/1000 + 1
	for page := 0; page < maxPages; page++ {
		url := fmt.Sprintf("%s/networks/%s/pools/%s/ohlcv/%s?aggregate=%d&before_timestamp=%d&limit=%d",
			c.baseURL, c.network, pool, tf.Unit, tf.Aggregate, before, maxBatchSize)

		var resp ohlcvResponse
		if err := c.getJSON(ctx, url, &resp); err != nil {
			return nil, err
		}

		batch := resp.Data.Attributes.OhlcvList
		if len(batch) == 0 {
			break
		}

		fresh := 0
		earliest := int64(math.MaxInt64)
		for _, row := range batch {
			if len(row) < 6 {
				continue
			}
			tsMs := int64(row[0]) * 1000
			if tsMs < earliest {
				earliest = tsMs
			}
			if seen[tsMs] {
				continue
			}
			seen[tsMs] = true
			fresh++
			candles = append(candles, domain.Candle{
				TimestampMs: tsMs,
				Open:        row[1],
				High:        row[2],
				Low:         row[3],
				Close:       row[4],
				Volume:      row[5],
			})
		}

		if fresh == 0 {
			break
		}
		if startMs > 0 && earliest <= startMs {
			break
		}
		before = earliest / 1000
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].TimestampMs < candles[j].TimestampMs
	})
	return candles, nil
}

// getJSON performs one GET with the retry envelope: the shared limiter is
// acquired per attempt, 429 follows the configured policy, 5xx and transient
// connection errors back off exponentially with a 2 s floor, and other
// statuses propagate as HTTPStatusError.
func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoffDelay(attempt)); err != nil {
				return err
			}
		}

		if err := c.limiter.Acquire(ctx); err != nil {
			return err
		}

		c.totalRequests.Add(1)
		if c.metrics != nil {
			c.metrics.LoaderRequests.Inc()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			c.logger.Debug().Err(err).Str("url", url).Int("attempt", attempt).Msg("transient request failure")
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			c.http429.Add(1)
			if c.metrics != nil {
				c.metrics.LoaderHTTP429.Inc()
			}
			if c.on429 == On429Fail {
				c.rateLimitFailures.Add(1)
				if c.metrics != nil {
					c.metrics.RateLimitFailures.Inc()
				}
				return &RateLimitExceededError{URL: url}
			}
			if d, ok := retryAfter(resp); ok {
				if err := c.sleep(ctx, d); err != nil {
					return err
				}
			}
			lastErr = fmt.Errorf("rate limited (429) fetching %s", url)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			if retryableStatuses[resp.StatusCode] {
				lastErr = fmt.Errorf("retryable status %d fetching %s", resp.StatusCode, url)
				continue
			}
			return &HTTPStatusError{StatusCode: resp.StatusCode, URL: url}
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// backoffDelay computes backoffFactor^attempt seconds with the configured
// floor.
func (c *Client) backoffDelay(attempt int) time.Duration {
	d := time.Duration(math.Pow(c.backoffFactor, float64(attempt)) * float64(time.Second))
	if d < c.backoffFloor {
		d = c.backoffFloor
	}
	return d
}

// retryAfter parses the Retry-After header in seconds.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(h)
	if err != nil || secs <= 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
