package pricedata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...ClientOption) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	limiter := NewRateLimiter(1000, time.Minute)
	c := NewClient(srv.URL, limiter, opts...)
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c, srv
}

func TestListPoolsParsesReserve(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/networks/solana/tokens/TOK/pools", r.URL.Path)
		fmt.Fprint(w, `{"data":[
			{"attributes":{"address":"p1","name":"A/SOL","reserve_in_usd":"1500.5"}},
			{"attributes":{"address":"p2","name":"B/SOL","reserve_in_usd":"not-a-number"}},
			{"attributes":{"address":"p3","name":"C/SOL","reserve_in_usd":""}}
		]}`)
	}))

	pools, err := c.ListPools(context.Background(), "TOK")
	require.NoError(t, err)
	require.Len(t, pools, 3)
	require.NotNil(t, pools[0].ReserveInUSD)
	require.Equal(t, 1500.5, *pools[0].ReserveInUSD)
	require.Nil(t, pools[1].ReserveInUSD)
	require.Nil(t, pools[2].ReserveInUSD)
}

func TestSelectPool(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	t.Run("largest reserve wins", func(t *testing.T) {
		p, err := SelectPool([]Pool{
			{Address: "a", ReserveInUSD: f(10)},
			{Address: "b", ReserveInUSD: f(100)},
			{Address: "c", ReserveInUSD: f(50)},
		})
		require.NoError(t, err)
		require.Equal(t, "b", p.Address)
	})

	t.Run("tie keeps declaration order", func(t *testing.T) {
		p, err := SelectPool([]Pool{
			{Address: "a", ReserveInUSD: f(100)},
			{Address: "b", ReserveInUSD: f(100)},
		})
		require.NoError(t, err)
		require.Equal(t, "a", p.Address)
	})

	t.Run("no reserves falls back to first", func(t *testing.T) {
		p, err := SelectPool([]Pool{{Address: "a"}, {Address: "b"}})
		require.NoError(t, err)
		require.Equal(t, "a", p.Address)
	})

	t.Run("empty errors", func(t *testing.T) {
		_, err := SelectPool(nil)
		require.ErrorIs(t, err, ErrNoPools)
	})
}

func TestFetchOHLCVPaginatesBackward(t *testing.T) {
	// Two pages: the second starts where the first left off and reaches the
	// requested start.
	var befores []string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		befores = append(befores, r.URL.Query().Get("before_timestamp"))
		switch len(befores) {
		case 1:
			fmt.Fprint(w, `{"data":{"attributes":{"ohlcv_list":[
				[3000,3,3,3,3,30],[2000,2,2,2,2,20]
			]}}}`)
		default:
			fmt.Fprint(w, `{"data":{"attributes":{"ohlcv_list":[
				[2000,2,2,2,2,20],[1000,1,1,1,1,10]
			]}}}`)
		}
	}))

	candles, err := c.FetchOHLCV(context.Background(), "pool", Timeframe1m, 1_000_000, 3_000_000)
	require.NoError(t, err)
	require.Len(t, befores, 2)
	require.Equal(t, "2000", befores[1])

	require.Len(t, candles, 3)
	require.Equal(t, int64(1_000_000), candles[0].TimestampMs)
	require.Equal(t, int64(2_000_000), candles[1].TimestampMs)
	require.Equal(t, int64(3_000_000), candles[2].TimestampMs)
}

func TestFetchOHLCVStopsOnAllDuplicates(t *testing.T) {
	pages := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		fmt.Fprint(w, `{"data":{"attributes":{"ohlcv_list":[[2000,2,2,2,2,20]]}}}`)
	}))

	candles, err := c.FetchOHLCV(context.Background(), "pool", Timeframe1m, 0, 3_000_000)
	require.NoError(t, err)
	require.Equal(t, 2, pages)
	require.Len(t, candles, 1)
}

func TestGetJSONRetriesOn500(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"data":[]}`)
	}))

	_, err := c.ListPools(context.Background(), "TOK")
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, int64(3), c.Stats().TotalRequests)
}

func TestGetJSONFailFastOn429(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}), WithOn429(On429Fail))

	_, err := c.ListPools(context.Background(), "TOK")

	var rle *RateLimitExceededError
	require.ErrorAs(t, err, &rle)

	s := c.Stats()
	require.Equal(t, int64(1), s.HTTP429)
	require.Equal(t, int64(1), s.RateLimitFailures)
	require.Equal(t, On429Fail, s.ModeOn429)
}

func TestGetJSONWaitModeHonorsRetryAfter(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data":[]}`)
	}))

	var slept []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	_, err := c.ListPools(context.Background(), "TOK")
	require.NoError(t, err)
	require.Contains(t, slept, 7*time.Second)
}

func TestGetJSONNonRetryableStatus(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.ListPools(context.Background(), "TOK")
	require.True(t, IsNotFound(err))
	require.Equal(t, 1, calls)
}

func TestBackoffDelayHasFloor(t *testing.T) {
	limiter := NewRateLimiter(10, time.Minute)
	c := NewClient("http://unused", limiter)

	require.Equal(t, DefaultBackoffFloor, c.backoffDelay(0))
	require.Equal(t, 2*time.Second, c.backoffDelay(1))
	require.Equal(t, 4*time.Second, c.backoffDelay(2))
	require.Equal(t, 8*time.Second, c.backoffDelay(3))
}
