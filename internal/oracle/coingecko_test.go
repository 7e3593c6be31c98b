package oracle

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dexflow.io/internal/config"
	"dexflow.io/internal/domain"
)

// memCache 进程内 Cache，测试用
type memCache struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemCache() *memCache {
	return &memCache{values: make(map[string]string)}
}

func (c *memCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func newTestOracle(baseURL string, cache Cache) *CoinGecko {
	return NewCoinGecko(config.OracleConfig{
		BaseURL:        baseURL,
		CacheTTL:       30 * time.Second,
		RequestTimeout: 2 * time.Second,
		// 测试不限速
		RateLimitInterval: 0,
	}, cache, zap.NewNop())
}

func priceServer(t *testing.T, prices map[string]float64, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			*calls++
		}
		id := r.URL.Query().Get("ids")
		price, ok := prices[id]
		if !ok {
			fmt.Fprint(w, `{}`)
			return
		}
		fmt.Fprintf(w, `{"%s": {"usd": %g}}`, id, price)
	}))
}

func TestGetPriceFetchesAndCaches(t *testing.T) {
	cache := newMemCache()
	srv := priceServer(t, map[string]float64{"ethereum": 3000, "usd-coin": 1}, nil)
	defer srv.Close()

	o := newTestOracle(srv.URL, cache)

	price, err := o.GetPrice(context.Background(), "ETH", "USDC")
	require.NoError(t, err)
	assert.Equal(t, "3000", price.String())

	// 新鲜缓存与 stale 降级副本都已写入
	fresh, err := cache.Get(context.Background(), "price:ETH:USDC")
	require.NoError(t, err)
	assert.Equal(t, "3000", fresh)
	stale, err := cache.Get(context.Background(), "stale:price:ETH:USDC")
	require.NoError(t, err)
	assert.Equal(t, "3000", stale)
}

func TestGetPriceServesFreshCache(t *testing.T) {
	cache := newMemCache()
	calls := 0
	srv := priceServer(t, map[string]float64{"ethereum": 3000}, &calls)
	defer srv.Close()

	o := newTestOracle(srv.URL, cache)
	require.NoError(t, cache.Set(context.Background(), "price:ETH:USD", "2987.5", 0))

	price, err := o.GetPrice(context.Background(), "ETH", "USD")
	require.NoError(t, err)
	assert.Equal(t, "2987.5", price.String())
	// 命中缓存时不访问上游
	assert.Equal(t, 0, calls)
}

func TestGetPriceUSDQuoteIsDirect(t *testing.T) {
	cache := newMemCache()
	calls := 0
	srv := priceServer(t, map[string]float64{"bitcoin": 65000}, &calls)
	defer srv.Close()

	o := newTestOracle(srv.URL, cache)

	price, err := o.GetPrice(context.Background(), "BTC", "USD")
	require.NoError(t, err)
	assert.Equal(t, "65000", price.String())
	assert.Equal(t, 1, calls)
}

func TestGetPriceStaleFallback(t *testing.T) {
	cache := newMemCache()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	o := newTestOracle(srv.URL, cache)
	require.NoError(t, cache.Set(context.Background(), "stale:price:ETH:USD", "2950", 0))

	// 上游失败但有过期副本：降级返回
	price, err := o.GetPrice(context.Background(), "ETH", "USD")
	require.NoError(t, err)
	assert.Equal(t, "2950", price.String())
}

func TestGetPriceUnavailable(t *testing.T) {
	cache := newMemCache()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	o := newTestOracle(srv.URL, cache)

	_, err := o.GetPrice(context.Background(), "ETH", "USD")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestGetPriceUnsupportedToken(t *testing.T) {
	cache := newMemCache()
	calls := 0
	srv := priceServer(t, nil, &calls)
	defer srv.Close()

	o := newTestOracle(srv.URL, cache)

	_, err := o.GetPrice(context.Background(), "DOGE", "USD")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
	// 不支持的符号直接拒绝，不访问上游
	assert.Equal(t, 0, calls)
}

func TestGetPriceRetriesServerError(t *testing.T) {
	cache := newMemCache()
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"ethereum": {"usd": 3000}}`)
	}))
	defer srv.Close()

	o := newTestOracle(srv.URL, cache)

	price, err := o.GetPrice(context.Background(), "ETH", "USD")
	require.NoError(t, err)
	assert.Equal(t, "3000", price.String())
	assert.Equal(t, 2, attempts)
}
