package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dexflow.io/internal/config"
	"dexflow.io/internal/domain"
)

// ErrCacheMiss is returned by Cache implementations when a key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Cache 价格缓存抽象，生产环境用 Redis 实现
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// tokenIDs 符号到 CoinGecko coin id 的映射
var tokenIDs = map[string]string{
	"ETH":   "ethereum",
	"WETH":  "ethereum",
	"BTC":   "bitcoin",
	"WBTC":  "wrapped-bitcoin",
	"USDC":  "usd-coin",
	"USDT":  "tether",
	"DAI":   "dai",
	"LINK":  "chainlink",
	"UNI":   "uniswap",
	"AAVE":  "aave",
	"MATIC": "matic-network",
}

// CoinGecko implements domain.PriceOracle against the CoinGecko simple-price
// API, with a shared cache, client-side rate limiting for the free tier, and a
// stale-value fallback on upstream failure.
type CoinGecko struct {
	baseURL    string
	httpClient *http.Client
	cache      Cache
	cacheTTL   time.Duration
	log        *zap.Logger

	// free tier 限速：两次请求之间的最小间隔
	mu          sync.Mutex
	rateLimit   time.Duration
	lastRequest time.Time
}

func NewCoinGecko(cfg config.OracleConfig, cache Cache, logger *zap.Logger) *CoinGecko {
	return &CoinGecko{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		cache:      cache,
		cacheTTL:   cfg.CacheTTL,
		rateLimit:  cfg.RateLimitInterval,
		log:        logger,
	}
}

// GetPrice returns base priced in quote, e.g. ("ETH", "USDC") ≈ 3000.
func (o *CoinGecko) GetPrice(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	quote = strings.ToUpper(strings.TrimSpace(quote))

	freshKey := fmt.Sprintf("price:%s:%s", base, quote)
	if cached, err := o.cache.Get(ctx, freshKey); err == nil {
		if price, perr := decimal.NewFromString(cached); perr == nil {
			return price, nil
		}
	}

	price, err := o.fetchPair(ctx, base, quote)
	if err != nil {
		// 上游失败时退回过期缓存
		staleKey := "stale:" + freshKey
		if cached, cerr := o.cache.Get(ctx, staleKey); cerr == nil {
			if stale, perr := decimal.NewFromString(cached); perr == nil {
				o.log.Warn("price fetch failed, serving stale cached value",
					zap.String("pair", base+"/"+quote), zap.Error(err))
				return stale, nil
			}
		}
		return decimal.Zero, fmt.Errorf("%w: %s/%s: %v", domain.ErrPriceUnavailable, base, quote, err)
	}

	if err := o.cache.Set(ctx, freshKey, price.String(), o.cacheTTL); err != nil {
		o.log.Warn("failed to cache price", zap.Error(err))
	}
	// stale 副本不设 TTL，作为降级数据源
	if err := o.cache.Set(ctx, "stale:"+freshKey, price.String(), 0); err != nil {
		o.log.Warn("failed to cache stale price", zap.Error(err))
	}

	return price, nil
}

// SupportedTokens lists the symbols the oracle can quote.
func (o *CoinGecko) SupportedTokens() []string {
	symbols := make([]string, 0, len(tokenIDs))
	for sym := range tokenIDs {
		symbols = append(symbols, sym)
	}
	return symbols
}

func (o *CoinGecko) fetchPair(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	basePrice, err := o.fetchUSD(ctx, base)
	if err != nil {
		return decimal.Zero, err
	}
	if quote == "USD" {
		return basePrice, nil
	}
	quotePrice, err := o.fetchUSD(ctx, quote)
	if err != nil {
		return decimal.Zero, err
	}
	if quotePrice.IsZero() {
		return decimal.Zero, fmt.Errorf("zero quote price for %s", quote)
	}
	return basePrice.Div(quotePrice), nil
}

func (o *CoinGecko) fetchUSD(ctx context.Context, symbol string) (decimal.Decimal, error) {
	coinID, ok := tokenIDs[symbol]
	if !ok {
		return decimal.Zero, backoff.Permanent(fmt.Errorf("token %s not supported", symbol))
	}

	operation := func() (decimal.Decimal, error) {
		o.waitForRateLimit()

		endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", o.baseURL, url.QueryEscape(coinID))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return decimal.Zero, backoff.Permanent(err)
		}

		resp, err := o.httpClient.Do(req)
		if err != nil {
			return decimal.Zero, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return decimal.Zero, fmt.Errorf("upstream status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return decimal.Zero, backoff.Permanent(fmt.Errorf("upstream status %d", resp.StatusCode))
		}

		var body map[string]struct {
			USD decimal.Decimal `json:"usd"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return decimal.Zero, err
		}

		entry, ok := body[coinID]
		if !ok || entry.USD.IsZero() {
			return decimal.Zero, backoff.Permanent(fmt.Errorf("price not found for %s", symbol))
		}
		return entry.USD, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3))
}

func (o *CoinGecko) waitForRateLimit() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if wait := o.rateLimit - time.Since(o.lastRequest); wait > 0 {
		time.Sleep(wait)
	}
	o.lastRequest = time.Now()
}

var _ domain.PriceOracle = (*CoinGecko)(nil)
