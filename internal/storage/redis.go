package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/walletradar/internal/config"
)

// RedisCache wraps the Redis client
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache connection
func NewRedisCache(cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheWithClient wraps an existing client. Used by tests.
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client returns the underlying Redis client
func (r *RedisCache) Client() *redis.Client {
	return r.client
}

// Ping checks if Redis is reachable
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// MarketCache caches token prices and wallet portfolio values with
// separate TTLs. Cache failures degrade to misses rather than errors so
// an unavailable Redis never blocks analysis.
type MarketCache struct {
	redis    *RedisCache
	priceTTL time.Duration
	valueTTL time.Duration
}

// NewMarketCache creates a market-data cache on top of a Redis connection
func NewMarketCache(r *RedisCache, priceTTL, valueTTL time.Duration) *MarketCache {
	if priceTTL <= 0 {
		priceTTL = 60 * time.Second
	}
	if valueTTL <= 0 {
		valueTTL = 5 * time.Minute
	}
	return &MarketCache{redis: r, priceTTL: priceTTL, valueTTL: valueTTL}
}

func priceKey(symbol string) string {
	return fmt.Sprintf("price:%s", symbol)
}

func valueKey(address string) string {
	return fmt.Sprintf("portfolio:%s", address)
}

// GetPrice returns a cached token price, or false on a miss
func (c *MarketCache) GetPrice(ctx context.Context, symbol string) (float64, bool) {
	return c.getFloat(ctx, priceKey(symbol))
}

// SetPrice caches a token price
func (c *MarketCache) SetPrice(ctx context.Context, symbol string, price float64) {
	c.setFloat(ctx, priceKey(symbol), price, c.priceTTL)
}

// GetPortfolioValue returns a cached wallet portfolio value, or false on a miss
func (c *MarketCache) GetPortfolioValue(ctx context.Context, address string) (float64, bool) {
	return c.getFloat(ctx, valueKey(address))
}

// SetPortfolioValue caches a wallet portfolio value
func (c *MarketCache) SetPortfolioValue(ctx context.Context, address string, value float64) {
	c.setFloat(ctx, valueKey(address), value, c.valueTTL)
}

func (c *MarketCache) getFloat(ctx context.Context, key string) (float64, bool) {
	raw, err := c.redis.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("key", key).Msg("cache read failed")
		}
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (c *MarketCache) setFloat(ctx context.Context, key string, v float64, ttl time.Duration) {
	if err := c.redis.client.Set(ctx, key, strconv.FormatFloat(v, 'f', -1, 64), ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// SeenAddresses tracks wallets already screened so discovery passes do
// not re-analyze the same candidates. Entries expire on their own.
type SeenAddresses struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewSeenAddresses creates a seen-address set with the given entry TTL
func NewSeenAddresses(r *RedisCache, ttl time.Duration) *SeenAddresses {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SeenAddresses{redis: r, ttl: ttl}
}

func seenKey(address string) string {
	return fmt.Sprintf("seen:%s", address)
}

// Seen reports whether an address was screened recently. Redis errors
// read as unseen so discovery keeps working without the cache.
func (s *SeenAddresses) Seen(ctx context.Context, address string) bool {
	count, err := s.redis.client.Exists(ctx, seenKey(address)).Result()
	if err != nil {
		log.Debug().Err(err).Str("address", address).Msg("seen-set read failed")
		return false
	}
	return count > 0
}

// MarkSeen records an address as screened
func (s *SeenAddresses) MarkSeen(ctx context.Context, address string) {
	if err := s.redis.client.Set(ctx, seenKey(address), "1", s.ttl).Err(); err != nil {
		log.Debug().Err(err).Str("address", address).Msg("seen-set write failed")
	}
}
