package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSource reads prices that an external feeder publishes to Redis.
// Each price is a hash with two fields:
//
//	HSET price:token:{address} value {wei} updated_at {unix seconds}
//	HSET price:lp:{pool}       value {wei} updated_at {unix seconds}
type RedisSource struct {
	rdb *redis.Client
}

// NewRedisSource creates a Source backed by Redis hashes.
func NewRedisSource(rdb *redis.Client) *RedisSource {
	return &RedisSource{rdb: rdb}
}

func (s *RedisSource) TokenPrice(ctx context.Context, token string) (Price, error) {
	return s.read(ctx, tokenKey(token))
}

func (s *RedisSource) LpPrice(ctx context.Context, pool string) (Price, error) {
	return s.read(ctx, lpKey(pool))
}

// Publish writes a price hash. Used by feeders and for seeding.
func (s *RedisSource) Publish(ctx context.Context, key string, p Price) error {
	return s.rdb.HSet(ctx, key,
		"value", p.Value.String(),
		"updated_at", strconv.FormatInt(p.UpdatedAt.Unix(), 10),
	).Err()
}

func (s *RedisSource) read(ctx context.Context, key string) (Price, error) {
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return Price{}, fmt.Errorf("read %s: %w", key, err)
	}
	if len(fields) == 0 {
		return Price{}, fmt.Errorf("%w: %s", ErrPriceNotFound, key)
	}
	return parsePrice(key, fields)
}

// parsePrice decodes the hash fields of one price.
func parsePrice(key string, fields map[string]string) (Price, error) {
	value, ok := new(big.Int).SetString(fields["value"], 10)
	if !ok {
		return Price{}, fmt.Errorf("%s: invalid value %q", key, fields["value"])
	}
	secs, err := strconv.ParseInt(fields["updated_at"], 10, 64)
	if err != nil {
		return Price{}, fmt.Errorf("%s: invalid updated_at %q: %w", key, fields["updated_at"], err)
	}
	return Price{Value: value, UpdatedAt: time.Unix(secs, 0).UTC()}, nil
}

// TokenKey returns the Redis key holding a token price.
func TokenKey(token string) string { return tokenKey(token) }

// LpKey returns the Redis key holding an LP price.
func LpKey(pool string) string { return lpKey(pool) }

func tokenKey(token string) string { return fmt.Sprintf("price:token:%s", token) }
func lpKey(pool string) string     { return fmt.Sprintf("price:lp:%s", pool) }
