package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisWindowPrefix = "kiroku:window:"

// RedisWindow is a Window shared between Kiroku replicas. Each session is a
// Redis list of JSON-encoded turns trimmed to the window size on every
// append.
type RedisWindow struct {
	client redis.Cmdable
	size   int
	ttl    time.Duration
	prefix string
}

// NewRedisWindow wraps client. ttl is applied to a session's list after
// every append; zero keeps lists forever.
func NewRedisWindow(client redis.Cmdable, cfg WindowConfig) *RedisWindow {
	if cfg.Size <= 0 {
		cfg.Size = DefaultWindowConfig().Size
	}
	return &RedisWindow{client: client, size: cfg.Size, ttl: cfg.IdleTTL, prefix: defaultRedisWindowPrefix}
}

func (w *RedisWindow) key(sessionID string) string {
	return w.prefix + sessionID
}

// Turns implements Window.
func (w *RedisWindow) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	raw, err := w.client.LRange(ctx, w.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("window redis: lrange: %w", err)
	}
	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("window redis: decode turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Append implements Window in one MULTI/EXEC: RPUSH, LTRIM to the last
// size entries and an optional EXPIRE.
func (w *RedisWindow) Append(ctx context.Context, sessionID string, turn Turn) error {
	if turn.At.IsZero() {
		turn.At = time.Now()
	}
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("window redis: encode turn: %w", err)
	}

	key := w.key(sessionID)
	_, err = w.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, int64(-w.size), -1)
		if w.ttl > 0 {
			pipe.Expire(ctx, key, w.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("window redis: append: %w", err)
	}
	return nil
}

var _ Window = (*RedisWindow)(nil)
