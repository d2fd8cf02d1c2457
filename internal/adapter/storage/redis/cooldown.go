package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// MessageCooldown implements ports.MessageCooldown using Redis SET NX with a TTL.
type MessageCooldown struct {
	client goredis.Cmdable
	prefix string
}

// NewMessageCooldown creates a new Redis-backed message cooldown.
func NewMessageCooldown(client goredis.Cmdable) *MessageCooldown {
	return &MessageCooldown{
		client: client,
		prefix: "trade:cooldown:",
	}
}

// Acquire atomically claims the cooldown slot for (trade, user).
// Returns true if the user may post now, false while the previous window is open.
func (c *MessageCooldown) Acquire(ctx context.Context, tradeID uuid.UUID, userID int64, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}

	key := c.prefix + tradeID.String() + ":" + strconv.FormatInt(userID, 10)
	result, err := c.client.SetArgs(ctx, key, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  window,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			// Key still alive: the sender posted within the window
			return false, nil
		}
		return false, fmt.Errorf("redis cooldown acquire: %w", err)
	}
	return result == "OK", nil
}
