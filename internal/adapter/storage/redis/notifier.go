package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"truek-settlement/internal/core/domain"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// TradeMessageEvent is the payload published for every persisted trade message.
type TradeMessageEvent struct {
	Type    string               `json:"type"`
	Message *domain.TradeMessage `json:"message"`
}

// EventTradeMessage is the event type carried by TradeMessageEvent.
const EventTradeMessage = "trade.message"

// TradeChannel returns the pub/sub channel a chat client subscribes to for a trade.
func TradeChannel(tradeID uuid.UUID) string {
	return "trade:" + tradeID.String() + ":messages"
}

// Notifier implements ports.Notifier with Redis PUBLISH. Chat gateways
// subscribe to TradeChannel and fan out to connected clients.
type Notifier struct {
	client goredis.Cmdable
}

// NewNotifier creates a Redis pub/sub notifier.
func NewNotifier(client goredis.Cmdable) *Notifier {
	return &Notifier{client: client}
}

// PublishTradeMessage publishes the message on its trade channel.
func (n *Notifier) PublishTradeMessage(ctx context.Context, msg *domain.TradeMessage) error {
	payload, err := json.Marshal(TradeMessageEvent{Type: EventTradeMessage, Message: msg})
	if err != nil {
		return fmt.Errorf("encode trade message event: %w", err)
	}
	if err := n.client.Publish(ctx, TradeChannel(msg.TradeID), payload).Err(); err != nil {
		return fmt.Errorf("redis publish trade message: %w", err)
	}
	return nil
}
