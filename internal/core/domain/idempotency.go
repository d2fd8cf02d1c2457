package domain

import (
	"strconv"
	"time"
)

// IdempotentResponse is a cached HTTP result replayed for a repeated Idempotency-Key.
type IdempotentResponse struct {
	StatusCode int       `json:"status_code"`
	Body       []byte    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// BuildIdempotencyKey scopes a client key to the caller and the route it was sent to.
func BuildIdempotencyKey(userID int64, route, clientKey string) string {
	return strconv.FormatInt(userID, 10) + ":" + route + ":" + clientKey
}
