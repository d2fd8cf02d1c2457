package middleware

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"truek-settlement/internal/core/domain"
	"truek-settlement/internal/core/ports"
	"truek-settlement/pkg/apperror"
	"truek-settlement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"

	idempotencyTTL       = 24 * time.Hour
	reservationTTL       = time.Minute
	maxIdempotencyKeyLen = 128
)

type bodyCapture struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyCapture) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyCapture) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response when a caller repeats an
// Idempotency-Key on the same route. Keys are scoped per user. While the
// first request runs, the key is reserved and a repeat gets 409 IDEM_001.
// Only 2xx responses are stored, so a failed attempt releases the key and may
// be retried. Requests without the header pass through untouched. When Redis
// is unreachable the request is processed without protection. Must run after
// JWTAuth.
func Idempotency(cache ports.IdempotencyCache, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := c.GetHeader(HeaderIdempotencyKey)
		if clientKey == "" {
			c.Next()
			return
		}
		if len(clientKey) > maxIdempotencyKeyLen {
			response.Error(c, apperror.Validation("Idempotency-Key must be at most 128 characters"))
			return
		}

		userID, ok := UserID(c)
		if !ok {
			response.Error(c, apperror.ErrInvalidToken())
			return
		}
		key := domain.BuildIdempotencyKey(userID, c.Request.Method+" "+c.Request.URL.Path, clientKey)
		ctx := c.Request.Context()

		cached, err := cache.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Msg("idempotency lookup failed, processing request")
			process(c, cache, key, log)
			return
		}
		if cached != nil {
			replay(c, cached)
			return
		}

		reserved, err := cache.Reserve(ctx, key, reservationTTL)
		if err != nil {
			log.Warn().Err(err).Msg("idempotency reservation failed, processing request")
			process(c, cache, key, log)
			return
		}
		if !reserved {
			// the first request may have finished between Get and Reserve
			if cached, err := cache.Get(ctx, key); err == nil && cached != nil {
				replay(c, cached)
				return
			}
			response.Error(c, apperror.ErrRequestInProgress())
			return
		}

		// Runs on panic too, so a crashed handler does not hold the key.
		stored := false
		defer func() {
			if stored {
				return
			}
			if err := cache.Release(context.WithoutCancel(ctx), key); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("failed to release idempotency reservation")
			}
		}()
		stored = process(c, cache, key, log)
	}
}

func replay(c *gin.Context, cached *domain.IdempotentResponse) {
	c.Header(HeaderReplayed, "true")
	c.Data(cached.StatusCode, "application/json; charset=utf-8", cached.Body)
	c.Abort()
}

// process runs the handler chain and stores a 2xx response. It reports
// whether the response was stored.
func process(c *gin.Context, cache ports.IdempotencyCache, key string, log zerolog.Logger) bool {
	capture := &bodyCapture{ResponseWriter: c.Writer}
	c.Writer = capture
	c.Next()

	status := capture.Status()
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return false
	}

	resp := &domain.IdempotentResponse{
		StatusCode: status,
		Body:       capture.buf.Bytes(),
		CreatedAt:  time.Now().UTC(),
	}
	// The request context may already be cancelled by the time we get here.
	if err := cache.Set(context.WithoutCancel(c.Request.Context()), key, resp, idempotencyTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to store idempotent response")
		return false
	}
	return true
}
