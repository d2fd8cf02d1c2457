package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	redisStore "truek-settlement/internal/adapter/storage/redis"
	"truek-settlement/internal/core/domain"
	"truek-settlement/internal/core/ports/mocks"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func setupIdempotencyRouter(t *testing.T, status int) (*gin.Engine, *int32, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var calls int32
	r := gin.New()
	r.POST("/api/v1/wallet/transfer", func(c *gin.Context) {
		c.Set(CtxUserID, int64(1))
		c.Next()
	}, Idempotency(redisStore.NewIdempotencyCache(client), zerolog.Nop()), func(c *gin.Context) {
		n := atomic.AddInt32(&calls, 1)
		c.JSON(status, gin.H{"call": n})
	})
	return r, &calls, mr
}

func postTransfer(r http.Handler, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/transfer", bytes.NewReader([]byte(`{}`)))
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysSuccess(t *testing.T) {
	r, calls, mr := setupIdempotencyRouter(t, http.StatusCreated)

	first := postTransfer(r, "key-1")
	second := postTransfer(r, "key-1")

	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(HeaderReplayed))

	ttl := mr.TTL("idempotency:1:POST /api/v1/wallet/transfer:key-1")
	assert.Equal(t, 24*time.Hour, ttl)
}

func TestIdempotency_DistinctKeysRunTwice(t *testing.T) {
	r, calls, _ := setupIdempotencyRouter(t, http.StatusCreated)

	postTransfer(r, "key-1")
	postTransfer(r, "key-2")

	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestIdempotency_NoHeaderPassesThrough(t *testing.T) {
	r, calls, _ := setupIdempotencyRouter(t, http.StatusCreated)

	postTransfer(r, "")
	w := postTransfer(r, "")

	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
	assert.Empty(t, w.Header().Get(HeaderReplayed))
}

func TestIdempotency_FailuresNotStored(t *testing.T) {
	r, calls, _ := setupIdempotencyRouter(t, http.StatusUnprocessableEntity)

	postTransfer(r, "key-1")
	postTransfer(r, "key-1")

	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestIdempotency_KeyTooLong(t *testing.T) {
	r, calls, _ := setupIdempotencyRouter(t, http.StatusCreated)

	w := postTransfer(r, strings.Repeat("k", maxIdempotencyKeyLen+1))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestIdempotency_CacheErrorProcessesRequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cache := mocks.NewMockIdempotencyCache(ctrl)
	cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, assert.AnError)
	cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), idempotencyTTL).
		DoAndReturn(func(ctx context.Context, _ string, resp *domain.IdempotentResponse, _ time.Duration) error {
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			return assert.AnError
		})

	r := gin.New()
	r.POST("/x", func(c *gin.Context) {
		c.Set(CtxUserID, int64(1))
		c.Next()
	}, Idempotency(cache, zerolog.Nop()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set(HeaderIdempotencyKey, "k")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIdempotency_RequiresUser(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	r := gin.New()
	r.POST("/x", Idempotency(mocks.NewMockIdempotencyCache(ctrl), zerolog.Nop()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set(HeaderIdempotencyKey, "k")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIdempotency_ConcurrentSameKeyInProgress(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	entered := make(chan struct{})
	unblock := make(chan struct{})
	var calls int32
	r := gin.New()
	r.POST("/api/v1/wallet/transfer", func(c *gin.Context) {
		c.Set(CtxUserID, int64(1))
		c.Next()
	}, Idempotency(redisStore.NewIdempotencyCache(client), zerolog.Nop()), func(c *gin.Context) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			close(entered)
			<-unblock
		}
		c.JSON(http.StatusCreated, gin.H{"call": n})
	})

	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- postTransfer(r, "key-1") }()
	<-entered

	dup := postTransfer(r, "key-1")
	assert.Equal(t, http.StatusConflict, dup.Code)
	assert.Contains(t, dup.Body.String(), "IDEM_001")

	close(unblock)
	first := <-done
	assert.Equal(t, http.StatusCreated, first.Code)

	retry := postTransfer(r, "key-1")
	assert.Equal(t, http.StatusCreated, retry.Code)
	assert.Equal(t, "true", retry.Header().Get(HeaderReplayed))
	assert.Equal(t, first.Body.String(), retry.Body.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.False(t, mr.Exists("idempotency:lock:1:POST /api/v1/wallet/transfer:key-1"))
}

func TestIdempotency_FailureReleasesReservation(t *testing.T) {
	r, _, mr := setupIdempotencyRouter(t, http.StatusUnprocessableEntity)

	postTransfer(r, "key-1")

	assert.False(t, mr.Exists("idempotency:lock:1:POST /api/v1/wallet/transfer:key-1"))
	assert.False(t, mr.Exists("idempotency:1:POST /api/v1/wallet/transfer:key-1"))
}

func TestIdempotency_PanicReleasesReservation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	r := gin.New()
	r.Use(Recovery(zerolog.Nop()))
	r.POST("/api/v1/wallet/transfer", func(c *gin.Context) {
		c.Set(CtxUserID, int64(1))
		c.Next()
	}, Idempotency(redisStore.NewIdempotencyCache(client), zerolog.Nop()), func(c *gin.Context) {
		panic("boom")
	})

	w := postTransfer(r, "key-1")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, mr.Exists("idempotency:lock:1:POST /api/v1/wallet/transfer:key-1"))
}

func TestIdempotency_ReservedKeyReplaysFinishedResponse(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	stored := &domain.IdempotentResponse{StatusCode: http.StatusCreated, Body: []byte(`{"call":1}`)}
	cache := mocks.NewMockIdempotencyCache(ctrl)
	gomock.InOrder(
		cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil),
		cache.EXPECT().Reserve(gomock.Any(), gomock.Any(), reservationTTL).Return(false, nil),
		cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(stored, nil),
	)

	var calls int32
	r := gin.New()
	r.POST("/x", func(c *gin.Context) {
		c.Set(CtxUserID, int64(1))
		c.Next()
	}, Idempotency(cache, zerolog.Nop()), func(c *gin.Context) {
		atomic.AddInt32(&calls, 1)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set(HeaderIdempotencyKey, "k")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, `{"call":1}`, w.Body.String())
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestIdempotency_ReserveErrorProcessesRequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cache := mocks.NewMockIdempotencyCache(ctrl)
	cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
	cache.EXPECT().Reserve(gomock.Any(), gomock.Any(), reservationTTL).Return(false, assert.AnError)
	cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), idempotencyTTL).Return(nil)

	r := gin.New()
	r.POST("/x", func(c *gin.Context) {
		c.Set(CtxUserID, int64(1))
		c.Next()
	}, Idempotency(cache, zerolog.Nop()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set(HeaderIdempotencyKey, "k")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
