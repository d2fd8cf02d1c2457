package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"truek-settlement/internal/core/domain"
	"truek-settlement/internal/core/ports/mocks"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestAuditLog_TradeComplete(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAudit := mocks.NewMockAuditService(ctrl)
	tradeID := uuid.New()

	done := make(chan *domain.AuditLog, 1)
	mockAudit.EXPECT().Log(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, entry *domain.AuditLog) {
			done <- entry
		},
	)

	r := gin.New()
	r.Use(AuditLog(mockAudit))
	r.POST("/api/v1/trades/:id/complete", func(c *gin.Context) {
		c.Set(CtxUserID, int64(7))
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/trades/"+tradeID.String()+"/complete", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	select {
	case entry := <-done:
		assert.Equal(t, domain.AuditActionTradeComplete, entry.Action)
		assert.Equal(t, "trade", entry.ResourceType)
		assert.Equal(t, tradeID.String(), entry.ResourceID)
		require.NotNil(t, entry.ActorID)
		assert.Equal(t, int64(7), *entry.ActorID)
	case <-time.After(time.Second):
		t.Fatal("audit not called")
	}
}

func TestAuditLog_SkipsGET(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAudit := mocks.NewMockAuditService(ctrl)

	r := gin.New()
	r.Use(AuditLog(mockAudit))
	r.GET("/api/v1/trades/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/trades/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuditLog_SkipsFailedRequests(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAudit := mocks.NewMockAuditService(ctrl)

	r := gin.New()
	r.Use(AuditLog(mockAudit))
	r.POST("/api/v1/wallet/transfer", func(c *gin.Context) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error_code": "FUND_001"})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/wallet/transfer", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestMapRouteToAction(t *testing.T) {
	tests := []struct {
		route, method string
		action        domain.AuditAction
		resource      string
	}{
		{"/api/v1/wallet/transfer", "POST", domain.AuditActionTransfer, "wallet"},
		{"/api/v1/admin/wallet/adjust", "POST", domain.AuditActionAdjust, "wallet"},
		{"/api/v1/trades", "POST", domain.AuditActionTradeCreate, "trade"},
		{"/api/v1/trades/:id/offer", "PUT", domain.AuditActionTradeOffer, "trade"},
		{"/api/v1/trades/:id/accept", "PATCH", domain.AuditActionTradeAccept, "trade"},
		{"/api/v1/trades/:id/cancel", "PATCH", domain.AuditActionTradeCancel, "trade"},
		{"/api/v1/trades/:id/complete", "POST", domain.AuditActionTradeComplete, "trade"},
		{"/api/v1/trades/:id/messages", "POST", domain.AuditActionTradeMessage, "trade"},
		{"/api/v1/p2p/orders", "POST", domain.AuditActionOrderCreate, "p2p_order"},
		{"/api/v1/p2p/orders/:id/take", "POST", domain.AuditActionOrderTake, "p2p_order"},
		{"/api/v1/p2p/orders/:id/paid", "POST", domain.AuditActionOrderPaid, "p2p_order"},
		{"/api/v1/p2p/orders/:id/release", "POST", domain.AuditActionOrderRelease, "p2p_order"},
		{"/api/v1/p2p/orders/:id/cancel", "POST", domain.AuditActionOrderCancel, "p2p_order"},
		{"/api/v1/trades/:id/accept", "POST", "", ""},
		{"/api/v1/unknown", "POST", "", ""},
	}

	for _, tt := range tests {
		action, resource := mapRouteToAction(tt.route, tt.method)
		assert.Equal(t, tt.action, action, "%s %s", tt.method, tt.route)
		assert.Equal(t, tt.resource, resource, "%s %s", tt.method, tt.route)
	}
}
