package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"truek-settlement/internal/core/domain"
	"truek-settlement/internal/core/ports"
	"truek-settlement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog creates an audit middleware that records successful write
// operations. Routes are matched on their registered pattern.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			return
		}

		action, resourceType := mapRouteToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		var actorID *int64
		if id, ok := UserID(c); ok {
			actorID = &id
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"request_id": c.GetString(response.RequestIDKey),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			ActorID:      actorID,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   c.Param("id"),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now().UTC(),
		})
	}
}

func mapRouteToAction(route, method string) (domain.AuditAction, string) {
	switch method + " " + route {
	case "POST /api/v1/wallet/transfer":
		return domain.AuditActionTransfer, "wallet"
	case "POST /api/v1/admin/wallet/adjust":
		return domain.AuditActionAdjust, "wallet"
	case "POST /api/v1/trades":
		return domain.AuditActionTradeCreate, "trade"
	case "PUT /api/v1/trades/:id/offer":
		return domain.AuditActionTradeOffer, "trade"
	case "PATCH /api/v1/trades/:id/accept":
		return domain.AuditActionTradeAccept, "trade"
	case "PATCH /api/v1/trades/:id/cancel":
		return domain.AuditActionTradeCancel, "trade"
	case "POST /api/v1/trades/:id/complete":
		return domain.AuditActionTradeComplete, "trade"
	case "POST /api/v1/trades/:id/messages":
		return domain.AuditActionTradeMessage, "trade"
	case "POST /api/v1/p2p/orders":
		return domain.AuditActionOrderCreate, "p2p_order"
	case "POST /api/v1/p2p/orders/:id/take":
		return domain.AuditActionOrderTake, "p2p_order"
	case "POST /api/v1/p2p/orders/:id/paid":
		return domain.AuditActionOrderPaid, "p2p_order"
	case "POST /api/v1/p2p/orders/:id/release":
		return domain.AuditActionOrderRelease, "p2p_order"
	case "POST /api/v1/p2p/orders/:id/cancel":
		return domain.AuditActionOrderCancel, "p2p_order"
	}
	return "", ""
}
