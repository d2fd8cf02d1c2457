package handler

import (
	"context"

	"truek-settlement/internal/adapter/http/dto"
	"truek-settlement/internal/core/domain"
	"truek-settlement/internal/core/ports"
	"truek-settlement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// P2PHandler exposes the currency order book.
type P2PHandler struct {
	orderSvc ports.OrderService
}

// NewP2PHandler creates a new P2PHandler.
func NewP2PHandler(orderSvc ports.OrderService) *P2PHandler {
	return &P2PHandler{orderSvc: orderSvc}
}

// OrderBook handles GET /api/v1/p2p/orders.
func (h *P2PHandler) OrderBook(c *gin.Context) {
	orders, err := h.orderSvc.ListOrderBook(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, orders, len(orders), len(orders), 0)
}

// Get handles GET /api/v1/p2p/orders/:id.
func (h *P2PHandler) Get(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orderSvc.Get(c.Request.Context(), orderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, order)
}

// Create handles POST /api/v1/p2p/orders.
func (h *P2PHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.orderSvc.Create(c.Request.Context(), ports.CreateOrderRequest{
		CreatorID:      userID,
		Type:           domain.OrderType(req.Type),
		FiatAmount:     req.FiatAmount,
		CurrencyAmount: req.CurrencyAmount,
		Rate:           req.Rate,
		PaymentMethod:  req.PaymentMethod,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, order)
}

// My handles GET /api/v1/p2p/orders/my.
func (h *P2PHandler) My(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	orders, err := h.orderSvc.ListForUser(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, orders, len(orders), len(orders), 0)
}

// Take handles POST /api/v1/p2p/orders/:id/take.
func (h *P2PHandler) Take(c *gin.Context) {
	h.withOrder(c, h.orderSvc.Take)
}

// Paid handles POST /api/v1/p2p/orders/:id/paid.
func (h *P2PHandler) Paid(c *gin.Context) {
	h.withOrder(c, h.orderSvc.MarkPaid)
}

// Release handles POST /api/v1/p2p/orders/:id/release.
func (h *P2PHandler) Release(c *gin.Context) {
	h.withOrder(c, h.orderSvc.Release)
}

// Cancel handles POST /api/v1/p2p/orders/:id/cancel.
func (h *P2PHandler) Cancel(c *gin.Context) {
	h.withOrder(c, h.orderSvc.Cancel)
}

func (h *P2PHandler) withOrder(c *gin.Context, action func(context.Context, uuid.UUID, int64) (*domain.P2POrder, error)) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	order, err := action(c.Request.Context(), orderID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, order)
}
