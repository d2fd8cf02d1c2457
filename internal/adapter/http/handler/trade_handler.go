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

// TradeHandler exposes the barter negotiation endpoints.
type TradeHandler struct {
	tradeSvc ports.TradeService
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(tradeSvc ports.TradeService) *TradeHandler {
	return &TradeHandler{tradeSvc: tradeSvc}
}

func toTerms(req dto.TradeTermsRequest) domain.TradeTerms {
	return domain.TradeTerms{
		OfferedListingID: req.OfferedListingID,
		OfferedAmount:    req.OfferedAmount,
		RequestedAmount:  req.RequestedAmount,
		Message:          req.Message,
	}
}

// Create handles POST /api/v1/trades.
func (h *TradeHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.CreateTradeRequest
	if !bindJSON(c, &req) {
		return
	}

	trade, err := h.tradeSvc.Create(c.Request.Context(), ports.CreateTradeRequest{
		RequesterID:     userID,
		TargetListingID: req.TargetListingID,
		Terms:           toTerms(req.TradeTermsRequest),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, trade)
}

// My handles GET /api/v1/trades/my.
func (h *TradeHandler) My(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	trades, err := h.tradeSvc.ListForUser(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, trades, len(trades), len(trades), 0)
}

// Get handles GET /api/v1/trades/:id.
func (h *TradeHandler) Get(c *gin.Context) {
	h.withTrade(c, h.tradeSvc.Get)
}

// Offer handles PUT /api/v1/trades/:id/offer.
func (h *TradeHandler) Offer(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	tradeID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req dto.CounterOfferRequest
	if !bindJSON(c, &req) {
		return
	}

	trade, err := h.tradeSvc.CounterOffer(c.Request.Context(), tradeID, userID, toTerms(req.TradeTermsRequest))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, trade)
}

// Accept handles PATCH /api/v1/trades/:id/accept.
func (h *TradeHandler) Accept(c *gin.Context) {
	h.withTrade(c, h.tradeSvc.Accept)
}

// Cancel handles PATCH /api/v1/trades/:id/cancel.
func (h *TradeHandler) Cancel(c *gin.Context) {
	h.withTrade(c, h.tradeSvc.Cancel)
}

// Complete handles POST /api/v1/trades/:id/complete.
func (h *TradeHandler) Complete(c *gin.Context) {
	h.withTrade(c, h.tradeSvc.Complete)
}

// ListMessages handles GET /api/v1/trades/:id/messages.
func (h *TradeHandler) ListMessages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	tradeID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	msgs, err := h.tradeSvc.ListMessages(c.Request.Context(), tradeID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, msgs, len(msgs), len(msgs), 0)
}

// SendMessage handles POST /api/v1/trades/:id/messages.
func (h *TradeHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	tradeID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req dto.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	msg, err := h.tradeSvc.SendMessage(c.Request.Context(), tradeID, userID, req.Body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}

type tradeAction func(ctx context.Context, tradeID uuid.UUID, actorID int64) (*domain.Trade, error)

func (h *TradeHandler) withTrade(c *gin.Context, action tradeAction) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	tradeID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	trade, err := action(c.Request.Context(), tradeID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, trade)
}
