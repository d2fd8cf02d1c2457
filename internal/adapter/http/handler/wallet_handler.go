package handler

import (
	"strconv"

	"truek-settlement/internal/adapter/http/dto"
	"truek-settlement/internal/core/domain"
	"truek-settlement/internal/core/ports"
	"truek-settlement/pkg/apperror"
	"truek-settlement/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler handles wallet endpoints for users and admins.
type WalletHandler struct {
	walletSvc ports.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

// Me handles GET /api/v1/wallet/me.
func (h *WalletHandler) Me(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	wallet, err := h.walletSvc.GetWallet(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, wallet)
}

// Transfer handles POST /api/v1/wallet/transfer.
func (h *WalletHandler) Transfer(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.TransferRequest
	if !bindJSON(c, &req) {
		return
	}

	entries, err := h.walletSvc.Transfer(c.Request.Context(), ports.TransferRequest{
		FromID:    userID,
		ToID:      req.ToUserID,
		Amount:    req.Amount,
		Reference: req.Reference,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entries)
}

// Adjust handles POST /api/v1/admin/wallet/adjust.
func (h *WalletHandler) Adjust(c *gin.Context) {
	var req dto.AdjustRequest
	if !bindJSON(c, &req) {
		return
	}

	entry, err := h.walletSvc.AdjustBalance(c.Request.Context(), ports.AdjustRequest{
		UserID: req.UserID,
		Amount: req.Amount,
		Kind:   domain.EntryKind(req.Kind),
		Reason: req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Verify handles GET /api/v1/admin/wallet/:userId/verify.
func (h *WalletHandler) Verify(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || userID <= 0 {
		response.Error(c, apperror.Validation("Invalid userId"))
		return
	}

	report, err := h.walletSvc.VerifyBalance(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}
