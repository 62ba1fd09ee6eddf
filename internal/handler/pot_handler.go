package handler

import (
	"net/http"

	"potledger/internal/domain"
	"potledger/internal/middleware"
	"potledger/internal/pot"

	"github.com/gin-gonic/gin"
)

type PotHandler struct {
	pots *pot.Manager
}

func NewPotHandler(pots *pot.Manager) *PotHandler {
	return &PotHandler{pots: pots}
}

// ownedPot loads the :id pot and hides pots of other users behind a 404.
func (h *PotHandler) ownedPot(c *gin.Context) (*pot.PotView, bool) {
	v, err := h.pots.GetPot(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if v.UserID != middleware.GetUserID(c) {
		respondError(c, domain.NotFoundf("pot %s not found", c.Param("id")))
		return nil, false
	}
	return v, true
}

func (h *PotHandler) ownsWallet(c *gin.Context, walletID string) bool {
	if walletID == "" {
		return true
	}
	if err := h.pots.CheckWalletOwner(c.Request.Context(), walletID, middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return false
	}
	return true
}

// Create handles POST /pots.
func (h *PotHandler) Create(c *gin.Context) {
	var req pot.CreatePotRequest
	if !bindJSON(c, &req) {
		return
	}
	req.UserID = middleware.GetUserID(c)
	if req.AutoDeposit != nil && req.AutoDeposit.Enabled && !h.ownsWallet(c, req.AutoDeposit.SourceWalletID) {
		return
	}
	v, err := h.pots.CreatePot(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

// List handles GET /pots.
func (h *PotHandler) List(c *gin.Context) {
	page, limit := parsePagination(c)
	views, total, err := h.pots.ListUserPots(c.Request.Context(), middleware.GetUserID(c), c.Query("status"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": views, "total": total, "page": page, "limit": limit})
}

// Get handles GET /pots/:id.
func (h *PotHandler) Get(c *gin.Context) {
	v, ok := h.ownedPot(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, v)
}

// Update handles PATCH /pots/:id.
func (h *PotHandler) Update(c *gin.Context) {
	v, ok := h.ownedPot(c)
	if !ok {
		return
	}
	var req pot.UpdatePotRequest
	if !bindJSON(c, &req) {
		return
	}
	req.PotID = v.ID
	if req.AutoDepositSourceWalletID != nil && !h.ownsWallet(c, *req.AutoDepositSourceWalletID) {
		return
	}
	updated, err := h.pots.UpdatePot(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Contribute handles POST /pots/:id/contributions.
func (h *PotHandler) Contribute(c *gin.Context) {
	v, ok := h.ownedPot(c)
	if !ok {
		return
	}
	var req pot.ContributeRequest
	if !bindJSON(c, &req) {
		return
	}
	req.PotID = v.ID
	if !h.ownsWallet(c, req.SourceWalletID) {
		return
	}
	rec, err := h.pots.Contribute(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": rec})
}

// Withdraw handles POST /pots/:id/withdrawals.
func (h *PotHandler) Withdraw(c *gin.Context) {
	v, ok := h.ownedPot(c)
	if !ok {
		return
	}
	var req pot.WithdrawRequest
	if !bindJSON(c, &req) {
		return
	}
	req.PotID = v.ID
	if !h.ownsWallet(c, req.DestinationWalletID) {
		return
	}
	res, err := h.pots.Withdraw(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Eligibility handles GET /pots/:id/eligibility.
func (h *PotHandler) Eligibility(c *gin.Context) {
	v, ok := h.ownedPot(c)
	if !ok {
		return
	}
	e, err := h.pots.CheckWithdrawalEligibility(c.Request.Context(), v.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// Close handles POST /pots/:id/close. The destination is only needed when the
// pot still holds money.
func (h *PotHandler) Close(c *gin.Context) {
	v, ok := h.ownedPot(c)
	if !ok {
		return
	}
	var req struct {
		DestinationWalletID string `json:"destination_wallet_id"`
	}
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	if !h.ownsWallet(c, req.DestinationWalletID) {
		return
	}
	res, err := h.pots.ClosePot(c.Request.Context(), v.ID, req.DestinationWalletID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Transactions handles GET /pots/:id/transactions.
func (h *PotHandler) Transactions(c *gin.Context) {
	v, ok := h.ownedPot(c)
	if !ok {
		return
	}
	page, limit := parsePagination(c)
	list, total, err := h.pots.ListTransactions(c.Request.Context(), v.ID, c.Query("type"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}
