package handler

import (
	"net/http"
	"strconv"

	"potledger/internal/domain"
	"potledger/internal/middleware"
	"potledger/internal/pot"
	"potledger/internal/repository"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	admin         *pot.Admin
	pots          *pot.Manager
	compensations *repository.CompensationRepository
}

func NewAdminHandler(admin *pot.Admin, pots *pot.Manager, compensations *repository.CompensationRepository) *AdminHandler {
	return &AdminHandler{admin: admin, pots: pots, compensations: compensations}
}

// ListPots handles GET /admin/pots.
func (h *AdminHandler) ListPots(c *gin.Context) {
	page, limit := parsePagination(c)
	f := repository.PotFilter{Status: c.Query("status"), UserID: c.Query("user_id")}
	views, total, err := h.admin.ListPots(c.Request.Context(), f, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": views, "total": total, "page": page, "limit": limit})
}

// ToggleLock handles POST /admin/pots/:id/lock.
func (h *AdminHandler) ToggleLock(c *gin.Context) {
	var req struct {
		Locked *bool  `json:"locked" binding:"required"`
		Reason string `json:"reason"`
	}
	if !bindJSON(c, &req) {
		return
	}
	v, err := h.admin.ToggleLock(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), *req.Locked, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// TransactionByReference handles GET /admin/transactions/:reference.
func (h *AdminHandler) TransactionByReference(c *gin.Context) {
	tx, err := h.admin.TransactionByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// ForceUnlock handles POST /admin/pots/:id/force-unlock.
func (h *AdminHandler) ForceUnlock(c *gin.Context) {
	v, err := h.admin.ForceUnlock(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *AdminHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.admin.Settings())
}

// UpdateSettings handles PUT /admin/pot-settings. Omitted keys keep their value.
func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	var patch pot.SettingsPatch
	if !bindJSON(c, &patch) {
		return
	}
	s, err := h.admin.UpdateSettings(c.Request.Context(), patch, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// ListCompensations handles GET /admin/compensations.
func (h *AdminHandler) ListCompensations(c *gin.Context) {
	status := c.Query("status")
	switch status {
	case "", domain.CompensationPending, domain.CompensationResolved, domain.CompensationAbandoned:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	page, limit := parsePagination(c)
	list, total, err := h.compensations.List(c.Request.Context(), status, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}

// DueAutoDeposits handles GET /admin/auto-deposits/due.
func (h *AdminHandler) DueAutoDeposits(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	list, err := h.pots.DueAutoDeposits(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// RunAutoDeposit handles POST /admin/pots/:id/auto-deposit/run.
func (h *AdminHandler) RunAutoDeposit(c *gin.Context) {
	res, err := h.pots.ProcessAutoDeposit(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
