package handler

import (
	"net/http"

	"potledger/internal/middleware"
	"potledger/internal/repository"

	"github.com/gin-gonic/gin"
)

type WalletHandler struct {
	walletRepo *repository.WalletRepository
}

func NewWalletHandler(walletRepo *repository.WalletRepository) *WalletHandler {
	return &WalletHandler{walletRepo: walletRepo}
}

// List returns the current user's wallets, pot wallets included.
func (h *WalletHandler) List(c *gin.Context) {
	list, err := h.walletRepo.ListByUserID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}
