package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/revaspay/storefront/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxLedgerPageSize = 100

// WalletReader is the read side of the balance ledger
type WalletReader interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetLedger(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]models.PayoutLedgerEntry, int64, error)
}

// AdminWalletHandler handles admin wallet-related requests
type AdminWalletHandler struct {
	db      *gorm.DB
	wallets WalletReader
	logger  *zap.Logger
}

// NewAdminWalletHandler creates a new admin wallet handler
func NewAdminWalletHandler(db *gorm.DB, wallets WalletReader, logger *zap.Logger) *AdminWalletHandler {
	return &AdminWalletHandler{
		db:      db,
		wallets: wallets,
		logger:  logger,
	}
}

// GetUserWallet returns a user's reward balance
func (h *AdminWalletHandler) GetUserWallet(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	wallet, err := h.wallets.GetWallet(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("Failed to get wallet", zap.String("user_id", user.ID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get wallet"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":        user.ID,
		"wallet_address": user.WalletAddress,
		"rank":           user.Rank,
		"balance":        wallet.Balance,
	})
}

// GetUserLedger returns a page of a user's payout ledger, newest first
func (h *AdminWalletHandler) GetUserLedger(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxLedgerPageSize {
		pageSize = 20
	}

	entries, total, err := h.wallets.GetLedger(c.Request.Context(), user.ID, page, pageSize)
	if err != nil {
		h.logger.Error("Failed to get ledger", zap.String("user_id", user.ID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get ledger"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"pagination": gin.H{
			"total":     total,
			"page":      page,
			"page_size": pageSize,
		},
	})
}

func (h *AdminWalletHandler) loadUser(c *gin.Context) (*models.User, bool) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return nil, false
	}

	var user models.User
	err = h.db.WithContext(c.Request.Context()).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user"})
		return nil, false
	}
	return &user, true
}
