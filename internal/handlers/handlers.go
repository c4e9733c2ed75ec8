package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vendora-market/orders-service/internal/config"
	"github.com/vendora-market/orders-service/internal/errs"
	"github.com/vendora-market/orders-service/internal/service"
)

// Handlers bundles the HTTP handlers and their dependencies.
type Handlers struct {
	orders     *service.OrderService
	reconciler *service.ReconciliationService
	config     *config.Config
	logger     *zap.Logger
}

// New creates the handler set.
func New(orders *service.OrderService, reconciler *service.ReconciliationService, cfg *config.Config, logger *zap.Logger) *Handlers {
	return &Handlers{
		orders:     orders,
		reconciler: reconciler,
		config:     cfg,
		logger:     logger,
	}
}

// respondError maps domain errors onto HTTP status codes in one place so
// every handler reports failures the same way.
func (h *Handlers) respondError(c *gin.Context, err error) {
	var (
		validationErr *errs.ValidationError
		stockErr      *errs.InsufficientStockError
		transitionErr *errs.InvalidTransitionError
		sessionErr    *errs.PaymentSessionError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": validationErr.Message,
			"field": validationErr.Field,
		})
	case errors.As(err, &stockErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":      "insufficient stock",
			"product_id": stockErr.ProductID,
			"available":  stockErr.Available,
			"requested":  stockErr.Requested,
		})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, gin.H{
			"error": "invalid order state for this action",
			"from":  transitionErr.From,
			"to":    transitionErr.To,
		})
	case errors.As(err, &sessionErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "payment provider unavailable, retry payment later",
		})
	case errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
	case errors.Is(err, errs.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
