package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vendora-market/orders-service/internal/service"
)

// PaymentCallback handles GET /payment-callback, the browser redirect from
// the payment provider. The status query parameter is advisory only; the
// reconciler re-verifies server-to-server before touching the order.
//
// The endpoint is unauthenticated: the buyer arrives here from the
// provider's checkout page, possibly without a session.
func (h *Handlers) PaymentCallback(c *gin.Context) {
	transactionID := c.Query("transaction_id")
	txRef := c.Query("tx_ref")

	if txRef == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing tx_ref"})
		return
	}

	h.logger.Info("payment callback received",
		zap.String("tx_ref", txRef),
		zap.String("transaction_id", transactionID),
		zap.String("advisory_status", c.Query("status")),
	)

	outcome, _, err := h.reconciler.Reconcile(c.Request.Context(), transactionID, txRef)

	switch outcome {
	case service.OutcomePaid, service.OutcomeReplay:
		c.Redirect(http.StatusFound, h.config.Orders.SuccessURL)
	case service.OutcomeFailed:
		c.Redirect(http.StatusFound, h.config.Orders.FailureURL)
	case service.OutcomeUnknown:
		// Acknowledged so the provider stops redelivering.
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	default:
		h.logger.Error("reconciliation deferred", zap.String("tx_ref", txRef), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "verification unavailable, callback will be retried"})
	}
}
