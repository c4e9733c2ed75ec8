package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vendora-market/orders-service/internal/middleware"
	"github.com/vendora-market/orders-service/internal/models"
)

// CreateOrder handles POST /api/v1/orders.
//
// For card orders the response carries the provider checkout link. When the
// session could not be opened the order is still created; the client gets a
// 202 with the order and can retry the payment.
func (h *Handlers) CreateOrder(c *gin.Context) {
	buyer, ok := middleware.BuyerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.orders.CreateOrder(c.Request.Context(), buyer, &req)
	if err != nil {
		if result != nil && result.Order != nil {
			// Order persisted but the payment session failed.
			c.JSON(http.StatusAccepted, gin.H{
				"order":        result.Order,
				"payment_link": "",
				"warning":      "payment session unavailable, retry via the pay endpoint",
			})
			return
		}
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order":        result.Order,
		"payment_link": result.PaymentLink,
	})
}

// GetOrder handles GET /api/v1/orders/:id.
func (h *Handlers) GetOrder(c *gin.Context) {
	buyer, ok := middleware.BuyerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"), buyer.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// ListOrders handles GET /api/v1/orders.
func (h *Handlers) ListOrders(c *gin.Context) {
	buyer, ok := middleware.BuyerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	orders, total, err := h.orders.ListOrders(c.Request.Context(), buyer.ID, limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// RetryPayment handles POST /api/v1/orders/:id/pay.
func (h *Handlers) RetryPayment(c *gin.Context) {
	buyer, ok := middleware.BuyerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	link, err := h.orders.RetryPayment(c.Request.Context(), c.Param("id"), buyer.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_link": link})
}

// CancelOrder handles POST /api/v1/orders/:id/cancel.
func (h *Handlers) CancelOrder(c *gin.Context) {
	buyer, ok := middleware.BuyerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	order, err := h.orders.CancelOrder(c.Request.Context(), c.Param("id"), buyer.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// MarkDelivered handles POST /api/v1/orders/:id/deliver. Called by the
// fulfillment surface, which performs its own vendor authorization before
// reaching this service.
func (h *Handlers) MarkDelivered(c *gin.Context) {
	order, err := h.orders.MarkDelivered(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.Info("order delivered",
		zap.String("order_id", order.ID),
		zap.String("buyer_id", order.BuyerID),
	)
	c.JSON(http.StatusOK, gin.H{"order": order})
}
