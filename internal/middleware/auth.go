package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/vendora-market/orders-service/internal/models"
)

const buyerContextKey = "vendora.buyer"

// BuyerAuth validates the Bearer JWT issued by the auth service and injects
// the buyer identity into the request context. The identity is trusted; any
// price or role data in the request body is not.
func BuyerAuth(secret string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		parts := strings.SplitN(raw, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			logger.Debug("token validation failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		sub, _ := claims["sub"].(string)
		if strings.TrimSpace(sub) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		email, _ := claims["email"].(string)
		name, _ := claims["name"].(string)

		c.Set(buyerContextKey, models.Buyer{ID: sub, Email: email, Name: name})
		c.Next()
	}
}

// BuyerFrom extracts the authenticated buyer from the gin context.
func BuyerFrom(c *gin.Context) (models.Buyer, bool) {
	v, ok := c.Get(buyerContextKey)
	if !ok {
		return models.Buyer{}, false
	}
	buyer, ok := v.(models.Buyer)
	return buyer, ok
}
