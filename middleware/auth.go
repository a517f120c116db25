package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const MerchantKey = "merchantID"

// AuthMiddleware guards the merchant-facing routes. The platform gateway
// authenticates the session and forwards the merchant identity in a header;
// the webhook route never goes through this.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		merchantID := c.GetHeader("X-Merchant-ID")
		if merchantID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(MerchantKey, merchantID)
		c.Next()
	}
}

func GetMerchantID(c *gin.Context) string {
	if val, exists := c.Get(MerchantKey); exists {
		return val.(string)
	}
	return ""
}
