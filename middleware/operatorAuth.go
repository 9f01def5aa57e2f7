package middleware

import (
	"net/http"
	"strings"

	"parley/utils"

	"github.com/gin-gonic/gin"
)

// OperatorKey is the context key holding the authenticated operator.
const OperatorKey = "operator"

// OperatorAuthMiddleware requires a bearer operator token signed with secret.
// An empty secret leaves the operator API open, which is only meant for local runs.
func OperatorAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		operator, err := utils.ExtractOperatorFromToken([]byte(secret), tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized operator access"})
			return
		}

		c.Set(OperatorKey, operator)
		c.Next()
	}
}
