package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminTokenHeader 管理令牌请求头
const AdminTokenHeader = "X-Admin-Token"

// AdminAuth 管理接口鉴权中间件
// token 为空时不做校验 (仅限开发环境)
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		provided := c.GetHeader(AdminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "invalid admin token",
			})
			return
		}

		c.Next()
	}
}
