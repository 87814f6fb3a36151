package middleware

import (
	"net/http"
	"strings"

	"RentChat/store"
	"RentChat/tools/errs"
	"RentChat/tools/security"

	"github.com/gin-gonic/gin"
)

// CtxUserKey 认证通过后用户ID写入 gin context 的键。
const CtxUserKey = "userId"

// Auth JWT 鉴权中间件：校验 Bearer token，加载用户并拦截封禁账号。
// 通过后 handler 用 UserID(c) 取当前用户。
func Auth(opts security.Options, users store.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				token = strings.TrimSpace(authz[len("bearer "):])
			}
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": errs.ErrAuth.Code, "msg": "missing token"})
			return
		}

		sub, err := security.VerifySubject(opts, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": errs.ErrAuth.Code, "msg": errs.ErrAuth.Msg})
			return
		}
		u, err := users.FindUser(c.Request.Context(), sub)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": errs.ErrAuth.Code, "msg": "unknown user"})
			return
		}
		if u.Blocked {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": errs.ErrUserBlocked.Code, "msg": errs.ErrUserBlocked.Msg})
			return
		}

		c.Set(CtxUserKey, u.ID)
		c.Next()
	}
}

// UserID 取出 Auth 中间件写入的用户ID。
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserKey)
}
