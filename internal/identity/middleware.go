package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ctxAccount = "careerledger_account"

	// AccountHeader carries the acting account in development mode.
	AccountHeader = "X-Account"
)

// RequireAccount returns a Gin middleware that resolves the acting account.
//
// With tokens set it enforces a valid Bearer session token and uses its
// subject. With tokens nil it reads the X-Account header. Either way the
// request is aborted with 401 when no account can be resolved.
func RequireAccount(tokens *AccountTokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokens == nil {
			account := strings.TrimSpace(c.GetHeader(AccountHeader))
			if account == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": AccountHeader + " header required",
				})
				return
			}
			c.Set(ctxAccount, account)
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer session token required",
			})
			return
		}
		claims, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid session token: " + err.Error(),
			})
			return
		}
		c.Set(ctxAccount, claims.Account())
		c.Next()
	}
}

// AccountFromCtx returns the account resolved by RequireAccount, or "".
func AccountFromCtx(c *gin.Context) string {
	v, _ := c.Get(ctxAccount)
	s, _ := v.(string)
	return s
}
