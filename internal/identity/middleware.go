package identity

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

const ctxCallerClaims = "sovereign_caller_claims"

// RequireCaller returns a Gin middleware that enforces a valid Bearer caller
// token. On success it injects the *CallerClaims into the context.
func RequireCaller(tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
				"code":  "unauthenticated",
			})
			return
		}

		claims, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
				"code":  "unauthenticated",
			})
			return
		}

		c.Set(ctxCallerClaims, claims)
		c.Next()
	}
}

// ClaimsFromCtx retrieves the caller claims injected by RequireCaller.
func ClaimsFromCtx(c *gin.Context) *CallerClaims {
	v, _ := c.Get(ctxCallerClaims)
	claims, _ := v.(*CallerClaims)
	return claims
}

// CallerFromCtx returns the authenticated caller address, or the zero
// address when the request carried no valid token.
func CallerFromCtx(c *gin.Context) common.Address {
	if claims := ClaimsFromCtx(c); claims != nil {
		return claims.Caller()
	}
	return common.Address{}
}
