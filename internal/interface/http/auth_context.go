package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/cashtags/internal/domain/auth"
)

const authClaimsKey = "auth_claims"

func setClaims(c *gin.Context, claims auth.Claims) {
	c.Set(authClaimsKey, claims)
}

func getClaims(c *gin.Context) (auth.Claims, bool) {
	value, ok := c.Get(authClaimsKey)
	if !ok {
		return auth.Claims{}, false
	}
	claims, ok := value.(auth.Claims)
	return claims, ok
}

// requireClaims aborts with 401 when the request carries no validated token.
func requireClaims(c *gin.Context) (auth.Claims, bool) {
	claims, ok := getClaims(c)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", "missing token", nil))
	}
	return claims, ok
}
