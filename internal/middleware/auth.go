package middleware

import (
	apiError "diagnostic-service/internal/errors"
	"diagnostic-service/internal/remote"
	"diagnostic-service/internal/tokencache"
	"strings"

	"github.com/gin-gonic/gin"
)

type Auth struct {
	Verifier remote.RoleVerifier
	Cache    *tokencache.Cache
}

// RequireRoles gates a route on the auth service's verdict for the given
// role set. The token comes from the Authorization header, or from a
// `token` query parameter as a fallback for embedded document viewers.
// Verified identities are cached briefly so hot tokens skip the round trip.
func (m *Auth) RequireRoles(allowedRoles ...string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			if tokenQuery := ctx.Query("token"); tokenQuery != "" {
				authHeader = "Bearer " + tokenQuery
			}
		}

		if authHeader == "" {
			ctx.Error(apiError.Unauthorized("No token provided", nil))
			ctx.Abort()
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")

		user := m.Cache.Get(ctx.Request.Context(), token, allowedRoles)
		if user == nil {
			var err error
			user, err = m.Verifier.VerifyRoles(ctx.Request.Context(), authHeader, allowedRoles)
			if err != nil {
				ctx.Error(err)
				ctx.Abort()
				return
			}
			m.Cache.Set(ctx.Request.Context(), token, allowedRoles, user)
		}

		ctx.Set("user", user)
		ctx.Set("user_id", user.ID)
		ctx.Set("auth_header", authHeader)
		ctx.Next()
	}
}
