package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/licenseboard/internal/activity"
	authdomain "github.com/smallbiznis/licenseboard/internal/auth/domain"
	obscontext "github.com/smallbiznis/licenseboard/internal/observability/context"
)

const contextPrincipalKey = "principal"

// AuthRequired resolves the session cookie into a principal on the request context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok || strings.TrimSpace(token) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.authsvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			s.sessions.Clear(c)
			AbortWithError(c, err)
			return
		}

		ctx := authdomain.WithPrincipal(c.Request.Context(), *principal)
		ctx = obscontext.WithActor(ctx, string(principal.Role), principal.Username)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextPrincipalKey, *principal)
		c.Next()
	}
}

func principalFromContext(c *gin.Context) (authdomain.Principal, bool) {
	if c == nil {
		return authdomain.Principal{}, false
	}
	if value, ok := c.Get(contextPrincipalKey); ok {
		if principal, ok := value.(authdomain.Principal); ok {
			return principal, true
		}
	}
	return authdomain.PrincipalFromContext(c.Request.Context())
}

// roleScope maps the caller onto the owners it may see. Unbound accounts see everything.
func roleScope(principal authdomain.Principal) activity.RoleScope {
	switch {
	case principal.CompanyID != nil:
		return activity.CompanyScope(*principal.CompanyID)
	case principal.PartnerID != nil:
		return activity.PartnerScope(*principal.PartnerID)
	default:
		return activity.AdminScope()
	}
}

func (s *Server) scopeFromContext(c *gin.Context) (activity.RoleScope, error) {
	principal, ok := principalFromContext(c)
	if !ok {
		return activity.RoleScope{}, ErrUnauthorized
	}
	return roleScope(principal), nil
}
