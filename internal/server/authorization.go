package server

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// authorize enforces the RBAC policy for object and action on the authenticated principal.
func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizeWithContext(c, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeWithContext(c *gin.Context, object string, action string) error {
	principal, ok := principalFromContext(c)
	if !ok {
		return ErrUnauthorized
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}
	return s.authzSvc.Authorize(
		c.Request.Context(),
		principal.Subject(),
		string(principal.Role),
		strings.TrimSpace(object),
		strings.TrimSpace(action),
	)
}
