package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/licenseboard/internal/auth/domain"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type meResponse struct {
	Username    string                  `json:"username"`
	DisplayName string                  `json:"display_name"`
	Role        authdomain.Role         `json:"role"`
	Permissions []authdomain.Permission `json:"permissions"`
	CanEdit     bool                    `json:"can_edit"`
	CompanyID   *int64                  `json:"company_id,omitempty"`
	PartnerID   *int64                  `json:"partner_id,omitempty"`
	ExpiresAt   string                  `json:"expires_at"`
}

func newMeResponse(p authdomain.Principal) meResponse {
	return meResponse{
		Username:    p.Username,
		DisplayName: p.DisplayName,
		Role:        p.Role,
		Permissions: p.Permissions,
		CanEdit:     p.CanEdit(),
		CompanyID:   p.CompanyID,
		PartnerID:   p.PartnerID,
		ExpiresAt:   p.ExpiresAt.UTC().Format(timeLayout),
	}
}

func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		AbortWithError(c, newValidationError("credentials", "required", "username and password are required"))
		return
	}

	result, err := s.authsvc.Login(c.Request.Context(), authdomain.LoginRequest{
		Username:  username,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		if s.auditSvc != nil && errors.Is(err, authdomain.ErrInvalidCredentials) {
			_ = s.auditSvc.AuditLog(c.Request.Context(), "auth.login_failed", "user", nil, map[string]any{
				"username":   username,
				"ip_address": c.ClientIP(),
			})
		}
		AbortWithError(c, err)
		return
	}

	s.sessions.Set(c, result.RawToken, result.ExpiresAt)
	c.JSON(http.StatusOK, newMeResponse(result.Principal))
}

func (s *Server) Logout(c *gin.Context) {
	token, ok := s.sessions.ReadToken(c)
	if !ok {
		s.sessions.Clear(c)
		c.Status(http.StatusNoContent)
		return
	}

	if err := s.authsvc.Logout(c.Request.Context(), token); err != nil && !isUnauthorized(err) {
		AbortWithError(c, err)
		return
	}

	s.sessions.Clear(c)
	c.Status(http.StatusNoContent)
}

func (s *Server) Me(c *gin.Context) {
	principal, err := s.authsvc.CurrentUser(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newMeResponse(*principal))
}

func isUnauthorized(err error) bool {
	status, _ := mapError(err)
	return status == http.StatusUnauthorized
}
