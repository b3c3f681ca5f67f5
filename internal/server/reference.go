package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/licenseboard/internal/activity"
	referencedomain "github.com/smallbiznis/licenseboard/internal/reference/domain"
)

func (s *Server) ListCompanies(c *gin.Context) {
	scope, err := s.scopeFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	companies, err := s.refrepo.ListActiveCompanies(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	visible := make([]referencedomain.Company, 0, len(companies))
	for _, company := range companies {
		if companyInScope(company, scope) {
			visible = append(visible, company)
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": visible})
}

func (s *Server) ListPartners(c *gin.Context) {
	scope, err := s.scopeFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	partners, err := s.refrepo.ListActivePartners(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	visible := make([]referencedomain.Partner, 0, len(partners))
	for _, partner := range partners {
		if partnerInScope(partner.ID, scope) {
			visible = append(visible, partner)
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": visible})
}

func (s *Server) ListProductCodes(c *gin.Context) {
	codes, err := s.refrepo.ListProductCodes(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": codes})
}

func (s *Server) ListCurrencies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.dashboardCfg.Get().Currencies})
}

func companyInScope(company referencedomain.Company, scope activity.RoleScope) bool {
	switch scope.Role {
	case activity.ScopeAdmin, "":
		return true
	case activity.ScopeCompany:
		return scope.CompanyID != nil && company.ID == *scope.CompanyID
	case activity.ScopePartner:
		return scope.PartnerID != nil && company.PartnerID != nil && *company.PartnerID == *scope.PartnerID
	default:
		return false
	}
}

func partnerInScope(partnerID int64, scope activity.RoleScope) bool {
	switch scope.Role {
	case activity.ScopeAdmin, "":
		return true
	case activity.ScopePartner:
		return scope.PartnerID != nil && partnerID == *scope.PartnerID
	default:
		return false
	}
}
