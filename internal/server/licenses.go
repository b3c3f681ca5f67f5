package server

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/licenseboard/internal/activity"
	licensedomain "github.com/smallbiznis/licenseboard/internal/license/domain"
)

const maxImportBytes = 10 << 20

func (s *Server) ListLicenses(c *gin.Context) {
	view, err := parseViewState(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	scope, err := s.scopeFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	licenses, err := s.dashboards.Licenses(c.Request.Context(), view, scope)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": licenses})
}

func (s *Server) GetLicense(c *gin.Context) {
	license, err := s.licenses.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	scope, err := s.scopeFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	visible, err := s.licenseVisible(c, license, scope)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !visible {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": license})
}

func (s *Server) CreateLicense(c *gin.Context) {
	var req licensedomain.CreateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	license, err := s.licenses.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": license})
}

func (s *Server) UpdateLicense(c *gin.Context) {
	var req licensedomain.UpdateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	license, err := s.licenses.Update(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": license})
}

func (s *Server) DeleteLicense(c *gin.Context) {
	if err := s.licenses.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ImportLicenses(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)

	header, err := c.FormFile("file")
	if err != nil {
		AbortWithError(c, newValidationError("file", "required", "a CSV file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		AbortWithError(c, newValidationError("file", "unreadable", "the uploaded file could not be read"))
		return
	}
	defer file.Close()

	result, err := s.licenses.Import(c.Request.Context(), file)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ExportLicensesCSV(c *gin.Context) {
	view, err := parseViewState(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	scope, err := s.scopeFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	licenses, err := s.dashboards.Licenses(c.Request.Context(), view, scope)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := s.licenses.ExportCSV(c.Request.Context(), &buf, licenses); err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditExport(c, "license.exported", "license", map[string]any{
		"mode":  string(view.Mode),
		"count": len(licenses),
	})

	filename := "licenses-" + s.clock.Now().UTC().Format(dateOnlyLayout) + ".csv"
	c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// licenseVisible applies the caller's owner scope to a single record.
func (s *Server) licenseVisible(c *gin.Context, license licensedomain.License, scope activity.RoleScope) (bool, error) {
	switch scope.Role {
	case activity.ScopeAdmin, "":
		return true, nil
	case activity.ScopeCompany:
		return scope.CompanyID != nil && license.CompanyID != nil && *license.CompanyID == *scope.CompanyID, nil
	case activity.ScopePartner:
		if scope.PartnerID == nil {
			return false, nil
		}
		if license.PartnerID != nil {
			return *license.PartnerID == *scope.PartnerID, nil
		}
		if license.CompanyID == nil {
			return false, nil
		}
		company, err := s.refrepo.GetCompany(c.Request.Context(), *license.CompanyID)
		if err != nil {
			return false, err
		}
		return company != nil && company.PartnerID != nil && *company.PartnerID == *scope.PartnerID, nil
	default:
		return false, nil
	}
}
