package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/licenseboard/internal/activity"
	activitylogdomain "github.com/smallbiznis/licenseboard/internal/activitylog/domain"
)

type logsQuery struct {
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
	UserID    string `form:"user_id"`
	CompanyID string `form:"company_id"`
	PartnerID string `form:"partner_id"`
	LogType   string `form:"log_type"`
	Limit     string `form:"limit"`
}

func (s *Server) ListActivityLogs(c *gin.Context) {
	req, err := s.parseLogsRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	entries, err := s.activityLogs.UnifiedLogs(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (s *Server) GetActivityLogSummary(c *gin.Context) {
	req, err := s.parseLogsRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	summary, err := s.activityLogs.Summary(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

// GetActivityLogFilters narrows the owner pick lists to the caller's scope. Users are only
// listed for unscoped callers since a user list cannot be narrowed by owner.
func (s *Server) GetActivityLogFilters(c *gin.Context) {
	scope, err := s.scopeFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	options, err := s.activityLogs.Filters(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if scope.Role != activity.ScopeAdmin {
		options.Users = []activitylogdomain.User{}
		options.Companies = filterNamed(options.Companies, func(id int64) bool {
			return scope.CompanyID != nil && id == *scope.CompanyID
		})
		options.Partners = filterNamed(options.Partners, func(id int64) bool {
			return partnerInScope(id, scope)
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": options})
}

func (s *Server) GetActivityLogTopToday(c *gin.Context) {
	scope, err := s.scopeFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	top := activitylogdomain.TopToday{
		Waypoints: []activitylogdomain.WaypointRank{},
		Sessions:  []activitylogdomain.SessionRank{},
	}
	if scope.Role == activity.ScopeAdmin {
		if top.Waypoints, err = s.activityLogs.TopWaypointsToday(c.Request.Context()); err != nil {
			AbortWithError(c, err)
			return
		}
		if top.Sessions, err = s.activityLogs.TopSessionsToday(c.Request.Context()); err != nil {
			AbortWithError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": top})
}

func (s *Server) parseLogsRequest(c *gin.Context) (activitylogdomain.UnifiedLogsRequest, error) {
	var query logsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		return activitylogdomain.UnifiedLogsRequest{}, invalidRequestError()
	}

	var req activitylogdomain.UnifiedLogsRequest
	var err error
	if req.StartDate, err = parseOptionalTime(query.StartDate, false); err != nil {
		return req, newValidationError("start_date", "invalid_start_date", "invalid start_date")
	}
	if req.EndDate, err = parseOptionalTime(query.EndDate, false); err != nil {
		return req, newValidationError("end_date", "invalid_end_date", "invalid end_date")
	}
	if req.UserID, err = parseOptionalInt64(query.UserID); err != nil {
		return req, newValidationError("user_id", "invalid_user_id", "invalid user_id")
	}
	if req.CompanyID, err = parseOptionalInt64(query.CompanyID); err != nil {
		return req, newValidationError("company_id", "invalid_company_id", "invalid company_id")
	}
	if req.PartnerID, err = parseOptionalInt64(query.PartnerID); err != nil {
		return req, newValidationError("partner_id", "invalid_partner_id", "invalid partner_id")
	}
	if logType := strings.TrimSpace(query.LogType); logType != "" {
		source, ok := activitylogdomain.ParseSource(logType)
		if !ok {
			return req, activitylogdomain.ErrInvalidLogType
		}
		req.Source = &source
	}
	if limit := strings.TrimSpace(query.Limit); limit != "" {
		parsed, err := strconv.Atoi(limit)
		if err != nil || parsed < 0 {
			return req, newValidationError("limit", "invalid_limit", "invalid limit")
		}
		req.Limit = parsed
	}

	scope, err := s.scopeFromContext(c)
	if err != nil {
		return req, err
	}
	switch scope.Role {
	case activity.ScopeCompany:
		req.CompanyID = scope.CompanyID
	case activity.ScopePartner:
		req.PartnerID = scope.PartnerID
	}
	return req, nil
}

func filterNamed(options []activitylogdomain.NamedOption, keep func(int64) bool) []activitylogdomain.NamedOption {
	out := make([]activitylogdomain.NamedOption, 0, len(options))
	for _, option := range options {
		if keep(option.ID) {
			out = append(out, option)
		}
	}
	return out
}
