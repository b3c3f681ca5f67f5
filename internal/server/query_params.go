package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/licenseboard/internal/dashboard"
)

const dateOnlyLayout = "2006-01-02"

func parseOptionalInt64(value string) (*int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalTime(value string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return &parsed, nil
	}
	if parsed, err := time.Parse(dateOnlyLayout, trimmed); err == nil {
		if endOfDay {
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
		}
		return &parsed, nil
	}
	return nil, errors.New("invalid_time")
}

// parseSelection distinguishes an absent parameter (everything) from a present but empty one
// (nothing). Values may repeat or be comma separated.
func parseSelection(c *gin.Context, key string) dashboard.Selection {
	raw, present := c.GetQueryArray(key)
	if !present {
		return dashboard.AnyValue()
	}
	values := make([]string, 0, len(raw))
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				values = append(values, part)
			}
		}
	}
	return dashboard.Only(values...)
}

func parseViewState(c *gin.Context) (dashboard.ViewState, error) {
	mode, err := dashboard.ParseMode(c.Query("mode"))
	if err != nil {
		return dashboard.ViewState{}, err
	}

	start, err := parseOptionalTime(c.Query("start"), false)
	if err != nil {
		return dashboard.ViewState{}, newValidationError("start", "invalid_start", "invalid start date")
	}
	end, err := parseOptionalTime(c.Query("end"), false)
	if err != nil {
		return dashboard.ViewState{}, newValidationError("end", "invalid_end", "invalid end date")
	}

	view := dashboard.ViewState{
		Mode:         mode,
		StartDate:    start,
		EndDate:      end,
		Entities:     parseSelection(c, "entity"),
		Statuses:     parseSelection(c, "status"),
		Currencies:   parseSelection(c, "currency"),
		ProductCodes: parseSelection(c, "product_code"),
	}
	return view, view.Validate()
}
