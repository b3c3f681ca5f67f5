package dashboard

import "errors"

var (
	ErrInvalidMode      = errors.New("invalid_mode")
	ErrInvalidDateRange = errors.New("invalid_date_range")

	ErrReportUnavailable = errors.New("report_unavailable")
)
