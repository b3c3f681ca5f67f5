package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/licenseboard/internal/config"
)

type Mode string

const (
	ModeAll   Mode = "all"
	ModeRelay Mode = "relay"
	ModeUser  Mode = "user"
)

func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ModeAll:
		return ModeAll, nil
	case ModeRelay:
		return ModeRelay, nil
	case ModeUser:
		return ModeUser, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, value)
	}
}

// Selection is a multi-select filter. All matches everything; otherwise only Values match,
// so an empty Values list matches nothing.
type Selection struct {
	All    bool     `json:"all"`
	Values []string `json:"values,omitempty"`
}

func AnyValue() Selection {
	return Selection{All: true}
}

func Only(values ...string) Selection {
	return Selection{Values: append([]string{}, values...)}
}

func (s Selection) Match(value string) bool {
	if s.All {
		return true
	}
	for _, candidate := range s.Values {
		if strings.EqualFold(strings.TrimSpace(candidate), value) {
			return true
		}
	}
	return false
}

// ViewState is the complete dashboard selection for one render.
type ViewState struct {
	Mode         Mode       `json:"mode"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	Entities     Selection  `json:"entities"`
	Statuses     Selection  `json:"statuses"`
	Currencies   Selection  `json:"currencies"`
	ProductCodes Selection  `json:"product_codes"`
}

func DefaultViewState() ViewState {
	return ViewState{
		Mode:         ModeAll,
		Entities:     AnyValue(),
		Statuses:     AnyValue(),
		Currencies:   AnyValue(),
		ProductCodes: AnyValue(),
	}
}

// Validate compares the range as calendar days.
func (v ViewState) Validate() error {
	if v.StartDate != nil && v.EndDate != nil && calendarDay(*v.StartDate).After(calendarDay(*v.EndDate)) {
		return ErrInvalidDateRange
	}
	return nil
}

// Apply narrows rows by the mode's product codes, then the start-date range, then the
// multi-select filters. All conditions are ANDed.
func Apply(rows []Row, view ViewState, cfg config.DashboardConfig) []Row {
	modeCodes := Selection{All: true}
	if view.Mode != ModeAll && view.Mode != "" {
		modeCodes = Only(cfg.ProductCodes(string(view.Mode))...)
	}

	filtered := make([]Row, 0, len(rows))
	for _, row := range rows {
		if !modeCodes.Match(row.ProductCode) {
			continue
		}
		if view.StartDate != nil && row.StartDate.Before(calendarDay(*view.StartDate)) {
			continue
		}
		if view.EndDate != nil && row.StartDate.After(calendarDay(*view.EndDate)) {
			continue
		}
		if !matchEntity(view.Entities, row) {
			continue
		}
		if !view.Statuses.Match(string(row.Status)) {
			continue
		}
		if !view.Currencies.Match(row.Currency) {
			continue
		}
		if !view.ProductCodes.Match(row.ProductCode) {
			continue
		}
		filtered = append(filtered, row)
	}
	return filtered
}

// matchEntity accepts the "Name (Type)" label or the bare name.
func matchEntity(selection Selection, row Row) bool {
	return selection.Match(row.Entity.Label()) || selection.Match(row.Entity.Name)
}

// calendarDay returns the day t names in its own offset, as the UTC midnight that license
// start dates are stored at. 2025-03-15T00:30:00+02:00 is 2025-03-15, not 2025-03-14.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
