// Package activity counts portal users, active users and active relay devices per license owner.
package activity

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/licenseboard/internal/entity"
	"github.com/smallbiznis/licenseboard/internal/observability/metrics"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Kind string

const (
	KindPortalUsers        Kind = "portal_user_count"
	KindActiveUsers        Kind = "active_user_count"
	KindActiveRelayDevices Kind = "active_relay_device_count"
)

// Counts maps an owner to a non-negative count.
type Counts map[entity.Key]int

// attribution is one counted item (user or relay) and the owners it rolls up to.
type attribution struct {
	ItemID      string         `gorm:"column:item_id"`
	CompanyName sql.NullString `gorm:"column:company_name"`
	PartnerName sql.NullString `gorm:"column:partner_name"`
}

type fetchFunc func(ctx context.Context, db *gorm.DB, since time.Time, scope RoleScope) ([]attribution, error)

// Aggregator produces per-owner counts for one metric kind. Failures degrade to empty counts.
type Aggregator struct {
	kind    Kind
	db      *gorm.DB
	fetch   fetchFunc
	window  func() time.Duration
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
	metrics *metrics.Metrics
}

func (a *Aggregator) Kind() Kind {
	return a.kind
}

// Aggregate counts distinct items per owner over the trailing window ending at now.
// It never fails: query errors and an open breaker yield an empty mapping.
func (a *Aggregator) Aggregate(ctx context.Context, now time.Time, scope RoleScope) Counts {
	started := time.Now()
	defer func() {
		a.metrics.RecordAggregatorDuration(ctx, string(a.kind), time.Since(started))
	}()

	if _, _, visible := scope.clause(); !visible {
		return Counts{}
	}

	since := now.UTC().Add(-a.window())
	result, err := a.breaker.Execute(func() (interface{}, error) {
		return a.fetch(ctx, a.db, since, scope)
	})
	if err != nil {
		reason := "query_error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			reason = "circuit_open"
		}
		a.log.Warn("activity aggregate degraded to empty",
			zap.String("reason", reason),
			zap.String("scope", scope.String()),
			zap.Error(err),
		)
		a.metrics.RecordAggregatorDegraded(ctx, string(a.kind), reason)
		return Counts{}
	}

	return rollup(result.([]attribution))
}

// rollup counts each item once per owner. An item counts toward its company and its partner.
func rollup(rows []attribution) Counts {
	seen := make(map[entity.Key]map[string]struct{})
	add := func(key entity.Key, item string) {
		if key.Name == "" {
			return
		}
		items, ok := seen[key]
		if !ok {
			items = make(map[string]struct{})
			seen[key] = items
		}
		items[item] = struct{}{}
	}

	for _, row := range rows {
		add(entity.Key{Name: strings.TrimSpace(row.CompanyName.String), Type: entity.TypeCompany}, row.ItemID)
		add(entity.Key{Name: strings.TrimSpace(row.PartnerName.String), Type: entity.TypePartner}, row.ItemID)
	}

	counts := make(Counts, len(seen))
	for key, items := range seen {
		counts[key] = len(items)
	}
	return counts
}

const ownerJoins = `
	LEFT JOIN companies c ON c.id = u.company_id
	LEFT JOIN partners p ON p.id = COALESCE(u.partner_id, c.partner_id)`

func withScope(query string, args []any, scope RoleScope) (string, []any) {
	clause, scopeArgs, _ := scope.clause()
	if clause == "" {
		return query, args
	}
	return query + " AND " + clause, append(args, scopeArgs...)
}

func fetchPortalUsers(ctx context.Context, db *gorm.DB, _ time.Time, scope RoleScope) ([]attribution, error) {
	query, args := withScope(`SELECT u.id AS item_id, c.company_name, p.partner_name
	FROM users_portal u`+ownerJoins+`
	WHERE 1 = 1`, nil, scope)

	var rows []attribution
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func fetchActiveUsers(source func() ActiveUserSource) fetchFunc {
	return func(ctx context.Context, db *gorm.DB, since time.Time, scope RoleScope) ([]attribution, error) {
		recent, recentArgs := source().ActiveUsersQuery(since)
		query, args := withScope(`SELECT u.id AS item_id, c.company_name, p.partner_name
	FROM users_portal u
	INNER JOIN (`+recent+`) recent ON recent.user_id = u.id`+ownerJoins+`
	WHERE 1 = 1`, recentArgs, scope)

		var rows []attribution
		if err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
			return nil, err
		}
		return rows, nil
	}
}

func fetchActiveRelayDevices(ctx context.Context, db *gorm.DB, since time.Time, scope RoleScope) ([]attribution, error) {
	query, args := withScope(`SELECT DISTINCT ls.relay_id AS item_id, c.company_name, p.partner_name
	FROM logger_sessions ls
	INNER JOIN users_portal u ON u.id = ls.deployed_by OR u.id = ls.collected_by`+ownerJoins+`
	WHERE (ls.created >= ? OR ls.last_update >= ?)`, []any{since, since}, scope)

	var rows []attribution
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
