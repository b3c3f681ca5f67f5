package activity

import (
	"time"

	"github.com/smallbiznis/licenseboard/internal/config"
	"github.com/smallbiznis/licenseboard/internal/observability/metrics"
	"github.com/sony/gobreaker"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	breakerFailureThreshold = 3
	breakerOpenTimeout      = 30 * time.Second
	breakerInterval         = time.Minute
)

// Set is the three activity aggregators, in merge order.
type Set struct {
	PortalUsers        *Aggregator
	ActiveUsers        *Aggregator
	ActiveRelayDevices *Aggregator
}

func (s Set) All() []*Aggregator {
	return []*Aggregator{s.PortalUsers, s.ActiveUsers, s.ActiveRelayDevices}
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Dashboard *config.DashboardConfigHolder
	Metrics   *metrics.Metrics `optional:"true"`
}

func NewSet(p Params) Set {
	log := p.Log.Named("activity.aggregator")
	window := func() time.Duration { return p.Dashboard.Get().ActivityWindow() }
	source := func() ActiveUserSource {
		src, err := SourceFor(p.Dashboard.Get().ActivitySource)
		if err != nil {
			return SessionLogSource{}
		}
		return src
	}

	return Set{
		PortalUsers:        newAggregator(KindPortalUsers, p.DB, fetchPortalUsers, window, log, p.Metrics),
		ActiveUsers:        newAggregator(KindActiveUsers, p.DB, fetchActiveUsers(source), window, log, p.Metrics),
		ActiveRelayDevices: newAggregator(KindActiveRelayDevices, p.DB, fetchActiveRelayDevices, window, log, p.Metrics),
	}
}

func newAggregator(kind Kind, db *gorm.DB, fetch fetchFunc, window func() time.Duration, log *zap.Logger, m *metrics.Metrics) *Aggregator {
	log = log.With(zap.String("metric_kind", string(kind)))
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(kind),
		MaxRequests: 1,
		Interval:    breakerInterval,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("activity breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Aggregator{
		kind:    kind,
		db:      db,
		fetch:   fetch,
		window:  window,
		breaker: breaker,
		log:     log,
		metrics: m,
	}
}

var Module = fx.Module("activity.aggregator",
	fx.Provide(NewSet),
)
