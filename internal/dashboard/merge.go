package dashboard

import (
	"github.com/smallbiznis/licenseboard/internal/activity"
	"github.com/smallbiznis/licenseboard/internal/config"
	"github.com/smallbiznis/licenseboard/internal/entity"
)

// MetricResult is one aggregator's output.
type MetricResult struct {
	Kind   activity.Kind
	Counts activity.Counts
}

// Merge left-joins each metric onto the rows and returns a new slice with the same length and order.
// A joined value replaces whatever the row held for that kind; owners without a count get zero.
// joinKey "name" ignores the owner type and sums counts of owners sharing a name.
func Merge(rows []Row, results []MetricResult, joinKey string) []Row {
	merged := make([]Row, len(rows))
	copy(merged, rows)

	for _, result := range results {
		lookup := newLookup(result.Counts, joinKey)
		for i := range merged {
			setMetric(&merged[i], result.Kind, lookup(merged[i].Entity))
		}
	}
	return merged
}

func newLookup(counts activity.Counts, joinKey string) func(entity.Entity) int {
	if joinKey != config.JoinKeyName {
		return func(owner entity.Entity) int {
			return counts[owner.Key()]
		}
	}

	byName := make(map[string]int, len(counts))
	for key, value := range counts {
		byName[key.Name] += value
	}
	return func(owner entity.Entity) int {
		return byName[owner.Name]
	}
}

func setMetric(row *Row, kind activity.Kind, value int) {
	if value < 0 {
		value = 0
	}
	switch kind {
	case activity.KindPortalUsers:
		row.PortalUserCount = value
	case activity.KindActiveUsers:
		row.ActiveUserCount = value
	case activity.KindActiveRelayDevices:
		row.ActiveRelayDeviceCount = value
	}
}
