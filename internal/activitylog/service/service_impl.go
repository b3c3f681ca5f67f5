package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/smallbiznis/licenseboard/internal/activitylog/domain"
	"github.com/smallbiznis/licenseboard/internal/clock"
	referencedomain "github.com/smallbiznis/licenseboard/internal/reference/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultRangeDays = 7
	DefaultLimit     = 500
	MaxLimit         = 5000
	TopToday         = 3
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      domain.Repository
	Reference referencedomain.Repository
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      domain.Repository
	reference referencedomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("activitylog.service"),
		clock:     p.Clock,
		repo:      p.Repo,
		reference: p.Reference,
	}
}

// UnifiedLogs reads the selected log tables and interleaves them newest first.
// Without dates the trailing week up to today is read.
func (s *Service) UnifiedLogs(ctx context.Context, req domain.UnifiedLogsRequest) ([]domain.Entry, error) {
	query, sources, err := s.normalize(req)
	if err != nil {
		return nil, err
	}

	var entries []domain.Entry
	for _, source := range sources {
		items, err := s.repo.ListEntries(ctx, s.db, source, query)
		if err != nil {
			s.log.Error("failed to read activity log", zap.String("log_source", string(source)), zap.Error(err))
			return nil, fmt.Errorf("read %s: %w", source, err)
		}
		entries = append(entries, items...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if len(entries) > query.Limit {
		entries = entries[:query.Limit]
	}
	if entries == nil {
		entries = []domain.Entry{}
	}
	return entries, nil
}

func (s *Service) Filters(ctx context.Context) (domain.FilterOptions, error) {
	users, err := s.repo.ListUsers(ctx, s.db)
	if err != nil {
		return domain.FilterOptions{}, err
	}
	companies, err := s.reference.ListActiveCompanies(ctx)
	if err != nil {
		return domain.FilterOptions{}, err
	}
	partners, err := s.reference.ListActivePartners(ctx)
	if err != nil {
		return domain.FilterOptions{}, err
	}

	options := domain.FilterOptions{
		Users:     users,
		Companies: make([]domain.NamedOption, 0, len(companies)),
		Partners:  make([]domain.NamedOption, 0, len(partners)),
		LogTypes:  domain.Sources(),
	}
	for _, company := range companies {
		options.Companies = append(options.Companies, domain.NamedOption{ID: company.ID, Name: company.Name})
	}
	for _, partner := range partners {
		options.Partners = append(options.Partners, domain.NamedOption{ID: partner.ID, Name: partner.Name})
	}
	return options, nil
}

// Summary describes the entries UnifiedLogs returns for the same request.
func (s *Service) Summary(ctx context.Context, req domain.UnifiedLogsRequest) (domain.Summary, error) {
	entries, err := s.UnifiedLogs(ctx, req)
	if err != nil {
		return domain.Summary{}, err
	}
	return Summarize(entries), nil
}

func Summarize(entries []domain.Entry) domain.Summary {
	summary := domain.Summary{
		TotalLogs: len(entries),
		BySource:  make(map[domain.Source]int, len(domain.Sources())),
		Timeline:  []domain.DailyCount{},
	}
	for _, source := range domain.Sources() {
		summary.BySource[source] = 0
	}

	users := make(map[string]struct{})
	perDay := make(map[string]int)
	for _, entry := range entries {
		summary.BySource[entry.Source]++
		if entry.UserName != "" {
			users[entry.UserName] = struct{}{}
		}
		perDay[entry.Timestamp.UTC().Format("2006-01-02")]++
	}
	summary.UniqueUsers = len(users)

	for day, count := range perDay {
		summary.Timeline = append(summary.Timeline, domain.DailyCount{Date: day, Count: count})
	}
	sort.Slice(summary.Timeline, func(i, j int) bool {
		return summary.Timeline[i].Date < summary.Timeline[j].Date
	})
	return summary
}

func (s *Service) TopWaypointsToday(ctx context.Context) ([]domain.WaypointRank, error) {
	start, end := s.today()
	ranks, err := s.repo.TopWaypoints(ctx, s.db, start, end, TopToday)
	if err != nil {
		return nil, err
	}
	if ranks == nil {
		ranks = []domain.WaypointRank{}
	}
	return ranks, nil
}

func (s *Service) TopSessionsToday(ctx context.Context) ([]domain.SessionRank, error) {
	start, end := s.today()
	activity, err := s.repo.SessionActivity(ctx, s.db, start, end)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var ranks []domain.SessionRank
	for _, item := range activity {
		idx, ok := index[item.SessionID]
		if !ok {
			idx = len(ranks)
			index[item.SessionID] = idx
			ranks = append(ranks, domain.SessionRank{
				SessionID:     item.SessionID,
				FirstActivity: item.At,
				LastActivity:  item.At,
			})
		}
		rank := &ranks[idx]
		rank.ActivityCount++
		if item.At.Before(rank.FirstActivity) {
			rank.FirstActivity = item.At
		}
		if item.At.After(rank.LastActivity) {
			rank.LastActivity = item.At
		}
	}

	sort.SliceStable(ranks, func(i, j int) bool {
		if ranks[i].ActivityCount != ranks[j].ActivityCount {
			return ranks[i].ActivityCount > ranks[j].ActivityCount
		}
		return ranks[i].SessionID < ranks[j].SessionID
	})
	if len(ranks) > TopToday {
		ranks = ranks[:TopToday]
	}
	if ranks == nil {
		ranks = []domain.SessionRank{}
	}
	return ranks, nil
}

func (s *Service) normalize(req domain.UnifiedLogsRequest) (domain.Query, []domain.Source, error) {
	today := dateOnly(s.clock.Now())

	end := today
	if req.EndDate != nil {
		end = dateOnly(*req.EndDate)
	}
	start := end.AddDate(0, 0, -DefaultRangeDays)
	if req.StartDate != nil {
		start = dateOnly(*req.StartDate)
	}
	if start.After(end) {
		return domain.Query{}, nil, domain.ErrInvalidDateRange
	}

	sources := domain.Sources()
	if req.Source != nil {
		source, ok := domain.ParseSource(string(*req.Source))
		if !ok {
			return domain.Query{}, nil, domain.ErrInvalidLogType
		}
		sources = []domain.Source{source}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return domain.Query{
		Start:     start,
		End:       end.AddDate(0, 0, 1),
		UserID:    req.UserID,
		CompanyID: req.CompanyID,
		PartnerID: req.PartnerID,
		Limit:     limit,
	}, sources, nil
}

func (s *Service) today() (time.Time, time.Time) {
	start := dateOnly(s.clock.Now())
	return start, start.AddDate(0, 0, 1)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
