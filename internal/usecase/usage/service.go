package usage

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/agrirag/internal/domain/usage"
)

// Source is one budgeted provider.
type Source struct {
	Scope                domusage.Scope
	Reader               BudgetReader
	CostPerMillionTokens float64
}

// Service handles usage reporting.
type Service struct {
	sources []Source
	now     func() time.Time
}

// New creates a Service. Sources with a nil Reader report zero usage (unlimited mode).
func New(sources ...Source) *Service {
	return &Service{sources: sources, now: time.Now}
}

// GetReport builds one report per source for the given period, in source order.
func (s *Service) GetReport(_ context.Context, period domusage.Period) []domusage.Report {
	now := s.now().UTC()
	var start, end time.Time
	switch period {
	case domusage.PeriodMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
	default:
		period = domusage.PeriodDay
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		end = start.Add(24 * time.Hour)
	}

	out := make([]domusage.Report, 0, len(s.sources))
	for _, src := range s.sources {
		var limit, used, remaining int64
		if src.Reader != nil {
			if period == domusage.PeriodMonth {
				limit, used, remaining = src.Reader.MonthlyLimit(), src.Reader.MonthlyUsed(), src.Reader.RemainingMonthly()
			} else {
				limit, used, remaining = src.Reader.DailyLimit(), src.Reader.DailyUsed(), src.Reader.RemainingDaily()
			}
		}
		out = append(out, domusage.Report{
			Scope:            src.Scope,
			Period:           period,
			PeriodStart:      start.UnixMilli(),
			PeriodEnd:        end.UnixMilli(),
			Tokens:           used,
			CostMillidollars: domusage.CostMillidollars(used, src.CostPerMillionTokens),
			Budget: domusage.Budget{
				TokensLimit:     limit,
				TokensRemaining: remaining,
				Exhausted:       limit > 0 && remaining <= 0,
				ResetsAt:        end.UnixMilli(),
			},
		})
	}
	return out
}
