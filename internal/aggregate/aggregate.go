// Package aggregate builds read-only projections over session snapshots.
//
// Ratios never fail: an empty denominator is treated as 1, so a portfolio with no
// completed sessions reports an average return of 0.
package aggregate

import (
	"sort"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/nsplit-trading/internal/types"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Filter selects sessions for List.
type Filter struct {
	Status     optional.Option[types.SessionStatus]
	SymbolCode string
	// CompletedYear keeps completed sessions that finished in the given year.
	CompletedYear optional.Option[int]
}

// Matches reports whether the session passes the filter.
func (f Filter) Matches(s *types.Session) bool {
	if f.Status.IsSome() && s.Status != f.Status.Unwrap() {
		return false
	}

	if f.SymbolCode != "" && s.Config.SymbolCode != f.SymbolCode {
		return false
	}

	if f.CompletedYear.IsSome() {
		if s.CompletedAt.IsNone() || s.CompletedAt.Unwrap().Year() != f.CompletedYear.Unwrap() {
			return false
		}
	}

	return true
}

// SessionSummary is the profit snapshot of one session.
type SessionSummary struct {
	ID           string                           `json:"id"`
	SymbolCode   string                           `json:"symbol_code"`
	SymbolName   string                           `json:"symbol_name"`
	Status       types.SessionStatus              `json:"status"`
	CurrentStage int                              `json:"current_stage"`
	TotalStages  int                              `json:"total_stages"`
	Allocated    decimal.Decimal                  `json:"allocated"`
	Invested     decimal.Decimal                  `json:"invested"`
	Realized     decimal.Decimal                  `json:"realized"`
	Unrealized   decimal.Decimal                  `json:"unrealized"`
	ReturnPct    decimal.Decimal                  `json:"return_pct"`
	LastPrice    optional.Option[decimal.Decimal] `json:"last_price"`
	CreatedAt    time.Time                        `json:"created_at"`
	CompletedAt  optional.Option[time.Time]       `json:"completed_at"`
}

// Summarize computes the summary of one session. Unrealized profit is marked at the last
// observed price.
func Summarize(s *types.Session) SessionSummary {
	invested := s.Invested()
	realized := s.RealizedProfit()
	unrealized := s.UnrealizedProfit()

	return SessionSummary{
		ID:           s.ID,
		SymbolCode:   s.Config.SymbolCode,
		SymbolName:   s.Config.SymbolName,
		Status:       s.Status,
		CurrentStage: s.CurrentStage,
		TotalStages:  s.TotalStages(),
		Allocated:    s.Config.TotalAllocated(),
		Invested:     invested,
		Realized:     realized,
		Unrealized:   unrealized,
		ReturnPct:    percent(realized.Add(unrealized), invested),
		LastPrice:    s.LastPrice,
		CreatedAt:    s.CreatedAt,
		CompletedAt:  s.CompletedAt,
	}
}

// List returns the summaries of the matching sessions, newest first.
func List(sessions []*types.Session, filter Filter) []SessionSummary {
	matched := make([]*types.Session, 0, len(sessions))
	for _, s := range sessions {
		if filter.Matches(s) {
			matched = append(matched, s)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}

		return matched[i].ID < matched[j].ID
	})

	out := make([]SessionSummary, len(matched))
	for i, s := range matched {
		out[i] = Summarize(s)
	}

	return out
}

// StatusCounts counts sessions per status.
type StatusCounts struct {
	All       int `json:"all"`
	Ready     int `json:"ready"`
	Running   int `json:"running"`
	Paused    int `json:"paused"`
	Completed int `json:"completed"`
}

// YearSummary groups completed sessions by completion year.
type YearSummary struct {
	Year             int             `json:"year"`
	Sessions         int             `json:"sessions"`
	Allocated        decimal.Decimal `json:"allocated"`
	Realized         decimal.Decimal `json:"realized"`
	AverageReturnPct decimal.Decimal `json:"average_return_pct"`
}

// Portfolio is the dashboard rollup across all sessions.
type Portfolio struct {
	Counts StatusCounts `json:"counts"`
	// ActiveAllocated is the capital committed to sessions that are not completed.
	ActiveAllocated    decimal.Decimal `json:"active_allocated"`
	CompletedAllocated decimal.Decimal `json:"completed_allocated"`
	Invested           decimal.Decimal `json:"invested"`
	Realized           decimal.Decimal `json:"realized"`
	Unrealized         decimal.Decimal `json:"unrealized"`
	// AverageReturnPct is the mean return of completed sessions.
	AverageReturnPct decimal.Decimal `json:"average_return_pct"`
	// AverageProgressPct is the mean share of stages reached by active sessions.
	AverageProgressPct decimal.Decimal `json:"average_progress_pct"`
	ByYear             []YearSummary   `json:"by_year"`
}

// BuildPortfolio rolls up every session. Years are ordered newest first.
func BuildPortfolio(sessions []*types.Session) Portfolio {
	p := Portfolio{
		Counts:             StatusCounts{},
		ActiveAllocated:    decimal.Zero,
		CompletedAllocated: decimal.Zero,
		Invested:           decimal.Zero,
		Realized:           decimal.Zero,
		Unrealized:         decimal.Zero,
		AverageReturnPct:   decimal.Zero,
		AverageProgressPct: decimal.Zero,
		ByYear:             []YearSummary{},
	}

	completedReturns := decimal.Zero
	progress := decimal.Zero
	active := 0
	years := map[int]*yearAcc{}

	for _, s := range sessions {
		summary := Summarize(s)
		p.Counts.All++
		p.Invested = p.Invested.Add(summary.Invested)
		p.Realized = p.Realized.Add(summary.Realized)
		p.Unrealized = p.Unrealized.Add(summary.Unrealized)

		switch s.Status {
		case types.SessionStatusReady:
			p.Counts.Ready++
		case types.SessionStatusRunning:
			p.Counts.Running++
		case types.SessionStatusPaused:
			p.Counts.Paused++
		case types.SessionStatusCompleted:
			p.Counts.Completed++
		}

		if s.Status != types.SessionStatusCompleted {
			active++
			p.ActiveAllocated = p.ActiveAllocated.Add(summary.Allocated)
			progress = progress.Add(percent(decimal.NewFromInt(int64(s.CurrentStage)), decimal.NewFromInt(int64(s.TotalStages()))))

			continue
		}

		p.CompletedAllocated = p.CompletedAllocated.Add(summary.Allocated)
		completedReturns = completedReturns.Add(summary.ReturnPct)

		if s.CompletedAt.IsSome() {
			year := s.CompletedAt.Unwrap().Year()
			acc, ok := years[year]
			if !ok {
				acc = &yearAcc{allocated: decimal.Zero, realized: decimal.Zero, returns: decimal.Zero}
				years[year] = acc
			}
			acc.sessions++
			acc.allocated = acc.allocated.Add(summary.Allocated)
			acc.realized = acc.realized.Add(summary.Realized)
			acc.returns = acc.returns.Add(summary.ReturnPct)
		}
	}

	p.AverageReturnPct = completedReturns.Div(denominator(p.Counts.Completed))
	p.AverageProgressPct = progress.Div(denominator(active))

	for year, acc := range years {
		p.ByYear = append(p.ByYear, YearSummary{
			Year:             year,
			Sessions:         acc.sessions,
			Allocated:        acc.allocated,
			Realized:         acc.realized,
			AverageReturnPct: acc.returns.Div(denominator(acc.sessions)),
		})
	}
	sort.Slice(p.ByYear, func(i, j int) bool { return p.ByYear[i].Year > p.ByYear[j].Year })

	return p
}

type yearAcc struct {
	sessions  int
	allocated decimal.Decimal
	realized  decimal.Decimal
	returns   decimal.Decimal
}

func denominator(n int) decimal.Decimal {
	if n == 0 {
		return decimal.NewFromInt(1)
	}

	return decimal.NewFromInt(int64(n))
}

// percent returns part/whole*100, treating a zero whole as 1.
func percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		whole = decimal.NewFromInt(1)
	}

	return part.Div(whole).Mul(hundred)
}
