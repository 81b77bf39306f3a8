// Package stats computes the pull-only summary of a class.
package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"handraise/internal/questions"
	"handraise/internal/roster"
	"handraise/internal/session"
	"handraise/pkg/interfaces"
	"handraise/pkg/types"
)

// Aggregator builds ClassStatistics from one-shot reads.
// FUNCTIONAL DISCOVERY: Raise counts come from the ledger, never from the
// handRaised flag, so a torn flag write cannot skew the numbers.
type Aggregator struct {
	sessions  *session.Manager
	ledger    *roster.Ledger
	questions *questions.Queue
	now       func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock replaces time.Now for the duration of open classes.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator creates an aggregator reading from store.
func NewAggregator(store interfaces.DocumentStore, opts ...Option) *Aggregator {
	a := &Aggregator{
		sessions:  session.NewManager(store),
		ledger:    roster.NewLedger(store),
		questions: questions.NewQueue(store),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Summarize reads the class, its whole roster, every student's ledger and the
// visible questions. Any failed read fails the whole summary with an error
// matching types.ErrAggregationFailed and the cause.
func (a *Aggregator) Summarize(ctx context.Context, code string) (*types.ClassStatistics, error) {
	if err := types.ValidateClassCode(code); err != nil {
		return nil, err
	}

	class, err := a.sessions.Get(ctx, code)
	if err != nil {
		return nil, failed(code, err)
	}
	students, err := a.ledger.List(ctx, code)
	if err != nil {
		return nil, failed(code, err)
	}
	qs, err := a.questions.List(ctx, code)
	if err != nil {
		return nil, failed(code, err)
	}

	summary := &types.ClassStatistics{
		Code:            class.Code,
		Name:            class.Name,
		State:           class.State,
		CreatedAt:       class.CreatedAt,
		ClosedAt:        class.ClosedAt,
		DurationMinutes: durationMinutes(class, a.now()),
		TotalStudents:   len(students),
		TotalQuestions:  len(qs),
		HandRaiseStats:  make(map[string]types.StudentHandStats, len(students)),
		Students:        students,
		Questions:       qs,
	}

	for _, s := range students {
		if s.IsActive() {
			summary.ActiveStudents++
		}
		history, err := a.ledger.History(ctx, code, s.ID)
		if err != nil {
			return nil, failed(code, err)
		}
		var tally types.StudentHandStats
		for _, entry := range history {
			switch entry.Action {
			case types.HandRaised:
				tally.TotalRaises++
			case types.HandLowered:
				tally.TotalLowers++
			}
		}
		summary.HandRaiseStats[s.ID] = tally
		summary.TotalHandRaises += tally.TotalRaises
		summary.TotalHandLowers += tally.TotalLowers
	}

	for _, q := range qs {
		if q.Status == types.QuestionAnswered {
			summary.AnsweredQuestions++
		} else {
			summary.PendingQuestions++
		}
	}

	return summary, nil
}

// durationMinutes rounds closedAt (or now for open classes) minus createdAt
// to whole minutes.
func durationMinutes(class *types.Class, now time.Time) int {
	if class.CreatedAt.IsZero() {
		return 0
	}
	end := now
	if class.ClosedAt != nil {
		end = *class.ClosedAt
	}
	minutes := math.Round(end.Sub(class.CreatedAt).Minutes())
	if minutes < 0 {
		return 0
	}
	return int(minutes)
}

func failed(code string, err error) error {
	return fmt.Errorf("%w for class %s: %w", types.ErrAggregationFailed, code, err)
}
