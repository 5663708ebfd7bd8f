// Package planner splits each account's remaining daily quota across the
// day's sessions.
package planner

import (
	"context"
	"fmt"
	"math"
	"sort"

	"engagebot/internal/storage"
	logx "engagebot/pkg/logx"
	"engagebot/pkg/randx"
)

// Remaining is one account's unplanned budget at plan time.
type Remaining struct {
	Account string
	Replies int
}

type Planner struct {
	store *storage.Store
	rnd   *randx.Rand
	log   logx.Logger

	// Session count bounds, randomized once per day.
	minSessions, maxSessions int
}

func New(store *storage.Store, rnd *randx.Rand, minSessions, maxSessions int, log logx.Logger) *Planner {
	if minSessions <= 0 {
		minSessions = 3
	}
	if maxSessions < minSessions {
		maxSessions = minSessions + 1
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Planner{store: store, rnd: rnd, log: log, minSessions: minSessions, maxSessions: maxSessions}
}

// EnsurePlans returns the session plans for the date, creating them only
// when none exist yet. Existing rows are reused verbatim so a restart
// never duplicates or rerolls a day that is already underway.
func (p *Planner) EnsurePlans(ctx context.Context, date string, remaining []Remaining) ([]storage.SessionPlan, error) {
	existing, err := p.store.SessionPlans(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("read session plans: %w", err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	sessionCount := p.rnd.Between(p.minSessions, p.maxSessions)
	plans := p.build(date, sessionCount, remaining)
	if err := p.store.ReplaceSessionPlans(ctx, date, plans); err != nil {
		return nil, fmt.Errorf("write session plans: %w", err)
	}
	p.log.Info("session plans created",
		logx.String("date", date),
		logx.Int("sessions", sessionCount),
		logx.Int("rows", len(plans)),
	)
	return plans, nil
}

func (p *Planner) build(date string, sessionCount int, remaining []Remaining) []storage.SessionPlan {
	var plans []storage.SessionPlan
	for _, rem := range remaining {
		if rem.Replies <= 0 {
			continue
		}
		n := p.sessionsFor(rem.Replies, sessionCount)
		targets := p.spread(rem.Replies, n)

		// Pick which of the day's sessions the account appears in.
		indices := make([]int, sessionCount)
		for i := range indices {
			indices[i] = i
		}
		randx.Shuffle(p.rnd, indices)
		indices = indices[:n]
		sort.Ints(indices)

		for i, idx := range indices {
			plans = append(plans, storage.SessionPlan{
				Date:    date,
				Session: idx,
				Account: rem.Account,
				Target:  targets[i],
			})
		}
	}
	return plans
}

// sessionsFor picks how many sessions an account appears in: at least 2,
// fewer only when the remaining budget is that small.
func (p *Planner) sessionsFor(remaining, sessionCount int) int {
	n := sessionCount
	if remaining < n {
		n = remaining
	}
	if n < 2 && remaining >= 2 {
		n = 2
	}
	if n < 1 {
		n = 1
	}
	return n
}

// spread distributes total replies over n sessions. Every session before
// the last draws a randomized fraction of the average (±40%); the last
// takes exactly what is left, so the full target stays reachable.
func (p *Planner) spread(total, n int) []int {
	targets := make([]int, n)
	left := total
	avg := float64(total) / float64(n)
	for i := 0; i < n-1; i++ {
		t := int(math.Round(avg * p.rnd.Uniform(0.6, 1.4)))
		// Leave at least nothing negative for the tail.
		if t > left {
			t = left
		}
		if t < 0 {
			t = 0
		}
		targets[i] = t
		left -= t
	}
	targets[n-1] = left
	return targets
}
