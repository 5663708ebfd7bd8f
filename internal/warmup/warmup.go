// Package warmup derives each account's daily action quota from its age
// and the configured ramp.
package warmup

import (
	"context"
	"fmt"
	"time"

	"engagebot/internal/config"
	"engagebot/internal/storage"
	logx "engagebot/pkg/logx"
	"engagebot/pkg/randx"
)

// Policy holds the knobs the calculator rolls against.
type Policy struct {
	Schedule     config.WarmupSchedule
	LowActivity  config.LowActivityConfig
	RetweetRatio config.FloatRange // fraction of the like target; zero disables
}

type Calculator struct {
	store  *storage.Store
	rnd    *randx.Rand
	log    logx.Logger
	policy Policy
	now    func() time.Time
}

func New(store *storage.Store, rnd *randx.Rand, policy Policy, log logx.Logger) *Calculator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Calculator{store: store, rnd: rnd, log: log, policy: policy, now: time.Now}
}

// SetNow overrides the clock (tests).
func (c *Calculator) SetNow(now func() time.Time) { c.now = now }

// WeekNumber is the 1-based warm-up week: ceil(days-since-creation / 7).
func WeekNumber(created, now time.Time) int {
	days := int(now.Sub(created).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return (days + 6) / 7
}

// EnsureQuota returns the quota for (account, date), computing and
// persisting it only when absent. Any later call in this process or after
// a restart reads the stored row instead of rerolling.
func (c *Calculator) EnsureQuota(ctx context.Context, acct config.AccountConfig, date string) (storage.DailyQuota, error) {
	if q, err := c.store.GetDailyQuota(ctx, acct.Handle, date); err != nil {
		return storage.DailyQuota{}, fmt.Errorf("read quota: %w", err)
	} else if q != nil {
		return *q, nil
	}

	q := c.roll(acct, date)
	if err := c.store.PutDailyQuota(ctx, q); err != nil {
		return storage.DailyQuota{}, fmt.Errorf("persist quota: %w", err)
	}
	// Reread in case a concurrent writer won the insert.
	stored, err := c.store.GetDailyQuota(ctx, acct.Handle, date)
	if err != nil {
		return storage.DailyQuota{}, fmt.Errorf("reread quota: %w", err)
	}
	if stored == nil {
		return storage.DailyQuota{}, fmt.Errorf("quota for %s/%s missing after insert", acct.Handle, date)
	}

	c.log.Info("daily quota set",
		logx.String("account", acct.Handle),
		logx.String("date", date),
		logx.Int("replies", stored.TargetReplies),
		logx.Int("likes", stored.TargetLikes),
		logx.Int("retweets", stored.TargetRetweets),
		logx.Bool("low_activity", stored.LowActivity),
	)
	return *stored, nil
}

func (c *Calculator) roll(acct config.AccountConfig, date string) storage.DailyQuota {
	schedule := c.policy.Schedule
	if len(acct.Warmup) > 0 {
		schedule = acct.Warmup
	}

	created, _ := time.Parse("2006-01-02", acct.CreatedDate)
	week := WeekNumber(created, c.now())
	bracket := schedule.Bracket(week)

	q := storage.DailyQuota{
		Account:       acct.Handle,
		Date:          date,
		TargetReplies: c.rnd.Between(bracket.MinReplies, bracket.MaxReplies),
		TargetLikes:   c.rnd.Between(bracket.MinLikes, bracket.MaxLikes),
	}
	if r := c.policy.RetweetRatio; !r.IsZero() && q.TargetLikes > 0 {
		q.TargetRetweets = int(c.rnd.Uniform(r.Min, r.Max) * float64(q.TargetLikes))
	}

	if c.lowActivityDay(date) {
		q.LowActivity = true
		red := c.policy.LowActivity.Reduction
		if red.IsZero() {
			red = config.FloatRange{Min: 0.2, Max: 0.6}
		}
		scale := 1 - c.rnd.Uniform(red.Min, red.Max)
		q.TargetReplies = int(float64(q.TargetReplies) * scale)
		q.TargetLikes = int(float64(q.TargetLikes) * scale)
		q.TargetRetweets = int(float64(q.TargetRetweets) * scale)
	}
	return q
}

func (c *Calculator) lowActivityDay(date string) bool {
	la := c.policy.LowActivity
	switch la.Rule {
	case "weekdays":
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			return false
		}
		for _, wd := range la.Weekdays {
			if int(day.Weekday()) == wd {
				return true
			}
		}
		return false
	default: // "random"
		chance := la.Chance
		if chance == 0 {
			chance = 0.15
		}
		return c.rnd.Chance(chance)
	}
}
