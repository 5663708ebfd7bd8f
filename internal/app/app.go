// Package app wires the scheduler together and owns the run loop.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"engagebot/internal/breaker"
	"engagebot/internal/config"
	"engagebot/internal/driver"
	"engagebot/internal/feed"
	"engagebot/internal/pacing"
	"engagebot/internal/planner"
	"engagebot/internal/storage"
	"engagebot/internal/warmup"
	logx "engagebot/pkg/logx"
	"engagebot/pkg/randx"
)

// Options are the run-mode switches owned by the launcher.
type Options struct {
	DryRun      bool
	TestMode    bool
	OnlyAccount string
}

// Generator is the health-checkable generation dependency.
type Generator interface {
	pacing.Generator
	Ping(ctx context.Context) error
}

type App struct {
	mgr   *config.Manager
	log   logx.Logger
	store *storage.Store
	drv   driver.Driver
	gen   Generator
	rnd   *randx.Rand
	opts  Options

	calc     *warmup.Calculator
	plnr     *planner.Planner
	ctl      *pacing.Controller
	notifier *Notifier

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	sessionPauseMin, sessionPauseMax time.Duration
	accountPauseMin, accountPauseMax time.Duration
	excludePerSession                int

	// day is the in-memory cache of today's bootstrap, touched only from
	// the run loop goroutine. The midnight cron job signals a reset over
	// rollover instead of writing it directly.
	day      dayState
	rollover chan struct{}
}

type dayState struct {
	date         string
	sessionCount int
	nextSession  int
	done         bool
}

func New(mgr *config.Manager, store *storage.Store, drv driver.Driver, gen Generator, rnd *randx.Rand, opts Options, log logx.Logger) (*App, error) {
	cfg := mgr.Get()
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	pcfg, err := pacing.ConfigFrom(cfg.Scheduler)
	if err != nil {
		return nil, err
	}

	maxAge, err := config.ParseDurationOrDefault("scheduler.max_candidate_age", cfg.Scheduler.MaxCandidateAge, 24*time.Hour)
	if err != nil {
		return nil, err
	}
	bucket, err := config.ParseDurationOrDefault("scheduler.bucket_width", cfg.Scheduler.BucketWidth, 5*time.Minute)
	if err != nil {
		return nil, err
	}
	buffer := 3
	if cfg.Scheduler.SelectionBuffer != nil {
		buffer = *cfg.Scheduler.SelectionBuffer
	}
	sel := feed.NewSelector(store, rnd, feed.SelectorConfig{
		MaxAge:      maxAge,
		Buffer:      buffer,
		BucketWidth: bucket,
	}, log)

	cooldown, err := config.ParseDurationOrDefault("generation.breaker_cooldown", cfg.Generation.BreakerCooldown, time.Hour)
	if err != nil {
		return nil, err
	}
	brk := breaker.New(cfg.Generation.BreakerThreshold, cooldown)

	sessMin, sessMax := cfg.Scheduler.Sessions.Min, cfg.Scheduler.Sessions.Max
	if sessMin == 0 && sessMax == 0 {
		sessMin, sessMax = 3, 4
	}

	exclude := 3
	if cfg.Scheduler.ExcludeAccounts != nil {
		exclude = *cfg.Scheduler.ExcludeAccounts
	}

	a := &App{
		mgr:   mgr,
		log:   log,
		store: store,
		drv:   drv,
		gen:   gen,
		rnd:   rnd,
		opts:  opts,
		calc: warmup.New(store, rnd, warmup.Policy{
			Schedule:     cfg.Warmup,
			LowActivity:  cfg.Scheduler.LowActivity,
			RetweetRatio: cfg.Scheduler.RetweetRatio,
		}, log),
		plnr:              planner.New(store, rnd, sessMin, sessMax, log),
		ctl:               pacing.NewController(store, drv, gen, brk, sel, rnd, pcfg, log),
		now:               time.Now,
		sleep:             sleepCtx,
		excludePerSession: exclude,
		rollover:          make(chan struct{}, 1),
	}

	if a.sessionPauseMin, a.sessionPauseMax, err = config.ParseRange("scheduler.session_pause", cfg.Scheduler.SessionPause, 60*time.Minute, 180*time.Minute); err != nil {
		return nil, err
	}
	if a.accountPauseMin, a.accountPauseMax, err = config.ParseRange("scheduler.account_pause", cfg.Scheduler.AccountPause, 3*time.Minute, 10*time.Minute); err != nil {
		return nil, err
	}

	if cfg.Notifier != nil {
		n, err := NewNotifier(cfg.Notifier, log)
		if err != nil {
			// Operator summaries are best-effort; a bad token should not
			// keep the scheduler down.
			log.Warn("notifier disabled", logx.Err(err))
		} else {
			a.notifier = n
		}
	}
	return a, nil
}

// Run is the production loop: active-hours gate, once-per-day bootstrap,
// one session per pass with long randomized pauses between them.
// In test mode it runs exactly one session and returns.
func (a *App) Run(ctx context.Context) error {
	go func() {
		if err := a.mgr.Watch(ctx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	c := cron.New(cron.WithLocation(time.Local))
	if _, err := c.AddFunc("0 0 * * *", a.requestRollover); err != nil {
		return fmt.Errorf("register rollover job: %w", err)
	}
	c.Start()
	defer c.Stop()

	a.log.Info("scheduler started",
		logx.Bool("dry_run", a.opts.DryRun),
		logx.Bool("test_mode", a.opts.TestMode),
		logx.Int("accounts", len(a.accounts())),
	)

	for {
		if ctx.Err() != nil {
			return nil
		}
		a.applyRollover()

		cfg := a.mgr.Get()
		if !a.withinActiveHours(cfg) && !a.opts.TestMode {
			a.log.Debug("outside active hours")
			if err := a.sleep(ctx, 30*time.Minute); err != nil {
				return nil
			}
			continue
		}

		if err := a.ensureDay(ctx); err != nil {
			return err
		}
		if a.day.done {
			if a.opts.TestMode {
				a.log.Info("all sessions complete for today")
				return nil
			}
			if err := a.sleep(ctx, 30*time.Minute); err != nil {
				return nil
			}
			continue
		}

		if err := a.runSession(ctx, a.day.nextSession); err != nil {
			return err
		}
		a.day.nextSession++
		if a.day.nextSession >= a.day.sessionCount {
			a.day.done = true
		}

		if a.opts.TestMode {
			a.log.Info("test session complete")
			return nil
		}

		pause := a.rnd.GaussianDuration(a.sessionPauseMin, a.sessionPauseMax)
		a.log.Info("session pause", logx.Duration("pause", pause.Round(time.Second)))
		if err := a.sleep(ctx, pause); err != nil {
			return nil
		}
	}
}

// requestRollover runs on the cron goroutine at midnight. It never
// touches day state itself; it flags the run loop to reset.
func (a *App) requestRollover() {
	select {
	case a.rollover <- struct{}{}:
	default:
	}
}

// applyRollover consumes a pending midnight signal on the run loop
// goroutine, forcing ensureDay to replan for the new date.
func (a *App) applyRollover() {
	select {
	case <-a.rollover:
		a.day = dayState{}
	default:
	}
}

// ensureDay bootstraps quotas and session plans exactly once per calendar
// day. Restarting mid-day resumes at the first session with unmet
// targets; quotas and plans are read back, never rerolled.
func (a *App) ensureDay(ctx context.Context) error {
	date := a.today()
	if a.day.date == date {
		return nil
	}

	accounts := a.accounts()
	remaining := make([]planner.Remaining, 0, len(accounts))
	for _, acct := range accounts {
		quota, err := a.calc.EnsureQuota(ctx, acct, date)
		if err != nil {
			return err
		}
		counts, err := a.store.Counts(ctx, acct.Handle, date)
		if err != nil {
			return err
		}
		remaining = append(remaining, planner.Remaining{
			Account: acct.Handle,
			Replies: quota.TargetReplies - counts.Replies,
		})
	}

	plans, err := a.plnr.EnsurePlans(ctx, date, remaining)
	if err != nil {
		return err
	}

	a.day = dayState{date: date}
	type tally struct{ target, completed int }
	perSession := map[int]tally{}
	for _, p := range plans {
		if p.Session+1 > a.day.sessionCount {
			a.day.sessionCount = p.Session + 1
		}
		t := perSession[p.Session]
		t.target += p.Target
		t.completed += p.Completed
		perSession[p.Session] = t
	}
	// Resume at the first session with unmet targets.
	a.day.nextSession = a.day.sessionCount
	for i := 0; i < a.day.sessionCount; i++ {
		if t := perSession[i]; t.completed < t.target {
			a.day.nextSession = i
			break
		}
	}
	a.day.done = a.day.nextSession >= a.day.sessionCount
	return nil
}

func (a *App) today() string { return a.now().Format("2006-01-02") }

func (a *App) withinActiveHours(cfg *config.Config) bool {
	w := cfg.Scheduler.ActiveHours
	if w.IsZero() {
		w = config.HourWindow{Start: 8, End: 22}
	}
	return w.Contains(a.now().Hour())
}

// accounts resolves the active account list, honoring the single-account
// override used for isolated testing.
func (a *App) accounts() []config.AccountConfig {
	cfg := a.mgr.Get()
	if cfg == nil {
		return nil
	}
	if a.opts.OnlyAccount == "" {
		return cfg.Accounts
	}
	for _, acct := range cfg.Accounts {
		if acct.Handle == a.opts.OnlyAccount {
			return []config.AccountConfig{acct}
		}
	}
	a.log.Warn("override account not found", logx.String("account", a.opts.OnlyAccount))
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
