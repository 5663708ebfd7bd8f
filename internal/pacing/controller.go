// Package pacing decides, for each selected candidate, which action to
// take and how long to wait, shaping the account's activity to a human
// cadence. It is the only component that touches the browser driver and
// the generation service.
package pacing

import (
	"context"
	"errors"
	"time"

	"engagebot/internal/breaker"
	"engagebot/internal/config"
	"engagebot/internal/driver"
	"engagebot/internal/feed"
	"engagebot/internal/storage"
	logx "engagebot/pkg/logx"
	"engagebot/pkg/randx"
)

// Generator produces reply text. Guarded by the circuit breaker.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, style, tone, tweetText, author string) (string, error)
}

// Result summarizes one account's pass through a session.
type Result struct {
	Replies      int
	Likes        int
	Retweets     int
	Skipped      int
	BreakerSkips int
	Failures     int
}

type Controller struct {
	store *storage.Store
	drv   driver.Driver
	gen   Generator
	brk   *breaker.Breaker
	sel   *feed.Selector
	rnd   *randx.Rand
	log   logx.Logger
	cfg   Config

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	// Daily action-mix jitter, one draw per account per date.
	jitterDate string
	jitter     map[string]mixJitter
}

type mixJitter struct{ reply, like float64 }

func NewController(store *storage.Store, drv driver.Driver, gen Generator, brk *breaker.Breaker, sel *feed.Selector, rnd *randx.Rand, cfg Config, log logx.Logger) *Controller {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Controller{
		store:  store,
		drv:    drv,
		gen:    gen,
		brk:    brk,
		sel:    sel,
		rnd:    rnd,
		log:    log,
		cfg:    cfg,
		now:    time.Now,
		sleep:  sleepCtx,
		jitter: make(map[string]mixJitter),
	}
}

// SetNow and SetSleep override the clock and waits (tests).
func (c *Controller) SetNow(now func() time.Time) { c.now = now }
func (c *Controller) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	c.sleep = fn
}

// RunAccount works one account through one session: select candidates,
// then score → decide → generate → wait → act → record, strictly in
// order. Transient driver and generation failures skip the candidate and
// keep the session alive; only store errors propagate.
func (c *Controller) RunAccount(ctx context.Context, acct config.AccountConfig, quota storage.DailyQuota, plan storage.SessionPlan) (Result, error) {
	var res Result
	log := c.log.With(logx.String("account", acct.Handle))

	hours := acct.ActiveHours
	if hours.IsZero() {
		hours = defaultHours
	}
	if !hours.Contains(c.now().Hour()) {
		log.Debug("outside account active hours")
		return res, nil
	}

	counts, err := c.store.Counts(ctx, acct.Handle, plan.Date)
	if err != nil {
		return res, err
	}
	if counts.Replies >= quota.TargetReplies {
		log.Debug("daily reply target already met")
		return res, nil
	}

	nominal := plan.Target - plan.Completed
	if nominal <= 0 {
		return res, nil
	}
	effective := c.effectiveTarget(nominal)
	if effective < nominal {
		log.Debug("early exit drawn", logx.Int("nominal", nominal), logx.Int("effective", effective))
	}

	switched, err := c.drv.SwitchAccount(ctx, acct.Handle)
	if err != nil || !switched {
		log.Warn("account switch failed", logx.Err(err))
		return res, nil
	}

	batch, err := c.drv.ListCandidates(ctx)
	if err != nil {
		log.Warn("candidate extraction failed", logx.Err(err))
		return res, nil
	}
	selected, err := c.sel.Select(ctx, acct.Handle, plan.Date, acct.Speed, batch, effective+quotaHeadroom)
	if err != nil {
		return res, err
	}
	if len(selected) == 0 {
		log.Info("no qualifying candidates this pass")
		return res, nil
	}

	replyRate, likeRate := c.sessionRates(acct, plan.Date)
	log.Debug("session rates", logx.Float64("reply", replyRate), logx.Float64("like", likeRate))

	for _, cand := range selected {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if res.Replies >= effective || counts.Replies+res.Replies >= quota.TargetReplies {
			break
		}

		if err := c.actOn(ctx, log, acct, quota, plan, cand, replyRate, likeRate, &counts, &res); err != nil {
			return res, err
		}

		if err := c.sleep(ctx, c.rnd.GaussianDuration(c.cfg.CandidateMin, c.cfg.CandidateMax)); err != nil {
			return res, err
		}
	}

	log.Info("account pass done",
		logx.Int("replies", res.Replies),
		logx.Int("likes", res.Likes),
		logx.Int("retweets", res.Retweets),
		logx.Int("skipped", res.Skipped),
		logx.Int("breaker_skips", res.BreakerSkips),
	)
	return res, nil
}

// quotaHeadroom asks the selector for a couple extra candidates beyond
// the session target, since some draws will land on like/skip.
const quotaHeadroom = 2

func (c *Controller) actOn(ctx context.Context, log logx.Logger, acct config.AccountConfig, quota storage.DailyQuota, plan storage.SessionPlan, cand feed.Scored, replyRate, likeRate float64, counts *storage.DayCounts, res *Result) error {
	// A configured per-account skip rate trims activity before the mix.
	if c.rnd.Chance(acct.SkipRate) {
		return c.skipCandidate(ctx, log, acct, quota, plan.Date, counts, res)
	}

	r := c.rnd.Float64()
	switch {
	case r < replyRate:
		return c.replyTo(ctx, log, acct, quota, plan, cand, counts, res)
	case r < replyRate+likeRate:
		return c.likeOnly(ctx, log, acct, quota, plan.Date, counts, res)
	default:
		return c.skipCandidate(ctx, log, acct, quota, plan.Date, counts, res)
	}
}

func (c *Controller) replyTo(ctx context.Context, log logx.Logger, acct config.AccountConfig, quota storage.DailyQuota, plan storage.SessionPlan, cand feed.Scored, counts *storage.DayCounts, res *Result) error {
	// Selection ran before this pass posted anything, so an author
	// replied to earlier in the loop would pass a stale filter. Re-check
	// right before committing to a post.
	done, err := c.store.HasRepliedAuthor(ctx, acct.Handle, cand.Author, plan.Date)
	if err != nil {
		return err
	}
	if done {
		log.Debug("author already replied today", logx.String("author", cand.Author))
		res.Skipped++
		_ = c.drv.Skip(ctx)
		return nil
	}

	if err := c.brk.Allow(acct.Handle); err != nil {
		log.Warn("generation skipped", logx.Err(err))
		res.BreakerSkips++
		_ = c.drv.Skip(ctx)
		return nil
	}

	text, err := c.gen.Generate(ctx, acct.Prompt, acct.ReplyStyle, acct.Tone, cand.Text, cand.Author)
	if err != nil {
		c.brk.RecordFailure(acct.Handle)
		log.Warn("generation failed", logx.Err(err), logx.String("candidate", cand.ID))
		res.Failures++
		_ = c.drv.Skip(ctx)
		return nil
	}
	c.brk.RecordSuccess(acct.Handle)

	// Humans don't answer instantly: draw a send delay from the
	// account's tier mixture.
	if err := c.sleep(ctx, c.replyDelay(acct)); err != nil {
		return err
	}

	posted, err := c.drv.PostReply(ctx, text)
	if err != nil {
		log.Warn("post failed", logx.Err(err), logx.String("candidate", cand.ID))
		res.Failures++
		return nil
	}

	rec := storage.ReplyRecord{
		Account:     acct.Handle,
		CandidateID: cand.ID,
		Author:      cand.Author,
		TweetText:   cand.Text,
		ReplyText:   text,
		AgeMinutes:  cand.AgeMinutes,
		Score:       cand.Score,
		Posted:      posted,
	}
	if err := c.store.RecordReply(ctx, rec, plan.Date); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			log.Debug("reply already recorded", logx.String("candidate", cand.ID))
			return nil
		}
		return err
	}
	if !posted {
		return nil
	}
	if err := c.store.BumpSessionCompleted(ctx, plan.Date, plan.Session, acct.Handle); err != nil {
		return err
	}
	res.Replies++
	log.Info("replied",
		logx.String("author", cand.Author),
		logx.String("candidate", cand.ID),
		logx.Float64("score", cand.Score),
	)

	// Usually also like what we just replied to, after a beat.
	pLike := c.rnd.Uniform(c.cfg.FollowupLike.Min, c.cfg.FollowupLike.Max)
	if c.rnd.Chance(pLike) && counts.Likes+res.Likes < quota.TargetLikes {
		if err := c.sleep(ctx, c.rnd.GaussianDuration(c.cfg.FollowupMin, c.cfg.FollowupMax)); err != nil {
			return err
		}
		if ok, err := c.drv.Like(ctx); err == nil && ok {
			if err := c.store.AddLike(ctx, acct.Handle, plan.Date); err != nil {
				return err
			}
			res.Likes++
		}
	}
	return nil
}

func (c *Controller) likeOnly(ctx context.Context, log logx.Logger, acct config.AccountConfig, quota storage.DailyQuota, date string, counts *storage.DayCounts, res *Result) error {
	// Landing on the like branch doesn't guarantee a like; most draws
	// like, the rest just scroll past.
	pLike := c.rnd.Uniform(c.cfg.LikeChance.Min, c.cfg.LikeChance.Max)
	if !c.rnd.Chance(pLike) || counts.Likes+res.Likes >= quota.TargetLikes {
		res.Skipped++
		_ = c.drv.Skip(ctx)
		return nil
	}
	ok, err := c.drv.Like(ctx)
	if err != nil {
		log.Warn("like failed", logx.Err(err))
		res.Failures++
		return nil
	}
	if ok {
		if err := c.store.AddLike(ctx, acct.Handle, date); err != nil {
			return err
		}
		res.Likes++
	}
	_ = c.drv.Skip(ctx)
	return nil
}

func (c *Controller) skipCandidate(ctx context.Context, log logx.Logger, acct config.AccountConfig, quota storage.DailyQuota, date string, counts *storage.DayCounts, res *Result) error {
	// A skipped candidate is occasionally worth a retweet, but only
	// inside the account's retweet hours and under its retweet budget.
	window := acct.RetweetWindow
	if !window.IsZero() && window.Contains(c.now().Hour()) &&
		counts.Retweets+res.Retweets < quota.TargetRetweets &&
		c.rnd.Chance(c.cfg.RetweetChance) {
		if ok, err := c.drv.Retweet(ctx); err == nil && ok {
			if err := c.store.AddRetweet(ctx, acct.Handle, date); err != nil {
				return err
			}
			res.Retweets++
		} else if err != nil {
			log.Warn("retweet failed", logx.Err(err))
		}
	}
	res.Skipped++
	_ = c.drv.Skip(ctx)
	return nil
}

// effectiveTarget occasionally stops a session short of its nominal
// target so completion counts aren't suspiciously exact.
func (c *Controller) effectiveTarget(nominal int) int {
	if nominal <= 1 || !c.rnd.Chance(c.cfg.EarlyExitChance) {
		return nominal
	}
	cut := 1 + c.rnd.IntN(maxInt(1, nominal/3))
	if nominal-cut < 1 {
		return 1
	}
	return nominal - cut
}

// sessionRates resolves the account's action mix with the daily (±5%)
// and per-session (±2%) jitters applied, clamped to sane bounds.
func (c *Controller) sessionRates(acct config.AccountConfig, date string) (replyRate, likeRate float64) {
	mix := defaultMix
	if acct.ActionMix != nil {
		mix = *acct.ActionMix
	}

	if c.jitterDate != date {
		c.jitterDate = date
		c.jitter = make(map[string]mixJitter)
	}
	dj, ok := c.jitter[acct.Handle]
	if !ok {
		dj = mixJitter{
			reply: c.rnd.Uniform(-c.cfg.DailyJitter, c.cfg.DailyJitter),
			like:  c.rnd.Uniform(-c.cfg.DailyJitter, c.cfg.DailyJitter),
		}
		c.jitter[acct.Handle] = dj
	}

	replyRate = clamp(mix.Reply+dj.reply+c.rnd.Uniform(-c.cfg.SessionJitter, c.cfg.SessionJitter), 0.05, 0.95)
	likeRate = clamp(mix.Like+dj.like+c.rnd.Uniform(-c.cfg.SessionJitter, c.cfg.SessionJitter), 0, 0.95)
	if replyRate+likeRate > 1 {
		likeRate = 1 - replyRate
	}
	return replyRate, likeRate
}

// replyDelay draws from the account's three-tier fast/medium/slow
// mixture; each tier is a bounded gaussian.
func (c *Controller) replyDelay(acct config.AccountConfig) time.Duration {
	w := defaultTiming
	if acct.ReplyTiming != nil {
		w = *acct.ReplyTiming
	}
	switch c.rnd.WeightedIndex([]float64{w.Fast, w.Medium, w.Slow}) {
	case 0:
		return c.rnd.GaussianDuration(c.cfg.ReplyFastMin, c.cfg.ReplyFastMax)
	case 1:
		return c.rnd.GaussianDuration(c.cfg.ReplyMediumMin, c.cfg.ReplyMediumMax)
	default:
		return c.rnd.GaussianDuration(c.cfg.ReplySlowMin, c.cfg.ReplySlowMax)
	}
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

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
