package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"engagebot/internal/config"
	"engagebot/internal/pacing"
	"engagebot/internal/storage"
	logx "engagebot/pkg/logx"
	"engagebot/pkg/randx"
)

// runSession walks one planned session: shuffled account order, a few
// accounts randomly sitting out, long randomized pauses between visits.
// Accounts are strictly sequential; the single browser resource is only
// ever used by one of them at a time.
func (a *App) runSession(ctx context.Context, session int) error {
	date := a.day.date
	log := a.log.With(logx.String("date", date), logx.Int("session", session))
	log.Info("session started")

	plans, err := a.store.SessionPlans(ctx, date)
	if err != nil {
		return err
	}
	byAccount := make(map[string]storage.SessionPlan)
	for _, p := range plans {
		if p.Session == session {
			byAccount[p.Account] = p
		}
	}

	active := a.pickActive(log)

	var total pacing.Result
	for _, acct := range active {
		if ctx.Err() != nil {
			return nil
		}
		if !a.withinActiveHours(a.mgr.Get()) && !a.opts.TestMode {
			log.Info("active hours ended mid-session")
			break
		}
		plan, ok := byAccount[acct.Handle]
		if !ok {
			continue
		}

		res, err := a.ctl.RunAccount(ctx, acct, a.quotaFor(ctx, acct, date), plan)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		total.Replies += res.Replies
		total.Likes += res.Likes
		total.Retweets += res.Retweets
		total.Skipped += res.Skipped
		total.BreakerSkips += res.BreakerSkips
		total.Failures += res.Failures

		pause := a.rnd.GaussianDuration(a.accountPauseMin, a.accountPauseMax)
		log.Debug("account pause", logx.Duration("pause", pause.Round(time.Second)))
		if err := a.sleep(ctx, pause); err != nil {
			return nil
		}
	}

	log.Info("session completed",
		logx.Int("replies", total.Replies),
		logx.Int("likes", total.Likes),
		logx.Int("retweets", total.Retweets),
		logx.Int("skipped", total.Skipped),
	)
	a.notifySummary(session, active, total)
	return nil
}

// quotaFor rereads the persisted quota; ensureDay wrote it earlier, so
// this is a cheap lookup that survives config reloads mid-day.
func (a *App) quotaFor(ctx context.Context, acct config.AccountConfig, date string) storage.DailyQuota {
	q, err := a.store.GetDailyQuota(ctx, acct.Handle, date)
	if err != nil || q == nil {
		return storage.DailyQuota{Account: acct.Handle, Date: date}
	}
	return *q
}

// pickActive shuffles the account order and excludes a few at random,
// always keeping at least one.
func (a *App) pickActive(log logx.Logger) []config.AccountConfig {
	accounts := append([]config.AccountConfig(nil), a.accounts()...)
	randx.Shuffle(a.rnd, accounts)

	n := 0
	if a.excludePerSession > 0 {
		n = a.rnd.IntN(a.excludePerSession + 1)
	}
	if n > len(accounts)-1 {
		n = len(accounts) - 1
	}
	if n < 0 {
		n = 0
	}
	if n > 0 {
		excluded := accounts[:n]
		names := make([]string, len(excluded))
		for i, acct := range excluded {
			names[i] = acct.Handle
		}
		log.Info("accounts sitting out", logx.String("accounts", strings.Join(names, ", ")))
		accounts = accounts[n:]
	}
	return accounts
}

func (a *App) notifySummary(session int, active []config.AccountConfig, total pacing.Result) {
	if a.notifier == nil {
		return
	}
	a.notifier.Send(fmt.Sprintf(
		"session %d done: %d accounts, %d replies, %d likes, %d retweets, %d skipped, %d failures",
		session+1, len(active), total.Replies, total.Likes, total.Retweets, total.Skipped, total.Failures,
	))
}
