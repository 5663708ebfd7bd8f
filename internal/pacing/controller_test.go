package pacing

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"engagebot/internal/breaker"
	"engagebot/internal/config"
	"engagebot/internal/feed"
	"engagebot/internal/storage"
	logx "engagebot/pkg/logx"
	"engagebot/pkg/randx"
)

// constSource makes every random draw identical, which pins the action
// mix branch taken for each candidate.
type constSource struct{ v float64 }

func (s constSource) Float64() float64 { return s.v }

// fakeDriver counts browser interactions and serves a fixed batch.
type fakeDriver struct {
	batch    []feed.Candidate
	switches int
	posts    int
	likes    int
	retweets int
	skips    int
	postErr  error
}

func (d *fakeDriver) SwitchAccount(_ context.Context, _ string) (bool, error) {
	d.switches++
	return true, nil
}
func (d *fakeDriver) ListCandidates(_ context.Context) ([]feed.Candidate, error) {
	return d.batch, nil
}
func (d *fakeDriver) PostReply(_ context.Context, _ string) (bool, error) {
	if d.postErr != nil {
		return false, d.postErr
	}
	d.posts++
	return true, nil
}
func (d *fakeDriver) Like(_ context.Context) (bool, error) {
	d.likes++
	return true, nil
}
func (d *fakeDriver) Retweet(_ context.Context) (bool, error) {
	d.retweets++
	return true, nil
}
func (d *fakeDriver) Skip(_ context.Context) error {
	d.skips++
	return nil
}
func (d *fakeDriver) Ping(_ context.Context) error { return nil }

type fakeGen struct {
	calls int
	err   error
}

func (g *fakeGen) Generate(_ context.Context, _, _, _, _, _ string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return fmt.Sprintf("reply %d", g.calls), nil
}

var testNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

const testDate = "2026-08-30"

// testConfig has jitters and the early exit disabled, and the like
// chance pinned to 1, so the rigged random source maps one-to-one onto
// action decisions.
func testConfig() Config {
	return Config{
		ReplyFastMin: time.Millisecond, ReplyFastMax: 2 * time.Millisecond,
		ReplyMediumMin: time.Millisecond, ReplyMediumMax: 2 * time.Millisecond,
		ReplySlowMin: time.Millisecond, ReplySlowMax: 2 * time.Millisecond,
		CandidateMin: time.Millisecond, CandidateMax: 2 * time.Millisecond,
		FollowupMin: time.Millisecond, FollowupMax: 2 * time.Millisecond,
		LikeChance: config.FloatRange{Min: 1, Max: 1},
	}
}

func testBatch(n int) []feed.Candidate {
	batch := make([]feed.Candidate, n)
	for i := range batch {
		batch[i] = feed.Candidate{
			Author:    fmt.Sprintf("author%d", i),
			Text:      fmt.Sprintf("post %d", i),
			Timestamp: testNow.Add(-time.Hour),
			Likes:     100 - i,
		}
	}
	return batch
}

func testController(t *testing.T, drv *fakeDriver, gen *fakeGen, rnd *randx.Rand, cfg Config) (*Controller, *storage.Store) {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "pacing.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	sel := feed.NewSelector(st, rnd, feed.SelectorConfig{}, logx.Nop())
	sel.SetNow(func() time.Time { return testNow })

	ctl := NewController(st, drv, gen, breaker.New(5, time.Hour), sel, rnd, cfg, logx.Nop())
	ctl.SetNow(func() time.Time { return testNow })
	ctl.SetSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() })
	return ctl, st
}

func TestRunAccountRepliesUpToSessionTarget(t *testing.T) {
	drv := &fakeDriver{batch: testBatch(8)}
	gen := &fakeGen{}
	// Draw 0 lands every candidate in the reply branch.
	ctl, st := testController(t, drv, gen, randx.FromSource(constSource{0}), testConfig())

	acct := config.AccountConfig{Handle: "@acct", CreatedDate: "2026-08-01", ActionMix: &config.ActionMix{Reply: 1}}
	quota := storage.DailyQuota{Account: "@acct", Date: testDate, TargetReplies: 10, TargetLikes: 10}
	plan := storage.SessionPlan{Date: testDate, Session: 0, Account: "@acct", Target: 3}
	if err := st.ReplaceSessionPlans(context.Background(), testDate, []storage.SessionPlan{plan}); err != nil {
		t.Fatalf("seed plan: %v", err)
	}

	res, err := ctl.RunAccount(context.Background(), acct, quota, plan)
	if err != nil {
		t.Fatalf("RunAccount: %v", err)
	}
	if res.Replies != 3 {
		t.Fatalf("replies = %d, want 3", res.Replies)
	}
	if drv.posts != 3 || gen.calls != 3 {
		t.Fatalf("driver posts %d, generator calls %d", drv.posts, gen.calls)
	}

	plans, _ := st.SessionPlans(context.Background(), testDate)
	if len(plans) != 1 || plans[0].Completed != 3 {
		t.Fatalf("session completion not persisted: %+v", plans)
	}
	counts, _ := st.Counts(context.Background(), "@acct", testDate)
	if counts.Replies != 3 {
		t.Fatalf("daily counter %d, want 3", counts.Replies)
	}
}

func TestRunAccountStopsAtDailyQuota(t *testing.T) {
	drv := &fakeDriver{batch: testBatch(8)}
	gen := &fakeGen{}
	ctl, _ := testController(t, drv, gen, randx.FromSource(constSource{0}), testConfig())

	acct := config.AccountConfig{Handle: "@acct", CreatedDate: "2026-08-01", ActionMix: &config.ActionMix{Reply: 1}}
	// Only 2 replies left in the day despite a session target of 5.
	quota := storage.DailyQuota{Account: "@acct", Date: testDate, TargetReplies: 2, TargetLikes: 10}
	plan := storage.SessionPlan{Date: testDate, Session: 0, Account: "@acct", Target: 5}

	res, err := ctl.RunAccount(context.Background(), acct, quota, plan)
	if err != nil {
		t.Fatalf("RunAccount: %v", err)
	}
	if res.Replies != 2 {
		t.Fatalf("replies = %d, want the 2 the quota leaves", res.Replies)
	}
}

func TestRunAccountSkipsWhenQuotaAlreadyMet(t *testing.T) {
	drv := &fakeDriver{batch: testBatch(4)}
	gen := &fakeGen{}
	ctl, st := testController(t, drv, gen, randx.FromSource(constSource{0}), testConfig())

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		rec := storage.ReplyRecord{
			Account:     "@acct",
			CandidateID: fmt.Sprintf("prior%d", i),
			Author:      fmt.Sprintf("prior-author%d", i),
			ReplyText:   "done",
			Posted:      true,
		}
		if err := st.RecordReply(ctx, rec, testDate); err != nil {
			t.Fatalf("seed reply: %v", err)
		}
	}

	acct := config.AccountConfig{Handle: "@acct", CreatedDate: "2026-08-01"}
	quota := storage.DailyQuota{Account: "@acct", Date: testDate, TargetReplies: 2}
	plan := storage.SessionPlan{Date: testDate, Session: 0, Account: "@acct", Target: 3}

	res, err := ctl.RunAccount(ctx, acct, quota, plan)
	if err != nil {
		t.Fatalf("RunAccount: %v", err)
	}
	if res != (Result{}) {
		t.Fatalf("expected empty result, got %+v", res)
	}
	if drv.switches != 0 {
		t.Fatal("driver should not be touched once the quota is met")
	}
}

func TestRunAccountOutsideActiveHours(t *testing.T) {
	drv := &fakeDriver{batch: testBatch(4)}
	ctl, _ := testController(t, drv, &fakeGen{}, randx.FromSource(constSource{0}), testConfig())
	ctl.SetNow(func() time.Time { return time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC) })

	acct := config.AccountConfig{Handle: "@acct", CreatedDate: "2026-08-01"}
	quota := storage.DailyQuota{Account: "@acct", Date: testDate, TargetReplies: 5}
	plan := storage.SessionPlan{Date: testDate, Session: 0, Account: "@acct", Target: 3}

	res, err := ctl.RunAccount(context.Background(), acct, quota, plan)
	if err != nil || res != (Result{}) || drv.switches != 0 {
		t.Fatalf("3am run should do nothing: res=%+v err=%v switches=%d", res, err, drv.switches)
	}
}

func TestBreakerSkipsKeepSessionAlive(t *testing.T) {
	drv := &fakeDriver{batch: testBatch(5)}
	gen := &fakeGen{err: errors.New("service down")}
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "brk.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	rnd := randx.FromSource(constSource{0})
	sel := feed.NewSelector(st, rnd, feed.SelectorConfig{}, logx.Nop())
	sel.SetNow(func() time.Time { return testNow })

	brk := breaker.New(2, time.Hour)
	ctl := NewController(st, drv, gen, brk, sel, rnd, testConfig(), logx.Nop())
	ctl.SetNow(func() time.Time { return testNow })
	ctl.SetSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() })

	acct := config.AccountConfig{Handle: "@acct", CreatedDate: "2026-08-01", ActionMix: &config.ActionMix{Reply: 1}}
	quota := storage.DailyQuota{Account: "@acct", Date: testDate, TargetReplies: 10}
	plan := storage.SessionPlan{Date: testDate, Session: 0, Account: "@acct", Target: 5}

	res, err := ctl.RunAccount(context.Background(), acct, quota, plan)
	if err != nil {
		t.Fatalf("RunAccount: %v", err)
	}
	// Threshold 2: two real failures, then the circuit short-circuits the
	// remaining candidates without touching the generator.
	if res.Failures != 2 || res.BreakerSkips != 3 {
		t.Fatalf("failures=%d breakerSkips=%d, want 2 and 3", res.Failures, res.BreakerSkips)
	}
	if gen.calls != 2 {
		t.Fatalf("generator called %d times, want 2", gen.calls)
	}
	if res.Replies != 0 || drv.posts != 0 {
		t.Fatal("nothing should have been posted")
	}
}

func TestLikeBranchRespectsLikeQuota(t *testing.T) {
	drv := &fakeDriver{batch: testBatch(5)}
	// Draw 0.5 lands in the like branch for a like-heavy mix.
	ctl, st := testController(t, drv, &fakeGen{}, randx.FromSource(constSource{0.5}), testConfig())

	acct := config.AccountConfig{Handle: "@acct", CreatedDate: "2026-08-01", ActionMix: &config.ActionMix{Like: 0.95}}
	quota := storage.DailyQuota{Account: "@acct", Date: testDate, TargetReplies: 10, TargetLikes: 2}
	plan := storage.SessionPlan{Date: testDate, Session: 0, Account: "@acct", Target: 5}

	res, err := ctl.RunAccount(context.Background(), acct, quota, plan)
	if err != nil {
		t.Fatalf("RunAccount: %v", err)
	}
	if res.Likes != 2 {
		t.Fatalf("likes = %d, want the 2 the quota allows", res.Likes)
	}
	if res.Skipped != 3 {
		t.Fatalf("skipped = %d, want 3 over-quota candidates", res.Skipped)
	}
	counts, _ := st.Counts(context.Background(), "@acct", testDate)
	if counts.Likes != 2 {
		t.Fatalf("like counter %d, want 2", counts.Likes)
	}
}

func TestSkippedCandidatesMayRetweetInWindow(t *testing.T) {
	drv := &fakeDriver{batch: testBatch(5)}
	cfg := testConfig()
	cfg.RetweetChance = 1
	ctl, st := testController(t, drv, &fakeGen{}, randx.FromSource(constSource{0}), cfg)

	acct := config.AccountConfig{
		Handle:        "@acct",
		CreatedDate:   "2026-08-01",
		SkipRate:      1, // every candidate goes to the skip path
		RetweetWindow: config.HourWindow{Start: 0, End: 24},
	}
	quota := storage.DailyQuota{Account: "@acct", Date: testDate, TargetReplies: 10, TargetRetweets: 2}
	plan := storage.SessionPlan{Date: testDate, Session: 0, Account: "@acct", Target: 5}

	res, err := ctl.RunAccount(context.Background(), acct, quota, plan)
	if err != nil {
		t.Fatalf("RunAccount: %v", err)
	}
	if res.Retweets != 2 {
		t.Fatalf("retweets = %d, want the 2 the quota allows", res.Retweets)
	}
	if res.Skipped != 5 {
		t.Fatalf("skipped = %d, want all 5", res.Skipped)
	}
	counts, _ := st.Counts(context.Background(), "@acct", testDate)
	if counts.Retweets != 2 {
		t.Fatalf("retweet counter %d, want 2", counts.Retweets)
	}
}

func TestEarlyExitCutsNominalTarget(t *testing.T) {
	cfg := testConfig()
	cfg.EarlyExitChance = 1
	ctl, _ := testController(t, &fakeDriver{batch: testBatch(12)}, &fakeGen{}, randx.FromSource(constSource{0}), cfg)

	// Draw 0 cuts exactly one reply off the nominal target.
	acct := config.AccountConfig{Handle: "@acct", CreatedDate: "2026-08-01", ActionMix: &config.ActionMix{Reply: 1}}
	quota := storage.DailyQuota{Account: "@acct", Date: testDate, TargetReplies: 100, TargetLikes: 0}
	plan := storage.SessionPlan{Date: testDate, Session: 0, Account: "@acct", Target: 9}

	res, err := ctl.RunAccount(context.Background(), acct, quota, plan)
	if err != nil {
		t.Fatalf("RunAccount: %v", err)
	}
	if res.Replies != 8 {
		t.Fatalf("replies = %d, want 8 after the early exit cut", res.Replies)
	}
}

func TestDuplicateAuthorInBatchNotRepliedTwice(t *testing.T) {
	batch := testBatch(4)
	batch[1].Author = batch[0].Author // same author, different post
	drv := &fakeDriver{batch: batch}
	gen := &fakeGen{}
	ctl, _ := testController(t, drv, gen, randx.FromSource(constSource{0}), testConfig())

	acct := config.AccountConfig{Handle: "@acct", CreatedDate: "2026-08-01", ActionMix: &config.ActionMix{Reply: 1}}
	quota := storage.DailyQuota{Account: "@acct", Date: testDate, TargetReplies: 10}
	plan := storage.SessionPlan{Date: testDate, Session: 0, Account: "@acct", Target: 4}

	res, err := ctl.RunAccount(context.Background(), acct, quota, plan)
	if err != nil {
		t.Fatalf("RunAccount: %v", err)
	}
	if res.Replies != 3 {
		t.Fatalf("replies = %d, want 3 distinct authors", res.Replies)
	}
	// The second post by the shared author must never reach the driver or
	// the generator, not merely fail to be recorded.
	if drv.posts != 3 || gen.calls != 3 {
		t.Fatalf("driver posts %d, generator calls %d, want 3 and 3", drv.posts, gen.calls)
	}
}

func TestReplySkipsAuthorAlreadyRepliedToday(t *testing.T) {
	drv := &fakeDriver{}
	gen := &fakeGen{}
	ctl, st := testController(t, drv, gen, randx.FromSource(constSource{0}), testConfig())

	ctx := context.Background()
	seed := storage.ReplyRecord{
		Account:     "@acct",
		CandidateID: "earlier",
		Author:      "author0",
		ReplyText:   "done",
		Posted:      true,
	}
	if err := st.RecordReply(ctx, seed, testDate); err != nil {
		t.Fatalf("seed reply: %v", err)
	}

	acct := config.AccountConfig{Handle: "@acct", CreatedDate: "2026-08-01"}
	quota := storage.DailyQuota{Account: "@acct", Date: testDate, TargetReplies: 10}
	plan := storage.SessionPlan{Date: testDate, Session: 0, Account: "@acct", Target: 3}
	cand := feed.Scored{Candidate: feed.Candidate{Author: "author0", Text: "another post"}, ID: "later"}

	var res Result
	var counts storage.DayCounts
	if err := ctl.replyTo(ctx, logx.Nop(), acct, quota, plan, cand, &counts, &res); err != nil {
		t.Fatalf("replyTo: %v", err)
	}
	if gen.calls != 0 || drv.posts != 0 {
		t.Fatalf("dispatched to a repeated author: generator calls %d, posts %d", gen.calls, drv.posts)
	}
	if res.Skipped != 1 {
		t.Fatalf("skipped = %d, want 1", res.Skipped)
	}
}

func TestLikeBranchLikesProbabilistically(t *testing.T) {
	drv := &fakeDriver{batch: testBatch(4)}
	cfg := testConfig()
	cfg.LikeChance = config.FloatRange{Min: 0.5, Max: 0.5}
	// Draw 0.5 lands every candidate in the like branch for a like-heavy
	// mix, then fails the 0.5 like chance.
	ctl, _ := testController(t, drv, &fakeGen{}, randx.FromSource(constSource{0.5}), cfg)

	acct := config.AccountConfig{Handle: "@acct", CreatedDate: "2026-08-01", ActionMix: &config.ActionMix{Like: 0.95}}
	quota := storage.DailyQuota{Account: "@acct", Date: testDate, TargetReplies: 10, TargetLikes: 10}
	plan := storage.SessionPlan{Date: testDate, Session: 0, Account: "@acct", Target: 5}

	res, err := ctl.RunAccount(context.Background(), acct, quota, plan)
	if err != nil {
		t.Fatalf("RunAccount: %v", err)
	}
	if res.Likes != 0 || drv.likes != 0 {
		t.Fatalf("likes = %d (driver %d), want 0 when the like chance fails", res.Likes, drv.likes)
	}
	if res.Skipped != 4 {
		t.Fatalf("skipped = %d, want all 4", res.Skipped)
	}
}

func TestSessionRatesStableWithinDay(t *testing.T) {
	ctl, _ := testController(t, &fakeDriver{}, &fakeGen{}, randx.NewSeeded(1, 2), Config{DailyJitter: 0.05})

	acct := config.AccountConfig{Handle: "@acct", ActionMix: &config.ActionMix{Reply: 0.4, Like: 0.3}}
	r1, l1 := ctl.sessionRates(acct, testDate)
	r2, l2 := ctl.sessionRates(acct, testDate)
	// No session jitter configured: repeated calls on the same date reuse
	// the daily draw exactly.
	if r1 != r2 || l1 != l2 {
		t.Fatalf("rates drifted within a day: (%f,%f) vs (%f,%f)", r1, l1, r2, l2)
	}
	if r1 < 0.35-1e-9 || r1 > 0.45+1e-9 {
		t.Fatalf("reply rate %f outside the ±0.05 daily jitter band", r1)
	}

	// A new date rerolls the daily jitter map.
	ctl.sessionRates(acct, "2026-08-31")
	if ctl.jitterDate != "2026-08-31" {
		t.Fatalf("jitter date not rolled: %s", ctl.jitterDate)
	}
}
