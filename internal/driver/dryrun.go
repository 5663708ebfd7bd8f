package driver

import (
	"context"
	"fmt"
	"time"

	"engagebot/internal/feed"
	logx "engagebot/pkg/logx"
	"engagebot/pkg/randx"
)

// DryRun wraps a real driver: reads pass through, mutations are logged
// and reported as successful without touching the page. Counters still
// advance upstream, which is the point of the dry-run switch.
type DryRun struct {
	inner Driver
	log   logx.Logger
}

func NewDryRun(inner Driver, log logx.Logger) *DryRun {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &DryRun{inner: inner, log: log}
}

func (d *DryRun) SwitchAccount(ctx context.Context, handle string) (bool, error) {
	return d.inner.SwitchAccount(ctx, handle)
}

func (d *DryRun) ListCandidates(ctx context.Context) ([]feed.Candidate, error) {
	return d.inner.ListCandidates(ctx)
}

func (d *DryRun) PostReply(ctx context.Context, text string) (bool, error) {
	d.log.Info("[dry-run] would post reply", logx.String("text", text))
	return true, nil
}

func (d *DryRun) Like(ctx context.Context) (bool, error) {
	d.log.Info("[dry-run] would like")
	return true, nil
}

func (d *DryRun) Retweet(ctx context.Context) (bool, error) {
	d.log.Info("[dry-run] would retweet")
	return true, nil
}

func (d *DryRun) Skip(ctx context.Context) error {
	d.log.Debug("[dry-run] skip")
	return nil
}

func (d *DryRun) Ping(ctx context.Context) error { return d.inner.Ping(ctx) }

// Sim is a self-contained driver producing synthetic candidates. It backs
// dry runs with no sidecar configured and the package tests.
type Sim struct {
	rnd *randx.Rand
	log logx.Logger
	now func() time.Time

	seq int
}

func NewSim(rnd *randx.Rand, log logx.Logger) *Sim {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sim{rnd: rnd, log: log, now: time.Now}
}

func (s *Sim) SwitchAccount(ctx context.Context, handle string) (bool, error) {
	s.log.Debug("[sim] switch account", logx.String("handle", handle))
	return true, nil
}

func (s *Sim) ListCandidates(ctx context.Context) ([]feed.Candidate, error) {
	n := 8 + s.rnd.IntN(8)
	now := s.now()
	out := make([]feed.Candidate, 0, n)
	for i := 0; i < n; i++ {
		s.seq++
		out = append(out, feed.Candidate{
			Author:    fmt.Sprintf("sim_author_%d", s.rnd.IntN(40)),
			Text:      fmt.Sprintf("synthetic candidate post %d for pacing runs", s.seq),
			Timestamp: now.Add(-time.Duration(s.rnd.Between(1, 600)) * time.Minute),
			Likes:     s.rnd.IntN(500),
		})
	}
	return out, nil
}

func (s *Sim) PostReply(ctx context.Context, text string) (bool, error) {
	s.log.Info("[sim] reply", logx.String("text", text))
	return true, nil
}

func (s *Sim) Like(ctx context.Context) (bool, error)    { return true, nil }
func (s *Sim) Retweet(ctx context.Context) (bool, error) { return true, nil }
func (s *Sim) Skip(ctx context.Context) error            { return nil }
func (s *Sim) Ping(ctx context.Context) error            { return nil }
