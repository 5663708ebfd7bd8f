package planner

import (
	"context"
	"path/filepath"
	"testing"

	"engagebot/internal/storage"
	logx "engagebot/pkg/logx"
	"engagebot/pkg/randx"
)

func testStore(t *testing.T) *storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "planner.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestPlanTargetsSumToRemaining(t *testing.T) {
	st := testStore(t)
	p := New(st, randx.NewSeeded(1, 2), 3, 4, logx.Nop())

	remaining := []Remaining{
		{Account: "@a", Replies: 12},
		{Account: "@b", Replies: 5},
		{Account: "@c", Replies: 1},
	}
	plans, err := p.EnsurePlans(context.Background(), "2026-08-30", remaining)
	if err != nil {
		t.Fatalf("EnsurePlans: %v", err)
	}

	sums := map[string]int{}
	maxSession := 0
	for _, pl := range plans {
		if pl.Target < 0 {
			t.Fatalf("negative target in %+v", pl)
		}
		sums[pl.Account] += pl.Target
		if pl.Session > maxSession {
			maxSession = pl.Session
		}
	}
	for _, rem := range remaining {
		if sums[rem.Account] != rem.Replies {
			t.Fatalf("%s: planned %d, want %d", rem.Account, sums[rem.Account], rem.Replies)
		}
	}
	if maxSession > 3 {
		t.Fatalf("session index %d exceeds the configured maximum", maxSession)
	}
}

func TestPlanSpreadsAcrossMultipleSessions(t *testing.T) {
	st := testStore(t)
	p := New(st, randx.NewSeeded(7, 8), 3, 3, logx.Nop())

	plans, err := p.EnsurePlans(context.Background(), "2026-08-30", []Remaining{{Account: "@a", Replies: 20}})
	if err != nil {
		t.Fatalf("EnsurePlans: %v", err)
	}
	if len(plans) != 3 {
		t.Fatalf("expected the account in all 3 sessions, got %d rows", len(plans))
	}
	// Fixed session count keeps the indices exactly 0, 1, 2.
	for i, pl := range plans {
		if pl.Session != i {
			t.Fatalf("row %d has session %d", i, pl.Session)
		}
	}
}

func TestPlanSmallBudgets(t *testing.T) {
	st := testStore(t)
	p := New(st, randx.NewSeeded(9, 10), 3, 4, logx.Nop())

	plans, err := p.EnsurePlans(context.Background(), "2026-08-30", []Remaining{
		{Account: "@one", Replies: 1},
		{Account: "@two", Replies: 2},
		{Account: "@done", Replies: 0},
	})
	if err != nil {
		t.Fatalf("EnsurePlans: %v", err)
	}

	rows := map[string]int{}
	for _, pl := range plans {
		rows[pl.Account]++
	}
	if rows["@one"] != 1 {
		t.Fatalf("1 remaining reply should yield 1 session, got %d", rows["@one"])
	}
	if rows["@two"] != 2 {
		t.Fatalf("2 remaining replies should yield 2 sessions, got %d", rows["@two"])
	}
	if rows["@done"] != 0 {
		t.Fatalf("exhausted account should not be planned, got %d rows", rows["@done"])
	}
}

func TestPlansSurviveRestart(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	first, err := New(st, randx.NewSeeded(1, 2), 3, 4, logx.Nop()).
		EnsurePlans(ctx, "2026-08-30", []Remaining{{Account: "@a", Replies: 15}})
	if err != nil {
		t.Fatalf("first: %v", err)
	}

	// A differently-seeded planner after restart must reuse the stored rows.
	second, err := New(st, randx.NewSeeded(77, 78), 3, 4, logx.Nop()).
		EnsurePlans(ctx, "2026-08-30", []Remaining{{Account: "@a", Replies: 15}})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("row count changed: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("row %d changed across restart: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestSpreadLastSessionTakesRemainder(t *testing.T) {
	p := New(nil, randx.NewSeeded(3, 4), 3, 3, logx.Nop())
	for total := 1; total <= 40; total++ {
		for n := 1; n <= 4; n++ {
			targets := p.spread(total, n)
			sum := 0
			for _, v := range targets {
				if v < 0 {
					t.Fatalf("total=%d n=%d: negative target %v", total, n, targets)
				}
				sum += v
			}
			if sum != total {
				t.Fatalf("total=%d n=%d: spread sums to %d (%v)", total, n, sum, targets)
			}
		}
	}
}
