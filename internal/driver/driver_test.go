package driver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"engagebot/internal/config"
	logx "engagebot/pkg/logx"
	"engagebot/pkg/randx"
)

func sidecar(t *testing.T, handler http.HandlerFunc) *HTTPDriver {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	d, err := NewHTTP(config.DriverConfig{BaseURL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	return d
}

func TestHTTPDriverSwitchAccount(t *testing.T) {
	var gotHandle string
	d := sidecar(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/switch" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		gotHandle = body["handle"]
		json.NewEncoder(w).Encode(okResponse{OK: true})
	})

	ok, err := d.SwitchAccount(context.Background(), "@acct")
	if err != nil || !ok {
		t.Fatalf("SwitchAccount = %v, %v", ok, err)
	}
	if gotHandle != "@acct" {
		t.Fatalf("handle %q", gotHandle)
	}
}

func TestHTTPDriverListCandidates(t *testing.T) {
	ts := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)
	d := sidecar(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/candidates" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]candidateRow{
			{Author: "alice", Text: "post", Timestamp: ts, Likes: 7},
		})
	})

	got, err := d.ListCandidates(context.Background())
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(got) != 1 || got[0].Author != "alice" || got[0].Likes != 7 || !got[0].Timestamp.Equal(ts) {
		t.Fatalf("candidates %+v", got)
	}
}

func TestHTTPDriverErrorStatus(t *testing.T) {
	d := sidecar(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	if _, err := d.PostReply(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for 502")
	}
	if err := d.Ping(context.Background()); err == nil {
		t.Fatal("expected health failure for 502")
	}
}

func TestHTTPDriverReportsNotOK(t *testing.T) {
	d := sidecar(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(okResponse{OK: false})
	})
	ok, err := d.PostReply(context.Background(), "hi")
	if err != nil {
		t.Fatalf("PostReply: %v", err)
	}
	if ok {
		t.Fatal("ok=false must pass through")
	}
}

func TestDryRunSuppressesMutations(t *testing.T) {
	sim := NewSim(randx.NewSeeded(1, 2), logx.Nop())
	d := NewDryRun(sim, logx.Nop())
	ctx := context.Background()

	// Reads pass through to the wrapped driver.
	cands, err := d.ListCandidates(ctx)
	if err != nil || len(cands) == 0 {
		t.Fatalf("ListCandidates = %d, %v", len(cands), err)
	}
	// Mutations report success without reaching it.
	if ok, err := d.PostReply(ctx, "hello"); err != nil || !ok {
		t.Fatalf("PostReply = %v, %v", ok, err)
	}
	if ok, err := d.Like(ctx); err != nil || !ok {
		t.Fatalf("Like = %v, %v", ok, err)
	}
}

func TestSimCandidatesLookPlausible(t *testing.T) {
	sim := NewSim(randx.NewSeeded(5, 6), logx.Nop())
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	sim.now = func() time.Time { return now }

	cands, err := sim.ListCandidates(context.Background())
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(cands) < 8 || len(cands) > 15 {
		t.Fatalf("batch size %d outside [8, 15]", len(cands))
	}
	for _, c := range cands {
		if c.Author == "" || c.Text == "" {
			t.Fatalf("empty fields in %+v", c)
		}
		age := now.Sub(c.Timestamp)
		if age < time.Minute || age > 600*time.Minute {
			t.Fatalf("age %v outside [1m, 600m]", age)
		}
		if c.Likes < 0 || c.Likes >= 500 {
			t.Fatalf("likes %d out of range", c.Likes)
		}
	}
}
