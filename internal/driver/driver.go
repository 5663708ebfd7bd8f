// Package driver is the port to the external browser-automation layer.
// The headless browser, DOM scraping, and screenshots live out of
// process; the scheduler only sees this interface. Every method may fail,
// and every failure is recoverable at the per-candidate level.
package driver

import (
	"context"

	"engagebot/internal/feed"
)

type Driver interface {
	// SwitchAccount makes handle the active account; false means not found.
	SwitchAccount(ctx context.Context, handle string) (bool, error)
	// ListCandidates extracts the currently rendered candidate posts.
	ListCandidates(ctx context.Context) ([]feed.Candidate, error)
	// PostReply sends text as a reply to the focused candidate.
	PostReply(ctx context.Context, text string) (bool, error)
	Like(ctx context.Context) (bool, error)
	Retweet(ctx context.Context) (bool, error)
	// Skip advances past the focused candidate without acting.
	Skip(ctx context.Context) error
	// Ping verifies the driver is reachable (health check).
	Ping(ctx context.Context) error
}
