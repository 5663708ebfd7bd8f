package feed

import (
	"context"
	"fmt"
	"sort"
	"time"

	logx "engagebot/pkg/logx"
	"engagebot/pkg/randx"
)

// Scored is a candidate annotated with its identity and rank inputs.
type Scored struct {
	Candidate
	ID         string
	Score      float64
	AgeMinutes float64
}

// Dedup answers "have we already acted here" questions for selection.
// Satisfied by *storage.Store.
type Dedup interface {
	HasReply(ctx context.Context, account, candidateID string) (bool, error)
	HasRepliedAuthor(ctx context.Context, account, author, date string) (bool, error)
}

type SelectorConfig struct {
	// MaxAge excludes candidates older than this ceiling. Default 24h.
	MaxAge time.Duration
	// Buffer widens the top window beyond the session target before the
	// shuffle, decorrelating "always the single top post". Default 3.
	Buffer int
	// BucketWidth is the timestamp truncation for candidate ids.
	BucketWidth time.Duration
}

type Selector struct {
	dedup Dedup
	rnd   *randx.Rand
	log   logx.Logger
	cfg   SelectorConfig
	now   func() time.Time
}

func NewSelector(dedup Dedup, rnd *randx.Rand, cfg SelectorConfig, log logx.Logger) *Selector {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 3
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Selector{dedup: dedup, rnd: rnd, log: log, cfg: cfg, now: time.Now}
}

// SetNow overrides the clock (tests).
func (s *Selector) SetNow(now func() time.Time) { s.now = now }

// Select ranks the batch and samples up to target candidates for the
// account: dedup-filter, score, sort descending, take target+buffer,
// shuffle, slice. At most one candidate per author survives a batch, so
// the per-day author uniqueness cannot be violated within a single pass.
// An empty result means nothing qualifies.
func (s *Selector) Select(ctx context.Context, account, date string, speed string, batch []Candidate, target int) ([]Scored, error) {
	if target <= 0 || len(batch) == 0 {
		return nil, nil
	}
	now := s.now()

	scored := make([]Scored, 0, len(batch))
	seen := make(map[string]bool, len(batch))
	seenAuthor := make(map[string]bool, len(batch))
	for _, c := range batch {
		age := now.Sub(c.Timestamp)
		if age > s.cfg.MaxAge {
			continue
		}
		if seenAuthor[c.Author] {
			continue
		}
		id := CandidateID(c, s.cfg.BucketWidth)
		if seen[id] {
			continue
		}
		seen[id] = true

		replied, err := s.dedup.HasReply(ctx, account, id)
		if err != nil {
			return nil, fmt.Errorf("dedup candidate %s: %w", id, err)
		}
		if replied {
			continue
		}
		authorDone, err := s.dedup.HasRepliedAuthor(ctx, account, c.Author, date)
		if err != nil {
			return nil, fmt.Errorf("dedup author %s: %w", c.Author, err)
		}
		if authorDone {
			continue
		}

		seenAuthor[c.Author] = true

		ageMin := age.Minutes()
		if ageMin < 0 {
			ageMin = 0
		}
		scored = append(scored, Scored{
			Candidate:  c,
			ID:         id,
			Score:      Score(c, now, speed),
			AgeMinutes: ageMin,
		})
	}
	if len(scored) == 0 {
		return nil, nil
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	window := target + s.cfg.Buffer
	if window > len(scored) {
		window = len(scored)
	}
	top := scored[:window]
	randx.Shuffle(s.rnd, top)
	if target > len(top) {
		target = len(top)
	}

	s.log.Debug("candidates selected",
		logx.String("account", account),
		logx.Int("batch", len(batch)),
		logx.Int("eligible", len(scored)),
		logx.Int("picked", target),
	)
	return top[:target], nil
}
