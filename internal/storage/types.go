package storage

import (
	"errors"
	"time"
)

// ErrDuplicate signals an expected uniqueness conflict: the reply or
// replied-author row already exists. Callers treat it as "already done",
// never as a fatal store failure.
var ErrDuplicate = errors.New("storage: duplicate row")

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// DailyQuota is the per-(account, date) action budget. Once persisted for
// a date it is never recomputed for that date.
type DailyQuota struct {
	Account        string
	Date           string
	TargetReplies  int
	TargetLikes    int
	TargetRetweets int
	LowActivity    bool
}

// SessionPlan is one account's reply target for one session of a day.
type SessionPlan struct {
	Date      string
	Session   int
	Account   string
	Target    int
	Completed int
}

// ReplyRecord is the append-only reply snapshot. (Account, CandidateID)
// is unique; that constraint is the at-most-once-per-candidate guarantee.
type ReplyRecord struct {
	Account     string
	CandidateID string
	Author      string
	TweetText   string
	ReplyText   string
	AgeMinutes  float64
	Score       float64
	Posted      bool
	At          time.Time
}

// DayCounts are the completed actions so far for one (account, date).
type DayCounts struct {
	Replies  int
	Likes    int
	Retweets int
}
