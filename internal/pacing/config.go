package pacing

import (
	"time"

	"engagebot/internal/config"
)

// Config is the fully-resolved pacing policy (durations parsed, defaults
// applied). Built once per run from the scheduler config.
type Config struct {
	ReplyFastMin, ReplyFastMax     time.Duration
	ReplyMediumMin, ReplyMediumMax time.Duration
	ReplySlowMin, ReplySlowMax     time.Duration
	CandidateMin, CandidateMax     time.Duration
	FollowupMin, FollowupMax       time.Duration

	EarlyExitChance float64
	FollowupLike    config.FloatRange
	LikeChance      config.FloatRange
	DailyJitter     float64
	SessionJitter   float64
	RetweetChance   float64
}

func ConfigFrom(s config.SchedulerConfig) (Config, error) {
	c := Config{
		EarlyExitChance: 0.2,
		FollowupLike:    config.FloatRange{Min: 0.6, Max: 0.9},
		LikeChance:      config.FloatRange{Min: 0.7, Max: 0.95},
		DailyJitter:     0.05,
		SessionJitter:   0.02,
		RetweetChance:   0.1,
	}
	if s.EarlyExitChance != nil {
		c.EarlyExitChance = *s.EarlyExitChance
	}
	if !s.FollowupLike.IsZero() {
		c.FollowupLike = s.FollowupLike
	}
	if !s.LikeChance.IsZero() {
		c.LikeChance = s.LikeChance
	}
	if s.DailyJitter != nil {
		c.DailyJitter = *s.DailyJitter
	}
	if s.SessionJitter != nil {
		c.SessionJitter = *s.SessionJitter
	}
	if s.RetweetChance != nil {
		c.RetweetChance = *s.RetweetChance
	}

	var err error
	if c.ReplyFastMin, c.ReplyFastMax, err = config.ParseRange("scheduler.reply_fast", s.ReplyFast, 3*time.Second, 8*time.Second); err != nil {
		return Config{}, err
	}
	if c.ReplyMediumMin, c.ReplyMediumMax, err = config.ParseRange("scheduler.reply_medium", s.ReplyMedium, 15*time.Second, 45*time.Second); err != nil {
		return Config{}, err
	}
	if c.ReplySlowMin, c.ReplySlowMax, err = config.ParseRange("scheduler.reply_slow", s.ReplySlow, 60*time.Second, 180*time.Second); err != nil {
		return Config{}, err
	}
	if c.CandidateMin, c.CandidateMax, err = config.ParseRange("scheduler.candidate_pause", s.CandidatePause, 5*time.Second, 15*time.Second); err != nil {
		return Config{}, err
	}
	if c.FollowupMin, c.FollowupMax, err = config.ParseRange("scheduler.followup_delay", s.FollowupDelay, 2*time.Second, 10*time.Second); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Default per-account knobs, used when the account config leaves them out.
var (
	defaultMix    = config.ActionMix{Reply: 0.4, Like: 0.3}
	defaultTiming = config.TimingWeights{Fast: 0.3, Medium: 0.5, Slow: 0.2}
	defaultHours  = config.HourWindow{Start: 8, End: 22}
)
