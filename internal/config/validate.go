package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// dateLayout is the account creation-date format.
const dateLayout = "2006-01-02"

// Validate fails fast on anything the scheduler cannot run with.
// It is called before any lock or store side effect.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}

	if err := validateWarmup("warmup_schedule", c.Warmup, true); err != nil {
		return err
	}

	if len(c.Accounts) == 0 {
		return errors.New("at least one account is required")
	}
	seen := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		at := fmt.Sprintf("accounts[%d]", i)
		h := strings.TrimSpace(a.Handle)
		if h == "" {
			return fmt.Errorf("%s: handle is required", at)
		}
		if !strings.HasPrefix(h, "@") {
			return fmt.Errorf("%s: handle %q must start with @", at, h)
		}
		if seen[h] {
			return fmt.Errorf("%s: duplicate handle %q", at, h)
		}
		seen[h] = true

		if _, err := time.Parse(dateLayout, a.CreatedDate); err != nil {
			return fmt.Errorf("%s: created_date %q: want YYYY-MM-DD", at, a.CreatedDate)
		}
		if err := validateWarmup(at+".warmup_override", a.Warmup, false); err != nil {
			return err
		}
		if a.ActionMix != nil {
			if err := a.ActionMix.validate(at + ".action_mix"); err != nil {
				return err
			}
		}
		if a.ReplyTiming != nil {
			t := a.ReplyTiming
			if t.Fast < 0 || t.Medium < 0 || t.Slow < 0 {
				return fmt.Errorf("%s.reply_timing: weights must be >= 0", at)
			}
			if t.Fast+t.Medium+t.Slow <= 0 {
				return fmt.Errorf("%s.reply_timing: at least one weight must be > 0", at)
			}
		}
		if a.SkipRate < 0 || a.SkipRate > 1 {
			return fmt.Errorf("%s: skip_rate must be in [0, 1]", at)
		}
		switch a.Speed {
		case "", "fast", "slow":
		default:
			return fmt.Errorf("%s: speed %q must be \"fast\", \"slow\", or empty", at, a.Speed)
		}
		if err := validateWindow(at+".active_hours", a.ActiveHours); err != nil {
			return err
		}
		if err := validateWindow(at+".retweet_window", a.RetweetWindow); err != nil {
			return err
		}
	}

	if err := c.Scheduler.validate(); err != nil {
		return err
	}

	if strings.TrimSpace(c.Generation.BaseURL) == "" {
		return errors.New("generation.base_url is required")
	}
	if strings.TrimSpace(c.Generation.Model) == "" {
		return errors.New("generation.model is required")
	}
	if _, err := ParseDurationField("generation.timeout", c.Generation.Timeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("generation.breaker_cooldown", c.Generation.BreakerCooldown); err != nil {
		return err
	}
	if c.Generation.BreakerThreshold < 0 {
		return errors.New("generation.breaker_threshold must be >= 0")
	}

	if _, err := ParseDurationField("driver.timeout", c.Driver.Timeout); err != nil {
		return err
	}

	if c.Notifier != nil {
		if strings.TrimSpace(c.Notifier.Token) == "" {
			return errors.New("notifier.token is required when notifier is set")
		}
		if c.Notifier.ChatID == 0 {
			return errors.New("notifier.chat_id is required when notifier is set")
		}
	}

	return nil
}

func (m *ActionMix) validate(path string) error {
	if m.Reply < 0 || m.Like < 0 {
		return fmt.Errorf("%s: rates must be >= 0", path)
	}
	if m.Reply+m.Like > 1 {
		return fmt.Errorf("%s: reply+like must be <= 1 (the rest is skip)", path)
	}
	return nil
}

func validateWarmup(path string, s WarmupSchedule, required bool) error {
	if len(s) == 0 {
		if required {
			return fmt.Errorf("%s: at least one bracket is required", path)
		}
		return nil
	}
	for i, b := range s {
		at := fmt.Sprintf("%s[%d]", path, i)
		if b.MinReplies < 0 || b.MinLikes < 0 {
			return fmt.Errorf("%s: targets must be >= 0", at)
		}
		if b.MaxReplies < b.MinReplies {
			return fmt.Errorf("%s: max_replies < min_replies", at)
		}
		if b.MaxLikes < b.MinLikes {
			return fmt.Errorf("%s: max_likes < min_likes", at)
		}
	}
	return nil
}

func validateWindow(path string, w HourWindow) error {
	if w.Start < 0 || w.Start > 23 || w.End < 0 || w.End > 24 {
		return fmt.Errorf("%s: hours must be within 0-24", path)
	}
	return nil
}

func (s *SchedulerConfig) validate() error {
	if s.Sessions.Min != 0 || s.Sessions.Max != 0 {
		if s.Sessions.Min < 1 || s.Sessions.Max < s.Sessions.Min {
			return errors.New("scheduler.sessions: want 1 <= min <= max")
		}
	}
	switch s.LowActivity.Rule {
	case "", "random", "weekdays":
	default:
		return fmt.Errorf("scheduler.low_activity.rule %q must be \"random\" or \"weekdays\"", s.LowActivity.Rule)
	}
	if s.LowActivity.Chance < 0 || s.LowActivity.Chance > 1 {
		return errors.New("scheduler.low_activity.chance must be in [0, 1]")
	}
	for _, d := range s.LowActivity.Weekdays {
		if d < 0 || d > 6 {
			return fmt.Errorf("scheduler.low_activity.weekdays: %d out of range (0=Sunday..6=Saturday)", d)
		}
	}
	if r := s.LowActivity.Reduction; !r.IsZero() {
		if r.Min < 0 || r.Max > 1 || r.Max < r.Min {
			return errors.New("scheduler.low_activity.reduction: want 0 <= min <= max <= 1")
		}
	}
	if r := s.RetweetRatio; !r.IsZero() {
		if r.Min < 0 || r.Max < r.Min {
			return errors.New("scheduler.retweet_ratio: want 0 <= min <= max")
		}
	}
	if r := s.FollowupLike; !r.IsZero() {
		if r.Min < 0 || r.Max > 1 || r.Max < r.Min {
			return errors.New("scheduler.followup_like: want 0 <= min <= max <= 1")
		}
	}
	if r := s.LikeChance; !r.IsZero() {
		if r.Min < 0 || r.Max > 1 || r.Max < r.Min {
			return errors.New("scheduler.like_chance: want 0 <= min <= max <= 1")
		}
	}
	if err := validateWindow("scheduler.active_hours", s.ActiveHours); err != nil {
		return err
	}
	for _, p := range []struct {
		name string
		v    *float64
	}{
		{"scheduler.early_exit_chance", s.EarlyExitChance},
		{"scheduler.daily_jitter", s.DailyJitter},
		{"scheduler.session_jitter", s.SessionJitter},
		{"scheduler.retweet_chance", s.RetweetChance},
	} {
		if p.v != nil && (*p.v < 0 || *p.v > 1) {
			return fmt.Errorf("%s must be in [0, 1]", p.name)
		}
	}
	if s.ExcludeAccounts != nil && *s.ExcludeAccounts < 0 {
		return errors.New("scheduler.exclude_accounts must be >= 0")
	}
	if s.SelectionBuffer != nil && *s.SelectionBuffer < 0 {
		return errors.New("scheduler.selection_buffer must be >= 0")
	}
	for _, f := range []struct {
		name string
		raw  string
	}{
		{"scheduler.max_candidate_age", s.MaxCandidateAge},
		{"scheduler.bucket_width", s.BucketWidth},
	} {
		if _, err := ParseDurationField(f.name, f.raw); err != nil {
			return err
		}
	}
	for _, r := range []struct {
		name string
		v    DurationRange
	}{
		{"scheduler.session_pause", s.SessionPause},
		{"scheduler.account_pause", s.AccountPause},
		{"scheduler.candidate_pause", s.CandidatePause},
		{"scheduler.reply_fast", s.ReplyFast},
		{"scheduler.reply_medium", s.ReplyMedium},
		{"scheduler.reply_slow", s.ReplySlow},
		{"scheduler.followup_delay", s.FollowupDelay},
	} {
		if _, err := ParseDurationField(r.name+".min", r.v.Min); err != nil {
			return err
		}
		if _, err := ParseDurationField(r.name+".max", r.v.Max); err != nil {
			return err
		}
	}
	return nil
}
