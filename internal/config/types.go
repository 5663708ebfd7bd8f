package config

// Config is the full scheduler configuration.
//
// The file may be JSON or YAML; YAML is coerced to JSON before the strict
// decoder runs, so unknown fields are rejected in both formats.
// All durations are Go duration strings (e.g. "30s", "3m").
type Config struct {
	Logging    LoggingConfig    `json:"logging,omitempty"`
	Storage    StorageConfig    `json:"storage"`
	Lock       LockConfig       `json:"lock,omitempty"`
	Scheduler  SchedulerConfig  `json:"scheduler,omitempty"`
	Generation GenerationConfig `json:"generation"`
	Driver     DriverConfig     `json:"driver,omitempty"`
	Notifier   *NotifierConfig  `json:"notifier,omitempty"`

	// Warmup is the default ramp; accounts may override it.
	// Index 0 is week 1; the last bracket is open-ended.
	Warmup WarmupSchedule `json:"warmup_schedule"`

	Accounts []AccountConfig `json:"accounts"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console *bool  `json:"console,omitempty"` // default true
	File    string `json:"file,omitempty"`    // empty disables the file sink
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type LockConfig struct {
	Path string `json:"path,omitempty"` // default /tmp/engagebot.lock
}

// WarmupBracket is one week of the ramp.
type WarmupBracket struct {
	MinReplies int `json:"min_replies"`
	MaxReplies int `json:"max_replies"`
	MinLikes   int `json:"min_likes,omitempty"`
	MaxLikes   int `json:"max_likes,omitempty"`
}

type WarmupSchedule []WarmupBracket

// Bracket returns the bracket for a 1-based week number,
// clamped to the last (open-ended) entry.
func (s WarmupSchedule) Bracket(week int) WarmupBracket {
	if len(s) == 0 {
		return WarmupBracket{}
	}
	if week < 1 {
		week = 1
	}
	if week > len(s) {
		week = len(s)
	}
	return s[week-1]
}

// ActionMix is the per-candidate action distribution. Whatever remains
// after reply+like is the skip mass.
type ActionMix struct {
	Reply float64 `json:"reply"`
	Like  float64 `json:"like"`
}

// TimingWeights weight the reply-send delay tiers.
type TimingWeights struct {
	Fast   float64 `json:"fast"`
	Medium float64 `json:"medium"`
	Slow   float64 `json:"slow"`
}

// HourWindow is a local-time [Start, End) hour range. Zero value means
// "unset"; callers substitute defaults.
type HourWindow struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (w HourWindow) IsZero() bool { return w.Start == 0 && w.End == 0 }

// Contains reports whether hour falls inside the window.
// Windows wrapping midnight (Start > End) are supported.
func (w HourWindow) Contains(hour int) bool {
	if w.Start <= w.End {
		return hour >= w.Start && hour < w.End
	}
	return hour >= w.Start || hour < w.End
}

type AccountConfig struct {
	Handle      string `json:"handle"`
	CreatedDate string `json:"created_date"` // YYYY-MM-DD

	// Prompt/style/tone are passed through to the generation service
	// verbatim; the scheduler does not interpret them.
	Prompt     string `json:"prompt,omitempty"`
	ReplyStyle string `json:"reply_style,omitempty"`
	Tone       string `json:"tone,omitempty"`

	Warmup        WarmupSchedule `json:"warmup_override,omitempty"`
	ActionMix     *ActionMix     `json:"action_mix,omitempty"`
	ReplyTiming   *TimingWeights `json:"reply_timing,omitempty"`
	ActiveHours   HourWindow     `json:"active_hours,omitempty"`
	RetweetWindow HourWindow     `json:"retweet_window,omitempty"`
	SkipRate      float64        `json:"skip_rate,omitempty"`

	// Speed biases candidate scoring: "fast" favors very fresh posts,
	// "slow" favors moderately aged ones. Empty is neutral.
	Speed string `json:"speed,omitempty"`
}

// FloatRange is a [Min, Max] range a value is drawn from.
type FloatRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r FloatRange) IsZero() bool { return r.Min == 0 && r.Max == 0 }

// DurationRange holds duration-string bounds for a random delay.
type DurationRange struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

type IntRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// LowActivityConfig selects which days are low-activity and how hard
// targets are reduced. Both historical variants of the rule are exposed as
// configuration rather than picking one.
type LowActivityConfig struct {
	// Rule is "random" (default) or "weekdays".
	Rule string `json:"rule,omitempty"`
	// Chance applies when Rule is "random". Default 0.15.
	Chance float64 `json:"chance,omitempty"`
	// Weekdays applies when Rule is "weekdays": 0=Sunday .. 6=Saturday.
	Weekdays []int `json:"weekdays,omitempty"`
	// Reduction is the fraction range targets are scaled down by.
	// Default [0.2, 0.6].
	Reduction FloatRange `json:"reduction,omitempty"`
}

type SchedulerConfig struct {
	// Sessions bounds the per-day session count. Default [3, 4].
	Sessions IntRange `json:"sessions,omitempty"`

	LowActivity LowActivityConfig `json:"low_activity,omitempty"`

	// RetweetRatio derives the retweet target as a fraction of the like
	// target. Zero disables retweets entirely.
	RetweetRatio FloatRange `json:"retweet_ratio,omitempty"`

	// ActiveHours gates the whole run loop. Default [8, 22).
	ActiveHours HourWindow `json:"active_hours,omitempty"`

	// ExcludeAccounts is how many accounts sit out each session (at least
	// one account always remains). Default 3.
	ExcludeAccounts *int `json:"exclude_accounts,omitempty"`

	// EarlyExitChance caps a session below its nominal target so
	// completion is not suspiciously exact. Default 0.2.
	EarlyExitChance *float64 `json:"early_exit_chance,omitempty"`

	// FollowupLike is the probability range of liking a candidate right
	// after replying to it. Default [0.6, 0.9].
	FollowupLike FloatRange `json:"followup_like,omitempty"`

	// LikeChance is the probability range of actually liking when the
	// action mix lands on the like branch. Default [0.7, 0.95].
	LikeChance FloatRange `json:"like_chance,omitempty"`

	// DailyJitter / SessionJitter perturb the action-mix rates.
	// Defaults 0.05 and 0.02.
	DailyJitter   *float64 `json:"daily_jitter,omitempty"`
	SessionJitter *float64 `json:"session_jitter,omitempty"`

	// Selection tuning.
	SelectionBuffer *int   `json:"selection_buffer,omitempty"` // default 3
	MaxCandidateAge string `json:"max_candidate_age,omitempty"`
	// BucketWidth is the timestamp truncation used for candidate ids,
	// so a re-render of the same post hashes identically. Default 5m.
	BucketWidth string `json:"bucket_width,omitempty"`

	// Delay ranges. Defaults: session pause 60-180m, account pause 3-10m,
	// candidate pause 5-15s, reply tiers 3-8s / 15-45s / 60-180s,
	// followup like delay 2-10s.
	SessionPause   DurationRange `json:"session_pause,omitempty"`
	AccountPause   DurationRange `json:"account_pause,omitempty"`
	CandidatePause DurationRange `json:"candidate_pause,omitempty"`
	ReplyFast      DurationRange `json:"reply_fast,omitempty"`
	ReplyMedium    DurationRange `json:"reply_medium,omitempty"`
	ReplySlow      DurationRange `json:"reply_slow,omitempty"`
	FollowupDelay  DurationRange `json:"followup_delay,omitempty"`

	// RetweetChance is drawn per skipped candidate inside the account's
	// retweet window. Default 0.1.
	RetweetChance *float64 `json:"retweet_chance,omitempty"`
}

type GenerationConfig struct {
	BaseURL string `json:"base_url"`
	// APIKeyEnv names the environment variable holding the key.
	// Default GENERATION_API_KEY.
	APIKeyEnv  string `json:"api_key_env,omitempty"`
	Model      string `json:"model"`
	Timeout    string `json:"timeout,omitempty"`      // default 30s
	RatePerMin int    `json:"rate_per_min,omitempty"` // default 20

	BreakerThreshold int    `json:"breaker_threshold,omitempty"` // default 5
	BreakerCooldown  string `json:"breaker_cooldown,omitempty"`  // default 1h
}

// DriverConfig points at the browser automation sidecar. An empty BaseURL
// means no sidecar; actions run against the dry-run simulator.
type DriverConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	Timeout string `json:"timeout,omitempty"` // default 90s
}

// NotifierConfig enables one-way operator summaries over Telegram.
type NotifierConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}
