package config

import (
	"fmt"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// ParseRange resolves a DurationRange with defaults and sanity checks.
func ParseRange(path string, r DurationRange, defMin, defMax time.Duration) (time.Duration, time.Duration, error) {
	min, err := ParseDurationOrDefault(path+".min", r.Min, defMin)
	if err != nil {
		return 0, 0, err
	}
	max, err := ParseDurationOrDefault(path+".max", r.Max, defMax)
	if err != nil {
		return 0, 0, err
	}
	if max < min {
		return 0, 0, fmt.Errorf("%s: max %s < min %s", path, max, min)
	}
	return min, max, nil
}
