package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseSchedule parses "@every <duration>" or a 5-field cron expression.
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	if rest, ok := strings.CutPrefix(spec, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", rest, err)
		}
		return NewIntervalSchedule(d)
	}
	return ParseCronExpression(spec)
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERVAL
// ══════════════════════════════════════════════════════════════════════════════

// IntervalSchedule schedules a job to run at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates an IntervalSchedule. The interval must be at least a second.
func NewIntervalSchedule(interval time.Duration) (*IntervalSchedule, error) {
	if interval < time.Second {
		return nil, fmt.Errorf("interval must be at least 1s, got %s", interval)
	}
	return &IntervalSchedule{Interval: interval}, nil
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

func (s *IntervalSchedule) String() string {
	return "@every " + s.Interval.String()
}

// ══════════════════════════════════════════════════════════════════════════════
// CRON
// ══════════════════════════════════════════════════════════════════════════════

// CronExpression is a parsed 5-field cron expression:
// minute hour day-of-month month day-of-week.
// Each field accepts *, n, n-m, */s, n-m/s and comma lists of those.
type CronExpression struct {
	raw    string
	fields [5]uint64 // bitsets
}

var cronBounds = [5]struct {
	name     string
	min, max int
}{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day", 1, 31},
	{"month", 1, 12},
	{"weekday", 0, 6},
}

// ParseCronExpression parses a cron expression string.
func ParseCronExpression(expr string) (*CronExpression, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(parts))
	}

	ce := &CronExpression{raw: expr}
	for i, part := range parts {
		b := cronBounds[i]
		set, err := parseCronField(part, b.min, b.max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field %q: %w", b.name, part, err)
		}
		ce.fields[i] = set
	}
	return ce, nil
}

// MustParseCronExpression parses a cron expression or panics.
func MustParseCronExpression(expr string) *CronExpression {
	ce, err := ParseCronExpression(expr)
	if err != nil {
		panic(err)
	}
	return ce
}

func parseCronField(field string, min, max int) (uint64, error) {
	var set uint64
	for _, item := range strings.Split(field, ",") {
		lo, hi, step := min, max, 1

		rng, stepStr, hasStep := strings.Cut(item, "/")
		if hasStep {
			s, err := strconv.Atoi(stepStr)
			if err != nil || s <= 0 {
				return 0, fmt.Errorf("bad step %q", stepStr)
			}
			step = s
		}

		if rng != "*" {
			a, b, isRange := strings.Cut(rng, "-")
			v, err := strconv.Atoi(a)
			if err != nil {
				return 0, fmt.Errorf("bad value %q", a)
			}
			lo = v
			switch {
			case isRange:
				if hi, err = strconv.Atoi(b); err != nil {
					return 0, fmt.Errorf("bad value %q", b)
				}
			case !hasStep:
				hi = v
			}
		}

		if lo < min || hi > max || lo > hi {
			return 0, fmt.Errorf("range %d-%d outside [%d-%d]", lo, hi, min, max)
		}
		for v := lo; v <= hi; v += step {
			set |= 1 << uint(v)
		}
	}
	return set, nil
}

// Next returns the first minute after t that matches, or the zero time
// if nothing matches within a year.
func (ce *CronExpression) Next(t time.Time) time.Time {
	next := t.Truncate(time.Minute).Add(time.Minute)
	limit := next.AddDate(1, 0, 0)
	for next.Before(limit) {
		if ce.matches(next) {
			return next
		}
		next = next.Add(time.Minute)
	}
	return time.Time{}
}

func (ce *CronExpression) matches(t time.Time) bool {
	return ce.has(0, t.Minute()) &&
		ce.has(1, t.Hour()) &&
		ce.has(2, t.Day()) &&
		ce.has(3, int(t.Month())) &&
		ce.has(4, int(t.Weekday()))
}

func (ce *CronExpression) has(field, v int) bool {
	return ce.fields[field]&(1<<uint(v)) != 0
}

func (ce *CronExpression) String() string {
	return ce.raw
}
