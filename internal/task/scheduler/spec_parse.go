package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"depthview/internal/task/repeat"
)

type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

func (k SpecKind) String() string {
	if k == SpecCron {
		return "cron"
	}
	return "interval"
}

// Spec is a parsed schedule string.
//
// Accepted forms:
//   - cron: "*/5 * * * *", "*/10 * * * * *" (seconds), "@hourly", "@every 1m"
//   - Go duration: "100ms", "2h30m"
//   - HH:MM interval: "00:50" is fifty minutes
//
// "cron:" forces cron parsing; "interval:" and "every:" force an interval.
type Spec struct {
	Raw    string
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string // cron, duration or hhmm
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// SecondOptional accepts both 5 and 6 field expressions.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func ParseSchedule(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, fmt.Errorf("schedule required")
	}
	low := strings.ToLower(s)

	if rest, ok := cutPrefix(s, low, "cron:"); ok {
		if rest == "" {
			return Spec{}, fmt.Errorf("cron expression required after 'cron:'")
		}
		return cronSpec(raw, rest)
	}
	for _, p := range []string{"interval:", "every:"} {
		if rest, ok := cutPrefix(s, low, p); ok {
			d, src, err := parseInterval(rest)
			if err != nil {
				return Spec{}, err
			}
			return Spec{Raw: raw, Kind: SpecInterval, Every: d, Source: src}, nil
		}
	}

	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return cronSpec(raw, s)
	}
	d, src, err := parseInterval(s)
	if err != nil {
		return Spec{}, fmt.Errorf("invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '02:30', or a duration like '100ms')", raw)
	}
	return Spec{Raw: raw, Kind: SpecInterval, Every: d, Source: src}, nil
}

func cutPrefix(s, low, prefix string) (string, bool) {
	if !strings.HasPrefix(low, prefix) {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}

// Cron expressions are validated at parse time so config errors surface on
// load rather than at registration.
func cronSpec(raw, expr string) (Spec, error) {
	if _, err := cronParser.Parse(expr); err != nil {
		return Spec{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return Spec{Raw: raw, Kind: SpecCron, Cron: expr, Source: "cron"}, nil
}

func parseInterval(v string) (time.Duration, string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, "", fmt.Errorf("interval required")
	}
	src := "duration"
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return 0, "", fmt.Errorf("invalid minutes in %q", v)
		}
		d, src = time.Duration(hh)*time.Hour+time.Duration(mm)*time.Minute, "hhmm"
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return 0, "", fmt.Errorf("invalid interval %q (use HH:MM or a Go duration like '100ms')", v)
		}
	}
	if d <= 0 {
		return 0, "", fmt.Errorf("interval must be > 0")
	}
	return d, src, nil
}

// Schedule builds the repeat.Schedule for this spec. Cron times are
// evaluated in loc.
func (s Spec) Schedule(loc *time.Location) (repeat.Schedule, error) {
	if s.Kind == SpecInterval {
		return repeat.Every(s.Every), nil
	}
	base, err := cronParser.Parse(s.Cron)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	return cronSchedule{base: base, loc: loc, expr: s.Cron}, nil
}

type cronSchedule struct {
	base cron.Schedule
	loc  *time.Location
	expr string
}

func (c cronSchedule) Next(t time.Time) time.Time { return c.base.Next(t.In(c.loc)) }

func (c cronSchedule) String() string { return "cron " + c.expr + " (" + c.loc.String() + ")" }
