package isopool

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cronSpec is a parsed 5-field cron expression: minute hour day-of-month
// month day-of-week. Fields support "*", "*/N" steps, comma lists, and
// N-M ranges.
type cronSpec struct {
	raw string
}

// parseCron validates expr and wraps it for repeated matching. Matching
// re-parses the field text on every call rather than precompiling it
// into ints; validateCronField and cronFieldMatches each parse the same
// field syntax separately.
func parseCron(expr string) (cronSpec, error) {
	if err := validateCron(expr); err != nil {
		return cronSpec{}, err
	}
	return cronSpec{raw: expr}, nil
}

// matches reports whether t falls on this schedule.
func (c cronSpec) matches(t time.Time) bool {
	fields := strings.Fields(c.raw)
	values := []int{t.Minute(), t.Hour(), t.Day(), int(t.Month()), int(t.Weekday())}
	for i, field := range fields {
		if !cronFieldMatches(field, values[i]) {
			return false
		}
	}
	return true
}

func cronFieldMatches(field string, value int) bool {
	if field == "*" {
		return true
	}
	if strings.HasPrefix(field, "*/") {
		step, err := strconv.Atoi(field[2:])
		if err != nil || step <= 0 {
			return false
		}
		return value%step == 0
	}
	for _, part := range strings.Split(field, ",") {
		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			low, err1 := strconv.Atoi(bounds[0])
			high, err2 := strconv.Atoi(bounds[1])
			if err1 != nil || err2 != nil {
				continue
			}
			if value >= low && value <= high {
				return true
			}
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		if n == value {
			return true
		}
	}
	return false
}

// validateCron checks that expr is a well-formed 5-field cron
// expression: minute(0-59) hour(0-23) day(1-31) month(1-12) weekday(0-6).
func validateCron(expr string) error {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return fmt.Errorf("isopool: cron expression must have exactly 5 fields (minute hour day month weekday): %q", expr)
	}

	limits := []struct {
		name     string
		min, max int
	}{
		{"minute", 0, 59},
		{"hour", 0, 23},
		{"day", 1, 31},
		{"month", 1, 12},
		{"weekday", 0, 6},
	}

	for i, field := range fields {
		if err := validateCronField(field, limits[i].min, limits[i].max, limits[i].name); err != nil {
			return err
		}
	}
	return nil
}

func validateCronField(field string, min, max int, name string) error {
	if field == "*" {
		return nil
	}
	if strings.HasPrefix(field, "*/") {
		step, err := strconv.Atoi(field[2:])
		if err != nil || step <= 0 {
			return fmt.Errorf("isopool: invalid step value in %s field: %s", name, field)
		}
		return nil
	}
	for _, part := range strings.Split(field, ",") {
		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			low, err1 := strconv.Atoi(bounds[0])
			high, err2 := strconv.Atoi(bounds[1])
			if err1 != nil || err2 != nil {
				return fmt.Errorf("isopool: invalid range in %s field: %s", name, part)
			}
			if low < min || high > max || low > high {
				return fmt.Errorf("isopool: range out of bounds in %s field: %s (allowed %d-%d)", name, part, min, max)
			}
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("isopool: invalid value in %s field: %s", name, part)
		}
		if n < min || n > max {
			return fmt.Errorf("isopool: value out of range in %s field: %d (allowed %d-%d)", name, n, min, max)
		}
	}
	return nil
}
