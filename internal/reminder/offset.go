// Package reminder implements the Reminder Store (C6) and the
// Reminder Scheduler (C10).
package reminder

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrInvalidOffset is returned for any fire-offset string outside the
// restricted subset this package understands. The spec deliberately
// rejects a full ISO-8601 duration grammar in favor of exactly three
// shapes: PT<n>H, P<n>D, P<n>W, with n a positive integer.
var ErrInvalidOffset = fmt.Errorf("reminder: offset must match PT<n>H, P<n>D, or P<n>W")

var (
	hoursPattern = regexp.MustCompile(`^PT([0-9]+)H$`)
	daysPattern  = regexp.MustCompile(`^P([0-9]+)D$`)
	weeksPattern = regexp.MustCompile(`^P([0-9]+)W$`)
)

// ParseOffset converts a fire-offset string into a time.Duration. It
// accepts only PT<n>H, P<n>D, and P<n>W with n >= 1; anything else,
// including valid-but-unsupported ISO-8601 shapes like P1Y or
// PT1H30M, returns ErrInvalidOffset.
func ParseOffset(s string) (time.Duration, error) {
	if m := hoursPattern.FindStringSubmatch(s); m != nil {
		n, err := parsePositive(m[1])
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * time.Hour, nil
	}
	if m := daysPattern.FindStringSubmatch(s); m != nil {
		n, err := parsePositive(m[1])
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	if m := weeksPattern.FindStringSubmatch(s); m != nil {
		n, err := parsePositive(m[1])
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}
	return 0, ErrInvalidOffset
}

func parsePositive(digits string) (int, error) {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, ErrInvalidOffset
	}
	if n < 1 {
		return 0, ErrInvalidOffset
	}
	return n, nil
}
