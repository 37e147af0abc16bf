package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration safely parses duration string like "5m", falling back to def
func ParseDuration(d string, def time.Duration) time.Duration {
	if d == "" {
		return def
	}
	duration, err := time.ParseDuration(d)
	if err != nil {
		return def
	}
	return duration
}

// ParseCount parses a vote count as found in result sheets: blanks are zero and
// thousands separators ('.', ',', spaces, apostrophes) are dropped. A separator
// must be used consistently and be followed by exactly three digits, so a
// fractional value such as "1.5" is rejected rather than read as 15.
func ParseCount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0, nil
	}
	digits, ok := ungroup(s)
	if !ok {
		return 0, fmt.Errorf("invalid count %q: misplaced digit group separator", s)
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid count %q", s)
	}
	return n, nil
}

func isGroupSeparator(r rune) bool {
	switch r {
	case '.', ',', ' ', '\u00a0', '\'':
		return true
	}
	return false
}

// ungroup strips digit group separators from s, reporting false when the
// grouping is not a leading group of 1-3 characters followed by groups of 3.
func ungroup(s string) (string, bool) {
	var b strings.Builder
	if s[0] == '-' || s[0] == '+' {
		b.WriteByte(s[0])
		s = s[1:]
	}

	var sep rune
	group, grouped := 0, false
	for _, r := range s {
		if !isGroupSeparator(r) {
			b.WriteRune(r)
			group++
			continue
		}
		if sep == 0 {
			sep = r
		} else if r != sep {
			return "", false
		}
		if (!grouped && (group == 0 || group > 3)) || (grouped && group != 3) {
			return "", false
		}
		grouped = true
		group = 0
	}
	if grouped && group != 3 {
		return "", false
	}
	return b.String(), true
}

// SplitList splits a comma separated query value, dropping blanks
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
