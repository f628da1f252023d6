package reconciler

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// maxTextLength caps free-text fields; the provider enforces the same limit
// on outbound text bodies.
const maxTextLength = 4096

var phonePattern = regexp.MustCompile(`^\d{1,15}$`)

// validPhoneNumber checks the E.164-like digit-only format (1-15 digits).
func validPhoneNumber(phone string) bool {
	return phonePattern.MatchString(phone)
}

// sanitizeText strips control characters, trims surrounding whitespace, and
// caps the result at maxTextLength characters. Newlines and tabs survive.
func sanitizeText(input string) string {
	var b strings.Builder
	b.Grow(len(input))

	for _, r := range input {
		if r < 0x20 && r != '\n' && r != '\t' {
			continue
		}
		if r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}

	out := strings.TrimSpace(b.String())

	runes := []rune(out)
	if len(runes) > maxTextLength {
		out = string(runes[:maxTextLength])
	}

	return out
}

// parseTimestamp decodes the provider's unix-seconds string. The bool is
// false when the value is missing or malformed.
func parseTimestamp(ts string) (time.Time, bool) {
	if ts == "" {
		return time.Time{}, false
	}

	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || secs < 0 {
		return time.Time{}, false
	}

	return time.Unix(secs, 0).UTC(), true
}

// validTimestamp reports whether ts is a non-negative numeric string.
func validTimestamp(ts string) bool {
	_, ok := parseTimestamp(ts)
	return ok
}
