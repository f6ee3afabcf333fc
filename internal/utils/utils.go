package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9._]{1,30}$`)

// NormalizeUsername accepts "name", "@name" or an instagram.com profile URL and
// returns the lower-case account name. ok is false when the input is not a
// valid Instagram username.
func NormalizeUsername(input string) (string, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", false
	}
	if name, ok := ParseProfileURL(s); ok {
		return name, true
	}
	s = strings.ToLower(strings.TrimPrefix(s, "@"))
	if !usernamePattern.MatchString(s) {
		return "", false
	}
	return s, true
}

// ParseProfileURL extracts the account name from links like
// https://www.instagram.com/name/ or instagram.com/name?igsh=...
func ParseProfileURL(raw string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if !strings.Contains(lower, "instagram.com/") {
		return "", false
	}
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		lower = "https://" + lower
	}
	u, err := url.Parse(lower)
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(u.Host, "www.")
	if host != "instagram.com" {
		return "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 1 {
		// /p/<code>, /reel/<code>, /stories/<user>/<id>
		return "", false
	}
	name := parts[0]
	if !usernamePattern.MatchString(name) {
		return "", false
	}
	return name, true
}

// FormatCount renders follower-style counts: 999, 1.2K, 3.4M.
func FormatCount(n int) string {
	switch {
	case n >= 1_000_000:
		return trimZero(fmt.Sprintf("%.1f", float64(n)/1_000_000)) + "M"
	case n >= 10_000:
		return fmt.Sprintf("%dK", n/1000)
	case n >= 1000:
		return trimZero(fmt.Sprintf("%.1f", float64(n)/1000)) + "K"
	default:
		return fmt.Sprintf("%d", n)
	}
}

func trimZero(s string) string {
	return strings.TrimSuffix(s, ".0")
}

// Truncate cuts s to at most max runes, appending "…" when it had to cut.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}

// Contains reports whether item is in slice.
func Contains[T comparable](slice []T, item T) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
