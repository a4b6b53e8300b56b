package domain

import "strings"

// NormalizeBaseURL trims surrounding whitespace and trailing slashes so that
// endpoint paths can be appended with a single "/".
func NormalizeBaseURL(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}
