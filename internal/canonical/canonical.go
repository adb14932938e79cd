package canonical

import "strings"

// Email normalizes a raw email address into a comparable key.
// Two addresses are equal iff their keys match; there is no plus-addressing
// or domain normalization.
func Email(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Phone normalizes a raw phone number into a comparable key: strip every
// non-digit, require at least 7 digits, keep the last 10.
//
// Deliberately lossy: numbers differing only by a country-code prefix
// produce the same key, and sub-7-digit strings never match anything.
func Phone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < 7 {
		return ""
	}
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return digits
}

// Handle normalizes a raw call/message handle. Handles containing "@" are
// treated as emails, everything else as phone numbers. Exactly one path
// applies per handle.
func Handle(raw string) (key string, isEmail bool) {
	if strings.Contains(raw, "@") {
		return Email(raw), true
	}
	return Phone(raw), false
}
