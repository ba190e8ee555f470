package schema

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

// Normalizer errors
var (
	ErrInvalidISRC = errors.New("invalid ISRC")
	ErrInvalidUPC  = errors.New("invalid UPC")
	ErrInvalidDate = errors.New("unparsable date")
)

// dateLayouts lists the input representations accepted for date fields.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"02 Jan 2006",
	time.RFC1123,
}

// NormalizeISRC canonicalizes an International Standard Recording Code:
// formatting characters are stripped and the result upper-cased. A
// canonical ISRC is twelve alphanumerics; providers use both lettered
// and fully numeric registrant ranges, so no positional check is made.
func NormalizeISRC(s string) (string, error) {
	code := strings.ToUpper(stripNonAlnum(s))
	if len(code) != 12 {
		return "", ErrInvalidISRC
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", ErrInvalidISRC
		}
	}
	return code, nil
}

// NormalizeUPC canonicalizes a Universal Product Code. Formatting
// characters are stripped; a 14-digit GTIN with a "00" prefix is
// reduced to its 12-digit UPC-A form when the check digit holds.
// Values longer than 12 digits without that prefix are passed through
// unchanged; 12-digit values with a bad check digit fail.
func NormalizeUPC(s string) (string, error) {
	code := stripNonAlnum(s)
	for _, r := range code {
		if r < '0' || r > '9' {
			return "", ErrInvalidUPC
		}
	}

	switch {
	case len(code) == 14 && strings.HasPrefix(code, "00"):
		if !upcCheckDigitOK(code[2:]) {
			return "", ErrInvalidUPC
		}
		return code[2:], nil
	case len(code) == 12:
		if !upcCheckDigitOK(code) {
			return "", ErrInvalidUPC
		}
		return code, nil
	case len(code) > 12:
		// Overlong codes from legacy providers are forwarded as-is.
		return code, nil
	}
	return "", ErrInvalidUPC
}

// upcCheckDigitOK reports whether a 12-digit code satisfies the UPC-A
// check digit: odd positions weighted by 3, total divisible by 10.
func upcCheckDigitOK(code string) bool {
	sum := 0
	for i, r := range code {
		d := int(r - '0')
		if i%2 == 0 {
			sum += d * 3
		} else {
			sum += d
		}
	}
	return sum%10 == 0
}

// NormalizeDate parses a date in any accepted representation and
// returns the canonical RFC 3339 UTC form. Date-only inputs become
// midnight UTC.
func NormalizeDate(s string) (string, error) {
	in := strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, in); err == nil {
			return t.UTC().Format(time.RFC3339), nil
		}
	}
	return "", ErrInvalidDate
}

func stripNonAlnum(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
