package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrEmailEmpty is returned when email is empty or whitespace-only after trim.
var ErrEmailEmpty = errors.New("email is required")

// ErrEmailTooLong is returned when email length exceeds the maximum.
var ErrEmailTooLong = errors.New("email too long")

// ErrCityEmpty is returned when city is empty or whitespace-only after trim.
var ErrCityEmpty = errors.New("city is required")

// ErrCityTooLong is returned when city length exceeds the maximum.
var ErrCityTooLong = errors.New("city too long")

// ErrCityInvalidChars is returned when city contains disallowed characters.
var ErrCityInvalidChars = errors.New("city contains invalid characters")

// ValidateEmail trims the input and enforces presence and a length bound
// (maxLen in runes, 0 = unbounded). Format and deliverability are deliberately
// not checked here; the email provider is the authority on both.
func ValidateEmail(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	n := len([]rune(s))
	if n == 0 {
		return "", ErrEmailEmpty
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrEmailTooLong
	}
	return s, nil
}

// ValidateCity trims the input, enforces presence and a length bound (maxLen
// in runes, 0 = unbounded), and restricts to allowed characters: letters
// (Unicode), digits, space, comma, hyphen, period, apostrophe.
// Returns the trimmed string or an error suitable for 400 INVALID_CITY responses.
func ValidateCity(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrCityEmpty
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

// isAllowedCityRune returns true for letters (Unicode), digits, space, comma, hyphen, period, apostrophe.
func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}
