package service

import "unicode"

const (
	minPasswordLen = 8
	maxPasswordLen = 64
)

// passwordStrong requires 8 to 64 bytes and at least three of the classes
// digit, lower case, upper case, symbol.
func passwordStrong(password string) bool {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return false
	}
	var digit, lower, upper, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	classes := 0
	for _, ok := range []bool{digit, lower, upper, symbol} {
		if ok {
			classes++
		}
	}
	return classes >= 3
}
