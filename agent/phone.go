package agent

import (
	"strings"
	"unicode"
)

// digitWords are replaced one after another in this order. "oh" comes
// last so it cannot split "one" or "zero".
var digitWords = [][2]string{
	{"nine", "9"},
	{"eight", "8"},
	{"seven", "7"},
	{"six", "6"},
	{"five", "5"},
	{"four", "4"},
	{"three", "3"},
	{"two", "2"},
	{"one", "1"},
	{"zero", "0"},
	{"oh", "0"},
}

// ExtractPhone pulls a 10 digit number out of recognized speech such as
// "nine five eight two 350455". Twelve digits (a spoken country code) are
// trimmed to the trailing ten; any other length is rejected.
func ExtractPhone(speech string) (string, bool) {
	s := strings.ToLower(strings.ReplaceAll(speech, " ", ""))
	for _, w := range digitWords {
		s = strings.ReplaceAll(s, w[0], w[1])
	}

	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch len(digits) {
	case 10, 12:
		return digits[len(digits)-10:], true
	}
	return "", false
}

// NormalizePhone prefixes a bare 10 digit number with the country code.
func NormalizePhone(digits, countryCode string) string {
	if strings.HasPrefix(digits, "+") {
		return digits
	}
	if len(digits) == 10 {
		return countryCode + digits
	}
	return "+" + digits
}
