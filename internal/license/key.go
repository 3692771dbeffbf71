package license

import (
	"regexp"
	"strings"
	"unicode"

	"licensecore/internal/config"
)

var licenseKeyPattern = regexp.MustCompile(config.LicenseKeyPattern)

// NormalizeKey trims, uppercases and removes all whitespace from key
func NormalizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, key)
}

// ValidKeyFormat reports whether key is XXXX-XXXX-XXXX-XXXX of uppercase
// alphanumerics. Callers normalize first.
func ValidKeyFormat(key string) bool {
	return len(key) == config.LicenseKeyLength && licenseKeyPattern.MatchString(key)
}
