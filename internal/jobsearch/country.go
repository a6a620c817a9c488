package jobsearch

import "strings"

// countryCodes maps the country names the extractor typically produces to
// the 2-letter codes the listings service expects.
var countryCodes = map[string]string{
	"united states":  "us",
	"usa":            "us",
	"united kingdom": "gb",
	"uk":             "gb",
	"germany":        "de",
	"france":         "fr",
	"spain":          "es",
	"italy":          "it",
	"netherlands":    "nl",
	"poland":         "pl",
	"india":          "in",
	"canada":         "ca",
	"australia":      "au",
	"brazil":         "br",
	"japan":          "jp",
	"china":          "cn",
	"ukraine":        "ua",
	"russia":         "ru",
}

// CountryCode normalizes a location to a 2-letter country code. Locations
// like "Berlin, Germany" resolve through their last segment. Anything
// unrecognized falls back to "us" so a search still runs.
func CountryCode(location string) string {
	normalized := strings.ToLower(strings.TrimSpace(location))
	if normalized == "" {
		return DefaultCountry
	}

	if len(normalized) == 2 && isAlpha(normalized) {
		return normalized
	}

	if code, ok := countryCodes[normalized]; ok {
		return code
	}

	if idx := strings.LastIndex(normalized, ","); idx != -1 {
		tail := strings.TrimSpace(normalized[idx+1:])
		if code, ok := countryCodes[tail]; ok {
			return code
		}
		if len(tail) == 2 && isAlpha(tail) {
			return tail
		}
	}

	return DefaultCountry
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}

	return true
}
