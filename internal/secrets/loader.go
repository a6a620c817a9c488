// Package secrets resolves key material from configuration or files.
package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Source names a secret and the places it may come from. File wins over
// Value so key material can stay out of config files.
type Source struct {
	// Name appears in error messages so a missing key is attributable.
	Name string
	// Value is the secret as configured inline.
	Value string
	// File is a path to read the secret from instead.
	File string
}

// Load resolves the secret. The result is trimmed; an unreadable or empty
// file, or no configured source at all, is an error naming the secret.
func Load(src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	value := src.Value

	if file := strings.TrimSpace(src.File); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", name, file, err)
		}

		if strings.TrimSpace(string(data)) == "" {
			return "", fmt.Errorf("%s file %q is empty", name, file)
		}

		value = string(data)
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%s is not configured", name)
	}

	return value, nil
}
