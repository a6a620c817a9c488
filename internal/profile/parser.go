package profile

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ContractError reports model output that failed the strict parse. Raw holds
// the output exactly as produced so callers can surface it for diagnosis.
type ContractError struct {
	Raw string

	err error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("model output violates the profile contract: %v", e.err)
}

func (e *ContractError) Unwrap() error { return e.err }

// NewContractError wraps output that never reached the parser, such as a
// tool-reported failure, in the same diagnostic shape a parse failure gets.
func NewContractError(raw string, cause error) *ContractError {
	return &ContractError{Raw: raw, err: cause}
}

// Parse decodes model output into a profile. The JSON itself is parsed
// strictly after the usual code fence cleanup; only the fields inside are
// coerced leniently, so every absent or malformed field still comes back
// usable. Skills is a list no matter what shape the model produced.
func Parse(raw string) (*Profile, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, &ContractError{Raw: raw, err: fmt.Errorf("parse extractor response: %w", err)}
	}

	return &Profile{
		Skills:     coerceSkills(data["skills"]),
		Experience: stringOr(data["experience"]),
		Location:   stringOr(data["location"]),
		JobTitle:   stringOr(data["jobTitle"]),
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func stringOr(v any) string {
	if v == nil {
		return NotAvailable
	}
	return coerceString(v)
}

// coerceSkills keeps an empty list empty: the model saying "no skills" is
// not the same as the field being absent.
func coerceSkills(v any) []string {
	switch val := v.(type) {
	case nil:
		return []string{NotAvailable}
	case []any:
		skills := make([]string, 0, len(val))
		for _, item := range val {
			skills = append(skills, coerceString(item))
		}
		return skills
	default:
		if truthy(v) {
			return []string{coerceString(v)}
		}
		return []string{NotAvailable}
	}
}

func truthy(v any) bool {
	switch val := v.(type) {
	case string:
		return val != ""
	case float64:
		return val != 0
	case bool:
		return val
	case map[string]any:
		return len(val) > 0
	default:
		return v != nil
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}
