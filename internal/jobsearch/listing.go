package jobsearch

import "fmt"

// Listing is one job offer, normalized for display.
type Listing struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Link        string `json:"link"`
	Description string `json:"description"`
}

// newListing pulls the displayed fields out of one raw service item. Absent
// fields fall back to placeholders, and descriptions are cut to a preview.
func newListing(item map[string]any) Listing {
	description := stringField(item, "description", "N/A")
	if runes := []rune(description); len(runes) > maxDescriptionLen {
		description = string(runes[:maxDescriptionLen]) + "..."
	}

	return Listing{
		Title:       stringField(item, "title", "N/A"),
		Company:     stringField(item, "company_name", "N/A"),
		Location:    stringField(item, "location", "N/A"),
		Link:        stringField(item, "share_link", "#"),
		Description: description,
	}
}

func stringField(item map[string]any, key, fallback string) string {
	v, ok := item[key]
	if !ok || v == nil {
		return fallback
	}

	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprintf("%v", v)
}
