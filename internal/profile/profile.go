// Package profile turns raw model output into the structured resume summary
// the rest of the application works with.
package profile

// NotAvailable fills any profile field the extractor could not determine.
const NotAvailable = "N/A"

// Profile is the structured summary extracted from one resume.
type Profile struct {
	Skills     []string `json:"skills"`
	Experience string   `json:"experience"`
	Location   string   `json:"location"`
	JobTitle   string   `json:"jobTitle"`
}
