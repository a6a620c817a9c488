package profile

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseWellFormedOutput(t *testing.T) {
	t.Parallel()

	raw := `{"skills": ["Go", "Kubernetes"], "experience": "8 years", "location": "Berlin, Germany", "jobTitle": "Platform Engineer"}`

	p, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(p.Skills, []string{"Go", "Kubernetes"}) {
		t.Fatalf("unexpected skills: %v", p.Skills)
	}

	if p.Experience != "8 years" || p.Location != "Berlin, Germany" || p.JobTitle != "Platform Engineer" {
		t.Fatalf("unexpected profile: %+v", p)
	}
}

func TestParseStripsCodeFence(t *testing.T) {
	t.Parallel()

	raw := "```json\n{\"skills\": [\"Go\"], \"jobTitle\": \"Developer\"}\n```"

	p, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.JobTitle != "Developer" {
		t.Fatalf("expected fenced payload to parse, got %+v", p)
	}
}

func TestParseFieldDefaults(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		raw    string
		expect Profile
	}{
		{
			name: "empty object",
			raw:  `{}`,
			expect: Profile{
				Skills:     []string{NotAvailable},
				Experience: NotAvailable,
				Location:   NotAvailable,
				JobTitle:   NotAvailable,
			},
		},
		{
			name: "explicit nulls",
			raw:  `{"skills": null, "experience": null, "location": null, "jobTitle": null}`,
			expect: Profile{
				Skills:     []string{NotAvailable},
				Experience: NotAvailable,
				Location:   NotAvailable,
				JobTitle:   NotAvailable,
			},
		},
		{
			name: "skills as a plain string",
			raw:  `{"skills": "Go", "experience": "3 years", "location": "Remote", "jobTitle": "Engineer"}`,
			expect: Profile{
				Skills:     []string{"Go"},
				Experience: "3 years",
				Location:   "Remote",
				JobTitle:   "Engineer",
			},
		},
		{
			name: "skills as a number",
			raw:  `{"skills": 7, "experience": 5, "location": "Oslo", "jobTitle": "SRE"}`,
			expect: Profile{
				Skills:     []string{"7"},
				Experience: "5",
				Location:   "Oslo",
				JobTitle:   "SRE",
			},
		},
		{
			name: "skills as an empty string",
			raw:  `{"skills": "", "experience": "1 year", "location": "Kyiv", "jobTitle": "QA"}`,
			expect: Profile{
				Skills:     []string{NotAvailable},
				Experience: "1 year",
				Location:   "Kyiv",
				JobTitle:   "QA",
			},
		},
		{
			name: "skills as false",
			raw:  `{"skills": false, "experience": "N/A", "location": "N/A", "jobTitle": "N/A"}`,
			expect: Profile{
				Skills:     []string{NotAvailable},
				Experience: NotAvailable,
				Location:   NotAvailable,
				JobTitle:   NotAvailable,
			},
		},
		{
			name: "empty skill list stays empty",
			raw:  `{"skills": [], "experience": "2 years", "location": "Lisbon", "jobTitle": "Backend Developer"}`,
			expect: Profile{
				Skills:     []string{},
				Experience: "2 years",
				Location:   "Lisbon",
				JobTitle:   "Backend Developer",
			},
		},
		{
			name: "mixed skill list is coerced element by element",
			raw:  `{"skills": ["Go", 4, true], "experience": "4 years", "location": "Madrid", "jobTitle": "Engineer"}`,
			expect: Profile{
				Skills:     []string{"Go", "4", "true"},
				Experience: "4 years",
				Location:   "Madrid",
				JobTitle:   "Engineer",
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p, err := Parse(tc.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !reflect.DeepEqual(*p, tc.expect) {
				t.Fatalf("expected %+v, got %+v", tc.expect, *p)
			}
		})
	}
}

// Malformed JSON is never repaired. The failure carries the output verbatim,
// fences and all, so it can be shown to whoever debugs the extractor.
func TestParseMalformedOutput(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
	}{
		{name: "plain prose", raw: "I could not find a resume in this text."},
		{name: "truncated object", raw: `{"skills": ["Go"`},
		{name: "fenced garbage", raw: "```json\nnot json at all\n```"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse(tc.raw)
			if err == nil {
				t.Fatal("expected an error")
			}

			var cerr *ContractError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected a ContractError, got %T: %v", err, err)
			}

			if cerr.Raw != tc.raw {
				t.Fatalf("expected raw output to be preserved verbatim, got %q", cerr.Raw)
			}
		})
	}
}
