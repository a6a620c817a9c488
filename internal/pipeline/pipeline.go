// Package pipeline wires document extraction, the profile tool, and the job
// search into the single flow behind one submitted resume.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spigell/cv-scout/internal/jobsearch"
	"github.com/spigell/cv-scout/internal/logger"
	"github.com/spigell/cv-scout/internal/mcp"
	"github.com/spigell/cv-scout/internal/profile"
	"go.uber.org/zap"
)

// extractTool is the provider tool every profile extraction goes through.
const extractTool = "extract_profile"

const maxRawPreview = 200

// ErrInput reports a document the pipeline cannot work with. No tool call
// is made for such documents.
var ErrInput = errors.New("unusable input document")

// Document is one uploaded resume file.
type Document struct {
	Name string
	Data []byte
}

// ToolCaller invokes one named tool on a ready provider session.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.ToolResult, error)
}

// TextExtractor turns an uploaded file into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, name string, data []byte) (string, error)
}

// JobSearcher finds listings for an extracted profile.
type JobSearcher interface {
	Search(ctx context.Context, q jobsearch.Query) ([]jobsearch.Listing, error)
}

// Result is the outcome of one run. Either Profile or Failure is set;
// Failure carries output the extractor produced but the parser rejected,
// kept verbatim for whoever debugs the provider.
type Result struct {
	Profile *profile.Profile
	Jobs    []jobsearch.Listing
	Failure *profile.ContractError
}

type Pipeline struct {
	tools  ToolCaller
	text   TextExtractor
	jobs   JobSearcher
	logger *zap.Logger
}

// New assembles a pipeline. A nil searcher disables the job stage.
func New(tools ToolCaller, text TextExtractor, jobs JobSearcher, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		tools:  tools,
		text:   text,
		jobs:   jobs,
		logger: logger,
	}
}

// Run pushes one document through text extraction, profile extraction, and
// the job search. A rejected profile is a terminal result, not an error; a
// failed job search degrades to an empty listing set.
func (p *Pipeline) Run(ctx context.Context, doc Document) (*Result, error) {
	text, err := p.text.Extract(ctx, doc.Name, doc.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInput, err)
	}

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: document %q contains no text", ErrInput, doc.Name)
	}

	p.logger.Debug("document text extracted",
		zap.String("document", doc.Name),
		zap.Int("length", utf8.RuneCountInString(text)),
	)

	res, err := p.tools.CallTool(ctx, extractTool, map[string]any{"cvText": text})
	if err != nil {
		return nil, fmt.Errorf("extracting profile: %w", err)
	}

	raw := res.Text()

	if res.IsError {
		p.logger.Warn("extractor reported a failure",
			zap.String("document", doc.Name),
			zap.String("raw_preview", logger.TruncateForLog(raw, maxRawPreview)),
		)

		return &Result{Failure: profile.NewContractError(raw, errors.New("tool reported an extraction failure"))}, nil
	}

	parsed, err := profile.Parse(raw)
	if err != nil {
		var cerr *profile.ContractError
		if !errors.As(err, &cerr) {
			return nil, fmt.Errorf("parsing profile: %w", err)
		}

		p.logger.Warn("extractor output failed the profile contract",
			zap.String("document", doc.Name),
			zap.String("raw_preview", logger.TruncateForLog(raw, maxRawPreview)),
		)

		return &Result{Failure: cerr}, nil
	}

	p.logger.Debug("profile extracted",
		zap.String("document", doc.Name),
		zap.Strings("skills", parsed.Skills),
		zap.String("job_title", parsed.JobTitle),
		zap.String("location", parsed.Location),
	)

	result := &Result{Profile: parsed, Jobs: []jobsearch.Listing{}}

	if p.jobs == nil {
		return result, nil
	}

	listings, err := p.jobs.Search(ctx, QueryFor(parsed))
	if err != nil {
		// Listings are garnish. The profile still ships without them.
		p.logger.Warn("job search failed", zap.String("document", doc.Name), zap.Error(err))
		return result, nil
	}

	result.Jobs = listings

	return result, nil
}

// QueryFor builds the search query for a profile, substituting the stock
// defaults wherever the extractor came back empty-handed.
func QueryFor(p *profile.Profile) jobsearch.Query {
	q := jobsearch.Query{Term: p.JobTitle, Country: p.Location}

	if q.Term == profile.NotAvailable || q.Term == "" {
		q.Term = jobsearch.DefaultQueryTerm
	}

	if q.Country == profile.NotAvailable || q.Country == "" {
		q.Country = jobsearch.DefaultCountry
	}

	return q
}
