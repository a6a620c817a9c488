// Package jobsearch queries the ScrapingDog Google Jobs API for listings
// matching an extracted profile.
package jobsearch

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	apiURL    = "https://api.scrapingdog.com/google_jobs"
	userAgent = "spigell/cv-scout"

	// maxListings caps how many listings one search returns.
	maxListings = 5
	// maxDescriptionLen is the rune budget for a listing description before
	// it is cut and marked with an ellipsis.
	maxDescriptionLen = 300
)

// Defaults substituted by callers when the profile gives nothing usable.
const (
	DefaultQueryTerm = "Software Engineer"
	DefaultCountry   = "us"
)

// ErrService reports that the listings service could not be reached or
// answered badly. Searches are best-effort; callers degrade on this error.
var ErrService = errors.New("job search service unavailable")

type Client struct {
	apiKey string
	logger *zap.Logger

	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
}

func New(logger *zap.Logger, apiKey string) *Client {
	return &Client{
		apiKey: apiKey,
		logger: logger,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		UserAgent: userAgent,
		APIURL:    apiURL,
	}
}
