package jobsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// Query describes one search. Term is used as given; Country may be a code,
// a country name, or a free-form location and is normalized before the
// request goes out.
type Query struct {
	Term    string
	Country string
}

// Search asks the listings service for jobs matching the query and returns
// at most five of them, normalized for display.
func (c *Client) Search(ctx context.Context, q Query) ([]Listing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrService, err)
	}

	country := CountryCode(q.Country)

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("query", q.Term)
	params.Set("country", country)
	req.URL.RawQuery = params.Encode()
	req.Header.Set("User-Agent", c.UserAgent)

	c.logger.Debug("searching job listings",
		zap.String("query", q.Term),
		zap.String("country", country),
	)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: bad status: %s", ErrService, resp.Status)
	}

	var payload struct {
		Results []map[string]any `json:"jobs_results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode listings: %v", ErrService, err)
	}

	results := payload.Results
	if len(results) > maxListings {
		results = results[:maxListings]
	}

	listings := make([]Listing, 0, len(results))
	for _, item := range results {
		listings = append(listings, newListing(item))
	}

	c.logger.Debug("job listings found", zap.Int("count", len(listings)))

	return listings, nil
}
