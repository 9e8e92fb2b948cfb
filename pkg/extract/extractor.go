// Package extract enumerates animal identifiers from the paginated upstream
// listing endpoint, one page at a time.
package extract

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/animal-etl/pkg/client"
	"github.com/Sternrassler/animal-etl/pkg/logging"
)

// Page holds the identifiers enumerated from one listing page.
type Page struct {
	Number int
	IDs    []int64
}

// listingResponse mirrors the upstream listing payload. Only ids are carried
// forward; full records are fetched separately.
type listingResponse struct {
	Items []struct {
		ID int64 `json:"id"`
	} `json:"items"`
	Page    int  `json:"page"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
}

// Extractor walks the listing pages lazily. Pages already obtained stay valid
// even if a later page fetch fails.
type Extractor struct {
	client  *client.Client
	baseURL string
	page    int
	done    bool
	logger  zerolog.Logger
}

// New creates an extractor starting at page 1 of baseURL's listing endpoint.
func New(c *client.Client, baseURL string) *Extractor {
	return &Extractor{
		client:  c,
		baseURL: baseURL,
		page:    1,
		logger:  logging.NewLogger("extractor"),
	}
}

// Next fetches the next listing page and returns its identifiers.
// It returns (nil, nil) once a page comes back empty. A fetch failure is
// returned for that page only; the extractor does not advance past it.
func (e *Extractor) Next(ctx context.Context) (*Page, error) {
	if e.done {
		return nil, nil
	}

	url := fmt.Sprintf("%s/animals/v1/animals?page=%d", e.baseURL, e.page)

	var listing listingResponse
	if err := e.client.Get(ctx, url, &listing); err != nil {
		return nil, fmt.Errorf("fetch listing page %d: %w", e.page, err)
	}

	if len(listing.Items) == 0 {
		e.logger.Info().Int("page", e.page).Msg("Listing exhausted")
		e.done = true
		return nil, nil
	}

	page := &Page{Number: e.page, IDs: make([]int64, 0, len(listing.Items))}
	for _, item := range listing.Items {
		page.IDs = append(page.IDs, item.ID)
	}

	e.logger.Info().
		Int("page", page.Number).
		Int("ids", len(page.IDs)).
		Msg("Extracted listing page")

	e.page++
	return page, nil
}
