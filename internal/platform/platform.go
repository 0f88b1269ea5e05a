package platform

import (
	"context"
	"errors"
)

// ErrFetch marks capability-layer transport failures, distinct from an empty
// but successful result.
var ErrFetch = errors.New("platform fetch failed")

// RawProduct carries the unparsed fields scraped from a marketplace product
// page. Field text is parsed by the pipeline, not here.
type RawProduct struct {
	ProductID       string
	URL             string
	Title           string
	PriceText       string
	Category        string
	ImageURLs       []string
	Characteristics map[string]string
}

// RawListing carries the unparsed fields of one trading-platform listing.
type RawListing struct {
	ListingID  string
	URL        string
	Title      string
	PriceText  string
	MinOrder   string
	SellerName string
	RatingText string
}

// Fetcher retrieves a single marketplace product page.
type Fetcher interface {
	FetchProduct(ctx context.Context, url string) (RawProduct, error)
}

// Searcher queries the trading platform for listings. A zero-length result is
// valid; only transport failures return an error.
type Searcher interface {
	SearchListings(ctx context.Context, terms []string, category string, max int) ([]RawListing, error)
}
