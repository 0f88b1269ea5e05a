package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"arbiscout/internal"
	"arbiscout/internal/config"
	"arbiscout/internal/platform"
	"arbiscout/internal/util"
)

// Finder queries the trading platform for candidate listings matching a
// descriptor.
type Finder struct {
	searcher platform.Searcher
	cfg      config.Config
}

func NewFinder(searcher platform.Searcher, cfg config.Config) *Finder {
	return &Finder{searcher: searcher, cfg: cfg}
}

// Find derives query terms from the descriptor title and returns deduplicated
// candidates. The category hint rides along as a soft filter; a category
// mismatch is scored later, never excluded here. Zero results is a valid
// empty output.
func (f *Finder) Find(ctx context.Context, desc internal.ProductDescriptor) ([]internal.Candidate, error) {
	terms := util.Tokenize(desc.Title)
	if len(terms) > f.cfg.SearchTermMax {
		terms = terms[:f.cfg.SearchTermMax]
	}

	listings, err := f.searcher.SearchListings(ctx, terms, desc.CategoryHint, f.cfg.CandidateMax)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", internal.ErrSearch, err)
	}

	seen := map[string]struct{}{}
	out := make([]internal.Candidate, 0, len(listings))
	for _, listing := range listings {
		if listing.ListingID == "" {
			continue
		}
		if _, ok := seen[listing.ListingID]; ok {
			continue
		}

		amount, err := util.ParsePrice(listing.PriceText, f.cfg.SupplierLocale)
		if err != nil || !amount.IsPositive() {
			continue
		}

		seen[listing.ListingID] = struct{}{}
		out = append(out, internal.Candidate{
			ListingID:    listing.ListingID,
			Title:        collapseWhitespace(listing.Title),
			UnitPrice:    internal.NewMoney(amount, f.cfg.SupplierCurrency),
			MinOrderQty:  parseMinOrder(listing.MinOrder),
			SellerName:   collapseWhitespace(listing.SellerName),
			SellerRating: parseRating(listing.RatingText),
			URL:          listing.URL,
		})
		if len(out) >= f.cfg.CandidateMax {
			break
		}
	}

	return out, nil
}

func parseMinOrder(text string) int {
	digits := strings.Builder{}
	for _, r := range text {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}

func parseRating(text string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0
	}
	return parsed
}
