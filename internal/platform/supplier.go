package platform

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"arbiscout/internal/config"
)

// SupplierClient queries the trading platform's listing search.
type SupplierClient struct {
	baseURL string
	http    *httpClient
}

func NewSupplierClient(cfg config.Config, log *slog.Logger) *SupplierClient {
	return &SupplierClient{
		baseURL: strings.TrimRight(cfg.SupplierBaseURL, "/"),
		http:    newHTTPClient(cfg, log),
	}
}

func (c *SupplierClient) SearchListings(ctx context.Context, terms []string, category string, max int) ([]RawListing, error) {
	u, err := url.Parse(c.baseURL + "/s/offer_search.htm")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	q := u.Query()
	q.Set("keywords", strings.Join(terms, " "))
	if category != "" {
		q.Set("category", category)
	}
	if max > 0 {
		q.Set("n", strconv.Itoa(max))
	}
	u.RawQuery = q.Encode()

	body, err := c.http.get(ctx, u.String())
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse: %w", ErrFetch, err)
	}

	listings := []RawListing{}
	doc.Find(".offer-card").Each(func(_ int, card *goquery.Selection) {
		listing := RawListing{
			ListingID:  card.AttrOr("data-offer-id", ""),
			Title:      strings.TrimSpace(card.Find(".offer-title").First().Text()),
			PriceText:  strings.TrimSpace(card.Find(".offer-price").First().Text()),
			MinOrder:   strings.TrimSpace(card.Find(".offer-moq").First().Text()),
			SellerName: strings.TrimSpace(card.Find(".seller-name").First().Text()),
			RatingText: card.AttrOr("data-rating", ""),
		}
		if href, ok := card.Find("a").First().Attr("href"); ok {
			listing.URL = c.absoluteURL(href)
		}
		if listing.ListingID == "" || listing.Title == "" {
			return
		}
		listings = append(listings, listing)
	})

	return listings, nil
}

func (c *SupplierClient) absoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return c.baseURL + "/" + strings.TrimLeft(href, "/")
}
