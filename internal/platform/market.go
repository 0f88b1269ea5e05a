package platform

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"arbiscout/internal/config"
)

var reProductID = regexp.MustCompile(`(\d+)/?$`)

// MarketClient fetches and field-extracts marketplace product pages.
type MarketClient struct {
	http *httpClient
}

func NewMarketClient(cfg config.Config, log *slog.Logger) *MarketClient {
	return &MarketClient{http: newHTTPClient(cfg, log)}
}

func (c *MarketClient) FetchProduct(ctx context.Context, url string) (RawProduct, error) {
	body, err := c.http.get(ctx, url)
	if err != nil {
		return RawProduct{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return RawProduct{}, fmt.Errorf("%w: parse: %w", ErrFetch, err)
	}

	raw := RawProduct{
		URL:             url,
		Title:           strings.TrimSpace(doc.Find("h1").First().Text()),
		PriceText:       extractPriceText(doc),
		Category:        extractCategory(doc),
		ImageURLs:       extractImages(doc),
		Characteristics: extractCharacteristics(doc),
	}
	if m := reProductID.FindStringSubmatch(strings.TrimSuffix(url, "/")); m != nil {
		raw.ProductID = m[1]
	}

	return raw, nil
}

func extractPriceText(doc *goquery.Document) string {
	if text := strings.TrimSpace(doc.Find(`[data-widget="webPrice"] span`).First().Text()); text != "" {
		return text
	}
	if content, ok := doc.Find(`meta[property="product:price:amount"]`).Attr("content"); ok {
		return content
	}
	if content, ok := doc.Find(`meta[itemprop="price"]`).Attr("content"); ok {
		return content
	}
	return ""
}

func extractCategory(doc *goquery.Document) string {
	crumbs := doc.Find(`[data-widget="breadCrumbs"] a`)
	if crumbs.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(crumbs.Last().Text())
}

func extractImages(doc *goquery.Document) []string {
	seen := map[string]struct{}{}
	out := []string{}
	add := func(src string) {
		src = strings.TrimSpace(src)
		if src == "" {
			return
		}
		if _, ok := seen[src]; ok {
			return
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}

	doc.Find(`[data-widget="webGallery"] img`).Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("src"); ok {
			add(src)
		}
	})
	if content, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
		add(content)
	}
	return out
}

func extractCharacteristics(doc *goquery.Document) map[string]string {
	chars := map[string]string{}
	doc.Find("#section-characteristics dl").Each(func(_ int, dl *goquery.Selection) {
		keys := dl.Find("dt")
		values := dl.Find("dd")
		keys.Each(func(i int, dt *goquery.Selection) {
			if i >= values.Length() {
				return
			}
			key := strings.TrimSpace(dt.Text())
			value := strings.TrimSpace(values.Eq(i).Text())
			if key != "" && value != "" {
				chars[key] = value
			}
		})
	})
	return chars
}
