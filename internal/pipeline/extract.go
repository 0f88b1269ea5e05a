package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/url"
	"regexp"
	"strings"

	"arbiscout/internal"
	"arbiscout/internal/config"
	"arbiscout/internal/platform"
	"arbiscout/internal/util"
)

var (
	reProductSlug = regexp.MustCompile(`^/product/[\p{L}\p{N}-]*?(\d+)/?$`)
	reDetailID    = regexp.MustCompile(`^/context/detail/id/(\d+)/?$`)
)

// Extractor turns a raw product reference into a canonical descriptor.
type Extractor struct {
	fetcher platform.Fetcher
	cfg     config.Config
}

func NewExtractor(fetcher platform.Fetcher, cfg config.Config) *Extractor {
	return &Extractor{fetcher: fetcher, cfg: cfg}
}

// CanonicalReference validates the reference shape and strips tracking query
// parameters and fragments. The accepted shapes carry product identity in the
// path, so the query string is dropped entirely.
func CanonicalReference(reference string) (canonical string, productID string, err error) {
	u, parseErr := url.Parse(strings.TrimSpace(reference))
	if parseErr != nil {
		return "", "", fmt.Errorf("%w: %v", internal.ErrExtraction, parseErr)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", fmt.Errorf("%w: unsupported scheme in %q", internal.ErrExtraction, reference)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("%w: missing host in %q", internal.ErrExtraction, reference)
	}

	var id string
	if m := reProductSlug.FindStringSubmatch(u.Path); m != nil {
		id = m[1]
	} else if m := reDetailID.FindStringSubmatch(u.Path); m != nil {
		id = m[1]
	} else {
		return "", "", fmt.Errorf("%w: unrecognized reference shape %q", internal.ErrExtraction, reference)
	}

	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), id, nil
}

func (e *Extractor) Extract(ctx context.Context, reference string) (internal.ProductDescriptor, error) {
	canonical, productID, err := CanonicalReference(reference)
	if err != nil {
		return internal.ProductDescriptor{}, err
	}

	raw, err := e.fetcher.FetchProduct(ctx, canonical)
	if err != nil {
		return internal.ProductDescriptor{}, fmt.Errorf("%w: %w", internal.ErrExtraction, err)
	}

	title := collapseWhitespace(raw.Title)
	if title == "" {
		return internal.ProductDescriptor{}, fmt.Errorf("%w: missing title at %s", internal.ErrExtraction, canonical)
	}

	amount, err := util.ParsePrice(raw.PriceText, e.cfg.MarketLocale)
	if err != nil {
		return internal.ProductDescriptor{}, fmt.Errorf("%w: %v", internal.ErrExtraction, err)
	}
	if !amount.IsPositive() {
		return internal.ProductDescriptor{}, fmt.Errorf("%w: non-positive price %q at %s", internal.ErrExtraction, raw.PriceText, canonical)
	}

	desc := internal.ProductDescriptor{
		SourceURL:       canonical,
		ProductID:       firstNonEmpty(raw.ProductID, productID),
		Title:           title,
		Price:           internal.NewMoney(amount, e.cfg.MarketCurrency),
		CategoryHint:    collapseWhitespace(raw.Category),
		Characteristics: raw.Characteristics,
		ImagePrints:     fingerprints(raw.ImageURLs),
	}
	desc.WeightGrams, desc.Dimensions = weightAndDimensions(raw.Characteristics)

	return desc, nil
}

// fingerprints produces stable, order-preserving image identities so equal
// fetch responses yield equal descriptors.
func fingerprints(imageURLs []string) []string {
	if len(imageURLs) == 0 {
		return nil
	}
	out := make([]string, 0, len(imageURLs))
	for _, raw := range imageURLs {
		h := fnv.New64a()
		_, _ = h.Write([]byte(strings.TrimSpace(raw)))
		out = append(out, fmt.Sprintf("%016x", h.Sum64()))
	}
	return out
}

func weightAndDimensions(characteristics map[string]string) (grams float64, dimensions string) {
	if characteristics == nil {
		return 0, ""
	}
	if text, ok := characteristics["Вес товара, г"]; ok {
		if parsed, err := util.ParsePrice(text, "ru"); err == nil {
			grams, _ = parsed.Float64()
		}
	}
	dimensions = characteristics["Размеры, мм"]
	return grams, dimensions
}

var reWhitespace = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(reWhitespace.ReplaceAllString(s, " "))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
