package pipeline

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"arbiscout/internal"
	"arbiscout/internal/config"
	"arbiscout/internal/currency"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func rub(amount int64) internal.Money {
	return internal.NewMoney(decimal.NewFromInt(amount), "RUB")
}

func descriptorFixture(price int64) internal.ProductDescriptor {
	return internal.ProductDescriptor{
		SourceURL:    "https://www.ozon.ru/product/widget-123",
		ProductID:    "123",
		Title:        "Чехол для телефона с магнитом",
		Price:        rub(price),
		CategoryHint: "Аксессуары",
	}
}

func candidateFixture(id string, price int64, rating float64) internal.Candidate {
	return internal.Candidate{
		ListingID:    id,
		Title:        "Чехол для телефона с магнитом",
		UnitPrice:    rub(price),
		SellerRating: rating,
		URL:          "https://www.1688.com/offer/" + id + ".html",
	}
}

func TestRankDiscountFloor(t *testing.T) {
	cfg := testConfig(t)
	cfg.DiscountFloor = 0.20
	rates := currency.NewStaticProvider(cfg)

	desc := descriptorFixture(1000)
	candidates := []internal.Candidate{
		candidateFixture("c1100", 1100, 4.9),
		candidateFixture("c800", 800, 4.5),
		candidateFixture("c500", 500, 4.0),
	}

	entries := NewMatcher(cfg, rates).Rank(desc, candidates)
	require.Len(t, entries, 2)
	// Identical titles tie on score, so seller rating decides the order.
	require.Equal(t, "c800", entries[0].Candidate.ListingID)
	require.Equal(t, "c500", entries[1].Candidate.ListingID)
	for _, entry := range entries {
		require.True(t, entry.Score.Accepted)
		require.GreaterOrEqual(t, entry.Score.Score, cfg.SimilarityThreshold)
		require.GreaterOrEqual(t, entry.Score.DiscountRatio, cfg.DiscountFloor)
	}

	cfg.DiscountFloor = 0.30
	entries = NewMatcher(cfg, rates).Rank(desc, candidates)
	require.Len(t, entries, 1)
	require.Equal(t, "c500", entries[0].Candidate.ListingID)
}

func TestRankAtRetailScoresZero(t *testing.T) {
	cfg := testConfig(t)
	rates := currency.NewStaticProvider(cfg)

	desc := descriptorFixture(1000)
	entries := NewMatcher(cfg, rates).Rank(desc, []internal.Candidate{
		candidateFixture("retail", 1000, 5.0),
	})
	require.Empty(t, entries)
}

func TestRankEmptyInput(t *testing.T) {
	cfg := testConfig(t)
	entries := NewMatcher(cfg, currency.NewStaticProvider(cfg)).Rank(descriptorFixture(1000), nil)
	require.Empty(t, entries)
}

func TestRankDropsDissimilarTitles(t *testing.T) {
	cfg := testConfig(t)
	rates := currency.NewStaticProvider(cfg)

	desc := descriptorFixture(1000)
	offTopic := candidateFixture("offtopic", 300, 4.8)
	offTopic.Title = "Садовый шланг поливочный 20 метров"

	entries := NewMatcher(cfg, rates).Rank(desc, []internal.Candidate{
		offTopic,
		candidateFixture("match", 400, 4.2),
	})
	require.Len(t, entries, 1)
	require.Equal(t, "match", entries[0].Candidate.ListingID)
}

func TestRankTruncatesToAcceptMax(t *testing.T) {
	cfg := testConfig(t)
	cfg.MatchAcceptMax = 2
	rates := currency.NewStaticProvider(cfg)

	desc := descriptorFixture(1000)
	candidates := []internal.Candidate{
		candidateFixture("a", 400, 4.0),
		candidateFixture("b", 450, 4.0),
		candidateFixture("c", 500, 4.0),
	}
	entries := NewMatcher(cfg, rates).Rank(desc, candidates)
	require.Len(t, entries, 2)
	// Equal score and rating fall back to listing id ascending.
	require.Equal(t, "a", entries[0].Candidate.ListingID)
	require.Equal(t, "b", entries[1].Candidate.ListingID)
}

func TestRankUnconvertiblePriceFailsFloor(t *testing.T) {
	cfg := testConfig(t)
	rates := currency.NewStaticProvider(cfg)

	desc := descriptorFixture(1000)
	foreign := candidateFixture("eur", 5, 4.9)
	foreign.UnitPrice = internal.NewMoney(decimal.NewFromInt(5), "EUR")

	entries := NewMatcher(cfg, rates).Rank(desc, []internal.Candidate{foreign})
	require.Empty(t, entries)
}
