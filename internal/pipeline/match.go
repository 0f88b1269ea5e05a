package pipeline

import (
	"sort"

	"github.com/shopspring/decimal"

	"arbiscout/internal"
	"arbiscout/internal/config"
	"arbiscout/internal/currency"
	"arbiscout/internal/util"
)

const (
	diceWeight    = 0.65
	overlapWeight = 0.35
	categoryBonus = 0.05
)

// Matcher scores and ranks candidates against the source descriptor.
type Matcher struct {
	cfg   config.Config
	rates currency.Provider
}

func NewMatcher(cfg config.Config, rates currency.Provider) *Matcher {
	return &Matcher{cfg: cfg, rates: rates}
}

// Rank returns accepted (candidate, score) pairs ordered by score descending,
// tie-broken by seller rating descending then listing id ascending, truncated
// to the configured maximum. A candidate priced above the wholesale discount
// floor scores zero regardless of text similarity: a "wholesale analog" at or
// near retail is not an arbitrage candidate. Empty input yields empty output.
func (m *Matcher) Rank(desc internal.ProductDescriptor, candidates []internal.Candidate) []internal.ResultEntry {
	queryNorm := util.NormalizeTitle(desc.Title)
	queryTokens := util.Tokenize(desc.Title)
	categoryTokens := util.Tokenize(desc.CategoryHint)

	scored := make([]internal.ResultEntry, 0, len(candidates))
	for _, cand := range candidates {
		score := m.score(desc, cand, queryNorm, queryTokens, categoryTokens)
		scored = append(scored, internal.ResultEntry{Candidate: cand, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score.Score != b.Score.Score {
			return a.Score.Score > b.Score.Score
		}
		if a.Candidate.SellerRating != b.Candidate.SellerRating {
			return a.Candidate.SellerRating > b.Candidate.SellerRating
		}
		return a.Candidate.ListingID < b.Candidate.ListingID
	})

	accepted := make([]internal.ResultEntry, 0, m.cfg.MatchAcceptMax)
	for _, entry := range scored {
		if !entry.Score.Accepted {
			continue
		}
		accepted = append(accepted, entry)
		if len(accepted) >= m.cfg.MatchAcceptMax {
			break
		}
	}
	return accepted
}

func (m *Matcher) score(desc internal.ProductDescriptor, cand internal.Candidate, queryNorm string, queryTokens, categoryTokens []string) internal.MatchScore {
	candNorm := util.NormalizeTitle(cand.Title)
	candTokens := util.Tokenize(cand.Title)

	titleSim := diceWeight*util.DiceCoefficient(queryNorm, candNorm) + overlapWeight*util.TokenOverlap(queryTokens, candTokens)
	categoryMatch := util.TokenOverlap(categoryTokens, candTokens) > 0

	out := internal.MatchScore{TitleSimilarity: titleSim, CategoryMatch: categoryMatch}

	out.DiscountRatio = m.discountRatio(desc, cand)
	if out.DiscountRatio < m.cfg.DiscountFloor {
		return out
	}

	score := titleSim
	if categoryMatch {
		score += categoryBonus
	}
	if score > 1 {
		score = 1
	}
	out.Score = score
	out.Accepted = score >= m.cfg.SimilarityThreshold
	return out
}

// discountRatio is how far the candidate's unit price undercuts the source
// price, both in the source currency. Unconvertible prices yield -1, which
// always fails the floor.
func (m *Matcher) discountRatio(desc internal.ProductDescriptor, cand internal.Candidate) float64 {
	converted, err := currency.Convert(m.rates, cand.UnitPrice, desc.Price.Currency)
	if err != nil || !desc.Price.Amount.IsPositive() {
		return -1
	}
	discount := decimal.NewFromInt(1).Sub(converted.Amount.Div(desc.Price.Amount))
	ratio, _ := discount.Float64()
	return ratio
}
