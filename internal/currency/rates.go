package currency

import (
	"fmt"

	"github.com/shopspring/decimal"

	"arbiscout/internal"
	"arbiscout/internal/config"
)

// Provider supplies exchange rates. Rate freshness policy lives behind the
// implementation; the pipeline only ever asks for a pairwise rate.
type Provider interface {
	// Rate returns how many units of `to` one unit of `from` buys.
	Rate(from, to string) (decimal.Decimal, error)
}

// StaticProvider serves fixed rates from configuration.
type StaticProvider struct {
	rates map[string]decimal.Decimal
}

func NewStaticProvider(cfg config.Config) *StaticProvider {
	p := &StaticProvider{rates: map[string]decimal.Decimal{}}
	if cfg.RateRUBUSD > 0 {
		p.Set("RUB", "USD", decimal.NewFromInt(1).Div(decimal.NewFromFloat(cfg.RateRUBUSD)))
	}
	if cfg.RateCNYUSD > 0 {
		p.Set("CNY", "USD", decimal.NewFromInt(1).Div(decimal.NewFromFloat(cfg.RateCNYUSD)))
	}
	return p
}

// Set registers a rate and its inverse.
func (p *StaticProvider) Set(from, to string, rate decimal.Decimal) {
	p.rates[from+"/"+to] = rate
	if !rate.IsZero() {
		p.rates[to+"/"+from] = decimal.NewFromInt(1).Div(rate)
	}
}

func (p *StaticProvider) Rate(from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if rate, ok := p.rates[from+"/"+to]; ok {
		return rate, nil
	}
	// Cross pairs triangulate through USD.
	leg1, ok1 := p.rates[from+"/USD"]
	leg2, ok2 := p.rates["USD/"+to]
	if ok1 && ok2 {
		return leg1.Mul(leg2), nil
	}
	return decimal.Zero, fmt.Errorf("no rate for %s/%s", from, to)
}

// Convert re-denominates an amount into the target currency.
func Convert(p Provider, m internal.Money, to string) (internal.Money, error) {
	if m.Currency == to {
		return m, nil
	}
	rate, err := p.Rate(m.Currency, to)
	if err != nil {
		return internal.Money{}, err
	}
	return internal.NewMoney(m.Amount.Mul(rate), to), nil
}
