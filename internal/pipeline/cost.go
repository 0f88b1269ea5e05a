package pipeline

import (
	"fmt"

	"github.com/shopspring/decimal"

	"arbiscout/internal"
	"arbiscout/internal/config"
	"arbiscout/internal/currency"
)

// Engine computes the landed-cost profitability of one candidate against the
// source descriptor. Pure function of its inputs: no external calls, no
// clock, no randomness.
type Engine struct {
	cfg   config.Config
	rates currency.Provider
}

func NewEngine(cfg config.Config, rates currency.Provider) *Engine {
	return &Engine{cfg: cfg, rates: rates}
}

// Compute derives the breakdown in the target currency:
//
//	landed    = purchase + duty + shipping + packaging + agent fee
//	breakEven = landed / (1 - commission)
//	margin    = source - breakEven
//
// Missing or non-positive required rates fail with the cost-config error,
// never a silent clamp.
func (e *Engine) Compute(desc internal.ProductDescriptor, cand internal.Candidate) (internal.CostBreakdown, error) {
	if err := e.validate(desc, cand); err != nil {
		return internal.CostBreakdown{}, err
	}

	target := e.cfg.TargetCurrency
	purchase, err := currency.Convert(e.rates, cand.UnitPrice, target)
	if err != nil {
		return internal.CostBreakdown{}, fmt.Errorf("%w: %v", internal.ErrCostConfig, err)
	}
	source, err := currency.Convert(e.rates, desc.Price, target)
	if err != nil {
		return internal.CostBreakdown{}, fmt.Errorf("%w: %v", internal.ErrCostConfig, err)
	}

	duty := purchase.Amount.Mul(decimal.NewFromFloat(e.cfg.DutyPct))
	agent := purchase.Amount.Mul(decimal.NewFromFloat(e.cfg.AgentPct))
	packaging := decimal.NewFromFloat(e.cfg.PackagingFee)
	shipping := decimal.Zero
	if desc.WeightGrams > 0 {
		weightKg := decimal.NewFromFloat(desc.WeightGrams).Div(decimal.NewFromInt(1000))
		shipping = decimal.NewFromFloat(e.cfg.ShippingPerKg).Mul(weightKg)
	}

	landed := purchase.Amount.Add(duty).Add(shipping).Add(packaging).Add(agent)
	commission := decimal.NewFromFloat(e.cfg.CommissionPct)
	breakEven := landed.Div(decimal.NewFromInt(1).Sub(commission))
	margin := source.Amount.Sub(breakEven)
	marginPct := margin.Div(source.Amount).Mul(decimal.NewFromInt(100))

	money := func(amount decimal.Decimal) internal.Money {
		return internal.NewMoney(amount, target)
	}

	return internal.CostBreakdown{
		PurchasePrice: purchase,
		DutyCost:      money(duty),
		ShippingCost:  money(shipping),
		PackagingCost: money(packaging),
		AgentFee:      money(agent),
		LandedCost:    money(landed),
		TotalFees:     money(breakEven.Sub(purchase.Amount)),
		BreakEven:     money(breakEven),
		Margin:        money(margin),
		MarginPct:     marginPct,
	}, nil
}

func (e *Engine) validate(desc internal.ProductDescriptor, cand internal.Candidate) error {
	switch {
	case !cand.UnitPrice.Amount.IsPositive():
		return fmt.Errorf("%w: non-positive candidate price", internal.ErrCostConfig)
	case !desc.Price.Amount.IsPositive():
		return fmt.Errorf("%w: non-positive source price", internal.ErrCostConfig)
	case e.cfg.CommissionPct <= 0 || e.cfg.CommissionPct >= 1:
		return fmt.Errorf("%w: commission must be in (0,1), got %v", internal.ErrCostConfig, e.cfg.CommissionPct)
	case e.cfg.DutyPct <= 0:
		return fmt.Errorf("%w: duty must be positive, got %v", internal.ErrCostConfig, e.cfg.DutyPct)
	case e.cfg.ShippingPerKg <= 0:
		return fmt.Errorf("%w: shipping rate must be positive, got %v", internal.ErrCostConfig, e.cfg.ShippingPerKg)
	case e.cfg.AgentPct < 0 || e.cfg.PackagingFee < 0:
		return fmt.Errorf("%w: negative fee component", internal.ErrCostConfig)
	case e.cfg.TargetCurrency == "":
		return fmt.Errorf("%w: missing target currency", internal.ErrCostConfig)
	}
	return nil
}
