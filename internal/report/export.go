package report

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"arbiscout/internal"
)

// ExportXLSX writes the full report, one accepted listing per row, costs in
// the target currency.
func ExportXLSX(rep internal.Report, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{
		"rank", "listing_id", "title", "url",
		"unit_price", "unit_currency", "min_order_qty", "seller_name", "seller_rating",
		"score", "title_similarity", "discount_ratio",
		"purchase", "duty", "shipping", "packaging", "agent_fee",
		"landed_cost", "break_even", "margin", "margin_pct", "cost_currency",
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, entry := range rep.Entries {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, i+1)
		set(2, entry.Candidate.ListingID)
		set(3, entry.Candidate.Title)
		set(4, entry.Candidate.URL)
		set(5, entry.Candidate.UnitPrice.Amount.String())
		set(6, entry.Candidate.UnitPrice.Currency)
		set(7, entry.Candidate.MinOrderQty)
		set(8, entry.Candidate.SellerName)
		set(9, entry.Candidate.SellerRating)
		set(10, entry.Score.Score)
		set(11, entry.Score.TitleSimilarity)
		set(12, entry.Score.DiscountRatio)

		if cost := entry.Cost; cost != nil {
			set(13, cost.PurchasePrice.Amount.String())
			set(14, cost.DutyCost.Amount.String())
			set(15, cost.ShippingCost.Amount.String())
			set(16, cost.PackagingCost.Amount.String())
			set(17, cost.AgentFee.Amount.String())
			set(18, cost.LandedCost.Amount.String())
			set(19, cost.BreakEven.Amount.String())
			set(20, cost.Margin.Amount.String())
			set(21, cost.MarginPct.StringFixed(2))
			set(22, cost.LandedCost.Currency)
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}
