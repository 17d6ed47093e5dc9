// Package pricing computes effective prices and order totals. Amounts are
// integer cents; percentage math runs on decimals and rounds half away from
// zero to the cent only at line level, so cart views and order snapshots
// produce identical figures for identical inputs.
package pricing

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
)

var (
	hundred    = decimal.NewFromInt(100)
	maxPercent = hundred
)

// Line is a priced quantity of one product.
type Line struct {
	UnitPriceCents  int
	DiscountPercent decimal.Decimal
	Quantity        int
}

// Quote is the computed price of a Line.
type Quote struct {
	EffectivePriceCents int `json:"effective_price_cents"`
	LineTotalCents      int `json:"line_total_cents"`
}

// Totals aggregates quotes plus the flat shipping fee.
type Totals struct {
	SubtotalCents int `json:"subtotal_cents"`
	ShippingCents int `json:"shipping_cents"`
	TotalCents    int `json:"total_cents"`
}

// EffectivePrice returns price × (1 − discount/100), unrounded.
func EffectivePrice(unitPriceCents int, discountPercent decimal.Decimal) (decimal.Decimal, error) {
	if unitPriceCents < 0 {
		return decimal.Zero, invalidInput("unit_price", "must be >= 0")
	}
	if discountPercent.IsNegative() || discountPercent.GreaterThan(maxPercent) {
		return decimal.Zero, invalidInput("discount", "must be between 0 and 100")
	}
	factor := decimal.NewFromInt(1).Sub(discountPercent.Div(hundred))
	return decimal.NewFromInt(int64(unitPriceCents)).Mul(factor), nil
}

// Price quotes a single line.
func Price(line Line) (Quote, error) {
	if line.Quantity < 1 {
		return Quote{}, invalidInput("quantity", "must be >= 1")
	}
	effective, err := EffectivePrice(line.UnitPriceCents, line.DiscountPercent)
	if err != nil {
		return Quote{}, err
	}
	total := effective.Mul(decimal.NewFromInt(int64(line.Quantity)))
	return Quote{
		EffectivePriceCents: toCents(effective),
		LineTotalCents:      toCents(total),
	}, nil
}

// Summarize quotes every line and returns the totals. The returned quotes are
// index-aligned with lines.
func Summarize(lines []Line, shippingCents int) (Totals, []Quote, error) {
	if shippingCents < 0 {
		return Totals{}, nil, invalidInput("shipping", "must be >= 0")
	}
	quotes := make([]Quote, 0, len(lines))
	subtotal := 0
	for i, line := range lines {
		quote, err := Price(line)
		if err != nil {
			return Totals{}, nil, atLine(err, i)
		}
		quotes = append(quotes, quote)
		subtotal += quote.LineTotalCents
	}
	return Totals{
		SubtotalCents: subtotal,
		ShippingCents: shippingCents,
		TotalCents:    subtotal + shippingCents,
	}, quotes, nil
}

func toCents(value decimal.Decimal) int {
	return int(value.Round(0).IntPart())
}

// atLine tags a pricing error with the index of the offending cart line,
// keeping the field it already names.
func atLine(err error, index int) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		return err
	}
	details := map[string]any{"line": index}
	if existing, ok := typed.Details().(map[string]any); ok {
		for k, v := range existing {
			details[k] = v
		}
	}
	return typed.WithDetails(details)
}

func invalidInput(field, reason string) error {
	return pkgerrors.New(pkgerrors.CodeInvalidPricing, field+" "+reason).WithDetails(map[string]any{
		"field": field,
	})
}
