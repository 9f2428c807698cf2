package pricing

import (
	"fmt"

	"github.com/cloud-wave-best-zizon/stock-order-service/internal/domain"
	"github.com/shopspring/decimal"
)

// AmountPlaces is the number of decimal places kept on monetary results.
const AmountPlaces = 2

var (
	hundred = decimal.NewFromInt(100)

	ErrInvalidDiscount = fmt.Errorf("%w: discount must be between 0 and 100", domain.ErrInvalidInput)
)

type Totals struct {
	Subtotal    decimal.Decimal
	FinalAmount decimal.Decimal
}

// ComputeTotals prices the given lines and applies a percentage discount.
func ComputeTotals(lines []domain.OrderLine, discountPercent decimal.Decimal) (Totals, error) {
	if err := ValidateDiscount(discountPercent); err != nil {
		return Totals{}, err
	}

	subtotal := decimal.Zero
	for _, line := range lines {
		if line.Quantity < 1 {
			return Totals{}, domain.InvalidInputError("quantity for item %s must be at least 1", line.ItemID)
		}
		if line.UnitPrice.IsNegative() {
			return Totals{}, domain.InvalidInputError("unit price for item %s must not be negative", line.ItemID)
		}
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	return Totals{
		Subtotal:    subtotal,
		FinalAmount: FinalAmount(subtotal, discountPercent),
	}, nil
}

// FinalAmount applies the discount to a subtotal, rounded half away from zero to two places.
func FinalAmount(subtotal, discountPercent decimal.Decimal) decimal.Decimal {
	discount := subtotal.Mul(discountPercent).Div(hundred)
	return subtotal.Sub(discount).Round(AmountPlaces)
}

func ValidateDiscount(discountPercent decimal.Decimal) error {
	if discountPercent.IsNegative() || discountPercent.GreaterThan(hundred) {
		return fmt.Errorf("%w (got %s)", ErrInvalidDiscount, discountPercent.String())
	}
	return nil
}

// Apply recomputes and stores the totals of o from its own lines and discount.
func Apply(o *domain.Order) error {
	totals, err := ComputeTotals(o.Lines, o.DiscountPercent)
	if err != nil {
		return err
	}
	o.Subtotal = totals.Subtotal
	o.FinalAmount = totals.FinalAmount
	return nil
}
