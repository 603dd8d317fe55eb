package service

import (
	"github.com/shopspring/decimal"

	"wonderstars/internal/models"
)

var oneHundred = decimal.NewFromInt(100)

// LineDiscount is the per-line breakdown for UI display (strikethrough
// price, badge amount).
type LineDiscount struct {
	ProductID       int64           `json:"product_id"`
	DiscountedUnits int             `json:"discounted_units"`
	Discount        decimal.Decimal `json:"discount"`
}

// DiscountResult is the outcome of a discount computation.
type DiscountResult struct {
	Applicable    bool            `json:"applicable"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	NetTotal      decimal.Decimal `json:"net_total"`
	PerItem       []LineDiscount  `json:"per_item,omitempty"`
	Message       string          `json:"message,omitempty"`
}

func zeroResult(subtotal decimal.Decimal, message string) DiscountResult {
	return DiscountResult{
		Applicable:    false,
		TotalDiscount: decimal.Zero,
		Subtotal:      subtotal,
		NetTotal:      subtotal,
		Message:       message,
	}
}

// ComputeDiscount computes the discount a voucher yields for a cart.
// Pure function: the products map supplies product-side attributes for
// eligibility matching, keyed by product ID.
//
// Per-product percent vouchers consume the unit cap in cart order: the first
// eligible items absorb the discount first, and the cap may cut off mid-item.
// The total discount never exceeds the cart subtotal.
func ComputeDiscount(cart []models.CartLineItem, products map[int64]*models.Product, voucher *models.Voucher) (DiscountResult, error) {
	subtotal := models.Subtotal(cart)

	// Malformed configuration must never produce a discount.
	if err := voucher.Validate(); err != nil {
		return zeroResult(subtotal, "voucher configuration is invalid"), err
	}
	if !voucher.IsActive {
		return zeroResult(subtotal, "voucher is not active"), models.ErrVoucherInactive
	}
	if subtotal.LessThan(voucher.MinPurchase) {
		return zeroResult(subtotal, "cart subtotal below minimum purchase"), nil
	}

	perProduct := voucher.ApplicationScope == models.ScopeProductLevel &&
		voucher.ProductApplicationMethod == models.ApplyPerProduct

	if !perProduct {
		return orderLevelDiscount(subtotal, voucher), nil
	}
	return perProductDiscount(cart, products, voucher, subtotal), nil
}

// orderLevelDiscount applies the voucher once to the whole order. Covers
// order_total scope and product_level with total_once.
func orderLevelDiscount(subtotal decimal.Decimal, voucher *models.Voucher) DiscountResult {
	var discount decimal.Decimal
	switch voucher.VoucherType {
	case models.VoucherTypeAmount:
		discount = voucher.Value
	case models.VoucherTypePercent:
		discount = subtotal.Mul(voucher.Value).Div(oneHundred).Round(2)
	}

	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}

	return DiscountResult{
		Applicable:    true,
		TotalDiscount: discount,
		Subtotal:      subtotal,
		NetTotal:      subtotal.Sub(discount),
	}
}

// perProductDiscount applies the voucher per eligible unit, capped at
// max_products_per_use units and at the cart subtotal.
func perProductDiscount(cart []models.CartLineItem, products map[int64]*models.Product, voucher *models.Voucher, subtotal decimal.Decimal) DiscountResult {
	eligibleUnits := 0
	for _, item := range cart {
		if IsEligible(item, products[item.ProductID], voucher) {
			eligibleUnits += item.Quantity
		}
	}

	effectiveCount := eligibleUnits
	if effectiveCount > voucher.MaxProductsPerUse {
		effectiveCount = voucher.MaxProductsPerUse
	}
	if effectiveCount == 0 {
		return zeroResult(subtotal, "no eligible items in cart")
	}

	// Walk the cart in order, letting the first eligible items consume the
	// unit cap first. The cap can cut off partway through a line item.
	total := decimal.Zero
	perItem := make([]LineDiscount, 0, len(cart))
	remaining := effectiveCount
	for _, item := range cart {
		if remaining == 0 {
			break
		}
		if !IsEligible(item, products[item.ProductID], voucher) {
			continue
		}

		units := item.Quantity
		if units > remaining {
			units = remaining
		}
		remaining -= units

		var lineDiscount decimal.Decimal
		switch voucher.VoucherType {
		case models.VoucherTypeAmount:
			lineDiscount = voucher.Value.Mul(decimal.NewFromInt(int64(units)))
		case models.VoucherTypePercent:
			lineDiscount = item.UnitPrice.Mul(voucher.Value).Div(oneHundred).
				Mul(decimal.NewFromInt(int64(units))).Round(2)
		}
		total = total.Add(lineDiscount)

		perItem = append(perItem, LineDiscount{
			ProductID:       item.ProductID,
			DiscountedUnits: units,
			Discount:        lineDiscount,
		})
	}

	// Discount can never exceed the order value.
	if total.GreaterThan(subtotal) {
		total = subtotal
	}

	return DiscountResult{
		Applicable:    true,
		TotalDiscount: total,
		Subtotal:      subtotal,
		NetTotal:      subtotal.Sub(total),
		PerItem:       perItem,
	}
}
