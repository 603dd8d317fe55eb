package service

import "wonderstars/internal/models"

// IsEligible reports whether a cart line item qualifies for a voucher.
// Pure function, no side effects. The product argument carries the
// product-side attributes (special discount flag) and may be nil when the
// catalog lookup failed; special-discount matching then fails closed.
func IsEligible(item models.CartLineItem, product *models.Product, voucher *models.Voucher) bool {
	switch voucher.RestrictionType {
	case models.RestrictNone:
		return true
	case models.RestrictByProduct:
		return voucher.EligibleProductIDs.Contains(item.ProductID)
	case models.RestrictByCategory:
		return voucher.EligibleCategoryIDs.Contains(item.CategoryID)
	case models.RestrictBySubcategory:
		return voucher.EligibleSubcategoryIDs.Contains(item.SubcategoryID)
	case models.RestrictSpecialDiscount:
		// Matched on the product-side flag, independent of the voucher's
		// restriction lists.
		return product != nil && product.SpecialDiscount
	}
	return false
}
