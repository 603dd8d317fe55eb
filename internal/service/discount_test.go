package service

import (
	"testing"

	"wonderstars/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func perProductAmountVoucher(value string, maxUnits int) *models.Voucher {
	return &models.Voucher{
		Code:                     "DISCOUNT5",
		VoucherType:              models.VoucherTypeAmount,
		Value:                    dec(value),
		ApplicationScope:         models.ScopeProductLevel,
		ProductApplicationMethod: models.ApplyPerProduct,
		RestrictionType:          models.RestrictNone,
		MaxProductsPerUse:        maxUnits,
		IsActive:                 true,
	}
}

func TestComputeDiscountPerProductAmount(t *testing.T) {
	// 3 eligible units priced RM15/20/25, RM5 off each, cap 6.
	voucher := perProductAmountVoucher("5", 6)
	cart := []models.CartLineItem{
		{ProductID: 1, UnitPrice: dec("15"), Quantity: 1},
		{ProductID: 2, UnitPrice: dec("20"), Quantity: 1},
		{ProductID: 3, UnitPrice: dec("25"), Quantity: 1},
	}

	result, err := ComputeDiscount(cart, nil, voucher)
	require.NoError(t, err)
	assert.True(t, result.Applicable)
	assert.True(t, result.TotalDiscount.Equal(dec("15")), "discount = %s", result.TotalDiscount)
	assert.True(t, result.NetTotal.Equal(dec("45")), "net = %s", result.NetTotal)
	assert.Len(t, result.PerItem, 3)
}

func TestComputeDiscountCappedAtSubtotal(t *testing.T) {
	// 21 units at RM10, RM5 off each, cap 20: raw discount RM100, subtotal RM210.
	voucher := perProductAmountVoucher("5", 20)
	cart := []models.CartLineItem{
		{ProductID: 1, UnitPrice: dec("10"), Quantity: 21},
	}

	result, err := ComputeDiscount(cart, nil, voucher)
	require.NoError(t, err)
	assert.True(t, result.TotalDiscount.Equal(dec("100")), "discount = %s", result.TotalDiscount)

	// Bigger per-unit value than the price: discount capped at subtotal.
	voucher = perProductAmountVoucher("15", 20)
	result, err = ComputeDiscount(cart, nil, voucher)
	require.NoError(t, err)
	assert.True(t, result.TotalDiscount.Equal(dec("210")), "discount = %s", result.TotalDiscount)
	assert.True(t, result.NetTotal.IsZero())
}

func TestComputeDiscountUnitCap(t *testing.T) {
	voucher := perProductAmountVoucher("5", 6)
	cart := []models.CartLineItem{
		{ProductID: 1, UnitPrice: dec("10"), Quantity: 4},
		{ProductID: 2, UnitPrice: dec("10"), Quantity: 4},
	}

	result, err := ComputeDiscount(cart, nil, voucher)
	require.NoError(t, err)
	// 8 eligible units, cap 6: 6 * RM5.
	assert.True(t, result.TotalDiscount.Equal(dec("30")), "discount = %s", result.TotalDiscount)
	require.Len(t, result.PerItem, 2)
	assert.Equal(t, 4, result.PerItem[0].DiscountedUnits)
	assert.Equal(t, 2, result.PerItem[1].DiscountedUnits)
}

func TestComputeDiscountPercentPerProductCartOrder(t *testing.T) {
	// First eligible items consume the cap first; the cap cuts mid-item.
	voucher := &models.Voucher{
		Code:                     "TEN-OFF",
		VoucherType:              models.VoucherTypePercent,
		Value:                    dec("10"),
		ApplicationScope:         models.ScopeProductLevel,
		ProductApplicationMethod: models.ApplyPerProduct,
		RestrictionType:          models.RestrictNone,
		MaxProductsPerUse:        3,
		IsActive:                 true,
	}
	cart := []models.CartLineItem{
		{ProductID: 1, UnitPrice: dec("100"), Quantity: 2}, // 2 units discounted
		{ProductID: 2, UnitPrice: dec("50"), Quantity: 2},  // only 1 unit discounted
	}

	result, err := ComputeDiscount(cart, nil, voucher)
	require.NoError(t, err)
	// 10% of 100 * 2 + 10% of 50 * 1 = 20 + 5
	assert.True(t, result.TotalDiscount.Equal(dec("25")), "discount = %s", result.TotalDiscount)
	require.Len(t, result.PerItem, 2)
	assert.Equal(t, 2, result.PerItem[0].DiscountedUnits)
	assert.Equal(t, 1, result.PerItem[1].DiscountedUnits)
}

func TestComputeDiscountOrderTotal(t *testing.T) {
	cart := []models.CartLineItem{
		{ProductID: 1, UnitPrice: dec("40"), Quantity: 2},
	}

	percent := &models.Voucher{
		Code:             "P20",
		VoucherType:      models.VoucherTypePercent,
		Value:            dec("20"),
		ApplicationScope: models.ScopeOrderTotal,
		RestrictionType:  models.RestrictNone,
		IsActive:         true,
	}
	result, err := ComputeDiscount(cart, nil, percent)
	require.NoError(t, err)
	assert.True(t, result.TotalDiscount.Equal(dec("16")), "discount = %s", result.TotalDiscount)

	amount := &models.Voucher{
		Code:             "RM100",
		VoucherType:      models.VoucherTypeAmount,
		Value:            dec("100"),
		ApplicationScope: models.ScopeOrderTotal,
		RestrictionType:  models.RestrictNone,
		IsActive:         true,
	}
	result, err = ComputeDiscount(cart, nil, amount)
	require.NoError(t, err)
	// RM100 off an RM80 order: capped at subtotal.
	assert.True(t, result.TotalDiscount.Equal(dec("80")), "discount = %s", result.TotalDiscount)
}

func TestComputeDiscountTotalOnce(t *testing.T) {
	// product_level + total_once behaves like an order-level application.
	voucher := &models.Voucher{
		Code:                     "ONCE",
		VoucherType:              models.VoucherTypeAmount,
		Value:                    dec("5"),
		ApplicationScope:         models.ScopeProductLevel,
		ProductApplicationMethod: models.ApplyTotalOnce,
		RestrictionType:          models.RestrictNone,
		IsActive:                 true,
	}
	cart := []models.CartLineItem{
		{ProductID: 1, UnitPrice: dec("10"), Quantity: 5},
	}

	result, err := ComputeDiscount(cart, nil, voucher)
	require.NoError(t, err)
	assert.True(t, result.TotalDiscount.Equal(dec("5")), "discount = %s", result.TotalDiscount)
}

func TestComputeDiscountMinPurchaseGate(t *testing.T) {
	voucher := perProductAmountVoucher("5", 6)
	voucher.MinPurchase = dec("100")
	cart := []models.CartLineItem{
		{ProductID: 1, UnitPrice: dec("15"), Quantity: 1},
	}

	result, err := ComputeDiscount(cart, nil, voucher)
	require.NoError(t, err)
	assert.False(t, result.Applicable)
	assert.True(t, result.TotalDiscount.IsZero())
	assert.NotEmpty(t, result.Message)
}

func TestComputeDiscountRestrictedEligibility(t *testing.T) {
	voucher := perProductAmountVoucher("5", 6)
	voucher.RestrictionType = models.RestrictByProduct
	voucher.EligibleProductIDs = models.IDSet{2}
	cart := []models.CartLineItem{
		{ProductID: 1, UnitPrice: dec("15"), Quantity: 2},
		{ProductID: 2, UnitPrice: dec("20"), Quantity: 3},
	}

	result, err := ComputeDiscount(cart, nil, voucher)
	require.NoError(t, err)
	// Only product 2's 3 units qualify.
	assert.True(t, result.TotalDiscount.Equal(dec("15")), "discount = %s", result.TotalDiscount)
	require.Len(t, result.PerItem, 1)
	assert.Equal(t, int64(2), result.PerItem[0].ProductID)
}

func TestComputeDiscountNoEligibleItems(t *testing.T) {
	voucher := perProductAmountVoucher("5", 6)
	voucher.RestrictionType = models.RestrictByCategory
	voucher.EligibleCategoryIDs = models.IDSet{99}
	cart := []models.CartLineItem{
		{ProductID: 1, CategoryID: 1, UnitPrice: dec("15"), Quantity: 2},
	}

	result, err := ComputeDiscount(cart, nil, voucher)
	require.NoError(t, err)
	assert.False(t, result.Applicable)
	assert.True(t, result.TotalDiscount.IsZero())
}

func TestComputeDiscountSpecialDiscountFlag(t *testing.T) {
	voucher := perProductAmountVoucher("3", 10)
	voucher.RestrictionType = models.RestrictSpecialDiscount
	cart := []models.CartLineItem{
		{ProductID: 1, UnitPrice: dec("10"), Quantity: 1},
		{ProductID: 2, UnitPrice: dec("10"), Quantity: 1},
	}
	products := map[int64]*models.Product{
		1: {ID: 1, SpecialDiscount: true},
		2: {ID: 2, SpecialDiscount: false},
	}

	result, err := ComputeDiscount(cart, products, voucher)
	require.NoError(t, err)
	assert.True(t, result.TotalDiscount.Equal(dec("3")), "discount = %s", result.TotalDiscount)
}

func TestComputeDiscountInvalidConfigFailsClosed(t *testing.T) {
	voucher := perProductAmountVoucher("-5", 6)
	cart := []models.CartLineItem{
		{ProductID: 1, UnitPrice: dec("15"), Quantity: 1},
	}

	result, err := ComputeDiscount(cart, nil, voucher)
	assert.ErrorIs(t, err, models.ErrInvalidVoucherConfig)
	assert.True(t, result.TotalDiscount.IsZero())
	assert.False(t, result.Applicable)
}

func TestComputeDiscountInactiveVoucher(t *testing.T) {
	voucher := perProductAmountVoucher("5", 6)
	voucher.IsActive = false
	cart := []models.CartLineItem{
		{ProductID: 1, UnitPrice: dec("15"), Quantity: 1},
	}

	result, err := ComputeDiscount(cart, nil, voucher)
	assert.ErrorIs(t, err, models.ErrVoucherInactive)
	assert.True(t, result.TotalDiscount.IsZero())
}
