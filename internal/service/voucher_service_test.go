package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"wonderstars/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVoucherStore mimics the Postgres store semantics in memory: the
// redemption transition is a compare-and-swap under a single lock, and the
// redemption log enforces the per-day uniqueness the real schema carries.
type fakeVoucherStore struct {
	mu           sync.Mutex
	vouchers     map[int64]*models.Voucher
	byCode       map[string]int64
	claims       map[string]*models.UserVoucher
	redeemedDays map[string]bool
	products     map[int64]*models.Product
	nextID       int64
}

func newFakeVoucherStore() *fakeVoucherStore {
	return &fakeVoucherStore{
		vouchers:     make(map[int64]*models.Voucher),
		byCode:       make(map[string]int64),
		claims:       make(map[string]*models.UserVoucher),
		redeemedDays: make(map[string]bool),
		products:     make(map[int64]*models.Product),
		nextID:       1,
	}
}

func claimKey(userID, voucherID int64) string {
	return fmt.Sprintf("%d:%d", userID, voucherID)
}

func (f *fakeVoucherStore) GetVoucherByCode(_ context.Context, code string) (*models.Voucher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byCode[code]
	if !ok {
		return nil, models.ErrVoucherNotFound
	}
	v := *f.vouchers[id]
	return &v, nil
}

func (f *fakeVoucherStore) GetVoucherByID(_ context.Context, id int64) (*models.Voucher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vouchers[id]
	if !ok {
		return nil, models.ErrVoucherNotFound
	}
	copied := *v
	return &copied, nil
}

func (f *fakeVoucherStore) GetActiveSpecialDiscountVoucher(_ context.Context) (*models.Voucher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.vouchers {
		if v.RestrictionType == models.RestrictSpecialDiscount && v.IsActive {
			copied := *v
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeVoucherStore) CreateVoucher(_ context.Context, v *models.Voucher) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.byCode[v.Code]; exists {
		return models.ErrDuplicateOperation
	}
	v.ID = f.nextID
	f.nextID++
	copied := *v
	f.vouchers[v.ID] = &copied
	f.byCode[v.Code] = v.ID
	return nil
}

func (f *fakeVoucherStore) ClaimVoucher(_ context.Context, userID int64, voucher *models.Voucher) (*models.UserVoucher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := claimKey(userID, voucher.ID)
	if uv, ok := f.claims[key]; ok {
		copied := *uv
		return &copied, nil
	}
	uv := &models.UserVoucher{
		ID:             f.nextID,
		UserID:         userID,
		VoucherID:      voucher.ID,
		Status:         models.UserVoucherAvailable,
		IsDailyVoucher: voucher.IsDailyRedeemable,
	}
	f.nextID++
	f.claims[key] = uv
	copied := *uv
	return &copied, nil
}

func (f *fakeVoucherStore) GetUserVoucher(_ context.Context, userID, voucherID int64) (*models.UserVoucher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uv, ok := f.claims[claimKey(userID, voucherID)]
	if !ok {
		return nil, models.ErrNoClaim
	}
	copied := *uv
	return &copied, nil
}

func (f *fakeVoucherStore) RedeemVoucherTx(_ context.Context, userID int64, voucher *models.Voucher, _ models.RedemptionMethod, today time.Time, expiresAt *time.Time) (*models.UserVoucher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	uv, ok := f.claims[claimKey(userID, voucher.ID)]
	if !ok {
		return nil, models.ErrNoClaim
	}
	if uv.Status == models.UserVoucherUsed {
		return nil, models.ErrAlreadyUsed
	}
	if uv.Status == models.UserVoucherExpired {
		return nil, models.ErrVoucherInactive
	}

	day := today.UTC().Format("2006-01-02")
	if voucher.IsDailyRedeemable {
		if uv.LastRedeemedDate.Valid && uv.LastRedeemedDate.Time.UTC().Format("2006-01-02") == day {
			return nil, models.ErrAlreadyRedeemedToday
		}
	}

	logKey := fmt.Sprintf("%d:%d:%s", userID, voucher.ID, day)
	if f.redeemedDays[logKey] {
		return nil, models.ErrAlreadyRedeemedToday
	}
	f.redeemedDays[logKey] = true

	uv.RedemptionCount++
	uv.LastRedeemedDate = sql.NullTime{Time: today, Valid: true}
	if voucher.IsDailyRedeemable {
		if expiresAt != nil {
			uv.ExpiresAt = sql.NullTime{Time: *expiresAt, Valid: true}
		}
	} else {
		uv.Status = models.UserVoucherUsed
	}
	copied := *uv
	return &copied, nil
}

func (f *fakeVoucherStore) GetRedemptionsByUser(_ context.Context, userID int64) ([]models.VoucherRedemption, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.VoucherRedemption
	for key := range f.redeemedDays {
		var uid, vid int64
		var day string
		if _, err := fmt.Sscanf(key, "%d:%d:%s", &uid, &vid, &day); err == nil && uid == userID {
			out = append(out, models.VoucherRedemption{UserID: uid, VoucherID: vid})
		}
	}
	return out, nil
}

func (f *fakeVoucherStore) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func newTestVoucherService(store *fakeVoucherStore) *VoucherService {
	return NewVoucherService(store, nil, nil, 24*time.Hour)
}

func seedVoucher(t *testing.T, svc *VoucherService, v *models.Voucher) *models.Voucher {
	t.Helper()
	require.NoError(t, svc.CreateVoucher(context.Background(), v))
	return v
}

func dailyVoucher(code string) *models.Voucher {
	return &models.Voucher{
		Code:              code,
		VoucherType:       models.VoucherTypeAmount,
		Value:             dec("5"),
		ApplicationScope:  models.ScopeOrderTotal,
		RestrictionType:   models.RestrictNone,
		IsDailyRedeemable: true,
		IsActive:          true,
	}
}

func singleUseVoucher(code string) *models.Voucher {
	v := dailyVoucher(code)
	v.IsDailyRedeemable = false
	return v
}

func TestRedeemSingleUseOnlyOnce(t *testing.T) {
	store := newFakeVoucherStore()
	svc := newTestVoucherService(store)
	voucher := seedVoucher(t, svc, singleUseVoucher("ONCE-ONLY"))

	ctx := context.Background()
	result, err := svc.Redeem(ctx, 1, voucher.Code, models.RedeemManualCode)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Nil(t, result.ExpiresAt)

	result, err = svc.Redeem(ctx, 1, voucher.Code, models.RedeemManualCode)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "You've already used this voucher", result.Message)
}

func TestRedeemDailyLifecycle(t *testing.T) {
	store := newFakeVoucherStore()
	svc := newTestVoucherService(store)
	voucher := seedVoucher(t, svc, dailyVoucher("DAILY-5"))

	day1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return day1 }

	ctx := context.Background()
	_, err := svc.Claim(ctx, 1, voucher.Code)
	require.NoError(t, err)

	ok, _, err := svc.CanRedeemToday(ctx, 1, voucher.ID)
	require.NoError(t, err)
	assert.True(t, ok, "redeemable immediately after claim")

	result, err := svc.Redeem(ctx, 1, voucher.Code, models.RedeemManualCode)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.ExpiresAt)
	assert.Equal(t, day1.Add(24*time.Hour), *result.ExpiresAt)

	ok, reason, err := svc.CanRedeemToday(ctx, 1, voucher.ID)
	require.NoError(t, err)
	assert.False(t, ok, "not redeemable after same-day redemption")
	assert.Equal(t, "You've already used this voucher today", reason)

	result, err = svc.Redeem(ctx, 1, voucher.Code, models.RedeemManualCode)
	require.NoError(t, err)
	assert.False(t, result.Success)

	// Calendar day rolls over: redeemable again with no further action.
	svc.now = func() time.Time { return day1.Add(24 * time.Hour) }
	ok, _, err = svc.CanRedeemToday(ctx, 1, voucher.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	result, err = svc.Redeem(ctx, 1, voucher.Code, models.RedeemManualCode)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestRedeemWithoutClaimClaimsImplicitly(t *testing.T) {
	store := newFakeVoucherStore()
	svc := newTestVoucherService(store)
	voucher := seedVoucher(t, svc, dailyVoucher("AUTO-CLAIM"))

	ctx := context.Background()
	ok, _, err := svc.CanRedeemToday(ctx, 7, voucher.ID)
	require.NoError(t, err)
	assert.True(t, ok, "no claim yet still counts as redeemable")

	result, err := svc.Redeem(ctx, 7, voucher.Code, models.RedeemManualCode)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotZero(t, result.UserVoucherID)
}

func TestRedeemConcurrentSameDay(t *testing.T) {
	store := newFakeVoucherStore()
	svc := newTestVoucherService(store)
	voucher := seedVoucher(t, svc, dailyVoucher("RACE-DAY"))

	ctx := context.Background()
	_, err := svc.Claim(ctx, 1, voucher.Code)
	require.NoError(t, err)

	const attempts = 8
	results := make([]RedeemResult, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := svc.Redeem(ctx, 1, voucher.Code, models.RedeemManualCode)
			assert.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, r := range results {
		if r.Success {
			successes++
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent redemption may succeed")
}

func TestRedeemUnknownCode(t *testing.T) {
	svc := newTestVoucherService(newFakeVoucherStore())

	result, err := svc.Redeem(context.Background(), 1, "NOPE", models.RedeemManualCode)
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestRedeemInactiveVoucher(t *testing.T) {
	store := newFakeVoucherStore()
	svc := newTestVoucherService(store)
	voucher := dailyVoucher("GONE")
	voucher.IsActive = false
	seedVoucher(t, svc, voucher)

	result, err := svc.Redeem(context.Background(), 1, voucher.Code, models.RedeemManualCode)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "This voucher is no longer active", result.Message)
}

func TestCreateVoucherSingleActiveSpecialDiscount(t *testing.T) {
	store := newFakeVoucherStore()
	svc := newTestVoucherService(store)

	first := dailyVoucher("SPECIAL-1")
	first.RestrictionType = models.RestrictSpecialDiscount
	seedVoucher(t, svc, first)

	second := dailyVoucher("SPECIAL-2")
	second.RestrictionType = models.RestrictSpecialDiscount
	err := svc.CreateVoucher(context.Background(), second)
	assert.ErrorIs(t, err, models.ErrInvalidVoucherConfig)
}

func TestCreateVoucherRejectsInvalidConfig(t *testing.T) {
	svc := newTestVoucherService(newFakeVoucherStore())

	bad := dailyVoucher("BAD")
	bad.RestrictionType = models.RestrictByProduct // no product list
	err := svc.CreateVoucher(context.Background(), bad)
	assert.ErrorIs(t, err, models.ErrInvalidVoucherConfig)
}

func TestComputeCartDiscountLoadsProducts(t *testing.T) {
	store := newFakeVoucherStore()
	store.products[1] = &models.Product{ID: 1, SpecialDiscount: true}
	store.products[2] = &models.Product{ID: 2}
	svc := newTestVoucherService(store)

	voucher := &models.Voucher{
		Code:                     "BADGE-3",
		VoucherType:              models.VoucherTypeAmount,
		Value:                    dec("3"),
		ApplicationScope:         models.ScopeProductLevel,
		ProductApplicationMethod: models.ApplyPerProduct,
		RestrictionType:          models.RestrictSpecialDiscount,
		MaxProductsPerUse:        10,
		IsActive:                 true,
	}
	seedVoucher(t, svc, voucher)

	cart := []models.CartLineItem{
		{ProductID: 1, UnitPrice: dec("10"), Quantity: 2},
		{ProductID: 2, UnitPrice: dec("10"), Quantity: 2},
	}
	result, err := svc.ComputeCartDiscount(context.Background(), voucher.Code, cart)
	require.NoError(t, err)
	assert.True(t, result.TotalDiscount.Equal(dec("6")), "discount = %s", result.TotalDiscount)
}
