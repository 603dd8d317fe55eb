package models

import "errors"

// Business error taxonomy. Expected outcomes (already redeemed, insufficient
// balance) are sentinel errors so callers can branch without string matching;
// datastore failures are wrapped and surfaced generically.
var (
	// ErrInvalidVoucherConfig marks a voucher whose configuration fails
	// construction-time validation. Such a voucher never discounts anything.
	ErrInvalidVoucherConfig = errors.New("invalid voucher configuration")

	// ErrVoucherNotFound is returned when no voucher matches the given code.
	ErrVoucherNotFound = errors.New("voucher not found")

	// ErrVoucherInactive is returned for redemption attempts on inactive vouchers.
	ErrVoucherInactive = errors.New("voucher is not active")

	// ErrNoClaim is returned when the user has no claim on the voucher.
	ErrNoClaim = errors.New("voucher not claimed by user")

	// ErrAlreadyUsed is returned when a single-use voucher was already redeemed.
	ErrAlreadyUsed = errors.New("voucher already used")

	// ErrAlreadyRedeemedToday is returned when a daily voucher was already
	// redeemed on the current calendar day.
	ErrAlreadyRedeemedToday = errors.New("voucher already redeemed today")

	// ErrDuplicateOperation marks a write rejected by a unique constraint.
	// Callers treat it as success-if-already-done (idempotent retry).
	ErrDuplicateOperation = errors.New("duplicate operation")

	// ErrInsufficientBalance is returned by spend operations that would
	// drive a balance negative.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrUserNotFound is returned when the target user row does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrOTPRateLimited is returned when a phone exceeds the OTP send quota.
	ErrOTPRateLimited = errors.New("otp send rate limit exceeded")

	// ErrOTPNotFound is returned when no code is pending for the phone.
	ErrOTPNotFound = errors.New("no verification code pending")

	// ErrOTPMismatch is returned when the submitted code does not match.
	ErrOTPMismatch = errors.New("verification code does not match")
)
