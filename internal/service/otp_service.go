package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"wonderstars/internal/models"
	"wonderstars/internal/util"

	"go.uber.org/zap"
)

const (
	otpCodeTTL     = 5 * time.Minute
	otpMaxSends    = 3
	otpSendWindow  = time.Hour
	otpCodeCeiling = 1000000 // codes are 6 digits, zero-padded
	otpMessageTmpl = "Your WonderStars verification code is %s. It expires in 5 minutes."
)

var otpCodePattern = regexp.MustCompile(`^\d{6}$`)

// OTPStore is the cache surface OTP verification depends on.
type OTPStore interface {
	CheckRateLimit(ctx context.Context, key string, max int, window time.Duration) (bool, time.Duration, error)
	SetOTPCode(ctx context.Context, phone, code string, ttl time.Duration) error
	GetOTPCode(ctx context.Context, phone string) (string, error)
	DeleteOTPCode(ctx context.Context, phone string) error
}

// OTPService implements the phone verification endpoints: rate-limited code
// delivery through the SMS gateway, and code verification with a 5-minute
// expiry. External collaborator contract, preserved as-is.
type OTPService struct {
	store  OTPStore
	sender SMSSender
	logger *zap.Logger
}

// NewOTPService creates a new OTP service
func NewOTPService(store OTPStore, sender SMSSender) *OTPService {
	return &OTPService{
		store:  store,
		sender: sender,
		logger: util.GetLogger(),
	}
}

// SendOTPResult mirrors the legacy endpoint response shape.
type SendOTPResult struct {
	Success       bool `json:"success"`
	ExpiresIn     int  `json:"expiresIn,omitempty"`
	RemainingTime int  `json:"remainingTime,omitempty"`
}

// SendOTP generates and delivers a 6-digit code, limited to 3 sends per hour
// per phone. A rate-limited phone gets ErrOTPRateLimited with the seconds
// left in the window.
func (s *OTPService) SendOTP(ctx context.Context, phone string) (SendOTPResult, error) {
	ctx, span := util.StartSpan(ctx, "OTPService.SendOTP")
	defer span.End()

	allowed, remaining, err := s.store.CheckRateLimit(ctx, "otp-send:"+phone, otpMaxSends, otpSendWindow)
	if err != nil {
		return SendOTPResult{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if !allowed {
		util.OTPSendsTotal.WithLabelValues("rate_limited").Inc()
		return SendOTPResult{
			Success:       false,
			RemainingTime: int(remaining.Seconds()),
		}, models.ErrOTPRateLimited
	}

	code, err := generateOTPCode()
	if err != nil {
		return SendOTPResult{}, fmt.Errorf("failed to generate code: %w", err)
	}

	if err := s.store.SetOTPCode(ctx, phone, code, otpCodeTTL); err != nil {
		return SendOTPResult{}, fmt.Errorf("failed to store code: %w", err)
	}

	if err := s.sender.SendSMS(ctx, phone, fmt.Sprintf(otpMessageTmpl, code)); err != nil {
		util.OTPSendsTotal.WithLabelValues("gateway_error").Inc()
		return SendOTPResult{}, fmt.Errorf("failed to deliver sms: %w", err)
	}

	util.OTPSendsTotal.WithLabelValues("sent").Inc()
	s.logger.Info("OTP sent", zap.String("phone", maskPhone(phone)))

	return SendOTPResult{
		Success:   true,
		ExpiresIn: int(otpCodeTTL.Seconds()),
	}, nil
}

// VerifyOTP checks a submitted code against the pending one. A matched code
// is single-use and deleted immediately.
func (s *OTPService) VerifyOTP(ctx context.Context, phone, code string) error {
	ctx, span := util.StartSpan(ctx, "OTPService.VerifyOTP")
	defer span.End()

	if !otpCodePattern.MatchString(code) {
		util.OTPVerificationsTotal.WithLabelValues("malformed").Inc()
		return models.ErrOTPMismatch
	}

	stored, err := s.store.GetOTPCode(ctx, phone)
	if err != nil {
		if err == models.ErrOTPNotFound {
			util.OTPVerificationsTotal.WithLabelValues("not_found").Inc()
		}
		return err
	}

	if stored != code {
		util.OTPVerificationsTotal.WithLabelValues("mismatch").Inc()
		return models.ErrOTPMismatch
	}

	if err := s.store.DeleteOTPCode(ctx, phone); err != nil {
		s.logger.Warn("Failed to delete verified OTP code", zap.Error(err))
	}

	util.OTPVerificationsTotal.WithLabelValues("verified").Inc()
	s.logger.Info("OTP verified", zap.String("phone", maskPhone(phone)))
	return nil
}

func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpCodeCeiling))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
