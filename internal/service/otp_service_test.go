package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"wonderstars/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOTPStore struct {
	codes    map[string]string
	sendHits map[string]int
}

func newFakeOTPStore() *fakeOTPStore {
	return &fakeOTPStore{
		codes:    make(map[string]string),
		sendHits: make(map[string]int),
	}
}

func (f *fakeOTPStore) CheckRateLimit(_ context.Context, key string, max int, window time.Duration) (bool, time.Duration, error) {
	f.sendHits[key]++
	if f.sendHits[key] > max {
		return false, window, nil
	}
	return true, 0, nil
}

func (f *fakeOTPStore) SetOTPCode(_ context.Context, phone, code string, _ time.Duration) error {
	f.codes[phone] = code
	return nil
}

func (f *fakeOTPStore) GetOTPCode(_ context.Context, phone string) (string, error) {
	code, ok := f.codes[phone]
	if !ok {
		return "", models.ErrOTPNotFound
	}
	return code, nil
}

func (f *fakeOTPStore) DeleteOTPCode(_ context.Context, phone string) error {
	delete(f.codes, phone)
	return nil
}

type fakeSMSSender struct {
	sent []string
	err  error
}

func (f *fakeSMSSender) SendSMS(_ context.Context, phone, message string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, phone+": "+message)
	return nil
}

func TestSendOTP(t *testing.T) {
	store := newFakeOTPStore()
	sender := &fakeSMSSender{}
	svc := NewOTPService(store, sender)

	result, err := svc.SendOTP(context.Background(), "+60123456789")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 300, result.ExpiresIn)
	require.Len(t, sender.sent, 1)

	code := store.codes["+60123456789"]
	assert.Regexp(t, `^\d{6}$`, code)
	assert.Contains(t, sender.sent[0], code)
}

func TestSendOTPRateLimited(t *testing.T) {
	store := newFakeOTPStore()
	sender := &fakeSMSSender{}
	svc := NewOTPService(store, sender)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.SendOTP(ctx, "+60123456789")
		require.NoError(t, err)
	}

	result, err := svc.SendOTP(ctx, "+60123456789")
	assert.ErrorIs(t, err, models.ErrOTPRateLimited)
	assert.False(t, result.Success)
	assert.Equal(t, 3600, result.RemainingTime)
	assert.Len(t, sender.sent, 3, "no delivery after the limit")

	// A different phone has its own window.
	_, err = svc.SendOTP(ctx, "+60199999999")
	assert.NoError(t, err)
}

func TestSendOTPGatewayFailure(t *testing.T) {
	store := newFakeOTPStore()
	sender := &fakeSMSSender{err: fmt.Errorf("gateway timeout")}
	svc := NewOTPService(store, sender)

	_, err := svc.SendOTP(context.Background(), "+60123456789")
	assert.Error(t, err)
}

func TestVerifyOTP(t *testing.T) {
	store := newFakeOTPStore()
	svc := NewOTPService(store, &fakeSMSSender{})
	ctx := context.Background()

	store.codes["+60123456789"] = "123456"

	assert.ErrorIs(t, svc.VerifyOTP(ctx, "+60123456789", "654321"), models.ErrOTPMismatch)
	assert.ErrorIs(t, svc.VerifyOTP(ctx, "+60123456789", "12345"), models.ErrOTPMismatch)
	assert.ErrorIs(t, svc.VerifyOTP(ctx, "+60123456789", "abcdef"), models.ErrOTPMismatch)

	require.NoError(t, svc.VerifyOTP(ctx, "+60123456789", "123456"))

	// Verified codes are single use.
	assert.ErrorIs(t, svc.VerifyOTP(ctx, "+60123456789", "123456"), models.ErrOTPNotFound)
}

func TestVerifyOTPUnknownPhone(t *testing.T) {
	svc := NewOTPService(newFakeOTPStore(), &fakeSMSSender{})
	err := svc.VerifyOTP(context.Background(), "+60100000000", "123456")
	assert.ErrorIs(t, err, models.ErrOTPNotFound)
}
