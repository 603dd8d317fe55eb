package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"wonderstars/internal/util"

	"go.uber.org/zap"
)

// SMSSender delivers a text message to a phone number.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) error
}

// SMSGatewayClient is a thin HTTP wrapper around the third-party SMS gateway.
type SMSGatewayClient struct {
	baseURL  string
	apiKey   string
	senderID string
	client   *http.Client
	logger   *zap.Logger
}

// NewSMSGatewayClient creates a new SMS gateway client
func NewSMSGatewayClient(baseURL, apiKey, senderID string) *SMSGatewayClient {
	return &SMSGatewayClient{
		baseURL:  baseURL,
		apiKey:   apiKey,
		senderID: senderID,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   util.GetLogger(),
	}
}

type smsGatewayRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Message string `json:"message"`
}

// SendSMS posts the message to the gateway and fails on any non-2xx status.
func (c *SMSGatewayClient) SendSMS(ctx context.Context, phone, message string) error {
	payload, err := json.Marshal(smsGatewayRequest{
		To:      phone,
		From:    c.senderID,
		Message: message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}

	c.logger.Info("SMS dispatched", zap.String("phone", maskPhone(phone)))
	return nil
}

// maskPhone hides all but the last three digits for logging.
func maskPhone(phone string) string {
	if len(phone) <= 3 {
		return "***"
	}
	masked := make([]byte, len(phone)-3)
	for i := range masked {
		masked[i] = '*'
	}
	return string(masked) + phone[len(phone)-3:]
}
