package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"transitpay/internal/utils"

	"go.uber.org/zap"
)

// LogSender writes messages to the log instead of delivering them.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg Message) error {
	utils.LogEvent(utils.RequestIDFrom(ctx), "notification", "log_send", msg.Body,
		zap.String("channel", msg.Channel),
		zap.String("to", utils.MaskPhone(msg.To)),
		zap.Int64("payment_id", msg.PaymentID),
	)
	return nil
}

// HTTPSender posts messages to a messaging gateway (WhatsApp/SMS relay).
type HTTPSender struct {
	URL    string
	APIKey string
	Client *http.Client
}

func (s HTTPSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("messaging gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}
