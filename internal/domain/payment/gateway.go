// internal/domain/payment/gateway.go
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/your-org/milkcart-backend/internal/config"
)

// ErrSignatureMismatch is returned when a gateway callback signature
// fails HMAC verification.
var ErrSignatureMismatch = errors.New("payment signature verification failed")

// GatewayOrder is the order record created on the payment gateway side.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Gateway talks to the Razorpay orders API and verifies callback
// signatures. Amounts are in the smallest currency unit throughout.
type Gateway struct {
	keyID      string
	keySecret  string
	baseURL    string
	httpClient *http.Client
}

// NewGateway creates a gateway client from configuration
func NewGateway(cfg *config.Config) *Gateway {
	baseURL := cfg.Gateway.BaseURL
	if baseURL == "" {
		baseURL = "https://api.razorpay.com/v1"
	}
	return &Gateway{
		keyID:     cfg.Gateway.KeyID,
		keySecret: cfg.Gateway.KeySecret,
		baseURL:   baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Configured reports whether gateway credentials are present. Without
// them only cash-on-delivery style methods can settle.
func (g *Gateway) Configured() bool {
	return g.keyID != "" && g.keySecret != ""
}

// CreateOrder registers a payable order on the gateway and returns its
// gateway-side identifier for the client checkout flow.
func (g *Gateway) CreateOrder(ctx context.Context, amount int64, receipt string) (*GatewayOrder, error) {
	if !g.Configured() {
		return nil, errors.New("payment gateway is not configured")
	}

	body, err := json.Marshal(map[string]interface{}{
		"amount":   amount,
		"currency": "INR",
		"receipt":  receipt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.keyID, g.keySecret)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error.Description != "" {
			return nil, fmt.Errorf("gateway rejected order: %s", apiErr.Error.Description)
		}
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var gwOrder GatewayOrder
	if err := json.NewDecoder(resp.Body).Decode(&gwOrder); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return &gwOrder, nil
}

// VerifyPaymentSignature checks the checkout callback signature:
// HMAC-SHA256 of "<gateway_order_id>|<gateway_payment_id>" keyed with
// the API secret.
func (g *Gateway) VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature string) error {
	return g.verify(gatewayOrderID+"|"+gatewayPaymentID, signature)
}

// VerifyWebhookSignature checks the signature header on a raw webhook
// payload using the webhook secret.
func VerifyWebhookSignature(payload []byte, signature, secret string) error {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}

func (g *Gateway) verify(message, signature string) error {
	mac := hmac.New(sha256.New, []byte(g.keySecret))
	mac.Write([]byte(message))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}
