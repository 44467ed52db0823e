package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/phillip/iinsaf-marketplace-go/config"
	models "github.com/phillip/iinsaf-marketplace-go/models"
)

var paisePerRupee = decimal.NewFromInt(100)

// RazorpayClient talks to the Razorpay orders and payments REST API.
type RazorpayClient struct {
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
}

func NewRazorpayClient(cfg *config.Config) (*RazorpayClient, error) {
	if cfg.RazorpayKeyID == "" || cfg.RazorpayKeySecret == "" {
		return nil, fmt.Errorf("missing RAZORPAY_KEY_ID or RAZORPAY_KEY_SECRET")
	}
	timeout := cfg.ExternalTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RazorpayClient{
		baseURL:   strings.TrimRight(cfg.RazorpayBaseURL, "/"),
		keyID:     cfg.RazorpayKeyID,
		keySecret: cfg.RazorpayKeySecret,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

type razorpayOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type razorpayOrder struct {
	ID string `json:"id"`
}

type razorpayPayment struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Method  string `json:"method"`
	Amount  int64  `json:"amount"`
}

type razorpayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder opens an order for amount rupees and returns its id.
func (r *RazorpayClient) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (string, error) {
	var order razorpayOrder
	err := r.do(ctx, http.MethodPost, "/orders", razorpayOrderRequest{
		Amount:   ToPaise(amount),
		Currency: currency,
		Receipt:  receipt,
	}, &order)
	if err != nil {
		return "", err
	}
	return order.ID, nil
}

func (r *RazorpayClient) FetchPayment(ctx context.Context, paymentID string) (models.GatewayPayment, error) {
	var p razorpayPayment
	if err := r.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &p); err != nil {
		return models.GatewayPayment{}, err
	}
	return models.GatewayPayment{
		ID:      p.ID,
		OrderID: p.OrderID,
		Status:  p.Status,
		Method:  p.Method,
		Amount:  FromPaise(p.Amount),
	}, nil
}

func (r *RazorpayClient) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal razorpay request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("create razorpay request: %w", err)
	}
	req.SetBasicAuth(r.keyID, r.keySecret)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("razorpay %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read razorpay response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr razorpayError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Description != "" {
			return fmt.Errorf("razorpay API error: %s: %s", apiErr.Error.Code, apiErr.Error.Description)
		}
		return fmt.Errorf("razorpay API error: %s", resp.Status)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode razorpay response: %w", err)
	}
	return nil
}

// ToPaise converts rupees to the gateway's integer minor unit.
func ToPaise(amount decimal.Decimal) int64 {
	return amount.Mul(paisePerRupee).Round(0).IntPart()
}

func FromPaise(paise int64) decimal.Decimal {
	return decimal.NewFromInt(paise).Div(paisePerRupee)
}
