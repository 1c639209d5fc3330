// Package gateway is a client for a Paystack-compatible payment API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	DefaultBaseURL  = "https://api.paystack.co"
	DefaultCurrency = "NGN"

	// SignatureHeader carries the hex HMAC-SHA512 of a webhook body.
	SignatureHeader = "x-paystack-signature"
)

// Verification statuses reported by the provider.
const (
	StatusSuccess    = "success"
	StatusFailed     = "failed"
	StatusAbandoned  = "abandoned"
	StatusReversed   = "reversed"
	StatusOngoing    = "ongoing"
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusQueued     = "queued"
)

// Error is a non-2xx or status:false answer from the provider. HTTPStatus is
// zero when the request never got a response.
type Error struct {
	Code       string
	HTTPStatus int
	Message    string
}

func (e *Error) Error() string {
	if e.HTTPStatus == 0 {
		return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("gateway error %s (http %d): %s", e.Code, e.HTTPStatus, e.Message)
}

// ErrorCode extracts the provider code from err, falling back to a coarse
// classification for transport failures.
func ErrorCode(err error) string {
	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.Code != "" {
		return gwErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return "timeout"
		}
		return "network_error"
	}
	return "unknown"
}

type Config struct {
	BaseURL   string
	SecretKey string
	Currency  string
	Timeout   time.Duration
}

type InitializeRequest struct {
	Email       string
	AmountMinor int64
	Reference   string
	CallbackURL string
	Currency    string
	Metadata    any
}

type InitializeResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

type VerifyResult struct {
	Reference       string
	Status          string
	AmountMinor     int64
	Currency        string
	Channel         string
	GatewayResponse string
	PaidAt          *time.Time
}

type PaystackClient struct {
	baseURL    string
	secretKey  string
	currency   string
	httpClient *http.Client
}

func NewPaystackClient(cfg Config) *PaystackClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	currency := cfg.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PaystackClient{
		baseURL:    baseURL,
		secretKey:  cfg.SecretKey,
		currency:   currency,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *PaystackClient) Initialize(ctx context.Context, input InitializeRequest) (*InitializeResult, error) {
	currency := input.Currency
	if currency == "" {
		currency = c.currency
	}
	payload := map[string]any{
		"email":     input.Email,
		"amount":    input.AmountMinor,
		"reference": input.Reference,
		"currency":  currency,
	}
	if input.CallbackURL != "" {
		payload["callback_url"] = input.CallbackURL
	}
	if input.Metadata != nil {
		payload["metadata"] = input.Metadata
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal initialize payload: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, "/transaction/initialize", body)
	if err != nil {
		return nil, err
	}

	result := &InitializeResult{
		AuthorizationURL: data.Get("authorization_url").String(),
		AccessCode:       data.Get("access_code").String(),
		Reference:        data.Get("reference").String(),
	}
	if result.AuthorizationURL == "" {
		return nil, &Error{Code: "invalid_response", Message: "authorization_url missing from response"}
	}
	return result, nil
}

func (c *PaystackClient) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	data, err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{
		Reference:       data.Get("reference").String(),
		Status:          strings.ToLower(data.Get("status").String()),
		AmountMinor:     data.Get("amount").Int(),
		Currency:        data.Get("currency").String(),
		Channel:         data.Get("channel").String(),
		GatewayResponse: data.Get("gateway_response").String(),
	}
	if paidAt := data.Get("paid_at").String(); paidAt != "" {
		if parsed, err := time.Parse(time.RFC3339, paidAt); err == nil {
			result.PaidAt = &parsed
		}
	}
	if result.Status == "" {
		return nil, &Error{Code: "invalid_response", Message: "status missing from response"}
	}
	return result, nil
}

// do sends one request and returns the envelope's data member.
func (c *PaystackClient) do(ctx context.Context, method, path string, body []byte) (gjson.Result, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("gateway %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read gateway response: %w", err)
	}

	envelope := gjson.ParseBytes(raw)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices ||
		!envelope.Get("status").Bool() {
		return gjson.Result{}, responseError(resp.StatusCode, envelope, raw)
	}
	return envelope.Get("data"), nil
}

func responseError(status int, envelope gjson.Result, raw []byte) *Error {
	gwErr := &Error{
		HTTPStatus: status,
		Code:       envelope.Get("code").String(),
		Message:    envelope.Get("message").String(),
	}
	if gwErr.Code == "" {
		gwErr.Code = envelope.Get("type").String()
	}
	if gwErr.Code == "" {
		gwErr.Code = fmt.Sprintf("http_%d", status)
	}
	if gwErr.Message == "" {
		gwErr.Message = strings.TrimSpace(string(raw))
		if len(gwErr.Message) > 2048 {
			gwErr.Message = gwErr.Message[:2048]
		}
	}
	return gwErr
}
