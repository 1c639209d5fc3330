package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

func (s TransactionStatus) Terminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed
}

const (
	ProductTypeMentorship = "MENTORSHIP_SESSION"
	ReferencePrefix       = "SES"
	PaymentMethodCard     = "PAYSTACK"
)

type TransactionMetadata struct {
	SessionID        string `json:"session_id"`
	PayerID          int64  `json:"payer_id"`
	PayerEmail       string `json:"payer_email"`
	MentorID         int64  `json:"mentor_id"`
	ProductType      string `json:"product_type"`
	PackageCode      string `json:"package_code,omitempty"`
	GatewayErrorCode string `json:"gateway_error_code,omitempty"`
	GatewayStatus    string `json:"gateway_status,omitempty"`
	Channel          string `json:"channel,omitempty"`
}

type Transaction struct {
	Reference     string              `json:"reference"`
	SessionID     string              `json:"session_id"`
	PayerID       int64               `json:"payer_id"`
	Amount        decimal.Decimal     `json:"amount"`
	Status        TransactionStatus   `json:"status"`
	PaymentMethod string              `json:"payment_method"`
	PlatformShare decimal.Decimal     `json:"platform_share"`
	ProviderShare decimal.Decimal     `json:"provider_share"`
	Metadata      TransactionMetadata `json:"metadata"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
}

type PaymentInitiation struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
}

type SettlementTotals struct {
	Count         int64           `json:"count"`
	Amount        decimal.Decimal `json:"amount"`
	PlatformShare decimal.Decimal `json:"platform_share"`
	ProviderShare decimal.Decimal `json:"provider_share"`
}

type SettlementReport struct {
	From        time.Time        `json:"from"`
	To          time.Time        `json:"to"`
	ProductType string           `json:"product_type,omitempty"`
	MentorID    *int64           `json:"mentor_id,omitempty"`
	Completed   SettlementTotals `json:"completed"`
	Pending     SettlementTotals `json:"pending"`
}
