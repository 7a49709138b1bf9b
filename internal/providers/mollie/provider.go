package mollie

import (
	"context"
	"errors"
)

// Payment statuses as the gateway reports them. Only "paid" triggers ledger
// recording; everything else is a legitimate non-terminal or failed state.
const (
	StatusOpen     = "open"
	StatusPending  = "pending"
	StatusPaid     = "paid"
	StatusCanceled = "canceled"
	StatusExpired  = "expired"
	StatusFailed   = "failed"
)

type CreatePaymentRequest struct {
	// Amount in cents.
	Amount      int64
	Currency    string
	Description string
	RedirectURL string
	// WebhookURL receives the status-changed notification; it carries the
	// account identifier as a query parameter.
	WebhookURL string
	Metadata   map[string]string
}

type Payment struct {
	ID          string
	Status      string
	Amount      int64
	Currency    string
	CheckoutURL string
	Metadata    map[string]string
}

var (
	ErrInvalidAmount   = errors.New("invalid_payment_amount")
	ErrPaymentNotFound = errors.New("payment_not_found")
)

type Provider interface {
	// CreatePayment opens a hosted checkout session and returns its
	// identifier and checkout URL.
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error)

	// GetPayment fetches the authoritative state of a payment. Webhook
	// handling always verifies through this call instead of trusting the
	// notification body.
	GetPayment(ctx context.Context, id string) (*Payment, error)
}
