package models

import (
	"strings"
	"time"
)

// PaymentStatus is the lifecycle status of a checkout attempt.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSucceeded  PaymentStatus = "succeeded"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCanceled   PaymentStatus = "canceled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusFailed || s == PaymentStatusCanceled
}

// IntentPlaceholderPrefix marks synthetic payment-intent ids assigned while
// Stripe has not yet attached a real payment intent to the session. Many
// pending payments may carry a placeholder at once; uniqueness is enforced
// only among real intent ids.
const IntentPlaceholderPrefix = "pending_"

// IsPlaceholderIntent reports whether id is a synthetic placeholder rather
// than a provider-issued payment-intent id.
func IsPlaceholderIntent(id string) bool {
	return strings.HasPrefix(id, IntentPlaceholderPrefix)
}

// Payment represents one checkout attempt and is the source of truth for
// its payment status.
type Payment struct {
	ID               string            `bson:"_id,omitempty" json:"id,omitempty"`
	PaymentIntentID  string            `bson:"payment_intent_id" json:"paymentIntentId"`
	SessionID        string            `bson:"session_id" json:"sessionId"`
	CustomerEmail    string            `bson:"customer_email" json:"customerEmail"`
	CustomerName     string            `bson:"customer_name" json:"customerName"`
	PackageName      string            `bson:"package_name" json:"packageName"`
	PackagePrice     float64           `bson:"package_price" json:"packagePrice"`
	PackageCurrency  string            `bson:"package_currency" json:"packageCurrency"`
	Amount           int64             `bson:"amount" json:"amount"` // minor currency units
	Status           PaymentStatus     `bson:"status" json:"status"`
	ChargeID         string            `bson:"charge_id,omitempty" json:"chargeId,omitempty"`
	Metadata         map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
	PaidAt           *time.Time        `bson:"paid_at,omitempty" json:"paidAt,omitempty"`
	WebhookProcessed bool              `bson:"webhook_processed" json:"webhookProcessed"`
	CreatedAt        time.Time         `bson:"created_at" json:"createdAt"`
	UpdatedAt        time.Time         `bson:"updated_at" json:"updatedAt"`
}
