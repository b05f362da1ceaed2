// Package payments holds the checkout and payment-to-order reconciliation
// core. Confirmation for one checkout session can arrive through two
// independent channels — the browser redirect and the provider webhook — in
// any order, possibly more than once. Both channels funnel into the same
// idempotent reconcile procedure, and the order stores' uniqueness
// constraint on the payment id is the final guarantee that a payment
// materializes at most one order.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"sparknexora-backend/models"
	"sparknexora-backend/storage"
)

var emailPattern = regexp.MustCompile(`^[\w.+-]+@[\w-]+(\.[\w-]+)+$`)

// Service drives checkout sessions and reconciliation against the injected
// stores and provider.
type Service struct {
	provider Provider
	payments storage.PaymentStore
	orders   storage.OrderStore
	now      func() time.Time
}

// NewService wires the checkout core.
func NewService(provider Provider, payments storage.PaymentStore, orders storage.OrderStore) *Service {
	return &Service{
		provider: provider,
		payments: payments,
		orders:   orders,
		now:      time.Now,
	}
}

// CheckoutResult is handed back to the client so it can redirect to the
// hosted checkout page.
type CheckoutResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// Receipt pairs a payment with the order it produced. OrderCreated is true
// only for the call that actually created the order, letting callers fire
// one-time side effects such as the confirmation email.
type Receipt struct {
	Payment      *models.Payment
	Order        *models.Order
	OrderCreated bool
}

func (r CheckoutRequest) validate() error {
	if r.PackageName == "" {
		return invalidRequest("packageName is required")
	}
	if r.PackagePrice <= 0 {
		return invalidRequest("packagePrice must be a positive amount")
	}
	if r.CustomerName == "" {
		return invalidRequest("customerName is required")
	}
	if r.CustomerEmail == "" || !emailPattern.MatchString(r.CustomerEmail) {
		return invalidRequest("customerEmail must be a valid email address")
	}
	return nil
}

// minorUnits converts a decimal price to integer cents, rounding to nearest.
func minorUnits(price float64) int64 {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// StartCheckout opens a hosted checkout session and persists the pending
// payment. The payment is only written after the provider call succeeds, so
// a provider failure leaves no local state behind.
func (s *Service) StartCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	amount := minorUnits(req.PackagePrice)
	sess, err := s.provider.CreateCheckoutSession(ctx, req, amount)
	if err != nil {
		return nil, err
	}

	intentID := sess.PaymentIntentID
	if intentID == "" {
		// Stripe assigns the payment intent lazily; until then the payment
		// carries a synthetic placeholder.
		intentID = fmt.Sprintf("%s%d_%s", models.IntentPlaceholderPrefix, s.now().UnixMilli(), uuid.NewString()[:8])
	}

	metadata := map[string]string{
		"packageName":   req.PackageName,
		"customerPhone": req.CustomerPhone,
	}
	if req.BillingAddress != nil {
		if raw, merr := json.Marshal(req.BillingAddress); merr == nil {
			metadata["billingAddress"] = string(raw)
		}
	}

	payment := &models.Payment{
		PaymentIntentID: intentID,
		SessionID:       sess.ID,
		CustomerEmail:   req.CustomerEmail,
		CustomerName:    req.CustomerName,
		PackageName:     req.PackageName,
		PackagePrice:    req.PackagePrice,
		PackageCurrency: "usd",
		Amount:          amount,
		Status:          models.PaymentStatusPending,
		Metadata:        metadata,
	}
	if err := s.payments.Insert(ctx, payment); err != nil {
		return nil, fmt.Errorf("persist pending payment: %w", err)
	}

	return &CheckoutResult{SessionID: sess.ID, URL: sess.URL}, nil
}

// CompleteFromReturn is Channel A: the browser came back from the hosted
// page with a session id. The session is re-fetched from the provider to
// confirm payment before reconciling; a provider failure here mutates
// nothing, the webhook channel remains the backstop.
func (s *Service) CompleteFromReturn(ctx context.Context, sessionID string) (*Receipt, error) {
	if sessionID == "" {
		return nil, invalidRequest("session_id is required")
	}
	sess, err := s.provider.RetrieveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, sessionID, sess.PaymentIntentID, sess.Metadata)
}

// HandleSessionCompleted is Channel B's checkout.session.completed path.
func (s *Service) HandleSessionCompleted(ctx context.Context, sessionID, intentID string, metadata map[string]string) (*Receipt, error) {
	return s.reconcile(ctx, sessionID, intentID, metadata)
}

// HandleIntentSucceeded marks the payment behind a payment intent as
// succeeded. Order creation stays with the session-keyed channels; if none
// of them ever lands, the next reconcile for the session backfills the
// order from the already-succeeded payment.
func (s *Service) HandleIntentSucceeded(ctx context.Context, intentID string) error {
	p, err := s.findByIntent(ctx, intentID)
	if err != nil {
		return err
	}
	if p.Status == models.PaymentStatusSucceeded {
		return nil
	}
	if err := s.payments.MarkSucceeded(ctx, p.ID, s.now(), intentID); err != nil {
		return fmt.Errorf("mark payment %s succeeded: %w", p.ID, err)
	}
	return nil
}

// HandleIntentFailed records a failed payment. A payment that already
// succeeded is never demoted.
func (s *Service) HandleIntentFailed(ctx context.Context, intentID string) error {
	p, err := s.findByIntent(ctx, intentID)
	if err != nil {
		return err
	}
	if err := s.payments.MarkFailed(ctx, p.ID); err != nil {
		return fmt.Errorf("mark payment %s failed: %w", p.ID, err)
	}
	return nil
}

// Cancel records that the customer abandoned the hosted checkout page. No
// order is implied, and a succeeded payment is left untouched.
func (s *Service) Cancel(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return invalidRequest("session_id is required")
	}
	p, err := s.payments.FindBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrPaymentNotFound
		}
		return fmt.Errorf("find payment for session %s: %w", sessionID, err)
	}
	if err := s.payments.MarkCanceled(ctx, p.ID); err != nil {
		return fmt.Errorf("mark payment %s canceled: %w", p.ID, err)
	}
	return nil
}

// Status looks up the payment for the status endpoint.
func (s *Service) Status(ctx context.Context, sessionID string) (*models.Payment, error) {
	p, err := s.payments.FindBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("find payment for session %s: %w", sessionID, err)
	}
	return p, nil
}

func (s *Service) findByIntent(ctx context.Context, intentID string) (*models.Payment, error) {
	if intentID == "" {
		return nil, invalidRequest("payment intent reference is required")
	}
	p, err := s.payments.FindByIntentID(ctx, intentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("find payment for intent %s: %w", intentID, err)
	}
	return p, nil
}

// reconcile is the single idempotent core both channels share. Any number
// of calls for the same session, in any interleaving, leave exactly one
// succeeded payment and at most one order behind.
func (s *Service) reconcile(ctx context.Context, sessionID, intentID string, metadata map[string]string) (*Receipt, error) {
	p, err := s.payments.FindBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("find payment for session %s: %w", sessionID, err)
	}

	if p.Status != models.PaymentStatusSucceeded {
		chargeID := intentID
		if chargeID == "" {
			chargeID = p.PaymentIntentID
		}
		// Monotonic: the store applies this only while the payment is not
		// yet succeeded, so two racing triggers cannot both "win".
		if err := s.payments.MarkSucceeded(ctx, p.ID, s.now(), chargeID); err != nil {
			return nil, fmt.Errorf("mark payment %s succeeded: %w", p.ID, err)
		}
		p, err = s.payments.FindBySessionID(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("reload payment for session %s: %w", sessionID, err)
		}
	}

	order, created, err := s.ensureOrder(ctx, p, metadata)
	if err != nil {
		return nil, err
	}
	return &Receipt{Payment: p, Order: order, OrderCreated: created}, nil
}

// ensureOrder finds the order for a succeeded payment or creates it. The
// existence pre-check is an optimization; the store's uniqueness constraint
// on the payment id is the actual guard, and losing that race is treated as
// "already reconciled".
func (s *Service) ensureOrder(ctx context.Context, p *models.Payment, metadata map[string]string) (*models.Order, bool, error) {
	order, err := s.orders.FindByPaymentID(ctx, p.ID)
	if err == nil {
		return order, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, fmt.Errorf("find order for payment %s: %w", p.ID, err)
	}

	now := s.now()
	start := now
	end := now.AddDate(0, 0, 30)
	order = &models.Order{
		CustomerEmail:    p.CustomerEmail,
		CustomerName:     p.CustomerName,
		CustomerPhone:    p.Metadata["customerPhone"],
		PackageName:      p.PackageName,
		PackagePrice:     p.PackagePrice,
		PackageCurrency:  p.PackageCurrency,
		BillingAddress:   s.billingAddress(metadata, p),
		Status:           models.OrderStatusPaid,
		PaymentID:        p.ID,
		ServiceStartDate: &start,
		ServiceEndDate:   &end,
		Notes:            "Payment completed via Stripe. Session ID: " + p.SessionID,
	}

	for attempt := 0; attempt < 2; attempt++ {
		order.OrderNumber = s.nextOrderNumber(ctx, now)
		err = s.orders.Insert(ctx, order)
		if err == nil {
			return order, true, nil
		}
		if !errors.Is(err, storage.ErrDuplicate) {
			return nil, false, fmt.Errorf("create order for payment %s: %w", p.ID, err)
		}
		existing, ferr := s.orders.FindByPaymentID(ctx, p.ID)
		if ferr == nil {
			return existing, false, nil
		}
		if !errors.Is(ferr, storage.ErrNotFound) {
			return nil, false, fmt.Errorf("find order for payment %s: %w", p.ID, ferr)
		}
		// The duplicate was the order number, not the payment id; take a
		// fresh number and retry once.
	}
	return nil, false, fmt.Errorf("create order for payment %s: %w", p.ID, err)
}

// billingAddress pulls the structured address out of the session metadata,
// falling back to the copy stored at checkout time. A malformed value is
// logged and skipped; the order is created without an address.
func (s *Service) billingAddress(metadata map[string]string, p *models.Payment) *models.BillingAddress {
	raw := metadata["billingAddress"]
	if raw == "" {
		raw = p.Metadata["billingAddress"]
	}
	if raw == "" {
		return nil
	}
	var addr models.BillingAddress
	if err := json.Unmarshal([]byte(raw), &addr); err != nil {
		log.Printf("payment %s: unparseable billing address in metadata: %v", p.ID, err)
		return nil
	}
	return &addr
}

// nextOrderNumber allocates the daily-sequential order number
// SN-YYYYMMDD-NNNN. When the sequence counter is unavailable the number
// falls back to a timestamp-derived one: unique but out of sequence, which
// beats blocking the order.
func (s *Service) nextOrderNumber(ctx context.Context, now time.Time) string {
	day := now.Format("20060102")
	seq, err := s.orders.NextDailySequence(ctx, day)
	if err != nil {
		log.Printf("order sequence for %s unavailable, falling back to timestamp number: %v", day, err)
		return fmt.Sprintf("SN-%d", now.UnixNano())
	}
	return fmt.Sprintf("SN-%s-%04d", day, seq)
}
