// controllers/payment.go
package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"sparknexora-backend/models"
	"sparknexora-backend/payments"
	"sparknexora-backend/utils"
)

// webhook payloads are small; cap the body so a bad actor cannot stream.
const maxWebhookBody = 1 << 16

// PaymentController handles the checkout and reconciliation endpoints.
type PaymentController struct {
	Service       *payments.Service
	EmailService  *utils.EmailService
	WebhookSecret string
}

// NewPaymentController creates a new PaymentController
func NewPaymentController(service *payments.Service, emailService *utils.EmailService, webhookSecret string) *PaymentController {
	return &PaymentController{
		Service:       service,
		EmailService:  emailService,
		WebhookSecret: webhookSecret,
	}
}

// CreateCheckoutSession opens a hosted checkout session for a package
func (pc *PaymentController) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req payments.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := pc.Service.StartCheckout(r.Context(), req)
	if err != nil {
		pc.respondServiceError(w, err)
		return
	}

	respondData(w, http.StatusOK, "Checkout session created successfully", result)
}

// HandleReturn completes a payment when the browser returns from the hosted
// checkout page (Channel A).
func (pc *PaymentController) HandleReturn(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")

	receipt, err := pc.Service.CompleteFromReturn(r.Context(), sessionID)
	if err != nil {
		pc.respondServiceError(w, err)
		return
	}
	pc.sendConfirmation(receipt)

	respondData(w, http.StatusOK, "Payment processed successfully", receiptPayload(receipt))
}

// HandleCancel records that the customer backed out of the hosted page.
func (pc *PaymentController) HandleCancel(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")

	if sessionID != "" {
		if err := pc.Service.Cancel(r.Context(), sessionID); err != nil &&
			!errors.Is(err, payments.ErrPaymentNotFound) {
			pc.respondServiceError(w, err)
			return
		}
	}

	respondData(w, http.StatusOK, "Payment was cancelled", map[string]string{
		"sessionId": sessionID,
	})
}

// GetPaymentStatus returns the payment record behind a checkout session
func (pc *PaymentController) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	payment, err := pc.Service.Status(r.Context(), sessionID)
	if err != nil {
		pc.respondServiceError(w, err)
		return
	}

	respondData(w, http.StatusOK, "", map[string]interface{}{
		"payment": paymentPayload(payment),
	})
}

// HandleWebhook ingests provider events (Channel B). The signature is
// verified over the raw body before anything is parsed; a bad signature
// rejects the request without touching state. Processing failures return a
// non-2xx so the provider retries — safe, because reconciliation is
// idempotent.
func (pc *PaymentController) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Unable to read request body")
		return
	}

	event, err := webhook.ConstructEvent(body, r.Header.Get("Stripe-Signature"), pc.WebhookSecret)
	if err != nil {
		log.Printf("Webhook signature verification failed: %v", err)
		respondError(w, http.StatusBadRequest, "Webhook signature verification failed")
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			respondError(w, http.StatusBadRequest, "Malformed event payload")
			return
		}
		intentID := ""
		if session.PaymentIntent != nil {
			intentID = session.PaymentIntent.ID
		}
		receipt, err := pc.Service.HandleSessionCompleted(r.Context(), session.ID, intentID, session.Metadata)
		if err != nil {
			if pc.ackUnknownPayment(w, event.Type, err) {
				return
			}
			log.Printf("Error processing %s for session %s: %v", event.Type, session.ID, err)
			respondError(w, http.StatusInternalServerError, "Webhook processing failed")
			return
		}
		pc.sendConfirmation(receipt)

	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			respondError(w, http.StatusBadRequest, "Malformed event payload")
			return
		}
		if err := pc.Service.HandleIntentSucceeded(r.Context(), intent.ID); err != nil {
			if pc.ackUnknownPayment(w, event.Type, err) {
				return
			}
			log.Printf("Error processing %s for intent %s: %v", event.Type, intent.ID, err)
			respondError(w, http.StatusInternalServerError, "Webhook processing failed")
			return
		}

	case "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			respondError(w, http.StatusBadRequest, "Malformed event payload")
			return
		}
		if err := pc.Service.HandleIntentFailed(r.Context(), intent.ID); err != nil {
			if pc.ackUnknownPayment(w, event.Type, err) {
				return
			}
			log.Printf("Error processing %s for intent %s: %v", event.Type, intent.ID, err)
			respondError(w, http.StatusInternalServerError, "Webhook processing failed")
			return
		}

	default:
		log.Printf("Unhandled event type %s", event.Type)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"received": true})
}

// ackUnknownPayment acknowledges events for payments this system never
// opened, so the provider stops retrying them. Reports whether it responded.
func (pc *PaymentController) ackUnknownPayment(w http.ResponseWriter, eventType string, err error) bool {
	if !errors.Is(err, payments.ErrPaymentNotFound) {
		return false
	}
	log.Printf("Ignoring %s for unknown payment: %v", eventType, err)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"received": true})
	return true
}

// sendConfirmation emails the customer once, on the call that created the
// order. Duplicate deliveries reconcile to the same order and stay silent.
func (pc *PaymentController) sendConfirmation(receipt *payments.Receipt) {
	if !receipt.OrderCreated || receipt.Order == nil {
		return
	}
	order := *receipt.Order
	go func() {
		if err := pc.EmailService.SendOrderConfirmationEmail(order.CustomerEmail, order); err != nil {
			log.Printf("Failed to send order confirmation to %s: %v", order.CustomerEmail, err)
		}
	}()
}

func (pc *PaymentController) respondServiceError(w http.ResponseWriter, err error) {
	var invalidErr *payments.InvalidRequestError
	var providerErr *payments.ProviderError
	switch {
	case errors.As(err, &invalidErr):
		respondError(w, http.StatusBadRequest, invalidErr.Reason)
	case errors.Is(err, payments.ErrPaymentNotFound):
		respondError(w, http.StatusNotFound, "Payment record not found")
	case errors.As(err, &providerErr):
		log.Printf("Payment provider error: %v", err)
		respondError(w, http.StatusBadGateway, "Payment provider is unavailable. Please try again.")
	default:
		log.Printf("Payment processing error: %v", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func paymentPayload(p *models.Payment) map[string]interface{} {
	return map[string]interface{}{
		"id":            p.ID,
		"status":        p.Status,
		"packageName":   p.PackageName,
		"packagePrice":  p.PackagePrice,
		"customerEmail": p.CustomerEmail,
		"customerName":  p.CustomerName,
		"paidAt":        p.PaidAt,
		"createdAt":     p.CreatedAt,
	}
}

func orderPayload(o *models.Order) map[string]interface{} {
	return map[string]interface{}{
		"id":               o.ID,
		"orderNumber":      o.OrderNumber,
		"status":           o.Status,
		"packageName":      o.PackageName,
		"packagePrice":     o.PackagePrice,
		"customerEmail":    o.CustomerEmail,
		"customerName":     o.CustomerName,
		"serviceStartDate": o.ServiceStartDate,
		"serviceEndDate":   o.ServiceEndDate,
		"createdAt":        o.CreatedAt,
	}
}

func receiptPayload(r *payments.Receipt) map[string]interface{} {
	payload := map[string]interface{}{
		"payment": paymentPayload(r.Payment),
	}
	if r.Order != nil {
		payload["order"] = orderPayload(r.Order)
	}
	return payload
}
