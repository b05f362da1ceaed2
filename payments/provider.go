package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"

	"sparknexora-backend/models"
)

// CheckoutRequest is the client input that starts a hosted checkout.
type CheckoutRequest struct {
	PackageName    string                 `json:"packageName"`
	PackagePrice   float64                `json:"packagePrice"`
	CustomerEmail  string                 `json:"customerEmail"`
	CustomerName   string                 `json:"customerName"`
	CustomerPhone  string                 `json:"customerPhone,omitempty"`
	BillingAddress *models.BillingAddress `json:"billingAddress,omitempty"`
}

// ProviderSession is the slice of a hosted checkout session the core needs.
type ProviderSession struct {
	ID              string
	URL             string
	PaymentIntentID string
	Metadata        map[string]string
}

// Provider is the external payment provider seen from the core.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest, amount int64) (*ProviderSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (*ProviderSession, error)
}

// StripeProvider implements Provider on the Stripe API.
type StripeProvider struct {
	api         *client.API
	frontendURL string
}

// NewStripeProvider builds a Stripe client with a bounded request timeout so
// a stalled provider call cannot hang a checkout or a reconcile.
func NewStripeProvider(secretKey, frontendURL string) *StripeProvider {
	httpClient := &http.Client{Timeout: 15 * time.Second}
	api := &client.API{}
	api.Init(secretKey, stripe.NewBackends(httpClient))
	return &StripeProvider{api: api, frontendURL: frontendURL}
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest, amount int64) (*ProviderSession, error) {
	params := &stripe.CheckoutSessionParams{
		Params:             stripe.Params{Context: ctx},
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String("usd"),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.PackageName),
						Description: stripe.String("Digital Marketing Package - " + req.PackageName),
					},
					UnitAmount: stripe.Int64(amount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:                     stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:               stripe.String(p.frontendURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:                stripe.String(p.frontendURL + "/payment/cancel?session_id={CHECKOUT_SESSION_ID}"),
		CustomerEmail:            stripe.String(req.CustomerEmail),
		CustomerCreation:         stripe.String(string(stripe.CheckoutSessionCustomerCreationAlways)),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionRequired)),
	}
	params.AddMetadata("packageName", req.PackageName)
	params.AddMetadata("packagePrice", strconv.FormatFloat(req.PackagePrice, 'f', 2, 64))
	params.AddMetadata("customerName", req.CustomerName)
	params.AddMetadata("customerPhone", req.CustomerPhone)
	if req.BillingAddress != nil {
		if raw, err := json.Marshal(req.BillingAddress); err == nil {
			params.AddMetadata("billingAddress", string(raw))
		}
	}

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, &ProviderError{Op: "create checkout session", Err: err}
	}
	return fromStripeSession(sess), nil
}

func (p *StripeProvider) RetrieveSession(ctx context.Context, sessionID string) (*ProviderSession, error) {
	sess, err := p.api.CheckoutSessions.Get(sessionID, &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, &ProviderError{Op: "retrieve checkout session", Err: err}
	}
	return fromStripeSession(sess), nil
}

func fromStripeSession(sess *stripe.CheckoutSession) *ProviderSession {
	out := &ProviderSession{
		ID:       sess.ID,
		URL:      sess.URL,
		Metadata: sess.Metadata,
	}
	if sess.PaymentIntent != nil {
		out.PaymentIntentID = sess.PaymentIntent.ID
	}
	return out
}
