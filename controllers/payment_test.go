package controllers

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74/webhook"

	"sparknexora-backend/models"
	"sparknexora-backend/payments"
	"sparknexora-backend/storage"
	"sparknexora-backend/utils"
)

const testWebhookSecret = "whsec_test_secret"

// stubProvider satisfies the provider interface with canned sessions.
type stubProvider struct {
	counter  int
	sessions map[string]*payments.ProviderSession
}

func (s *stubProvider) CreateCheckoutSession(_ context.Context, req payments.CheckoutRequest, _ int64) (*payments.ProviderSession, error) {
	s.counter++
	sess := &payments.ProviderSession{
		ID:              fmt.Sprintf("cs_test_%d", s.counter),
		URL:             fmt.Sprintf("https://checkout.example.com/%d", s.counter),
		PaymentIntentID: fmt.Sprintf("pi_test_%d", s.counter),
		Metadata:        map[string]string{"packageName": req.PackageName},
	}
	s.sessions[sess.ID] = sess
	return &payments.ProviderSession{ID: sess.ID, URL: sess.URL}, nil
}

func (s *stubProvider) RetrieveSession(_ context.Context, sessionID string) (*payments.ProviderSession, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, &payments.ProviderError{Op: "retrieve checkout session", Err: fmt.Errorf("no such session %s", sessionID)}
	}
	out := *sess
	return &out, nil
}

type paymentTestEnv struct {
	router   *mux.Router
	provider *stubProvider
	store    storage.Store
	svc      *payments.Service
}

func newPaymentTestEnv(t *testing.T) *paymentTestEnv {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	provider := &stubProvider{sessions: make(map[string]*payments.ProviderSession)}
	svc := payments.NewService(provider, store.Payments(), store.Orders())
	pc := NewPaymentController(svc, utils.NewEmailService(), testWebhookSecret)

	router := mux.NewRouter()
	router.HandleFunc("/checkout", pc.CreateCheckoutSession).Methods("POST")
	router.HandleFunc("/checkout/return", pc.HandleReturn).Methods("GET")
	router.HandleFunc("/checkout/cancel", pc.HandleCancel).Methods("GET")
	router.HandleFunc("/checkout/webhook", pc.HandleWebhook).Methods("POST")
	router.HandleFunc("/checkout/status/{sessionId}", pc.GetPaymentStatus).Methods("GET")

	return &paymentTestEnv{router: router, provider: provider, store: store, svc: svc}
}

// startCheckout seeds a pending payment through the normal entry point and
// returns its session id.
func (env *paymentTestEnv) startCheckout(t *testing.T) string {
	t.Helper()
	body := `{"packageName":"Pro","packagePrice":99.00,"customerEmail":"a@b.com","customerName":"A"}`
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest("POST", "/checkout", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data payments.CheckoutResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.SessionID)
	return resp.Data.SessionID
}

func sessionCompletedEvent(sess *payments.ProviderSession) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"api_version": "2022-11-15",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": %q,
				"object": "checkout.session",
				"payment_intent": %q,
				"metadata": {"packageName": "Pro"}
			}
		}
	}`, sess.ID, sess.PaymentIntentID))
}

func signedHeader(payload []byte, secret string, at time.Time) string {
	sig := webhook.ComputeSignature(at, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(sig))
}

func (env *paymentTestEnv) postWebhook(payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/checkout/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	env := newPaymentTestEnv(t)
	sessionID := env.startCheckout(t)
	payload := sessionCompletedEvent(env.provider.sessions[sessionID])

	rec := env.postWebhook(payload, signedHeader(payload, "whsec_wrong_secret", time.Now()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A rejected delivery must not have touched state.
	payment, err := env.store.Payments().FindBySessionID(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)

	orders, err := env.store.Orders().List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	env := newPaymentTestEnv(t)
	sessionID := env.startCheckout(t)
	payload := sessionCompletedEvent(env.provider.sessions[sessionID])

	rec := env.postWebhook(payload, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRejectsStaleTimestamp(t *testing.T) {
	env := newPaymentTestEnv(t)
	sessionID := env.startCheckout(t)
	payload := sessionCompletedEvent(env.provider.sessions[sessionID])

	// Correctly signed but an hour old: outside the replay tolerance.
	rec := env.postWebhook(payload, signedHeader(payload, testWebhookSecret, time.Now().Add(-time.Hour)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookSessionCompleted(t *testing.T) {
	env := newPaymentTestEnv(t)
	sessionID := env.startCheckout(t)
	payload := sessionCompletedEvent(env.provider.sessions[sessionID])

	rec := env.postWebhook(payload, signedHeader(payload, testWebhookSecret, time.Now()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"received": true}`, rec.Body.String())

	ctx := context.Background()
	payment, err := env.store.Payments().FindBySessionID(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSucceeded, payment.Status)

	order, err := env.store.Orders().FindByPaymentID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
}

func TestWebhookRedelivery(t *testing.T) {
	env := newPaymentTestEnv(t)
	sessionID := env.startCheckout(t)
	payload := sessionCompletedEvent(env.provider.sessions[sessionID])

	for i := 0; i < 3; i++ {
		rec := env.postWebhook(payload, signedHeader(payload, testWebhookSecret, time.Now()))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	orders, err := env.store.Orders().List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestWebhookAcknowledgesUnknownSession(t *testing.T) {
	env := newPaymentTestEnv(t)
	payload := sessionCompletedEvent(&payments.ProviderSession{ID: "cs_foreign", PaymentIntentID: "pi_foreign"})

	// Events for sessions this system never opened are acked so the
	// provider stops retrying them.
	rec := env.postWebhook(payload, signedHeader(payload, testWebhookSecret, time.Now()))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received": true}`, rec.Body.String())
}

func TestWebhookIgnoresUnhandledEventType(t *testing.T) {
	env := newPaymentTestEnv(t)
	payload := []byte(`{"id":"evt_2","object":"event","api_version":"2022-11-15","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`)

	rec := env.postWebhook(payload, signedHeader(payload, testWebhookSecret, time.Now()))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received": true}`, rec.Body.String())
}

func TestWebhookPaymentFailed(t *testing.T) {
	env := newPaymentTestEnv(t)
	sessionID := env.startCheckout(t)
	intentID := env.provider.sessions[sessionID].PaymentIntentID

	// The stored payment carries a placeholder intent, so a failure event
	// keyed by the real intent id cannot match it and is acked.
	payload := []byte(fmt.Sprintf(`{"id":"evt_3","object":"event","api_version":"2022-11-15","type":"payment_intent.payment_failed","data":{"object":{"id":%q,"object":"payment_intent"}}}`, intentID))
	rec := env.postWebhook(payload, signedHeader(payload, testWebhookSecret, time.Now()))
	assert.Equal(t, http.StatusOK, rec.Code)

	payment, err := env.store.Payments().FindBySessionID(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
}

func TestReturnEndpointIsIdempotent(t *testing.T) {
	env := newPaymentTestEnv(t)
	sessionID := env.startCheckout(t)

	var first, second struct {
		Success bool `json:"success"`
		Data    struct {
			Order struct {
				OrderNumber string `json:"orderNumber"`
			} `json:"order"`
		} `json:"data"`
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest("GET", "/checkout/return?session_id="+sessionID, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.True(t, first.Success)
	assert.Regexp(t, `^SN-\d{8}-0001$`, first.Data.Order.OrderNumber)

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest("GET", "/checkout/return?session_id="+sessionID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, first.Data.Order.OrderNumber, second.Data.Order.OrderNumber)
}

func TestReturnWithoutSessionID(t *testing.T) {
	env := newPaymentTestEnv(t)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest("GET", "/checkout/return", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelEndpoint(t *testing.T) {
	env := newPaymentTestEnv(t)
	sessionID := env.startCheckout(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest("GET", "/checkout/cancel?session_id="+sessionID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	payment, err := env.store.Payments().FindBySessionID(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCanceled, payment.Status)
}

func TestPaymentStatusEndpoint(t *testing.T) {
	env := newPaymentTestEnv(t)
	sessionID := env.startCheckout(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest("GET", "/checkout/status/"+sessionID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"pending"`)

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest("GET", "/checkout/status/cs_missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckoutRejectsInvalidBody(t *testing.T) {
	env := newPaymentTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest("POST", "/checkout", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	body := `{"packageName":"Pro","packagePrice":-1,"customerEmail":"a@b.com","customerName":"A"}`
	env.router.ServeHTTP(rec, httptest.NewRequest("POST", "/checkout", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
