package payments

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparknexora-backend/models"
	"sparknexora-backend/storage"
)

// fakeProvider stands in for Stripe: deterministic session ids, canned
// failures.
type fakeProvider struct {
	mu             sync.Mutex
	counter        int
	intentAtCreate bool
	createErr      error
	retrieveErr    error
	sessions       map[string]*ProviderSession
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{sessions: make(map[string]*ProviderSession)}
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, req CheckoutRequest, amount int64) (*ProviderSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, &ProviderError{Op: "create checkout session", Err: f.createErr}
	}
	f.counter++
	sess := &ProviderSession{
		ID:  fmt.Sprintf("cs_test_%d", f.counter),
		URL: fmt.Sprintf("https://checkout.example.com/%d", f.counter),
		Metadata: map[string]string{
			"packageName": req.PackageName,
		},
	}
	intent := fmt.Sprintf("pi_test_%d", f.counter)
	if f.intentAtCreate {
		sess.PaymentIntentID = intent
	}
	stored := *sess
	stored.PaymentIntentID = intent
	f.sessions[sess.ID] = &stored
	return sess, nil
}

func (f *fakeProvider) RetrieveSession(_ context.Context, sessionID string) (*ProviderSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.retrieveErr != nil {
		return nil, &ProviderError{Op: "retrieve checkout session", Err: f.retrieveErr}
	}
	sess, ok := f.sessions[sessionID]
	if !ok {
		return nil, &ProviderError{Op: "retrieve checkout session", Err: fmt.Errorf("no such session %s", sessionID)}
	}
	out := *sess
	return &out, nil
}

func newTestService(t *testing.T) (*Service, *fakeProvider, storage.Store) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	provider := newFakeProvider()
	return NewService(provider, store.Payments(), store.Orders()), provider, store
}

func proRequest() CheckoutRequest {
	return CheckoutRequest{
		PackageName:   "Pro",
		PackagePrice:  99.00,
		CustomerEmail: "a@b.com",
		CustomerName:  "A",
	}
}

func TestStartCheckoutCreatesPendingPayment(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	result, err := svc.StartCheckout(ctx, proRequest())
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", result.SessionID)
	assert.NotEmpty(t, result.URL)

	payment, err := store.Payments().FindBySessionID(ctx, result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.Equal(t, int64(9900), payment.Amount)
	assert.Equal(t, 99.00, payment.PackagePrice)
	assert.True(t, models.IsPlaceholderIntent(payment.PaymentIntentID),
		"payment intent should be a placeholder until Stripe assigns one")
}

func TestStartCheckoutValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CheckoutRequest)
	}{
		{"missing package", func(r *CheckoutRequest) { r.PackageName = "" }},
		{"zero price", func(r *CheckoutRequest) { r.PackagePrice = 0 }},
		{"negative price", func(r *CheckoutRequest) { r.PackagePrice = -5 }},
		{"missing name", func(r *CheckoutRequest) { r.CustomerName = "" }},
		{"missing email", func(r *CheckoutRequest) { r.CustomerEmail = "" }},
		{"bad email", func(r *CheckoutRequest) { r.CustomerEmail = "not-an-email" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := proRequest()
			tc.mutate(&req)
			_, err := svc.StartCheckout(ctx, req)
			var invalidErr *InvalidRequestError
			require.ErrorAs(t, err, &invalidErr)
		})
	}
}

func TestStartCheckoutProviderFailureLeavesNoState(t *testing.T) {
	svc, provider, store := newTestService(t)
	provider.createErr = errors.New("connection refused")
	ctx := context.Background()

	_, err := svc.StartCheckout(ctx, proRequest())
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)

	// All-or-nothing: no pending payment was written.
	_, err = store.Payments().FindBySessionID(ctx, "cs_test_1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMinorUnitsRounding(t *testing.T) {
	assert.Equal(t, int64(9900), minorUnits(99.00))
	assert.Equal(t, int64(1999), minorUnits(19.99))
	assert.Equal(t, int64(10), minorUnits(0.1))
	assert.Equal(t, int64(129), minorUnits(1.285))
}

func TestWebhookThenReturnIsIdempotent(t *testing.T) {
	svc, provider, store := newTestService(t)
	ctx := context.Background()

	result, err := svc.StartCheckout(ctx, proRequest())
	require.NoError(t, err)

	// Channel B lands first.
	sess := provider.sessions[result.SessionID]
	receipt, err := svc.HandleSessionCompleted(ctx, sess.ID, sess.PaymentIntentID, sess.Metadata)
	require.NoError(t, err)
	assert.True(t, receipt.OrderCreated)
	assert.Equal(t, models.PaymentStatusSucceeded, receipt.Payment.Status)
	assert.Equal(t, models.OrderStatusPaid, receipt.Order.Status)
	assert.Equal(t, 99.00, receipt.Order.PackagePrice)

	today := time.Now().Format("20060102")
	assert.Equal(t, fmt.Sprintf("SN-%s-0001", today), receipt.Order.OrderNumber)

	// Channel A arrives afterwards: same pair, nothing mutated, no new order.
	again, err := svc.CompleteFromReturn(ctx, result.SessionID)
	require.NoError(t, err)
	assert.False(t, again.OrderCreated)
	assert.Equal(t, receipt.Order.ID, again.Order.ID)
	assert.Equal(t, receipt.Order.OrderNumber, again.Order.OrderNumber)
	require.NotNil(t, receipt.Payment.PaidAt)
	require.NotNil(t, again.Payment.PaidAt)
	assert.Equal(t, receipt.Payment.PaidAt.Unix(), again.Payment.PaidAt.Unix())

	orders, err := store.Orders().List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestReturnThenWebhookIsIdempotent(t *testing.T) {
	svc, provider, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.StartCheckout(ctx, proRequest())
	require.NoError(t, err)

	receipt, err := svc.CompleteFromReturn(ctx, result.SessionID)
	require.NoError(t, err)
	assert.True(t, receipt.OrderCreated)

	sess := provider.sessions[result.SessionID]
	again, err := svc.HandleSessionCompleted(ctx, sess.ID, sess.PaymentIntentID, sess.Metadata)
	require.NoError(t, err)
	assert.False(t, again.OrderCreated)
	assert.Equal(t, receipt.Order.ID, again.Order.ID)
}

func TestConcurrentReconcileCreatesOneOrder(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	result, err := svc.StartCheckout(ctx, proRequest())
	require.NoError(t, err)

	const workers = 8
	receipts := make([]*Receipt, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			receipts[i], errs[i] = svc.CompleteFromReturn(ctx, result.SessionID)
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, receipts[i].Order)
		assert.Equal(t, receipts[0].Order.ID, receipts[i].Order.ID)
		if receipts[i].OrderCreated {
			created++
		}
	}
	assert.Equal(t, 1, created, "exactly one call should have created the order")

	orders, err := store.Orders().List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestMarkFailedNeverDemotesSucceeded(t *testing.T) {
	svc, provider, store := newTestService(t)
	provider.intentAtCreate = true
	ctx := context.Background()

	result, err := svc.StartCheckout(ctx, proRequest())
	require.NoError(t, err)
	_, err = svc.CompleteFromReturn(ctx, result.SessionID)
	require.NoError(t, err)

	intentID := provider.sessions[result.SessionID].PaymentIntentID
	require.NoError(t, svc.HandleIntentFailed(ctx, intentID))

	payment, err := store.Payments().FindBySessionID(ctx, result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSucceeded, payment.Status)
}

func TestCancelPendingPayment(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	result, err := svc.StartCheckout(ctx, proRequest())
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, result.SessionID))

	payment, err := store.Payments().FindBySessionID(ctx, result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCanceled, payment.Status)

	orders, err := store.Orders().List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, orders, "cancellation implies no order")
}

func TestCancelNeverDemotesSucceeded(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	result, err := svc.StartCheckout(ctx, proRequest())
	require.NoError(t, err)
	_, err = svc.CompleteFromReturn(ctx, result.SessionID)
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, result.SessionID))

	payment, err := store.Payments().FindBySessionID(ctx, result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSucceeded, payment.Status)
}

func TestIntentSucceededDefersOrderToSessionChannel(t *testing.T) {
	svc, provider, store := newTestService(t)
	provider.intentAtCreate = true
	ctx := context.Background()

	result, err := svc.StartCheckout(ctx, proRequest())
	require.NoError(t, err)
	intentID := provider.sessions[result.SessionID].PaymentIntentID

	require.NoError(t, svc.HandleIntentSucceeded(ctx, intentID))

	payment, err := store.Payments().FindBySessionID(ctx, result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSucceeded, payment.Status)

	orders, err := store.Orders().List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, orders)

	// The next session-keyed reconcile backfills the missing order.
	receipt, err := svc.CompleteFromReturn(ctx, result.SessionID)
	require.NoError(t, err)
	assert.True(t, receipt.OrderCreated)
	assert.Equal(t, models.OrderStatusPaid, receipt.Order.Status)
}

func TestOrderNumbersAreSequentialWithinADay(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	today := time.Now().Format("20060102")

	numberPattern := regexp.MustCompile(`^SN-\d{8}-\d{4}$`)
	for i := 1; i <= 3; i++ {
		result, err := svc.StartCheckout(ctx, proRequest())
		require.NoError(t, err)
		receipt, err := svc.CompleteFromReturn(ctx, result.SessionID)
		require.NoError(t, err)
		assert.Regexp(t, numberPattern, receipt.Order.OrderNumber)
		assert.Equal(t, fmt.Sprintf("SN-%s-%04d", today, i), receipt.Order.OrderNumber)
	}
}

// failingSequenceOrders breaks the daily counter to exercise the fallback
// numbering path.
type failingSequenceOrders struct {
	storage.OrderStore
}

func (f *failingSequenceOrders) NextDailySequence(context.Context, string) (int64, error) {
	return 0, errors.New("counter unavailable")
}

func TestOrderNumberFallbackOnCounterFailure(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	provider := newFakeProvider()
	svc := NewService(provider, store.Payments(), &failingSequenceOrders{store.Orders()})
	ctx := context.Background()

	result, err := svc.StartCheckout(ctx, proRequest())
	require.NoError(t, err)
	receipt, err := svc.CompleteFromReturn(ctx, result.SessionID)
	require.NoError(t, err)

	// Unique but out of sequence beats blocking the order.
	assert.Regexp(t, regexp.MustCompile(`^SN-\d{15,}$`), receipt.Order.OrderNumber)
	assert.Equal(t, models.OrderStatusPaid, receipt.Order.Status)
}

func TestReconcileUnknownSession(t *testing.T) {
	svc, provider, _ := newTestService(t)
	ctx := context.Background()

	// The provider knows the session but this system never opened it.
	provider.sessions["cs_foreign"] = &ProviderSession{ID: "cs_foreign", PaymentIntentID: "pi_foreign"}

	_, err := svc.CompleteFromReturn(ctx, "cs_foreign")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestReturnWithProviderDownMutatesNothing(t *testing.T) {
	svc, provider, store := newTestService(t)
	ctx := context.Background()

	result, err := svc.StartCheckout(ctx, proRequest())
	require.NoError(t, err)

	provider.retrieveErr = errors.New("timeout")
	_, err = svc.CompleteFromReturn(ctx, result.SessionID)
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)

	payment, err := store.Payments().FindBySessionID(ctx, result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.Status,
		"a failed provider re-fetch must leave the payment for the webhook channel")
}

func TestMarkFailedForUnknownIntent(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.HandleIntentFailed(context.Background(), "pi_unknown")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestBillingAddressCopiedFromMetadata(t *testing.T) {
	svc, provider, _ := newTestService(t)
	ctx := context.Background()

	req := proRequest()
	req.BillingAddress = &models.BillingAddress{
		Street:  "1 Main St",
		City:    "Springfield",
		State:   "IL",
		ZipCode: "62701",
		Country: "US",
	}
	result, err := svc.StartCheckout(ctx, req)
	require.NoError(t, err)

	sess := provider.sessions[result.SessionID]
	receipt, err := svc.HandleSessionCompleted(ctx, sess.ID, sess.PaymentIntentID, sess.Metadata)
	require.NoError(t, err)
	require.NotNil(t, receipt.Order.BillingAddress)
	assert.Equal(t, "Springfield", receipt.Order.BillingAddress.City)
}

func TestMalformedBillingAddressIsNonFatal(t *testing.T) {
	svc, provider, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.StartCheckout(ctx, proRequest())
	require.NoError(t, err)

	sess := provider.sessions[result.SessionID]
	metadata := map[string]string{"billingAddress": "{not json"}
	receipt, err := svc.HandleSessionCompleted(ctx, sess.ID, sess.PaymentIntentID, metadata)
	require.NoError(t, err)
	assert.True(t, receipt.OrderCreated)
	assert.Nil(t, receipt.Order.BillingAddress)
}
