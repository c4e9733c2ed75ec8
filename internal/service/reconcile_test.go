package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vendora-market/orders-service/internal/clients"
	"github.com/vendora-market/orders-service/internal/errs"
	"github.com/vendora-market/orders-service/internal/events"
	"github.com/vendora-market/orders-service/internal/metrics"
	"github.com/vendora-market/orders-service/internal/models"
)

type reconcileFixture struct {
	svc       *ReconciliationService
	repo      *fakeOrderRepo
	gateway   *fakeGateway
	publisher *fakePublisher
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()

	repo := newFakeOrderRepo(map[string]int{"p1": 10})
	gateway := &fakeGateway{}
	publisher := &fakePublisher{}

	svc := NewReconciliationService(
		repo,
		noopCache{},
		gateway,
		publisher,
		metrics.New(prometheus.NewRegistry()),
		zap.NewNop(),
	)
	return &reconcileFixture{svc: svc, repo: repo, gateway: gateway, publisher: publisher}
}

func (fx *reconcileFixture) seedPendingOrder(t *testing.T) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:            "ord_recon",
		BuyerID:       "buyer-1",
		Items:         []models.OrderItem{{ProductID: "p1", UnitPrice: 1000, Quantity: 2}},
		PaymentMethod: models.PaymentMethodCard,
		ItemsTotal:    2000,
		ShippingTotal: 1500,
		TaxTotal:      360,
		GrandTotal:    3860,
		Currency:      "RWF",
		TxRef:         "vnd-recon-1",
		Status:        models.OrderStatusPending,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	require.NoError(t, fx.repo.Create(context.Background(), order))
	return order
}

func successfulVerify(order *models.Order) func(string) (*clients.VerifyResult, error) {
	return func(transactionID string) (*clients.VerifyResult, error) {
		return &clients.VerifyResult{
			ProviderTransactionID: transactionID,
			Status:                clients.VerifiedStatusSuccessful,
			TxRef:                 order.TxRef,
			Amount:                order.GrandTotal,
			Currency:              order.Currency,
			PayerEmail:            "buyer@example.com",
		}, nil
	}
}

func TestReconcileSuccessfulPayment(t *testing.T) {
	fx := newReconcileFixture(t)
	order := fx.seedPendingOrder(t)
	fx.gateway.verify = successfulVerify(order)

	outcome, settled, err := fx.svc.Reconcile(context.Background(), "txn-1", order.TxRef)
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, outcome)
	assert.Equal(t, models.OrderStatusPaid, settled.Status)
	require.NotNil(t, settled.PaymentDetails)
	assert.Equal(t, "txn-1", settled.PaymentDetails.ProviderTransactionID)
	assert.Equal(t, "buyer@example.com", settled.PaymentDetails.PayerEmail)

	// Stock stays reserved: the buyer paid for it.
	assert.Equal(t, 8, fx.repo.stockOf("p1"))
	assert.Equal(t, []events.EventType{events.EventTypeOrderPaid}, fx.publisher.published())
}

func TestReconcileFailedPaymentReleasesStock(t *testing.T) {
	fx := newReconcileFixture(t)
	order := fx.seedPendingOrder(t)
	fx.gateway.verify = func(transactionID string) (*clients.VerifyResult, error) {
		return &clients.VerifyResult{
			ProviderTransactionID: transactionID,
			Status:                "failed",
			TxRef:                 order.TxRef,
		}, nil
	}

	outcome, settled, err := fx.svc.Reconcile(context.Background(), "txn-1", order.TxRef)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, models.OrderStatusFailed, settled.Status)
	assert.Equal(t, 10, fx.repo.stockOf("p1"))
	assert.Equal(t, []events.EventType{events.EventTypeOrderFailed}, fx.publisher.published())
}

func TestReconcileReplayIsIdempotent(t *testing.T) {
	fx := newReconcileFixture(t)
	order := fx.seedPendingOrder(t)
	fx.gateway.verify = successfulVerify(order)

	outcome, first, err := fx.svc.Reconcile(context.Background(), "txn-1", order.TxRef)
	require.NoError(t, err)
	require.Equal(t, OutcomePaid, outcome)

	// The provider redelivers the same callback.
	outcome, second, err := fx.svc.Reconcile(context.Background(), "txn-1", order.TxRef)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplay, outcome)
	assert.Equal(t, models.OrderStatusPaid, second.Status)
	assert.Equal(t, first.PaymentDetails.ProviderTransactionID, second.PaymentDetails.ProviderTransactionID)

	// Replays skip verification entirely and publish nothing new.
	assert.Equal(t, 1, fx.gateway.verifyCalls)
	assert.Equal(t, []events.EventType{events.EventTypeOrderPaid}, fx.publisher.published())
	assert.Equal(t, 8, fx.repo.stockOf("p1"))
}

func TestReconcileFailedReplayReleasesStockOnce(t *testing.T) {
	fx := newReconcileFixture(t)
	order := fx.seedPendingOrder(t)
	fx.gateway.verify = func(transactionID string) (*clients.VerifyResult, error) {
		return &clients.VerifyResult{Status: "failed", TxRef: order.TxRef}, nil
	}

	for i := 0; i < 3; i++ {
		_, _, err := fx.svc.Reconcile(context.Background(), "txn-1", order.TxRef)
		require.NoError(t, err)
	}

	assert.Equal(t, 10, fx.repo.stockOf("p1"))
	assert.Equal(t, []events.EventType{events.EventTypeOrderFailed}, fx.publisher.published())
}

func TestReconcileConcurrentCallbacksSettleOnce(t *testing.T) {
	fx := newReconcileFixture(t)
	order := fx.seedPendingOrder(t)

	// Hold both callbacks inside verification until each has passed the
	// early replay check, forcing them to race on the conditional update.
	var barrier sync.WaitGroup
	barrier.Add(2)
	verify := successfulVerify(order)
	fx.gateway.verify = func(transactionID string) (*clients.VerifyResult, error) {
		barrier.Done()
		barrier.Wait()
		return verify(transactionID)
	}

	outcomes := make([]Outcome, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, _, err := fx.svc.Reconcile(context.Background(), "txn-1", order.TxRef)
			require.NoError(t, err)
			outcomes[i] = outcome
		}(i)
	}
	wg.Wait()

	paidCount, replayCount := 0, 0
	for _, outcome := range outcomes {
		switch outcome {
		case OutcomePaid:
			paidCount++
		case OutcomeReplay:
			replayCount++
		}
	}
	assert.Equal(t, 1, paidCount, "exactly one callback performs the transition")
	assert.Equal(t, 1, replayCount, "the race loser no-ops")

	// The loser must not re-publish the lifecycle event.
	assert.Equal(t, []events.EventType{events.EventTypeOrderPaid}, fx.publisher.published())

	settled, err := fx.repo.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, settled.Status)
}

func TestMarkPaidOnCancelledOrderIsNoOp(t *testing.T) {
	fx := newReconcileFixture(t)
	order := fx.seedPendingOrder(t)

	_, err := fx.repo.Cancel(context.Background(), order.ID)
	require.NoError(t, err)

	got, transitioned, err := fx.repo.MarkPaid(context.Background(), order.ID,
		models.PaymentDetails{ProviderTransactionID: "txn-late"})
	require.NoError(t, err)
	assert.False(t, transitioned)
	assert.Equal(t, models.OrderStatusCancelled, got.Status)
	assert.Nil(t, got.PaymentDetails)

	// A late callback on the cancelled order reports a replay.
	fx.gateway.verify = successfulVerify(order)
	outcome, _, err := fx.svc.Reconcile(context.Background(), "txn-late", order.TxRef)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplay, outcome)
	assert.Empty(t, fx.publisher.published())
}

func TestReconcileUnknownTxRef(t *testing.T) {
	fx := newReconcileFixture(t)

	outcome, order, err := fx.svc.Reconcile(context.Background(), "txn-1", "vnd-does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknown, outcome)
	assert.Nil(t, order)
	assert.Zero(t, fx.gateway.verifyCalls)
}

func TestReconcileTxRefMismatchIgnored(t *testing.T) {
	fx := newReconcileFixture(t)
	order := fx.seedPendingOrder(t)
	fx.gateway.verify = func(transactionID string) (*clients.VerifyResult, error) {
		return &clients.VerifyResult{
			Status: clients.VerifiedStatusSuccessful,
			TxRef:  "vnd-some-other-order",
			Amount: order.GrandTotal,
		}, nil
	}

	outcome, got, err := fx.svc.Reconcile(context.Background(), "txn-1", order.TxRef)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknown, outcome)
	assert.Equal(t, models.OrderStatusPending, got.Status)
	assert.Empty(t, fx.publisher.published())
}

func TestReconcileVerificationOutageLeavesOrderPending(t *testing.T) {
	fx := newReconcileFixture(t)
	order := fx.seedPendingOrder(t)
	fx.gateway.verify = func(string) (*clients.VerifyResult, error) {
		return nil, &errs.VerificationError{Err: errors.New("connection refused")}
	}

	outcome, got, err := fx.svc.Reconcile(context.Background(), "txn-1", order.TxRef)
	var vErr *errs.VerificationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, OutcomeTransient, outcome)
	assert.Equal(t, models.OrderStatusPending, got.Status)
	assert.Equal(t, 8, fx.repo.stockOf("p1"))

	// Once the provider recovers, the same callback settles the order.
	fx.gateway.verify = successfulVerify(order)
	outcome, settled, err := fx.svc.Reconcile(context.Background(), "txn-1", order.TxRef)
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, outcome)
	assert.Equal(t, models.OrderStatusPaid, settled.Status)
}

func TestReconcileShortPaymentTreatedAsFailed(t *testing.T) {
	fx := newReconcileFixture(t)
	order := fx.seedPendingOrder(t)
	fx.gateway.verify = func(transactionID string) (*clients.VerifyResult, error) {
		return &clients.VerifyResult{
			Status:   clients.VerifiedStatusSuccessful,
			TxRef:    order.TxRef,
			Amount:   order.GrandTotal - 1,
			Currency: order.Currency,
		}, nil
	}

	outcome, settled, err := fx.svc.Reconcile(context.Background(), "txn-1", order.TxRef)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, models.OrderStatusFailed, settled.Status)
	assert.Equal(t, 10, fx.repo.stockOf("p1"))
}

func TestReconcileCurrencyMismatchTreatedAsFailed(t *testing.T) {
	fx := newReconcileFixture(t)
	order := fx.seedPendingOrder(t)
	fx.gateway.verify = func(transactionID string) (*clients.VerifyResult, error) {
		return &clients.VerifyResult{
			Status:   clients.VerifiedStatusSuccessful,
			TxRef:    order.TxRef,
			Amount:   order.GrandTotal,
			Currency: "USD",
		}, nil
	}

	outcome, _, err := fx.svc.Reconcile(context.Background(), "txn-1", order.TxRef)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
}

func TestReaperCancelsStaleOrders(t *testing.T) {
	repo := newFakeOrderRepo(map[string]int{"p1": 10})
	publisher := &fakePublisher{}
	reaper := NewReaper(
		repo,
		noopCache{},
		publisher,
		metrics.New(prometheus.NewRegistry()),
		30*time.Minute,
		time.Minute,
		zap.NewNop(),
	)

	stale := &models.Order{
		ID:            "ord_stale",
		BuyerID:       "buyer-1",
		Items:         []models.OrderItem{{ProductID: "p1", Quantity: 2}},
		PaymentMethod: models.PaymentMethodCard,
		TxRef:         "vnd-stale",
		Status:        models.OrderStatusPending,
		CreatedAt:     time.Now().Add(-time.Hour),
	}
	fresh := &models.Order{
		ID:            "ord_fresh",
		BuyerID:       "buyer-1",
		Items:         []models.OrderItem{{ProductID: "p1", Quantity: 1}},
		PaymentMethod: models.PaymentMethodCard,
		TxRef:         "vnd-fresh",
		Status:        models.OrderStatusPending,
		CreatedAt:     time.Now(),
	}
	cod := &models.Order{
		ID:            "ord_cod",
		BuyerID:       "buyer-1",
		Items:         []models.OrderItem{{ProductID: "p1", Quantity: 1}},
		PaymentMethod: models.PaymentMethodCashOnDelivery,
		TxRef:         "vnd-cod",
		Status:        models.OrderStatusPending,
		CreatedAt:     time.Now().Add(-time.Hour),
	}
	for _, o := range []*models.Order{stale, fresh, cod} {
		require.NoError(t, repo.Create(context.Background(), o))
	}

	require.NoError(t, reaper.Sweep(context.Background()))

	got, err := repo.GetByID(context.Background(), "ord_stale")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, got.Status)

	for _, id := range []string{"ord_fresh", "ord_cod"} {
		got, err := repo.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusPending, got.Status, id)
	}

	// Only the stale order's reservation came back.
	assert.Equal(t, 8, repo.stockOf("p1"))
	assert.Equal(t, []events.EventType{events.EventTypeOrderCancelled}, publisher.published())
}
