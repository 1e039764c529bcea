package stripewebhook

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v84"

	"github.com/ramahallia/mailflow-backend/pkg/db/models"
	pkgerrors "github.com/ramahallia/mailflow-backend/pkg/errors"
	"github.com/ramahallia/mailflow-backend/pkg/logger"
)

type stubWebhookRepo struct {
	customer *models.Customer
	invoices []models.Invoice
	orders   []models.Order
}

func (s *stubWebhookRepo) FindCustomerByStripeID(ctx context.Context, stripeCustomerID string) (*models.Customer, error) {
	return s.customer, nil
}

func (s *stubWebhookRepo) UpsertInvoice(ctx context.Context, invoice *models.Invoice) error {
	s.invoices = append(s.invoices, *invoice)
	return nil
}

func (s *stubWebhookRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	s.orders = append(s.orders, *order)
	return nil
}

type stubWebhookReconciler struct {
	customerID string
	calls      int
}

func (s *stubWebhookReconciler) Reconcile(ctx context.Context, stripeCustomerID string) (int, error) {
	s.customerID = stripeCustomerID
	s.calls++
	return 1, nil
}

func newWebhookService(t *testing.T, repo *stubWebhookRepo, rec *stubWebhookReconciler) *Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	svc, err := NewService(ServiceParams{Repo: repo, Reconciler: rec, Logger: logg})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc
}

func eventWithObject(t *testing.T, eventType stripe.EventType, payload any, object map[string]any) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &stripe.Event{
		ID:   "evt_1",
		Type: eventType,
		Data: &stripe.EventData{Raw: raw, Object: object},
	}
}

func TestHandleEventIgnoresPayloadWithoutCustomer(t *testing.T) {
	rec := &stubWebhookReconciler{}
	svc := newWebhookService(t, &stubWebhookRepo{}, rec)

	event := eventWithObject(t, "product.created", map[string]string{"id": "prod_1"}, map[string]any{"id": "prod_1"})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("expected event to be ignored, got %v", err)
	}
	if rec.calls != 0 {
		t.Fatalf("reconcile must not run for non-billing events")
	}
}

func TestHandleEventSubscriptionLifecycleReconciles(t *testing.T) {
	for _, eventType := range []stripe.EventType{
		stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted,
		stripe.EventTypeInvoicePaymentFailed,
	} {
		rec := &stubWebhookReconciler{}
		svc := newWebhookService(t, &stubWebhookRepo{}, rec)

		event := eventWithObject(t, eventType,
			map[string]string{"id": "sub_A", "customer": "cus_1"},
			map[string]any{"id": "sub_A", "customer": "cus_1"})
		if err := svc.HandleEvent(context.Background(), event); err != nil {
			t.Fatalf("%s: handle event: %v", eventType, err)
		}
		if rec.calls != 1 || rec.customerID != "cus_1" {
			t.Fatalf("%s: expected one reconcile for cus_1", eventType)
		}
	}
}

func TestHandleEventInvoicePaidPersistsInvoiceThenReconciles(t *testing.T) {
	customer := &models.Customer{UserID: uuid.New(), StripeCustomerID: "cus_1"}
	repo := &stubWebhookRepo{customer: customer}
	rec := &stubWebhookReconciler{}
	svc := newWebhookService(t, repo, rec)

	invoicePayload := map[string]any{
		"id":          "in_1",
		"customer":    "cus_1",
		"status":      "paid",
		"amount_paid": 4900,
		"amount_due":  4900,
		"currency":    "usd",
	}
	event := eventWithObject(t, stripe.EventTypeInvoicePaymentSucceeded, invoicePayload, invoicePayload)

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(repo.invoices) != 1 {
		t.Fatalf("expected one invoice persisted, got %d", len(repo.invoices))
	}
	row := repo.invoices[0]
	if row.InvoiceID != "in_1" || row.UserID != customer.UserID || row.AmountPaid != 4900 {
		t.Fatalf("unexpected invoice row %+v", row)
	}
	if rec.calls != 1 {
		t.Fatalf("expected reconcile after invoice persistence")
	}
}

func TestHandleEventCheckoutSubscriptionModeReconciles(t *testing.T) {
	rec := &stubWebhookReconciler{}
	svc := newWebhookService(t, &stubWebhookRepo{}, rec)

	sessionPayload := map[string]any{
		"id":       "cs_1",
		"customer": "cus_1",
		"mode":     "subscription",
	}
	event := eventWithObject(t, stripe.EventTypeCheckoutSessionCompleted, sessionPayload, sessionPayload)

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if rec.calls != 1 || rec.customerID != "cus_1" {
		t.Fatalf("expected reconcile for cus_1")
	}
}

func TestHandleEventCheckoutPaymentModeCreatesOrder(t *testing.T) {
	customer := &models.Customer{UserID: uuid.New(), StripeCustomerID: "cus_1"}
	repo := &stubWebhookRepo{customer: customer}
	rec := &stubWebhookReconciler{}
	svc := newWebhookService(t, repo, rec)

	sessionPayload := map[string]any{
		"id":             "cs_1",
		"customer":       "cus_1",
		"mode":           "payment",
		"payment_status": "paid",
		"amount_total":   1500,
		"currency":       "usd",
	}
	event := eventWithObject(t, stripe.EventTypeCheckoutSessionCompleted, sessionPayload, sessionPayload)

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(repo.orders) != 1 {
		t.Fatalf("expected one order, got %d", len(repo.orders))
	}
	order := repo.orders[0]
	if order.CheckoutSessionID != "cs_1" || order.UserID != customer.UserID || order.AmountTotal != 1500 {
		t.Fatalf("unexpected order %+v", order)
	}
	if rec.calls != 0 {
		t.Fatalf("one-time payments must not reconcile")
	}
}

func TestHandleEventCheckoutUnpaidPaymentIgnored(t *testing.T) {
	repo := &stubWebhookRepo{customer: &models.Customer{UserID: uuid.New()}}
	svc := newWebhookService(t, repo, &stubWebhookReconciler{})

	sessionPayload := map[string]any{
		"id":             "cs_1",
		"customer":       "cus_1",
		"mode":           "payment",
		"payment_status": "unpaid",
	}
	event := eventWithObject(t, stripe.EventTypeCheckoutSessionCompleted, sessionPayload, sessionPayload)

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(repo.orders) != 0 {
		t.Fatalf("unpaid session must not create an order")
	}
}

func TestHandleEventInvoiceUnknownCustomer(t *testing.T) {
	svc := newWebhookService(t, &stubWebhookRepo{}, &stubWebhookReconciler{})

	invoicePayload := map[string]any{"id": "in_1", "customer": "cus_ghost"}
	event := eventWithObject(t, stripe.EventTypeInvoicePaymentSucceeded, invoicePayload, invoicePayload)

	err := svc.HandleEvent(context.Background(), event)
	coded := pkgerrors.As(err)
	if coded == nil || coded.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
