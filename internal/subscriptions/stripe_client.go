package subscriptions

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v84"
	checkoutsession "github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/invoice"
	"github.com/stripe/stripe-go/v84/price"
	"github.com/stripe/stripe-go/v84/subscription"
	"github.com/stripe/stripe-go/v84/subscriptionitem"

	pkgstripe "github.com/ramahallia/mailflow-backend/pkg/stripe"
)

// ProviderClient exposes the subset of Stripe operations the billing
// services rely on, so every service can be tested against a stub.
type ProviderClient interface {
	ListAllSubscriptions(ctx context.Context, stripeCustomerID string) ([]*stripe.Subscription, error)
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	CancelSubscription(ctx context.Context, id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error)
	CreateSubscriptionItem(ctx context.Context, params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error)
	UpdateSubscriptionItem(ctx context.Context, id string, params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error)
	DeleteSubscriptionItem(ctx context.Context, id string, params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error)
	ListPaidInvoices(ctx context.Context, stripeCustomerID string) ([]*stripe.Invoice, error)
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	ListPrices(ctx context.Context, params *stripe.PriceListParams) ([]*stripe.Price, error)
}

type stripeClientWrapper struct{}

// NewStripeClient wraps the shared Stripe client.
func NewStripeClient(api *pkgstripe.Client) (ProviderClient, error) {
	if api == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	return &stripeClientWrapper{}, nil
}

func (w *stripeClientWrapper) ListAllSubscriptions(ctx context.Context, stripeCustomerID string) ([]*stripe.Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(stripeCustomerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx
	params.AddExpand("data.default_payment_method")

	var subs []*stripe.Subscription
	iter := subscription.List(params)
	for iter.Next() {
		subs = append(subs, iter.Subscription())
	}
	return subs, iter.Err()
}

func (w *stripeClientWrapper) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("default_payment_method")
	return subscription.Get(id, params)
}

func (w *stripeClientWrapper) UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	if params != nil {
		params.Context = ctx
	}
	return subscription.Update(id, params)
}

func (w *stripeClientWrapper) CancelSubscription(ctx context.Context, id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error) {
	if params != nil {
		params.Context = ctx
	}
	return subscription.Cancel(id, params)
}

func (w *stripeClientWrapper) CreateSubscriptionItem(ctx context.Context, params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error) {
	if params != nil {
		params.Context = ctx
	}
	return subscriptionitem.New(params)
}

func (w *stripeClientWrapper) UpdateSubscriptionItem(ctx context.Context, id string, params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error) {
	if params != nil {
		params.Context = ctx
	}
	return subscriptionitem.Update(id, params)
}

func (w *stripeClientWrapper) DeleteSubscriptionItem(ctx context.Context, id string, params *stripe.SubscriptionItemParams) (*stripe.SubscriptionItem, error) {
	if params != nil {
		params.Context = ctx
	}
	return subscriptionitem.Del(id, params)
}

func (w *stripeClientWrapper) ListPaidInvoices(ctx context.Context, stripeCustomerID string) ([]*stripe.Invoice, error) {
	params := &stripe.InvoiceListParams{
		Customer: stripe.String(stripeCustomerID),
		Status:   stripe.String(string(stripe.InvoiceStatusPaid)),
	}
	params.Context = ctx

	var invoices []*stripe.Invoice
	iter := invoice.List(params)
	for iter.Next() {
		invoices = append(invoices, iter.Invoice())
	}
	return invoices, iter.Err()
}

func (w *stripeClientWrapper) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if params != nil {
		params.Context = ctx
	}
	return checkoutsession.New(params)
}

func (w *stripeClientWrapper) ListPrices(ctx context.Context, params *stripe.PriceListParams) ([]*stripe.Price, error) {
	if params == nil {
		params = &stripe.PriceListParams{}
	}
	params.Context = ctx

	var prices []*stripe.Price
	iter := price.List(params)
	for iter.Next() {
		prices = append(prices, iter.Price())
	}
	return prices, iter.Err()
}
