package webhooks

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/ramahallia/mailflow-backend/api/responses"
	pkgerrors "github.com/ramahallia/mailflow-backend/pkg/errors"
	"github.com/ramahallia/mailflow-backend/pkg/logger"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

// eventTimeout bounds background event processing after the HTTP response
// has already been written.
const eventTimeout = 30 * time.Second

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type stripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type stripeClient interface {
	SigningSecret() string
}

// StripeWebhook verifies and acknowledges Stripe events. The endpoint
// answers 200 as soon as the signature checks out and the event is marked
// seen; the actual processing runs in the background. A failed event is
// unmarked so the next delivery attempt processes it again.
func StripeWebhook(svc StripeWebhookService, client stripeClient, guard stripeWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEvent(payload, sigHeader, client.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "verify signature"))
			return
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, map[string]bool{"received": true})
			return
		}

		// Ack before processing. Stripe only needs to know the event
		// landed; outcomes are reported through logs and the next
		// reconcile.
		responses.WriteSuccess(w, map[string]bool{"received": true})

		bgCtx := context.WithoutCancel(ctx)
		go processEvent(bgCtx, svc, guard, logg, &event)
	}
}

func processEvent(ctx context.Context, svc StripeWebhookService, guard stripeWebhookGuard, logg *logger.Logger, event *stripe.Event) {
	ctx, cancel := context.WithTimeout(ctx, eventTimeout)
	defer cancel()

	entry := logg.WithFields(ctx, map[string]any{
		"event_id":   event.ID,
		"event_type": string(event.Type),
	})

	if err := svc.HandleEvent(ctx, event); err != nil {
		if delErr := guard.Delete(ctx, event.ID); delErr != nil {
			logg.Error(entry, "unmark stripe event", delErr)
		}
		logg.Error(entry, "process stripe event", err)
		return
	}
	logg.Info(entry, "stripe event processed")
}
