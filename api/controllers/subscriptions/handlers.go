package subscriptions

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/ramahallia/mailflow-backend/api/middleware"
	"github.com/ramahallia/mailflow-backend/api/responses"
	"github.com/ramahallia/mailflow-backend/api/validators"
	subsvc "github.com/ramahallia/mailflow-backend/internal/subscriptions"
	pkgerrors "github.com/ramahallia/mailflow-backend/pkg/errors"
	"github.com/ramahallia/mailflow-backend/pkg/logger"
)

// SubscriptionService describes the subscription actions used by the HTTP
// controllers.
type SubscriptionService interface {
	Cancel(ctx context.Context, userID uuid.UUID, input subsvc.CancelInput) (*subsvc.CancelResult, error)
	Reactivate(ctx context.Context, userID uuid.UUID, input subsvc.ReactivateInput) (*subsvc.ReactivateResult, error)
	UpdateQuantity(ctx context.Context, userID uuid.UUID, input subsvc.UpdateQuantityInput) (*subsvc.UpdateQuantityResult, error)
	ForceSync(ctx context.Context, userID uuid.UUID) (*subsvc.SyncResult, error)
}

func requireUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	return userID, nil
}

// Cancel schedules a subscription cancellation at period end, or releases
// one addon seat when the subscription carries more than one.
func Cancel(svc SubscriptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload subsvc.CancelInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Cancel(r.Context(), userID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Reactivate clears a pending cancellation on one of the caller's
// subscriptions.
func Reactivate(svc SubscriptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload subsvc.ReactivateInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Reactivate(r.Context(), userID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// UpdateQuantity sets the additional-account count on a subscription. An
// explicit zero removes the addon line item.
func UpdateQuantity(svc SubscriptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload subsvc.UpdateQuantityInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.UpdateQuantity(r.Context(), userID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Sync re-reads the caller's provider state and rewrites the local rows.
func Sync(svc SubscriptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ForceSync(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
