package checkout

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/ramahallia/mailflow-backend/api/middleware"
	"github.com/ramahallia/mailflow-backend/api/responses"
	"github.com/ramahallia/mailflow-backend/api/validators"
	checkoutsvc "github.com/ramahallia/mailflow-backend/internal/checkout"
	pkgerrors "github.com/ramahallia/mailflow-backend/pkg/errors"
	"github.com/ramahallia/mailflow-backend/pkg/logger"
)

// CheckoutService describes the checkout methods used by the HTTP
// controllers.
type CheckoutService interface {
	CreateAddAccountSession(ctx context.Context, userID uuid.UUID, input checkoutsvc.CreateSessionInput) (*checkoutsvc.SessionResult, error)
	ListPrices(ctx context.Context) ([]checkoutsvc.PriceInfo, error)
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

// CreateSession opens a hosted checkout for one additional mailbox
// subscription.
func CreateSession(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutsvc.CreateSessionInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateAddAccountSession(r.Context(), userID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ListPrices returns the purchasable recurring prices. The endpoint is
// public so pricing can render before sign-in.
func ListPrices(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		prices, err := svc.ListPrices(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"prices": prices})
	}
}
