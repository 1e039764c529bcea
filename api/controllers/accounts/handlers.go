package accounts

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ramahallia/mailflow-backend/api/middleware"
	"github.com/ramahallia/mailflow-backend/api/responses"
	pkgerrors "github.com/ramahallia/mailflow-backend/pkg/errors"
	"github.com/ramahallia/mailflow-backend/pkg/logger"
)

// AccountService describes the account teardown methods used by the HTTP
// controllers.
type AccountService interface {
	DeleteEmailAccount(ctx context.Context, userID, configID uuid.UUID) error
	DeleteUserAccount(ctx context.Context, userID uuid.UUID) error
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

// DeleteEmailAccount removes one connected mailbox, winding down its
// provider subscription and credentials along the way.
func DeleteEmailAccount(svc AccountService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "account service unavailable"))
			return
		}

		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		raw := strings.TrimSpace(chi.URLParam(r, "configId"))
		if raw == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "configuration id is required"))
			return
		}
		configID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid configuration id"))
			return
		}

		if err := svc.DeleteEmailAccount(r.Context(), userID, configID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

// DeleteUserAccount winds down every subscription the caller holds and
// soft-deletes the account.
func DeleteUserAccount(svc AccountService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "account service unavailable"))
			return
		}

		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteUserAccount(r.Context(), userID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}
