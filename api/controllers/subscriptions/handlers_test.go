package subscriptions

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/ramahallia/mailflow-backend/api/middleware"
	subsvc "github.com/ramahallia/mailflow-backend/internal/subscriptions"
	pkgerrors "github.com/ramahallia/mailflow-backend/pkg/errors"
	"github.com/ramahallia/mailflow-backend/pkg/logger"
)

type stubSubscriptionService struct {
	cancelInput   *subsvc.CancelInput
	cancelResult  *subsvc.CancelResult
	cancelErr     error
	reactivated   *subsvc.ReactivateInput
	quantityInput *subsvc.UpdateQuantityInput
	syncedFor     uuid.UUID
	syncResult    *subsvc.SyncResult
}

func (s *stubSubscriptionService) Cancel(ctx context.Context, userID uuid.UUID, input subsvc.CancelInput) (*subsvc.CancelResult, error) {
	s.cancelInput = &input
	if s.cancelErr != nil {
		return nil, s.cancelErr
	}
	if s.cancelResult != nil {
		return s.cancelResult, nil
	}
	return &subsvc.CancelResult{SubscriptionID: input.SubscriptionID, CancelAtPeriodEnd: true}, nil
}

func (s *stubSubscriptionService) Reactivate(ctx context.Context, userID uuid.UUID, input subsvc.ReactivateInput) (*subsvc.ReactivateResult, error) {
	s.reactivated = &input
	return &subsvc.ReactivateResult{SubscriptionID: input.SubscriptionID}, nil
}

func (s *stubSubscriptionService) UpdateQuantity(ctx context.Context, userID uuid.UUID, input subsvc.UpdateQuantityInput) (*subsvc.UpdateQuantityResult, error) {
	s.quantityInput = &input
	return &subsvc.UpdateQuantityResult{SubscriptionID: input.SubscriptionID, AdditionalAccounts: *input.AdditionalAccounts}, nil
}

func (s *stubSubscriptionService) ForceSync(ctx context.Context, userID uuid.UUID) (*subsvc.SyncResult, error) {
	s.syncedFor = userID
	if s.syncResult != nil {
		return s.syncResult, nil
	}
	return &subsvc.SyncResult{CustomerID: "cus_1", Synced: 2}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test"})
}

func authedRequest(method, target string, body []byte, userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func TestCancelRequiresUserContext(t *testing.T) {
	handler := Cancel(&stubSubscriptionService{}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/cancel", bytes.NewReader([]byte(`{}`)))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestCancelRejectsMissingSubscriptionID(t *testing.T) {
	service := &stubSubscriptionService{}
	handler := Cancel(service, testLogger())

	req := authedRequest(http.MethodPost, "/api/v1/subscriptions/cancel", []byte(`{}`), uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if service.cancelInput != nil {
		t.Fatal("service should not be invoked on invalid payload")
	}
}

func TestCancelSuccess(t *testing.T) {
	service := &stubSubscriptionService{}
	handler := Cancel(service, testLogger())

	configID := uuid.New()
	body, _ := json.Marshal(subsvc.CancelInput{SubscriptionID: "sub_1", EmailConfigurationID: &configID})
	req := authedRequest(http.MethodPost, "/api/v1/subscriptions/cancel", body, uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if service.cancelInput == nil || service.cancelInput.SubscriptionID != "sub_1" {
		t.Fatalf("unexpected input %+v", service.cancelInput)
	}
	if service.cancelInput.EmailConfigurationID == nil || *service.cancelInput.EmailConfigurationID != configID {
		t.Fatal("configuration id should pass through")
	}

	var envelope struct {
		Data subsvc.CancelResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !envelope.Data.CancelAtPeriodEnd {
		t.Fatal("expected cancel_at_period_end in response")
	}
}

func TestCancelMapsStateConflict(t *testing.T) {
	service := &stubSubscriptionService{
		cancelErr: pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is not cancellable"),
	}
	handler := Cancel(service, testLogger())

	body, _ := json.Marshal(subsvc.CancelInput{SubscriptionID: "sub_1"})
	req := authedRequest(http.MethodPost, "/api/v1/subscriptions/cancel", body, uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestReactivateSuccess(t *testing.T) {
	service := &stubSubscriptionService{}
	handler := Reactivate(service, testLogger())

	body, _ := json.Marshal(subsvc.ReactivateInput{SubscriptionID: "sub_9"})
	req := authedRequest(http.MethodPost, "/api/v1/subscriptions/reactivate", body, uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if service.reactivated == nil || service.reactivated.SubscriptionID != "sub_9" {
		t.Fatalf("unexpected input %+v", service.reactivated)
	}
}

func TestUpdateQuantityRequiresCount(t *testing.T) {
	service := &stubSubscriptionService{}
	handler := UpdateQuantity(service, testLogger())

	body := []byte(`{"subscription_id":"sub_1"}`)
	req := authedRequest(http.MethodPut, "/api/v1/subscriptions/quantity", body, uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestUpdateQuantityAcceptsZero(t *testing.T) {
	service := &stubSubscriptionService{}
	handler := UpdateQuantity(service, testLogger())

	body := []byte(`{"subscription_id":"sub_1","additional_accounts":0}`)
	req := authedRequest(http.MethodPut, "/api/v1/subscriptions/quantity", body, uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if service.quantityInput == nil || service.quantityInput.AdditionalAccounts == nil {
		t.Fatal("count should reach the service")
	}
	if *service.quantityInput.AdditionalAccounts != 0 {
		t.Fatalf("expected explicit zero, got %d", *service.quantityInput.AdditionalAccounts)
	}
}

func TestSyncReturnsCounts(t *testing.T) {
	service := &stubSubscriptionService{}
	handler := Sync(service, testLogger())

	userID := uuid.New()
	req := authedRequest(http.MethodPost, "/api/v1/subscriptions/sync", nil, userID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if service.syncedFor != userID {
		t.Fatal("sync should run for the authenticated user")
	}

	var envelope struct {
		Data subsvc.SyncResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Synced != 2 {
		t.Fatalf("unexpected sync count %d", envelope.Data.Synced)
	}
}
