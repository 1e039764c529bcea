package subscriptions

import (
	"context"
	"testing"

	"github.com/ramahallia/mailflow-backend/pkg/config"
	"github.com/ramahallia/mailflow-backend/pkg/logger"
	pkgstripe "github.com/ramahallia/mailflow-backend/pkg/stripe"
	"github.com/rs/zerolog"
)

func TestNewStripeClientRequiresClient(t *testing.T) {
	if _, err := NewStripeClient(nil); err == nil {
		t.Fatal("expected error for nil stripe client")
	}
}

func TestNewStripeClientWrapsConfiguredClient(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled})
	client, err := pkgstripe.NewClient(context.Background(), config.StripeConfig{
		APIKey:        "sk_test_123",
		WebhookSecret: "whsec_test",
		Env:           "test",
	}, logg)
	if err != nil {
		t.Fatalf("unexpected error building stripe client: %v", err)
	}

	provider, err := NewStripeClient(client)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider == nil {
		t.Fatal("expected a provider client")
	}
}
