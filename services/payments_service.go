package services

import (
	"cmipay/entity"
	"context"
)

// Payments is a provider-specific payment integration. The server resolves
// implementations by provider code from the request path, so other gateways
// can be registered next to CMI without touching the handlers.
type Payments interface {
	Code() string
	SupportsCurrency(currency string) bool

	CreateTransaction(ctx context.Context, draft *entity.Transaction) (*entity.Transaction, error)
	BuildRedirect(ctx context.Context, reference string) (*entity.PaymentRequest, error)

	HandleReturn(ctx context.Context, payload entity.CallbackPayload) error
	HandleWebhook(ctx context.Context, payload entity.CallbackPayload) string
}
