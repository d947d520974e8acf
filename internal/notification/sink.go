package notification

import (
	"context"

	"github.com/stackbill/stackbill/internal/logger"
)

// Kind identifies the notice being dispatched
type Kind string

const (
	KindInvoiceCreated Kind = "invoice_created"
	// KindInvoiceDeliveryQueued re-announces a pending delivery after a
	// proforma promotion so it goes out under the final number
	KindInvoiceDeliveryQueued Kind = "invoice_delivery_queued"

	KindServiceSuspended    Kind = "service_suspended"
	KindServiceUnsuspended  Kind = "service_unsuspended"
	KindServiceCanceled     Kind = "service_canceled"
	KindServiceScheduledCxl Kind = "service_cancellation_scheduled"
)

// Notice is a fire-and-forget message for a client
type Notice struct {
	Kind     Kind
	ClientID string
	Data     map[string]string
}

// Sink dispatches notices. Failures must never roll back billing state, so
// callers log and continue on error.
type Sink interface {
	Dispatch(ctx context.Context, notice Notice) error
}

// LoggingSink records notices to the log instead of delivering them.
// Deployments plug in real mail/messenger sinks.
type LoggingSink struct {
	Logger *logger.Logger
}

func (s *LoggingSink) Dispatch(_ context.Context, notice Notice) error {
	s.Logger.Infow("notice dispatched",
		"kind", notice.Kind,
		"client_id", notice.ClientID,
	)
	return nil
}
