package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	EventAssignmentCreated   = "assignment_created"
	EventAssignmentAccepted  = "assignment_accepted"
	EventAssignmentDeclined  = "assignment_declined"
	EventAssignmentCancelled = "assignment_cancelled"
	EventAssignmentCompleted = "assignment_completed"
	EventAssignmentExpired   = "assignment_expired"
	EventPaymentSettled      = "payment_settled"
	EventPaymentPaid         = "payment_paid"
	EventPaymentFailed       = "payment_failed"
)

type Event struct {
	Type         string
	AssignmentID uuid.UUID
	RecipientID  uuid.UUID
}

// Sink receives one event per state transition. Delivery is fire-and-forget:
// the core never blocks on or retries it.
type Sink interface {
	Notify(ctx context.Context, ev Event)
}

// LogSink logs events instead of delivering them. Stands in for the push
// delivery service, which lives outside the core.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) Notify(_ context.Context, ev Event) {
	s.Log.Info().
		Str("type", ev.Type).
		Str("assignment_id", ev.AssignmentID.String()).
		Str("recipient_id", ev.RecipientID.String()).
		Msg("notify")
}
