package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrStatusConflict means a conditional status update matched no row.
	ErrStatusConflict = errors.New("payment status changed concurrently")
)

// Repository contains all DB interactions needed by the settlement service.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetByAssignmentID(ctx context.Context, assignmentID uuid.UUID) (*Payment, error)

	// InsertOnce inserts the payment unless one already exists for the
	// assignment, in which case the existing record is returned. Settlement
	// stays idempotent under concurrent callers through the unique
	// constraint on assignment_id.
	InsertOnce(ctx context.Context, p Payment) (*Payment, error)

	// MarkPaid transitions pending|processing→completed and stamps
	// paid_to_doctor_at.
	MarkPaid(ctx context.Context, id uuid.UUID) (*Payment, error)

	// AdvanceStatus moves the status forward (pending→processing,
	// processing→failed, ...) with a compare-and-set.
	AdvanceStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Payment, error)
}
