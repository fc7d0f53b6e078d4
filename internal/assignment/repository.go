package assignment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrStatusConflict means a conditional status update matched no row:
	// another actor transitioned the assignment first.
	ErrStatusConflict = errors.New("assignment status changed concurrently")

	// ErrSlotTaken means the sub-slot is already bound to an active
	// (pending or accepted) assignment.
	ErrSlotTaken = errors.New("sub-slot already bound to an active assignment")
)

// NewAssignment holds the inputs for creating a pending assignment.
type NewAssignment struct {
	HospitalID      uuid.UUID
	DoctorID        uuid.UUID
	PatientID       uuid.UUID
	SlotID          uuid.UUID
	Priority        Priority
	ExpiresAt       time.Time
	ConsultationFee *decimal.Decimal
}

// Repository contains all DB interactions needed by the state machine.
// Every Mark* method is a single compare-and-set on (id, expected status);
// a miss surfaces as ErrStatusConflict so exactly one of several racing
// transitions wins.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Assignment, error)

	// CreatePending inserts a pending assignment, guarded so that at most
	// one active assignment may reference the sub-slot. Returns ErrSlotTaken
	// when the guard rejects the insert.
	CreatePending(ctx context.Context, in NewAssignment) (*Assignment, error)

	// MarkAccepted transitions pending→accepted, but only while the
	// deadline has not passed.
	MarkAccepted(ctx context.Context, id uuid.UUID) (*Assignment, error)

	MarkDeclined(ctx context.Context, id uuid.UUID, reason *string) (*Assignment, error)
	MarkCancelled(ctx context.Context, id uuid.UUID, from Status, cancelledBy string, reason *string) (*Assignment, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, notes *string) (*Assignment, error)

	// MarkExpired transitions pending→expired, but only once the deadline
	// has passed.
	MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) (*Assignment, error)

	// FindExpiredPending returns assignments the sweeper should expire.
	FindExpiredPending(ctx context.Context, now time.Time) ([]Assignment, error)
}
