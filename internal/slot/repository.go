package slot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSlotNotFound  = errors.New("slot not found")
	ErrSlotOverlap   = errors.New("slot overlaps an existing booking")
	ErrOutOfRange    = errors.New("sub-slot range not contained in parent slot")
	ErrInvalidRange  = errors.New("invalid time range")
	ErrSlotNotParent = errors.New("slot is not a parent slot")
	ErrSlotBlocked   = errors.New("slot is blocked")
	ErrSlotBusy      = errors.New("slot is currently being reserved, please retry")
)

// Repository contains all DB interactions needed by the slot manager.
// Every mutation is a single conditional statement so that concurrent
// callers cannot both succeed against the same range.
type Repository interface {
	GetSlotByID(ctx context.Context, id uuid.UUID) (*AvailabilitySlot, error)

	// InsertParentSlot inserts a doctor-published slot, guarded against any
	// overlapping slot for the same doctor and date. Returns ErrSlotOverlap
	// when the guard rejects the insert.
	InsertParentSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, r TimeRange, isManual bool) (*AvailabilitySlot, error)

	// RebookSubSlot flips a previously released sub-slot with the exact same
	// range back to booked. Returns ErrSlotNotFound when no matching
	// available sub-slot exists.
	RebookSubSlot(ctx context.Context, parentID, hospitalID uuid.UUID, r TimeRange) (*AvailabilitySlot, error)

	// DeleteReleasedOverlaps removes released (available) sub-slots of the
	// parent that intersect r, so a fresh reservation can take their place.
	// A sub-slot still bound to an active assignment is never removed;
	// terminal assignments keep their history through the ON DELETE SET NULL
	// reference.
	DeleteReleasedOverlaps(ctx context.Context, parentID uuid.UUID, r TimeRange) error

	// InsertSubSlot inserts a booked sub-slot, guarded against overlap with
	// any booked sibling. Returns ErrSlotOverlap when the guard rejects it.
	InsertSubSlot(ctx context.Context, parent *AvailabilitySlot, hospitalID uuid.UUID, r TimeRange) (*AvailabilitySlot, error)

	// ReleaseSlot flips a booked slot back to available. The returned bool
	// reports whether a row actually changed (false means it was already
	// released or is blocked).
	ReleaseSlot(ctx context.Context, id uuid.UUID) (bool, error)

	ListSubSlots(ctx context.Context, parentID uuid.UUID, status Status) ([]AvailabilitySlot, error)
}
