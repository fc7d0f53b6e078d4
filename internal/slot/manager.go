package slot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/covermed/hospital-coverage-scheduling/internal/redis"
)

// Manager turns a doctor's declared free time into reservable units and
// hands out exclusive sub-slot claims.
type Manager struct {
	repo   Repository
	locker redisclient.Locker
}

func NewManager(repo Repository, locker redisclient.Locker) *Manager {
	return &Manager{
		repo:   repo,
		locker: locker,
	}
}

// PublishSlot creates a parent slot from a doctor's published free time.
// Rejects ranges overlapping any existing slot for that doctor on that date.
func (m *Manager) PublishSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, tr TimeRange, isManual bool) (*AvailabilitySlot, error) {
	if !tr.Valid() {
		return nil, ErrInvalidRange
	}

	created, err := m.repo.InsertParentSlot(ctx, doctorID, date.Truncate(24*time.Hour), tr, isManual)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ReserveSubSlot carves a booked sub-slot out of a parent slot. Two
// concurrent reservations for overlapping ranges under the same parent
// cannot both succeed: the carve runs under a per-parent lock and the
// insert itself is guarded against booked siblings.
func (m *Manager) ReserveSubSlot(ctx context.Context, parentID, hospitalID uuid.UUID, tr TimeRange) (*AvailabilitySlot, error) {
	if !tr.Valid() {
		return nil, ErrInvalidRange
	}

	parent, err := m.repo.GetSlotByID(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !parent.IsParent() {
		return nil, ErrSlotNotParent
	}
	if parent.Status == StatusBlocked {
		return nil, ErrSlotBlocked
	}
	if !parent.Range().Contains(tr) {
		return nil, ErrOutOfRange
	}

	var reserved *AvailabilitySlot

	err = m.locker.WithLock(ctx, lockKey(parentID), func(lockCtx context.Context) error {
		// A previously released sub-slot with the exact range is rebooked
		// instead of inserting a sibling.
		if existing, err := m.repo.RebookSubSlot(lockCtx, parentID, hospitalID, tr); err == nil {
			reserved = existing
			return nil
		} else if !errors.Is(err, ErrSlotNotFound) {
			return fmt.Errorf("rebook sub-slot: %w", err)
		}

		// Released leftovers intersecting the requested range make way for
		// the fresh reservation.
		if err := m.repo.DeleteReleasedOverlaps(lockCtx, parentID, tr); err != nil {
			return fmt.Errorf("clear released sub-slots: %w", err)
		}

		created, err := m.repo.InsertSubSlot(lockCtx, parent, hospitalID, tr)
		if err != nil {
			return err
		}

		reserved = created
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBusy
		}
		return nil, err
	}

	return reserved, nil
}

// ReleaseSubSlot returns a booked sub-slot to the available pool. Idempotent:
// releasing an already-available slot is a no-op.
func (m *Manager) ReleaseSubSlot(ctx context.Context, id uuid.UUID) error {
	changed, err := m.repo.ReleaseSlot(ctx, id)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	if changed {
		return nil
	}

	// Nothing flipped: either the slot does not exist, or it was already
	// released (or blocked, which release leaves alone).
	if _, err := m.repo.GetSlotByID(ctx, id); err != nil {
		return err
	}
	return nil
}

// GetSlot returns a slot by id.
func (m *Manager) GetSlot(ctx context.Context, id uuid.UUID) (*AvailabilitySlot, error) {
	return m.repo.GetSlotByID(ctx, id)
}

// ListBookedSubSlots returns the occupied sub-ranges of a parent slot,
// ordered by start time.
func (m *Manager) ListBookedSubSlots(ctx context.Context, parentID uuid.UUID) ([]AvailabilitySlot, error) {
	return m.repo.ListSubSlots(ctx, parentID, StatusBooked)
}

// AvailableRanges computes the free gaps of a parent slot after subtracting
// its booked sub-slots.
func (m *Manager) AvailableRanges(ctx context.Context, parentID uuid.UUID) ([]TimeRange, error) {
	parent, err := m.repo.GetSlotByID(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !parent.IsParent() {
		return nil, ErrSlotNotParent
	}

	booked, err := m.repo.ListSubSlots(ctx, parentID, StatusBooked)
	if err != nil {
		return nil, err
	}

	sort.Slice(booked, func(i, j int) bool { return booked[i].Start < booked[j].Start })

	var ranges []TimeRange
	cursor := parent.Start

	for _, sub := range booked {
		if cursor < sub.Start {
			ranges = append(ranges, TimeRange{Start: cursor, End: sub.Start})
		}
		if sub.End > cursor {
			cursor = sub.End
		}
	}

	if cursor < parent.End {
		ranges = append(ranges, TimeRange{Start: cursor, End: parent.End})
	}

	return ranges, nil
}

func lockKey(parentID uuid.UUID) string {
	return "slot:" + parentID.String()
}
