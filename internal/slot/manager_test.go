package slot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo mirrors the conditional-statement semantics of the Postgres
// repository in memory, including the assignment references that gate
// sub-slot deletion.
type fakeRepo struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*AvailabilitySlot

	// activeRefs marks slots referenced by a pending or accepted
	// assignment; DeleteReleasedOverlaps must leave those in place.
	activeRefs map[uuid.UUID]bool
	// terminalRefs marks slots referenced only by terminal assignments;
	// deleting those nulls the reference (ON DELETE SET NULL) and is
	// recorded in nulledRefs.
	terminalRefs map[uuid.UUID]bool
	nulledRefs   []uuid.UUID
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		slots:        make(map[uuid.UUID]*AvailabilitySlot),
		activeRefs:   make(map[uuid.UUID]bool),
		terminalRefs: make(map[uuid.UUID]bool),
	}
}

func (f *fakeRepo) GetSlotByID(_ context.Context, id uuid.UUID) (*AvailabilitySlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeRepo) InsertParentSlot(_ context.Context, doctorID uuid.UUID, date time.Time, r TimeRange, isManual bool) (*AvailabilitySlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.slots {
		if s.DoctorID == doctorID && s.SlotDate.Equal(date) && s.Range().Overlaps(r) {
			return nil, ErrSlotOverlap
		}
	}
	created := &AvailabilitySlot{
		ID:       uuid.New(),
		DoctorID: doctorID,
		SlotDate: date,
		Start:    r.Start,
		End:      r.End,
		Status:   StatusAvailable,
		IsManual: isManual,
	}
	f.slots[created.ID] = created
	cp := *created
	return &cp, nil
}

func (f *fakeRepo) RebookSubSlot(_ context.Context, parentID, hospitalID uuid.UUID, r TimeRange) (*AvailabilitySlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.slots {
		if s.ParentSlotID != nil && *s.ParentSlotID == parentID &&
			s.Status == StatusAvailable && s.Start == r.Start && s.End == r.End {
			s.Status = StatusBooked
			s.BookedByHospitalID = &hospitalID
			now := time.Now()
			s.BookedAt = &now
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrSlotNotFound
}

func (f *fakeRepo) DeleteReleasedOverlaps(_ context.Context, parentID uuid.UUID, r TimeRange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.slots {
		if s.ParentSlotID != nil && *s.ParentSlotID == parentID &&
			s.Status == StatusAvailable && s.Range().Overlaps(r) {
			if f.activeRefs[id] {
				continue
			}
			if f.terminalRefs[id] {
				f.nulledRefs = append(f.nulledRefs, id)
			}
			delete(f.slots, id)
		}
	}
	return nil
}

func (f *fakeRepo) InsertSubSlot(_ context.Context, parent *AvailabilitySlot, hospitalID uuid.UUID, r TimeRange) (*AvailabilitySlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.slots {
		if s.ParentSlotID != nil && *s.ParentSlotID == parent.ID &&
			s.Status == StatusBooked && s.Range().Overlaps(r) {
			return nil, ErrSlotOverlap
		}
	}
	parentID := parent.ID
	now := time.Now()
	created := &AvailabilitySlot{
		ID:                 uuid.New(),
		DoctorID:           parent.DoctorID,
		SlotDate:           parent.SlotDate,
		Start:              r.Start,
		End:                r.End,
		Status:             StatusBooked,
		ParentSlotID:       &parentID,
		BookedByHospitalID: &hospitalID,
		BookedAt:           &now,
	}
	f.slots[created.ID] = created
	cp := *created
	return &cp, nil
}

func (f *fakeRepo) ReleaseSlot(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[id]
	if !ok || s.Status != StatusBooked {
		return false, nil
	}
	s.Status = StatusAvailable
	s.BookedByHospitalID = nil
	s.BookedAt = nil
	return true, nil
}

func (f *fakeRepo) ListSubSlots(_ context.Context, parentID uuid.UUID, status Status) ([]AvailabilitySlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []AvailabilitySlot
	for _, s := range f.slots {
		if s.ParentSlotID != nil && *s.ParentSlotID == parentID && s.Status == status {
			out = append(out, *s)
		}
	}
	return out, nil
}

// passLocker runs the critical section inline.
type passLocker struct{}

func (passLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestManager(t *testing.T) (*Manager, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	return NewManager(repo, passLocker{}), repo
}

func publishParent(t *testing.T, m *Manager, r TimeRange) *AvailabilitySlot {
	t.Helper()
	parent, err := m.PublishSlot(context.Background(), uuid.New(), time.Now().UTC(), r, false)
	require.NoError(t, err)
	return parent
}

func TestPublishSlotRejectsInvalidRange(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.PublishSlot(context.Background(), uuid.New(), time.Now(), TimeRange{Start: 12 * 60, End: 9 * 60}, false)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestPublishSlotRejectsOverlapSameDoctorSameDate(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	doctorID := uuid.New()
	date := time.Now().UTC().Truncate(24 * time.Hour)

	_, err := m.PublishSlot(ctx, doctorID, date, TimeRange{Start: 9 * 60, End: 12 * 60}, false)
	require.NoError(t, err)

	_, err = m.PublishSlot(ctx, doctorID, date, TimeRange{Start: 11 * 60, End: 14 * 60}, false)
	assert.ErrorIs(t, err, ErrSlotOverlap)

	// Adjacent range is fine.
	_, err = m.PublishSlot(ctx, doctorID, date, TimeRange{Start: 12 * 60, End: 14 * 60}, false)
	assert.NoError(t, err)

	// Same range for a different doctor is fine.
	_, err = m.PublishSlot(ctx, uuid.New(), date, TimeRange{Start: 9 * 60, End: 12 * 60}, false)
	assert.NoError(t, err)
}

func TestReserveSubSlot(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	parent := publishParent(t, m, TimeRange{Start: 9 * 60, End: 17 * 60})
	hospitalID := uuid.New()

	sub, err := m.ReserveSubSlot(ctx, parent.ID, hospitalID, TimeRange{Start: 10 * 60, End: 11 * 60})
	require.NoError(t, err)
	assert.Equal(t, StatusBooked, sub.Status)
	require.NotNil(t, sub.ParentSlotID)
	assert.Equal(t, parent.ID, *sub.ParentSlotID)
	require.NotNil(t, sub.BookedByHospitalID)
	assert.Equal(t, hospitalID, *sub.BookedByHospitalID)
	assert.Equal(t, parent.DoctorID, sub.DoctorID)
}

func TestReserveSubSlotOverlapRejected(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	parent := publishParent(t, m, TimeRange{Start: 9 * 60, End: 17 * 60})

	_, err := m.ReserveSubSlot(ctx, parent.ID, uuid.New(), TimeRange{Start: 10 * 60, End: 12 * 60})
	require.NoError(t, err)

	// Second hospital wants 11:00-13:00, intersecting the booked 10:00-12:00.
	_, err = m.ReserveSubSlot(ctx, parent.ID, uuid.New(), TimeRange{Start: 11 * 60, End: 13 * 60})
	assert.ErrorIs(t, err, ErrSlotOverlap)

	// Back-to-back with the booked range succeeds.
	_, err = m.ReserveSubSlot(ctx, parent.ID, uuid.New(), TimeRange{Start: 12 * 60, End: 13 * 60})
	assert.NoError(t, err)
}

func TestReserveSubSlotOutOfParentRange(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	parent := publishParent(t, m, TimeRange{Start: 9 * 60, End: 17 * 60})

	_, err := m.ReserveSubSlot(ctx, parent.ID, uuid.New(), TimeRange{Start: 8 * 60, End: 10 * 60})
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = m.ReserveSubSlot(ctx, parent.ID, uuid.New(), TimeRange{Start: 16 * 60, End: 18 * 60})
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestReserveSubSlotOnNonParentRejected(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	parent := publishParent(t, m, TimeRange{Start: 9 * 60, End: 17 * 60})
	sub, err := m.ReserveSubSlot(ctx, parent.ID, uuid.New(), TimeRange{Start: 10 * 60, End: 11 * 60})
	require.NoError(t, err)

	_, err = m.ReserveSubSlot(ctx, sub.ID, uuid.New(), TimeRange{Start: 10 * 60, End: 11 * 60})
	assert.ErrorIs(t, err, ErrSlotNotParent)
}

func TestReserveSubSlotUnknownParent(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.ReserveSubSlot(context.Background(), uuid.New(), uuid.New(), TimeRange{Start: 10 * 60, End: 11 * 60})
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestReleaseSubSlotIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	parent := publishParent(t, m, TimeRange{Start: 9 * 60, End: 17 * 60})
	sub, err := m.ReserveSubSlot(ctx, parent.ID, uuid.New(), TimeRange{Start: 10 * 60, End: 11 * 60})
	require.NoError(t, err)

	require.NoError(t, m.ReleaseSubSlot(ctx, sub.ID))

	released, err := m.GetSlot(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, released.Status)
	assert.Nil(t, released.BookedByHospitalID)

	// Releasing again is a no-op.
	require.NoError(t, m.ReleaseSubSlot(ctx, sub.ID))

	// Unknown ids still surface.
	assert.ErrorIs(t, m.ReleaseSubSlot(ctx, uuid.New()), ErrSlotNotFound)
}

func TestReserveReusesReleasedSubSlot(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	parent := publishParent(t, m, TimeRange{Start: 9 * 60, End: 17 * 60})
	tr := TimeRange{Start: 10 * 60, End: 11 * 60}

	first, err := m.ReserveSubSlot(ctx, parent.ID, uuid.New(), tr)
	require.NoError(t, err)
	require.NoError(t, m.ReleaseSubSlot(ctx, first.ID))

	// Same range after release: the released row is rebooked, not duplicated.
	secondHospital := uuid.New()
	second, err := m.ReserveSubSlot(ctx, parent.ID, secondHospital, tr)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.BookedByHospitalID)
	assert.Equal(t, secondHospital, *second.BookedByHospitalID)
}

func TestReserveClearsReleasedLeftovers(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	parent := publishParent(t, m, TimeRange{Start: 9 * 60, End: 17 * 60})

	first, err := m.ReserveSubSlot(ctx, parent.ID, uuid.New(), TimeRange{Start: 10 * 60, End: 11 * 60})
	require.NoError(t, err)
	require.NoError(t, m.ReleaseSubSlot(ctx, first.ID))

	// A wider range swallows the released leftover.
	_, err = m.ReserveSubSlot(ctx, parent.ID, uuid.New(), TimeRange{Start: 9*60 + 30, End: 12 * 60})
	require.NoError(t, err)

	_, err = m.GetSlot(ctx, first.ID)
	assert.ErrorIs(t, err, ErrSlotNotFound)

	booked, err := repo.ListSubSlots(ctx, parent.ID, StatusBooked)
	require.NoError(t, err)
	assert.Len(t, booked, 1)
}

func TestReserveKeepsSlotsBoundToActiveAssignments(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	parent := publishParent(t, m, TimeRange{Start: 9 * 60, End: 17 * 60})

	first, err := m.ReserveSubSlot(ctx, parent.ID, uuid.New(), TimeRange{Start: 10 * 60, End: 11 * 60})
	require.NoError(t, err)
	require.NoError(t, m.ReleaseSubSlot(ctx, first.ID))

	// A pending assignment still points at the released sub-slot, so the
	// sweep must leave the row alone.
	repo.mu.Lock()
	repo.activeRefs[first.ID] = true
	repo.mu.Unlock()

	second, err := m.ReserveSubSlot(ctx, parent.ID, uuid.New(), TimeRange{Start: 9*60 + 30, End: 12 * 60})
	require.NoError(t, err)
	assert.Equal(t, StatusBooked, second.Status)

	kept, err := m.GetSlot(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, kept.Status)
}

func TestReserveNullsTerminalAssignmentReferences(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	parent := publishParent(t, m, TimeRange{Start: 9 * 60, End: 17 * 60})

	first, err := m.ReserveSubSlot(ctx, parent.ID, uuid.New(), TimeRange{Start: 10 * 60, End: 11 * 60})
	require.NoError(t, err)
	require.NoError(t, m.ReleaseSubSlot(ctx, first.ID))

	// Only a cancelled assignment references the leftover, so the sweep
	// removes the row and the reference goes null.
	repo.mu.Lock()
	repo.terminalRefs[first.ID] = true
	repo.mu.Unlock()

	_, err = m.ReserveSubSlot(ctx, parent.ID, uuid.New(), TimeRange{Start: 9*60 + 30, End: 12 * 60})
	require.NoError(t, err)

	_, err = m.GetSlot(ctx, first.ID)
	assert.ErrorIs(t, err, ErrSlotNotFound)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Equal(t, []uuid.UUID{first.ID}, repo.nulledRefs)
}

func TestAvailableRanges(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	parent := publishParent(t, m, TimeRange{Start: 9 * 60, End: 17 * 60})

	// No bookings: one gap covering the whole window.
	ranges, err := m.AvailableRanges(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, []TimeRange{{Start: 9 * 60, End: 17 * 60}}, ranges)

	_, err = m.ReserveSubSlot(ctx, parent.ID, uuid.New(), TimeRange{Start: 10 * 60, End: 11 * 60})
	require.NoError(t, err)
	_, err = m.ReserveSubSlot(ctx, parent.ID, uuid.New(), TimeRange{Start: 13 * 60, End: 14 * 60})
	require.NoError(t, err)

	ranges, err = m.AvailableRanges(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, []TimeRange{
		{Start: 9 * 60, End: 10 * 60},
		{Start: 11 * 60, End: 13 * 60},
		{Start: 14 * 60, End: 17 * 60},
	}, ranges)
}

func TestAvailableRangesFullyBooked(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	parent := publishParent(t, m, TimeRange{Start: 9 * 60, End: 11 * 60})

	_, err := m.ReserveSubSlot(ctx, parent.ID, uuid.New(), TimeRange{Start: 9 * 60, End: 10 * 60})
	require.NoError(t, err)
	_, err = m.ReserveSubSlot(ctx, parent.ID, uuid.New(), TimeRange{Start: 10 * 60, End: 11 * 60})
	require.NoError(t, err)

	ranges, err := m.AvailableRanges(ctx, parent.ID)
	require.NoError(t, err)
	assert.Empty(t, ranges)
}

func TestAvailableRangesEdgeAlignedBookings(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	parent := publishParent(t, m, TimeRange{Start: 9 * 60, End: 17 * 60})

	// Bookings flush with both window edges.
	_, err := m.ReserveSubSlot(ctx, parent.ID, uuid.New(), TimeRange{Start: 9 * 60, End: 10 * 60})
	require.NoError(t, err)
	_, err = m.ReserveSubSlot(ctx, parent.ID, uuid.New(), TimeRange{Start: 16 * 60, End: 17 * 60})
	require.NoError(t, err)

	ranges, err := m.AvailableRanges(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, []TimeRange{{Start: 10 * 60, End: 16 * 60}}, ranges)
}
