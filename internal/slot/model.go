package slot

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusBooked    Status = "booked"
	StatusBlocked   Status = "blocked"
)

// AvailabilitySlot is a block of a doctor's published free time. A slot with
// a nil ParentSlotID is a parent (doctor-published) slot; a non-nil
// ParentSlotID marks a sub-slot carved out of that parent when a hospital
// reserved part of its range.
type AvailabilitySlot struct {
	ID                 uuid.UUID
	DoctorID           uuid.UUID
	SlotDate           time.Time // date component only
	Start              TimeOfDay
	End                TimeOfDay
	Status             Status
	ParentSlotID       *uuid.UUID
	IsManual           bool
	BookedByHospitalID *uuid.UUID
	BookedAt           *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (s *AvailabilitySlot) IsParent() bool {
	return s.ParentSlotID == nil
}

func (s *AvailabilitySlot) Range() TimeRange {
	return TimeRange{Start: s.Start, End: s.End}
}
