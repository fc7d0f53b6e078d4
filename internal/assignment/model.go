package assignment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Terminal reports whether no further transition may leave this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusDeclined, StatusExpired, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

type Priority string

const (
	PriorityRoutine   Priority = "routine"
	PriorityUrgent    Priority = "urgent"
	PriorityEmergency Priority = "emergency"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityRoutine, PriorityUrgent, PriorityEmergency:
		return true
	}
	return false
}

// Assignment is one coverage request from a hospital to a doctor, bound 1:1
// to the sub-slot it consumed. ExpiresAt is fixed at creation and never
// mutated afterwards.
type Assignment struct {
	ID                 uuid.UUID
	HospitalID         uuid.UUID
	DoctorID           uuid.UUID
	PatientID          uuid.UUID
	AvailabilitySlotID *uuid.UUID
	Priority           Priority
	Status             Status
	RequestedAt        time.Time
	ExpiresAt          *time.Time
	ActualStartTime    *time.Time
	ActualEndTime      *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
	CancelledBy        *string
	CancellationReason *string
	ConsultationFee    *decimal.Decimal
	TreatmentNotes     *string
}
