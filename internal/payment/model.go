package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Payment is the 1:1 settlement record of a completed assignment.
// DoctorPayout + PlatformCommission always equals ConsultationFee exactly.
type Payment struct {
	ID                 uuid.UUID
	AssignmentID       uuid.UUID
	HospitalID         uuid.UUID
	DoctorID           uuid.UUID
	ConsultationFee    decimal.Decimal
	PlatformCommission decimal.Decimal
	DoctorPayout       decimal.Decimal
	Status             Status
	PaidToDoctorAt     *time.Time
	CreatedAt          time.Time
}
