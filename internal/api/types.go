package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/covermed/hospital-coverage-scheduling/internal/assignment"
	"github.com/covermed/hospital-coverage-scheduling/internal/payment"
	"github.com/covermed/hospital-coverage-scheduling/internal/slot"
)

type PublishSlotRequest struct {
	Date     string `json:"date"`  // YYYY-MM-DD
	Start    string `json:"start"` // HH:MM
	End      string `json:"end"`   // HH:MM
	IsManual bool   `json:"is_manual"`
}

type ReserveSubSlotRequest struct {
	Start string `json:"start"` // HH:MM
	End   string `json:"end"`   // HH:MM
}

type SlotResponse struct {
	ID                 uuid.UUID  `json:"id"`
	DoctorID           uuid.UUID  `json:"doctor_id"`
	SlotDate           string     `json:"slot_date"`
	Start              string     `json:"start"`
	End                string     `json:"end"`
	Status             string     `json:"status"`
	ParentSlotID       *uuid.UUID `json:"parent_slot_id,omitempty"`
	BookedByHospitalID *uuid.UUID `json:"booked_by_hospital_id,omitempty"`
}

func toSlotResponse(s *slot.AvailabilitySlot) SlotResponse {
	return SlotResponse{
		ID:                 s.ID,
		DoctorID:           s.DoctorID,
		SlotDate:           s.SlotDate.Format("2006-01-02"),
		Start:              s.Start.String(),
		End:                s.End.String(),
		Status:             string(s.Status),
		ParentSlotID:       s.ParentSlotID,
		BookedByHospitalID: s.BookedByHospitalID,
	}
}

type CreateAssignmentRequest struct {
	DoctorID        string `json:"doctor_id"`
	PatientID       string `json:"patient_id"`
	SubSlotID       string `json:"sub_slot_id"`
	Priority        string `json:"priority"`
	ConsultationFee string `json:"consultation_fee,omitempty"`
}

type DeclineRequest struct {
	Reason string `json:"reason,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type CompleteRequest struct {
	TreatmentNotes string `json:"treatment_notes,omitempty"`
}

type AssignmentResponse struct {
	ID                 uuid.UUID  `json:"id"`
	HospitalID         uuid.UUID  `json:"hospital_id"`
	DoctorID           uuid.UUID  `json:"doctor_id"`
	PatientID          uuid.UUID  `json:"patient_id"`
	AvailabilitySlotID *uuid.UUID `json:"availability_slot_id,omitempty"`
	Priority           string     `json:"priority"`
	Status             string     `json:"status"`
	RequestedAt        time.Time  `json:"requested_at"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy        *string    `json:"cancelled_by,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	ConsultationFee    *string    `json:"consultation_fee,omitempty"`
	TreatmentNotes     *string    `json:"treatment_notes,omitempty"`
}

func toAssignmentResponse(a *assignment.Assignment) AssignmentResponse {
	resp := AssignmentResponse{
		ID:                 a.ID,
		HospitalID:         a.HospitalID,
		DoctorID:           a.DoctorID,
		PatientID:          a.PatientID,
		AvailabilitySlotID: a.AvailabilitySlotID,
		Priority:           string(a.Priority),
		Status:             string(a.Status),
		RequestedAt:        a.RequestedAt,
		ExpiresAt:          a.ExpiresAt,
		CompletedAt:        a.CompletedAt,
		CancelledAt:        a.CancelledAt,
		CancelledBy:        a.CancelledBy,
		CancellationReason: a.CancellationReason,
		TreatmentNotes:     a.TreatmentNotes,
	}
	if a.ConsultationFee != nil {
		fee := a.ConsultationFee.StringFixed(2)
		resp.ConsultationFee = &fee
	}
	return resp
}

type PaymentResponse struct {
	ID                 uuid.UUID  `json:"id"`
	AssignmentID       uuid.UUID  `json:"assignment_id"`
	HospitalID         uuid.UUID  `json:"hospital_id"`
	DoctorID           uuid.UUID  `json:"doctor_id"`
	ConsultationFee    string     `json:"consultation_fee"`
	PlatformCommission string     `json:"platform_commission"`
	DoctorPayout       string     `json:"doctor_payout"`
	PaymentStatus      string     `json:"payment_status"`
	PaidToDoctorAt     *time.Time `json:"paid_to_doctor_at,omitempty"`
}

func toPaymentResponse(p *payment.Payment) PaymentResponse {
	return PaymentResponse{
		ID:                 p.ID,
		AssignmentID:       p.AssignmentID,
		HospitalID:         p.HospitalID,
		DoctorID:           p.DoctorID,
		ConsultationFee:    p.ConsultationFee.StringFixed(2),
		PlatformCommission: p.PlatformCommission.StringFixed(2),
		DoctorPayout:       p.DoctorPayout.StringFixed(2),
		PaymentStatus:      string(p.Status),
		PaidToDoctorAt:     p.PaidToDoctorAt,
	}
}

type FailPayoutRequest struct {
	Reason string `json:"reason"`
}

type GatewayConfirmationRequest struct {
	AssignmentID     string `json:"assignment_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	AmountConfirmed  string `json:"amount_confirmed"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
