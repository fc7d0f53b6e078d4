package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/covermed/hospital-coverage-scheduling/internal/assignment"
	"github.com/covermed/hospital-coverage-scheduling/internal/audit"
	"github.com/covermed/hospital-coverage-scheduling/internal/notify"
)

var (
	ErrInvalidTransition      = errors.New("invalid payment status transition")
	ErrAssignmentNotCompleted = errors.New("assignment is not completed")
	ErrAmountMismatch         = errors.New("confirmed amount does not match recorded fee")
)

// AssignmentLoader is the slice of the assignment service the settlement
// service reads through.
type AssignmentLoader interface {
	GetAssignment(ctx context.Context, id uuid.UUID) (*assignment.Assignment, error)
}

type Service struct {
	repo        Repository
	assignments AssignmentLoader
	rate        decimal.Decimal
	auditor     audit.Recorder
	sink        notify.Sink
	log         zerolog.Logger
}

func NewService(repo Repository, assignments AssignmentLoader, commissionRate decimal.Decimal, auditor audit.Recorder, sink notify.Sink, log zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		assignments: assignments,
		rate:        commissionRate,
		auditor:     auditor,
		sink:        sink,
		log:         log,
	}
}

// Settle splits a completed assignment's fee into commission and payout and
// creates the payment record. Idempotent: a second call returns the record
// created by the first.
func (s *Service) Settle(ctx context.Context, assignmentID uuid.UUID) (*Payment, error) {
	a, err := s.assignments.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, a)
}

// SettleCompleted settles an assignment the caller has just completed.
// Implements assignment.Settler.
func (s *Service) SettleCompleted(ctx context.Context, a *assignment.Assignment) error {
	_, err := s.settle(ctx, a)
	return err
}

func (s *Service) settle(ctx context.Context, a *assignment.Assignment) (*Payment, error) {
	if a.Status != assignment.StatusCompleted {
		return nil, ErrAssignmentNotCompleted
	}
	if a.ConsultationFee == nil {
		return nil, ErrInvalidFee
	}

	if existing, err := s.repo.GetByAssignmentID(ctx, a.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrPaymentNotFound) {
		return nil, fmt.Errorf("load payment: %w", err)
	}

	commission, payout, err := Split(*a.ConsultationFee, s.rate)
	if err != nil {
		return nil, err
	}

	created, err := s.repo.InsertOnce(ctx, Payment{
		ID:                 uuid.New(),
		AssignmentID:       a.ID,
		HospitalID:         a.HospitalID,
		DoctorID:           a.DoctorID,
		ConsultationFee:    *a.ConsultationFee,
		PlatformCommission: commission,
		DoctorPayout:       payout,
	})
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	s.auditor.Record(ctx, audit.Event{
		Actor:      "system",
		Action:     "payment.settle",
		EntityType: "payment",
		EntityID:   created.ID,
		After:      string(StatusPending),
		Detail: map[string]any{
			"assignment_id": a.ID.String(),
			"fee":           created.ConsultationFee.String(),
			"commission":    created.PlatformCommission.String(),
			"payout":        created.DoctorPayout.String(),
		},
	})
	s.sink.Notify(ctx, notify.Event{Type: notify.EventPaymentSettled, AssignmentID: a.ID, RecipientID: a.DoctorID})

	return created, nil
}

// MarkPaid finishes a payment: valid only from pending or processing.
func (s *Service) MarkPaid(ctx context.Context, paymentID uuid.UUID) (*Payment, error) {
	before, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.MarkPaid(ctx, paymentID)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("mark payment paid: %w", err)
	}

	s.auditor.Record(ctx, audit.Event{
		Actor:      "system",
		Action:     "payment.paid",
		EntityType: "payment",
		EntityID:   updated.ID,
		Before:     string(before.Status),
		After:      string(StatusCompleted),
	})
	s.sink.Notify(ctx, notify.Event{Type: notify.EventPaymentPaid, AssignmentID: updated.AssignmentID, RecipientID: updated.DoctorID})

	return updated, nil
}

// BeginPayout moves a settled payment to processing when the transfer to
// the doctor is handed to the gateway. Valid only from pending.
func (s *Service) BeginPayout(ctx context.Context, paymentID uuid.UUID) (*Payment, error) {
	updated, err := s.repo.AdvanceStatus(ctx, paymentID, StatusPending, StatusProcessing)
	if err != nil {
		return nil, s.mapAdvanceError(ctx, paymentID, err, "begin payout")
	}

	s.auditor.Record(ctx, audit.Event{
		Actor:      "system",
		Action:     "payment.payout_started",
		EntityType: "payment",
		EntityID:   updated.ID,
		Before:     string(StatusPending),
		After:      string(StatusProcessing),
	})

	return updated, nil
}

// FailPayout records a gateway-side transfer failure. Valid only from
// processing; a failed payout needs operator attention before any retry.
func (s *Service) FailPayout(ctx context.Context, paymentID uuid.UUID, reason string) (*Payment, error) {
	updated, err := s.repo.AdvanceStatus(ctx, paymentID, StatusProcessing, StatusFailed)
	if err != nil {
		return nil, s.mapAdvanceError(ctx, paymentID, err, "fail payout")
	}

	s.auditor.Record(ctx, audit.Event{
		Actor:      "system",
		Action:     "payment.payout_failed",
		EntityType: "payment",
		EntityID:   updated.ID,
		Before:     string(StatusProcessing),
		After:      string(StatusFailed),
		Detail:     map[string]any{"reason": reason},
	})
	s.sink.Notify(ctx, notify.Event{Type: notify.EventPaymentFailed, AssignmentID: updated.AssignmentID, RecipientID: updated.DoctorID})

	return updated, nil
}

func (s *Service) mapAdvanceError(ctx context.Context, paymentID uuid.UUID, err error, op string) error {
	if errors.Is(err, ErrStatusConflict) {
		if _, getErr := s.repo.GetByID(ctx, paymentID); getErr != nil {
			return getErr
		}
		return ErrInvalidTransition
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ConfirmGatewayPayment handles the inbound gateway confirmation event. The
// confirmed amount must match the recorded fee before the payment is marked
// paid.
func (s *Service) ConfirmGatewayPayment(ctx context.Context, assignmentID uuid.UUID, gatewayPaymentID string, amountConfirmed decimal.Decimal) (*Payment, error) {
	p, err := s.repo.GetByAssignmentID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	if !amountConfirmed.Equal(p.ConsultationFee) {
		s.log.Warn().
			Str("assignment_id", assignmentID.String()).
			Str("gateway_payment_id", gatewayPaymentID).
			Str("confirmed", amountConfirmed.String()).
			Str("recorded", p.ConsultationFee.String()).
			Msg("gateway amount mismatch")
		return nil, ErrAmountMismatch
	}

	updated, err := s.MarkPaid(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, audit.Event{
		Actor:      "webhook",
		Action:     "payment.gateway_confirmed",
		EntityType: "payment",
		EntityID:   updated.ID,
		Detail: map[string]any{
			"gateway_payment_id": gatewayPaymentID,
			"amount_confirmed":   amountConfirmed.String(),
		},
	})

	return updated, nil
}

// GetPayment returns a payment by id.
func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return s.repo.GetByID(ctx, id)
}
