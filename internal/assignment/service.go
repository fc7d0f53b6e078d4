package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/covermed/hospital-coverage-scheduling/internal/audit"
	"github.com/covermed/hospital-coverage-scheduling/internal/config"
	"github.com/covermed/hospital-coverage-scheduling/internal/identity"
	"github.com/covermed/hospital-coverage-scheduling/internal/notify"
	redisclient "github.com/covermed/hospital-coverage-scheduling/internal/redis"
	"github.com/covermed/hospital-coverage-scheduling/internal/slot"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAssignmentExpired = errors.New("assignment has expired")
	ErrSlotNotBooked     = errors.New("slot is not booked for this assignment")
	ErrInvalidPriority   = errors.New("invalid priority")
	ErrNotAllowed        = errors.New("actor may not modify this assignment")
)

// SlotService is the slice of the slot manager the state machine needs.
type SlotService interface {
	GetSlot(ctx context.Context, id uuid.UUID) (*slot.AvailabilitySlot, error)
	ReleaseSubSlot(ctx context.Context, id uuid.UUID) error
}

// Settler creates the payment record once an assignment completes.
type Settler interface {
	SettleCompleted(ctx context.Context, a *Assignment) error
}

type Service struct {
	repo    Repository
	slots   SlotService
	locker  redisclient.Locker
	cfg     config.Config
	auditor audit.Recorder
	sink    notify.Sink
	settler Settler
	log     zerolog.Logger
}

func NewService(repo Repository, slots SlotService, locker redisclient.Locker, cfg config.Config, auditor audit.Recorder, sink notify.Sink, log zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		slots:   slots,
		locker:  locker,
		cfg:     cfg,
		auditor: auditor,
		sink:    sink,
		log:     log,
	}
}

// SetSettler wires the payment service in after construction; the payment
// service itself reads assignments through this service.
func (s *Service) SetSettler(settler Settler) {
	s.settler = settler
}

// Create opens a pending assignment against an already-reserved sub-slot.
// The deadline is fixed here as requestedAt + the priority tier's TTL and
// never changes afterwards.
func (s *Service) Create(ctx context.Context, hospitalID, doctorID, patientID, subSlotID uuid.UUID, priority Priority, fee *decimal.Decimal) (*Assignment, error) {
	if !priority.Valid() {
		return nil, ErrInvalidPriority
	}

	var created *Assignment

	err := s.locker.WithLock(ctx, "subslot:"+subSlotID.String(), func(lockCtx context.Context) error {
		sl, err := s.slots.GetSlot(lockCtx, subSlotID)
		if err != nil {
			return err
		}
		if sl.Status != slot.StatusBooked {
			return ErrSlotNotBooked
		}

		a, err := s.repo.CreatePending(lockCtx, NewAssignment{
			HospitalID:      hospitalID,
			DoctorID:        doctorID,
			PatientID:       patientID,
			SlotID:          subSlotID,
			Priority:        priority,
			ExpiresAt:       time.Now().Add(s.cfg.TTLForPriority(string(priority))),
			ConsultationFee: fee,
		})
		if err != nil {
			return err
		}

		created = a
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}

	s.emit(ctx, hospitalID.String(), "assignment.create", created, "", StatusPending)
	s.sink.Notify(ctx, notify.Event{Type: notify.EventAssignmentCreated, AssignmentID: created.ID, RecipientID: created.DoctorID})

	return created, nil
}

// Accept transitions pending→accepted. Valid only while the deadline has
// not passed; an overdue assignment is expired lazily on the way out.
func (s *Service) Accept(ctx context.Context, id, actorDoctorID uuid.UUID) (*Assignment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.DoctorID != actorDoctorID {
		return nil, ErrNotAllowed
	}

	if a.Status == StatusPending && deadlinePassed(a, time.Now()) {
		s.lazyExpire(ctx, a)
		return nil, ErrAssignmentExpired
	}

	updated, err := s.repo.MarkAccepted(ctx, id)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, s.classifyAcceptConflict(ctx, id)
		}
		return nil, fmt.Errorf("accept assignment: %w", err)
	}

	s.emit(ctx, actorDoctorID.String(), "assignment.accept", updated, StatusPending, StatusAccepted)
	s.sink.Notify(ctx, notify.Event{Type: notify.EventAssignmentAccepted, AssignmentID: updated.ID, RecipientID: updated.HospitalID})

	return updated, nil
}

// classifyAcceptConflict distinguishes a lost race: the CAS missed because
// the row is already expired (or pending past its deadline), or because
// another transition got there first.
func (s *Service) classifyAcceptConflict(ctx context.Context, id uuid.UUID) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == StatusExpired {
		return ErrAssignmentExpired
	}
	if current.Status == StatusPending && deadlinePassed(current, time.Now()) {
		s.lazyExpire(ctx, current)
		return ErrAssignmentExpired
	}
	return ErrInvalidTransition
}

// Decline transitions pending→declined and releases the reserved sub-slot.
func (s *Service) Decline(ctx context.Context, id, actorDoctorID uuid.UUID, reason string) (*Assignment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.DoctorID != actorDoctorID {
		return nil, ErrNotAllowed
	}

	updated, err := s.repo.MarkDeclined(ctx, id, optional(reason))
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("decline assignment: %w", err)
	}

	s.releaseSlot(ctx, updated)
	s.emit(ctx, actorDoctorID.String(), "assignment.decline", updated, StatusPending, StatusDeclined)
	s.sink.Notify(ctx, notify.Event{Type: notify.EventAssignmentDeclined, AssignmentID: updated.ID, RecipientID: updated.HospitalID})

	return updated, nil
}

// Cancel transitions pending|accepted→cancelled. Either party may cancel;
// the reserved sub-slot is released if still held.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor identity.Actor, reason string) (*Assignment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeParty(a, actor); err != nil {
		return nil, err
	}

	cancelledBy := cancelledByFor(actor.Role)

	// The status may flip pending→accepted between the read and the CAS;
	// cancel is valid from both, so one reload-and-retry covers it.
	for attempt := 0; attempt < 2; attempt++ {
		if a.Status != StatusPending && a.Status != StatusAccepted {
			return nil, ErrInvalidTransition
		}

		updated, err := s.repo.MarkCancelled(ctx, id, a.Status, cancelledBy, optional(reason))
		if err == nil {
			s.releaseSlot(ctx, updated)
			s.emit(ctx, actor.ID.String(), "assignment.cancel", updated, a.Status, StatusCancelled)
			s.notifyCounterparty(ctx, updated, actor)
			return updated, nil
		}
		if !errors.Is(err, ErrStatusConflict) {
			return nil, fmt.Errorf("cancel assignment: %w", err)
		}

		a, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	return nil, ErrInvalidTransition
}

// Complete transitions accepted→completed. The sub-slot stays booked: the
// consumed time has passed. When a fee is recorded, settlement runs
// immediately and idempotently.
func (s *Service) Complete(ctx context.Context, id, actorDoctorID uuid.UUID, notes string) (*Assignment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.DoctorID != actorDoctorID {
		return nil, ErrNotAllowed
	}

	updated, err := s.repo.MarkCompleted(ctx, id, optional(notes))
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("complete assignment: %w", err)
	}

	s.emit(ctx, actorDoctorID.String(), "assignment.complete", updated, StatusAccepted, StatusCompleted)
	s.sink.Notify(ctx, notify.Event{Type: notify.EventAssignmentCompleted, AssignmentID: updated.ID, RecipientID: updated.HospitalID})

	if s.settler != nil && updated.ConsultationFee != nil {
		if err := s.settler.SettleCompleted(ctx, updated); err != nil {
			s.log.Error().Err(err).Str("assignment_id", updated.ID.String()).Msg("settle on completion")
		}
	}

	return updated, nil
}

// Expire drives an overdue pending assignment to expired and releases its
// sub-slot. Calling it on an already-terminal assignment is a no-op.
func (s *Service) Expire(ctx context.Context, id uuid.UUID) error {
	updated, err := s.repo.MarkExpired(ctx, id, time.Now())
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			current, getErr := s.repo.GetByID(ctx, id)
			if getErr != nil {
				return getErr
			}
			if current.Status.Terminal() {
				return nil
			}
			return ErrInvalidTransition
		}
		return fmt.Errorf("expire assignment: %w", err)
	}

	s.releaseSlot(ctx, updated)
	s.emit(ctx, "system", "assignment.expire", updated, StatusPending, StatusExpired)
	s.sink.Notify(ctx, notify.Event{Type: notify.EventAssignmentExpired, AssignmentID: updated.ID, RecipientID: updated.HospitalID})

	return nil
}

// ExpireOverdue is the sweeper entry point. Safe to run concurrently from
// multiple instances: a lost expire race is a no-op, and a failing
// assignment is retried on the next tick rather than failing the sweep.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	overdue, err := s.repo.FindExpiredPending(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("find overdue assignments: %w", err)
	}

	expired := 0
	for _, a := range overdue {
		err := s.Expire(ctx, a.ID)
		switch {
		case err == nil:
			expired++
		case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAssignmentNotFound):
			// another actor got there first
		default:
			s.log.Error().Err(err).Str("assignment_id", a.ID.String()).Msg("expire overdue assignment")
		}
	}

	return expired, nil
}

// GetAssignment returns an assignment by id.
func (s *Service) GetAssignment(ctx context.Context, id uuid.UUID) (*Assignment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) lazyExpire(ctx context.Context, a *Assignment) {
	if err := s.Expire(ctx, a.ID); err != nil && !errors.Is(err, ErrInvalidTransition) {
		s.log.Warn().Err(err).Str("assignment_id", a.ID.String()).Msg("lazy expire")
	}
}

func (s *Service) releaseSlot(ctx context.Context, a *Assignment) {
	if a.AvailabilitySlotID == nil {
		return
	}
	if err := s.slots.ReleaseSubSlot(ctx, *a.AvailabilitySlotID); err != nil {
		s.log.Error().
			Err(err).
			Str("assignment_id", a.ID.String()).
			Str("slot_id", a.AvailabilitySlotID.String()).
			Msg("release sub-slot")
	}
}

func (s *Service) emit(ctx context.Context, actor, action string, a *Assignment, before, after Status) {
	s.auditor.Record(ctx, audit.Event{
		Actor:      actor,
		Action:     action,
		EntityType: "assignment",
		EntityID:   a.ID,
		Before:     string(before),
		After:      string(after),
	})
}

func (s *Service) notifyCounterparty(ctx context.Context, a *Assignment, actor identity.Actor) {
	recipient := a.DoctorID
	if actor.Role == identity.RoleDoctor {
		recipient = a.HospitalID
	}
	s.sink.Notify(ctx, notify.Event{Type: notify.EventAssignmentCancelled, AssignmentID: a.ID, RecipientID: recipient})
}

func authorizeParty(a *Assignment, actor identity.Actor) error {
	switch actor.Role {
	case identity.RoleDoctor:
		if a.DoctorID != actor.ID {
			return ErrNotAllowed
		}
	case identity.RoleHospital:
		if a.HospitalID != actor.ID {
			return ErrNotAllowed
		}
	case identity.RoleAdmin, identity.RoleSystem:
	default:
		return ErrNotAllowed
	}
	return nil
}

func cancelledByFor(role identity.Role) string {
	switch role {
	case identity.RoleDoctor:
		return "doctor"
	case identity.RoleHospital:
		return "hospital"
	default:
		return "system"
	}
}

func deadlinePassed(a *Assignment, now time.Time) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(now)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
