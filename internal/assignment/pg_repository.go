package assignment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const assignmentColumns = `id, hospital_id, doctor_id, patient_id, availability_slot_id, priority, status, requested_at, expires_at, actual_start_time, actual_end_time, completed_at, cancelled_at, cancelled_by, cancellation_reason, consultation_fee, treatment_notes`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanAssignment(row pgx.Row) (*Assignment, error) {
	var a Assignment

	err := row.Scan(
		&a.ID,
		&a.HospitalID,
		&a.DoctorID,
		&a.PatientID,
		&a.AvailabilitySlotID,
		&a.Priority,
		&a.Status,
		&a.RequestedAt,
		&a.ExpiresAt,
		&a.ActualStartTime,
		&a.ActualEndTime,
		&a.CompletedAt,
		&a.CancelledAt,
		&a.CancelledBy,
		&a.CancellationReason,
		&a.ConsultationFee,
		&a.TreatmentNotes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Assignment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+assignmentColumns+`
		FROM assignments
		WHERE id = $1
	`, id)
	return scanAssignment(row)
}

func (r *PgRepository) CreatePending(ctx context.Context, in NewAssignment) (*Assignment, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO assignments (id, hospital_id, doctor_id, patient_id, availability_slot_id, priority, status, requested_at, expires_at, consultation_fee)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', now(), $7, $8)
		RETURNING `+assignmentColumns+`
	`, id, in.HospitalID, in.DoctorID, in.PatientID, in.SlotID, in.Priority, in.ExpiresAt, in.ConsultationFee)

	a, err := scanAssignment(row)
	if err != nil {
		// uq_assignments_slot_active: another pending or accepted
		// assignment already holds this sub-slot.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return a, nil
}

func (r *PgRepository) MarkAccepted(ctx context.Context, id uuid.UUID) (*Assignment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE assignments
		SET status = 'accepted'
		WHERE id = $1
		  AND status = 'pending'
		  AND (expires_at IS NULL OR expires_at > now())
		RETURNING `+assignmentColumns+`
	`, id)
	return casResult(row)
}

func (r *PgRepository) MarkDeclined(ctx context.Context, id uuid.UUID, reason *string) (*Assignment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE assignments
		SET status = 'declined',
		    cancelled_at = now(),
		    cancelled_by = 'doctor',
		    cancellation_reason = $2
		WHERE id = $1
		  AND status = 'pending'
		RETURNING `+assignmentColumns+`
	`, id, reason)
	return casResult(row)
}

func (r *PgRepository) MarkCancelled(ctx context.Context, id uuid.UUID, from Status, cancelledBy string, reason *string) (*Assignment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE assignments
		SET status = 'cancelled',
		    cancelled_at = now(),
		    cancelled_by = $3,
		    cancellation_reason = $4
		WHERE id = $1
		  AND status = $2
		RETURNING `+assignmentColumns+`
	`, id, from, cancelledBy, reason)
	return casResult(row)
}

func (r *PgRepository) MarkCompleted(ctx context.Context, id uuid.UUID, notes *string) (*Assignment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE assignments
		SET status = 'completed',
		    completed_at = now(),
		    actual_end_time = now(),
		    actual_start_time = COALESCE(actual_start_time, now()),
		    treatment_notes = COALESCE($2, treatment_notes)
		WHERE id = $1
		  AND status = 'accepted'
		RETURNING `+assignmentColumns+`
	`, id, notes)
	return casResult(row)
}

func (r *PgRepository) MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) (*Assignment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE assignments
		SET status = 'expired',
		    cancelled_at = $2,
		    cancelled_by = 'system',
		    cancellation_reason = 'assignment expired before the doctor responded'
		WHERE id = $1
		  AND status = 'pending'
		  AND expires_at IS NOT NULL
		  AND expires_at <= $2
		RETURNING `+assignmentColumns+`
	`, id, now)
	return casResult(row)
}

func (r *PgRepository) FindExpiredPending(ctx context.Context, now time.Time) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+assignmentColumns+`
		FROM assignments
		WHERE status = 'pending'
		  AND expires_at IS NOT NULL
		  AND expires_at <= $1
		ORDER BY expires_at
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// casResult maps the empty result of a conditional update to
// ErrStatusConflict: the row exists in a different status, or not at all.
// Callers that care about the difference re-fetch.
func casResult(row pgx.Row) (*Assignment, error) {
	a, err := scanAssignment(row)
	if errors.Is(err, ErrAssignmentNotFound) {
		return nil, ErrStatusConflict
	}
	return a, err
}
