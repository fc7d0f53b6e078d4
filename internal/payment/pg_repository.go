package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const paymentColumns = `id, assignment_id, hospital_id, doctor_id, consultation_fee, platform_commission, doctor_payout, payment_status, paid_to_doctor_at, created_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment

	err := row.Scan(
		&p.ID,
		&p.AssignmentID,
		&p.HospitalID,
		&p.DoctorID,
		&p.ConsultationFee,
		&p.PlatformCommission,
		&p.DoctorPayout,
		&p.Status,
		&p.PaidToDoctorAt,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	return &p, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM assignment_payments
		WHERE id = $1
	`, id)
	return scanPayment(row)
}

func (r *PgRepository) GetByAssignmentID(ctx context.Context, assignmentID uuid.UUID) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM assignment_payments
		WHERE assignment_id = $1
	`, assignmentID)
	return scanPayment(row)
}

func (r *PgRepository) InsertOnce(ctx context.Context, p Payment) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO assignment_payments (id, assignment_id, hospital_id, doctor_id, consultation_fee, platform_commission, doctor_payout, payment_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', now())
		ON CONFLICT (assignment_id) DO NOTHING
		RETURNING `+paymentColumns+`
	`, p.ID, p.AssignmentID, p.HospitalID, p.DoctorID, p.ConsultationFee, p.PlatformCommission, p.DoctorPayout)

	created, err := scanPayment(row)
	if errors.Is(err, ErrPaymentNotFound) {
		// Lost the insert race: return the record that won.
		return r.GetByAssignmentID(ctx, p.AssignmentID)
	}
	return created, err
}

func (r *PgRepository) MarkPaid(ctx context.Context, id uuid.UUID) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE assignment_payments
		SET payment_status = 'completed',
		    paid_to_doctor_at = now()
		WHERE id = $1
		  AND payment_status IN ('pending', 'processing')
		RETURNING `+paymentColumns+`
	`, id)

	p, err := scanPayment(row)
	if errors.Is(err, ErrPaymentNotFound) {
		return nil, ErrStatusConflict
	}
	return p, err
}

func (r *PgRepository) AdvanceStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE assignment_payments
		SET payment_status = $3
		WHERE id = $1
		  AND payment_status = $2
		RETURNING `+paymentColumns+`
	`, id, from, to)

	p, err := scanPayment(row)
	if errors.Is(err, ErrPaymentNotFound) {
		return nil, ErrStatusConflict
	}
	return p, err
}
