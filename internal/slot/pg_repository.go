package slot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const slotColumns = `id, doctor_id, slot_date, start_min, end_min, status, parent_slot_id, is_manual, booked_by_hospital_id, booked_at, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanSlot(row pgx.Row) (*AvailabilitySlot, error) {
	var s AvailabilitySlot
	var start, end int

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.SlotDate,
		&start,
		&end,
		&s.Status,
		&s.ParentSlotID,
		&s.IsManual,
		&s.BookedByHospitalID,
		&s.BookedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.Start = TimeOfDay(start)
	s.End = TimeOfDay(end)
	return &s, nil
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*AvailabilitySlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) InsertParentSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, tr TimeRange, isManual bool) (*AvailabilitySlot, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_slots (id, doctor_id, slot_date, start_min, end_min, status, parent_slot_id, is_manual, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, 'available', NULL, $6, now(), now()
		WHERE NOT EXISTS (
			SELECT 1 FROM availability_slots
			WHERE doctor_id = $2
			  AND slot_date = $3
			  AND start_min < $5
			  AND end_min > $4
		)
		RETURNING `+slotColumns+`
	`, id, doctorID, date, tr.Start.Minutes(), tr.End.Minutes(), isManual)

	s, err := scanSlot(row)
	if errors.Is(err, ErrSlotNotFound) {
		return nil, ErrSlotOverlap
	}
	return s, err
}

func (r *PgRepository) RebookSubSlot(ctx context.Context, parentID, hospitalID uuid.UUID, tr TimeRange) (*AvailabilitySlot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE availability_slots
		SET status = 'booked',
		    booked_by_hospital_id = $2,
		    booked_at = now(),
		    updated_at = now()
		WHERE parent_slot_id = $1
		  AND start_min = $3
		  AND end_min = $4
		  AND status = 'available'
		RETURNING `+slotColumns+`
	`, parentID, hospitalID, tr.Start.Minutes(), tr.End.Minutes())
	return scanSlot(row)
}

func (r *PgRepository) DeleteReleasedOverlaps(ctx context.Context, parentID uuid.UUID, tr TimeRange) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM availability_slots
		WHERE parent_slot_id = $1
		  AND status = 'available'
		  AND start_min < $3
		  AND end_min > $2
		  AND NOT EXISTS (
			SELECT 1 FROM assignments
			WHERE availability_slot_id = availability_slots.id
			  AND status IN ('pending', 'accepted')
		  )
	`, parentID, tr.Start.Minutes(), tr.End.Minutes())
	return err
}

func (r *PgRepository) InsertSubSlot(ctx context.Context, parent *AvailabilitySlot, hospitalID uuid.UUID, tr TimeRange) (*AvailabilitySlot, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_slots (id, doctor_id, slot_date, start_min, end_min, status, parent_slot_id, is_manual, booked_by_hospital_id, booked_at, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, 'booked', $6, false, $7, now(), now()
		WHERE NOT EXISTS (
			SELECT 1 FROM availability_slots
			WHERE parent_slot_id = $6
			  AND status = 'booked'
			  AND start_min < $5
			  AND end_min > $4
		)
		RETURNING `+slotColumns+`
	`, id, parent.DoctorID, parent.SlotDate, tr.Start.Minutes(), tr.End.Minutes(), parent.ID, hospitalID)

	s, err := scanSlot(row)
	if errors.Is(err, ErrSlotNotFound) {
		return nil, ErrSlotOverlap
	}
	return s, err
}

func (r *PgRepository) ReleaseSlot(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE availability_slots
		SET status = 'available',
		    booked_by_hospital_id = NULL,
		    booked_at = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'booked'
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgRepository) ListSubSlots(ctx context.Context, parentID uuid.UUID, status Status) ([]AvailabilitySlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE parent_slot_id = $1
		  AND status = $2
		ORDER BY start_min
	`, parentID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilitySlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
