package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Event is one record per state transition. Before/After carry the entity
// status on either side of the transition.
type Event struct {
	Actor      string
	Action     string
	EntityType string
	EntityID   uuid.UUID
	Before     string
	After      string
	Detail     map[string]any
}

// Recorder emits audit events. A failure to record must never roll back the
// transition that produced the event, so implementations swallow errors.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// PgRecorder writes events to the event_logs table.
type PgRecorder struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func NewPgRecorder(pool *pgxpool.Pool, log zerolog.Logger) *PgRecorder {
	return &PgRecorder{pool: pool, log: log}
}

func (r *PgRecorder) Record(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev.Detail)
	if err != nil {
		r.log.Warn().Err(err).Str("action", ev.Action).Msg("marshal audit payload")
		payload = nil
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO event_logs (actor, action, entity_type, entity_id, before_status, after_status, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, ev.Actor, ev.Action, ev.EntityType, ev.EntityID, nullable(ev.Before), nullable(ev.After), payload, time.Now())
	if err != nil {
		r.log.Warn().
			Err(err).
			Str("action", ev.Action).
			Str("entity_id", ev.EntityID.String()).
			Msg("insert audit event")
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// LogRecorder writes events to the logger only. Used in tests and when the
// event store is not provisioned.
type LogRecorder struct {
	Log zerolog.Logger
}

func (r LogRecorder) Record(_ context.Context, ev Event) {
	r.Log.Info().
		Str("actor", ev.Actor).
		Str("action", ev.Action).
		Str("entity_type", ev.EntityType).
		Str("entity_id", ev.EntityID.String()).
		Str("before", ev.Before).
		Str("after", ev.After).
		Msg("audit")
}
