package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/lessonbook/libs/db"
)

type IdempotencyRecord struct {
	CallerID        string
	IdempotencyKey  string
	EventID         string
	StatusCode      int
	ResponsePayload []byte
}

// IdempotencyRepository remembers the outcome of booking requests sent with an
// Idempotency-Key header.
type IdempotencyRepository struct {
	pool *db.Pool
}

func NewIdempotencyRepository(pool *db.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool}
}

func (r *IdempotencyRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// Lock returns the stored record, creating an empty one when the key is new. The row
// stays locked until tx ends, so concurrent retries wait for the first attempt.
func (r *IdempotencyRepository) Lock(ctx context.Context, tx pgx.Tx, callerID, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectForUpdate(ctx, tx, callerID, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (caller_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (caller_id, idempotency_key) DO NOTHING
	`, callerID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectForUpdate(ctx, tx, callerID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (r *IdempotencyRepository) Finalize(ctx context.Context, tx pgx.Tx, callerID, key, eventID string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET event_id = $3,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE caller_id = $1 AND idempotency_key = $2
	`, callerID, key, eventID, statusCode, response)
	return err
}

func (r *IdempotencyRepository) selectForUpdate(ctx context.Context, tx pgx.Tx, callerID, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	err := tx.QueryRow(ctx, `
		SELECT caller_id, idempotency_key, event_id, status_code, response_payload
		FROM booking_idempotency_keys
		WHERE caller_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, callerID, key).Scan(&rec.CallerID, &rec.IdempotencyKey, &rec.EventID, &rec.StatusCode, &rec.ResponsePayload)
	return rec, err
}

func IsNotFound(err error) bool {
	return db.IsNotFound(err)
}
