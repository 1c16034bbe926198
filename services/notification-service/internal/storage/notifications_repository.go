package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/lessonbook/libs/db"
	"github.com/md-rashed-zaman/lessonbook/libs/outbox"
)

type Notification struct {
	ID          string
	Kind        string
	TeacherID   string
	Recipient   string
	Cc          []string
	Subject     string
	Provider    string
	Status      string
	ErrorReason string
}

type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

// Save records the delivery outcome and its result event in one transaction. A
// notification id seen before is left untouched and no event is written.
func (r *Repository) Save(ctx context.Context, n Notification, evt outbox.Event) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		cc := n.Cc
		if cc == nil {
			cc = []string{}
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO notifications (id, kind, teacher_id, recipient, cc, subject, provider, status, error_reason)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING
		`, n.ID, n.Kind, n.TeacherID, n.Recipient, cc, n.Subject, n.Provider, n.Status, n.ErrorReason)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
}
