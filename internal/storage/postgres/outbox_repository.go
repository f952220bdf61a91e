package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Статусы строк outbox_messages.
const (
	outboxPending = "pending"
	outboxSent    = "sent"
	outboxFailed  = "failed"

	defaultOutboxBatch = 100
)

const (
	insertOutboxSQL = `
INSERT INTO outbox_messages
	(id, aggregate_type, aggregate_id, event_type, payload, status, attempt_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, '` + outboxPending + `', 0, $6, $6)`

	selectPendingOutboxSQL = `
SELECT id, aggregate_type, aggregate_id, event_type, payload
  FROM outbox_messages
 WHERE status = '` + outboxPending + `'
 ORDER BY created_at, id
 LIMIT $1`

	pendingOutboxStatsSQL = `
SELECT COUNT(*), MIN(created_at)
  FROM outbox_messages
 WHERE status = '` + outboxPending + `'`

	finishOutboxSQL = `
UPDATE outbox_messages
   SET status = $2, attempt_count = attempt_count + 1, updated_at = $3
 WHERE id = $1`
)

// outboxRepository хранит события order.placed до публикации в брокер.
type outboxRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewOutboxRepository возвращает outbox поверх PostgreSQL.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *outboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	err := r.exec(func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, insertOutboxSQL,
			msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, r.now())
		return err
	})
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue outbox message %s: %w", msg.ID, err)
	}
	return msg, nil
}

// PullPending отдаёт самые старые pending-сообщения; статус не меняется до MarkSent/MarkFailed.
func (r *outboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultOutboxBatch
	}

	var batch []domain.OutboxMessage
	err := r.exec(func(ctx context.Context) error {
		rows, err := r.db.QueryContext(ctx, selectPendingOutboxSQL, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		batch = make([]domain.OutboxMessage, 0, limit)
		for rows.Next() {
			var m domain.OutboxMessage
			if err := rows.Scan(&m.ID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Payload); err != nil {
				return err
			}
			batch = append(batch, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("pull pending outbox messages: %w", err)
	}
	return batch, nil
}

func (r *outboxRepository) Stats() (domain.OutboxStats, error) {
	var (
		count  int
		oldest sql.NullTime
	)
	err := r.exec(func(ctx context.Context) error {
		return r.db.QueryRowContext(ctx, pendingOutboxStatsSQL).Scan(&count, &oldest)
	})
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox stats: %w", err)
	}

	stats := domain.OutboxStats{PendingCount: count}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *outboxRepository) MarkSent(id string) error { return r.finish(id, outboxSent) }

func (r *outboxRepository) MarkFailed(id string) error { return r.finish(id, outboxFailed) }

// finish переводит сообщение в конечный статус. Отсутствующая строка даёт ErrOutboxPublish.
func (r *outboxRepository) finish(id, status string) error {
	var affected int64
	err := r.exec(func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, finishOutboxSQL, id, status, r.now())
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("mark outbox message %s as %s: %w", id, status, err)
	}
	if affected == 0 {
		return domain.ErrOutboxPublish
	}
	return nil
}

func (r *outboxRepository) exec(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return fn(ctx)
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
