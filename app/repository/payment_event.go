package repository

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-solana-pay/app/entity"
)

type PaymentEventRepository struct {
	db DBTX
}

func NewPaymentEventRepository(db DBTX) *PaymentEventRepository {
	return &PaymentEventRepository{db: db}
}

func (r *PaymentEventRepository) Create(ctx context.Context, event *entity.PaymentEvent) error {
	query := `
		INSERT INTO payment_events (
			payment_id, event_type, old_state, new_state, signature, payload_json, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		event.PaymentID,
		event.EventType,
		nullableStringValue(event.OldState),
		event.NewState,
		nullableStringValue(event.Signature),
		nullableStringValue(event.PayloadJSON),
		event.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = uint64(id)

	return nil
}

func (r *PaymentEventRepository) ListByPayment(ctx context.Context, paymentID uint64) ([]*entity.PaymentEvent, error) {
	query := `
		SELECT id, payment_id, event_type, old_state, new_state, signature, payload_json, created_at
		FROM payment_events
		WHERE payment_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*entity.PaymentEvent, 0)
	for rows.Next() {
		var oldState, signature, payload sql.NullString
		item := &entity.PaymentEvent{}
		if err := rows.Scan(
			&item.ID,
			&item.PaymentID,
			&item.EventType,
			&oldState,
			&item.NewState,
			&signature,
			&payload,
			&item.CreatedAt,
		); err != nil {
			return nil, err
		}
		item.OldState = stringPtrFromNull(oldState)
		item.Signature = stringPtrFromNull(signature)
		item.PayloadJSON = stringPtrFromNull(payload)
		events = append(events, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}
