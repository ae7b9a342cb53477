package repository

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-solana-pay/app/entity"
)

type PaymentVerificationRepository struct {
	db DBTX
}

func NewPaymentVerificationRepository(db DBTX) *PaymentVerificationRepository {
	return &PaymentVerificationRepository{db: db}
}

func (r *PaymentVerificationRepository) Create(ctx context.Context, verification *entity.PaymentVerification) error {
	query := `
		INSERT INTO payment_verifications (
			payment_id, reference, endpoint, outcome, signature, reason, error, duration_ms, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		verification.PaymentID,
		verification.Reference,
		verification.Endpoint,
		verification.Outcome,
		nullableStringValue(verification.Signature),
		nullableStringValue(verification.Reason),
		nullableStringValue(verification.Error),
		verification.DurationMs,
		verification.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	verification.ID = uint64(id)

	return nil
}

func (r *PaymentVerificationRepository) ListByPayment(ctx context.Context, paymentID uint64, limit int32) ([]*entity.PaymentVerification, error) {
	query := `
		SELECT id, payment_id, reference, endpoint, outcome, signature, reason, error, duration_ms, created_at
		FROM payment_verifications
		WHERE payment_id = ?
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, paymentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.PaymentVerification, 0)
	for rows.Next() {
		var signature, reason, verifyErr sql.NullString
		item := &entity.PaymentVerification{}
		if err := rows.Scan(
			&item.ID,
			&item.PaymentID,
			&item.Reference,
			&item.Endpoint,
			&item.Outcome,
			&signature,
			&reason,
			&verifyErr,
			&item.DurationMs,
			&item.CreatedAt,
		); err != nil {
			return nil, err
		}
		item.Signature = stringPtrFromNull(signature)
		item.Reason = stringPtrFromNull(reason)
		item.Error = stringPtrFromNull(verifyErr)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}
