package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-solana-pay/app/entity"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentAlreadyExists = errors.New("payment already exists")
	ErrReferenceInUse       = errors.New("payment reference already in use")
	ErrPaymentStateChanged  = errors.New("payment state changed")
)

const paymentColumns = `
	id, request_id, caller_service, order_id,
	amount, token_mint, recipient,
	reference, status_token, label, message,
	state, refunded_amount, signature, completed_at,
	status_callback_url, metadata_json,
	callback_delivery_status, callback_delivery_attempts, callback_delivery_next_at, callback_delivery_last_error,
	created_at, updated_at
`

type PaymentFilter struct {
	RequestID     string
	CallerService string
	OrderID       string
	State         string
	Limit         int32
	Offset        int32
}

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	metadataJSON, err := serializeMetadata(payment.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payments (
			request_id, caller_service, order_id,
			amount, token_mint, recipient,
			reference, status_token, label, message,
			state, refunded_amount, signature, completed_at,
			status_callback_url, metadata_json,
			callback_delivery_status, callback_delivery_attempts, callback_delivery_next_at, callback_delivery_last_error,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		payment.RequestID,
		payment.CallerService,
		payment.OrderID,
		payment.Amount,
		payment.TokenMint,
		payment.Recipient,
		nullableStringValue(payment.Reference),
		payment.StatusToken,
		payment.Label,
		payment.Message,
		payment.State,
		payment.RefundedAmount,
		nullableStringValue(payment.Signature),
		nullableTimeValue(payment.CompletedAt),
		payment.StatusCallbackURL,
		metadataJSON,
		payment.CallbackDeliveryStatus,
		payment.CallbackDeliveryAttempts,
		nullableTimeValue(payment.CallbackDeliveryNextAt),
		nullableStringValue(payment.CallbackDeliveryLastErr),
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPaymentAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	payment.ID = uint64(id)
	return nil
}

// UpdateIfState writes the mutable columns of payment only while the stored
// state and refunded amount still equal the ones the caller read. It returns
// false when another writer got there first.
func (r *PaymentRepository) UpdateIfState(
	ctx context.Context,
	payment *entity.Payment,
	expectedState string,
	expectedRefunded decimal.Decimal,
) (bool, error) {
	metadataJSON, err := serializeMetadata(payment.Metadata)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE payments SET
			state = ?,
			refunded_amount = ?,
			signature = ?,
			completed_at = ?,
			metadata_json = ?,
			callback_delivery_status = ?,
			callback_delivery_attempts = ?,
			callback_delivery_next_at = ?,
			callback_delivery_last_error = ?,
			updated_at = ?
		WHERE id = ?
		  AND state = ?
		  AND refunded_amount = CAST(? AS DECIMAL(20, 9))
	`

	result, err := r.db.ExecContext(ctx, query,
		payment.State,
		payment.RefundedAmount,
		nullableStringValue(payment.Signature),
		nullableTimeValue(payment.CompletedAt),
		metadataJSON,
		payment.CallbackDeliveryStatus,
		payment.CallbackDeliveryAttempts,
		nullableTimeValue(payment.CallbackDeliveryNextAt),
		nullableStringValue(payment.CallbackDeliveryLastErr),
		payment.UpdatedAt,
		payment.ID,
		expectedState,
		expectedRefunded,
	)
	if err != nil {
		return false, err
	}

	return affectedOne(result)
}

// AssignReference stores the payment's reference and moves it to pending. The
// write only lands when no reference is stored yet.
func (r *PaymentRepository) AssignReference(ctx context.Context, id uint64, reference string, now time.Time) (bool, error) {
	query := `
		UPDATE payments SET
			reference = ?,
			state = ?,
			updated_at = ?
		WHERE id = ?
		  AND reference IS NULL
		  AND state IN (?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		reference,
		entity.PaymentStatePending,
		now,
		id,
		entity.PaymentStateNew,
		entity.PaymentStatePending,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return false, ErrReferenceInUse
		}
		return false, err
	}

	return affectedOne(result)
}

// UpdateCallbackDelivery stores the callback bookkeeping of payment while the
// row is still in the state the dispatcher read. A transition that landed in
// between owns the callback columns and the write is reported as
// ErrPaymentStateChanged.
func (r *PaymentRepository) UpdateCallbackDelivery(ctx context.Context, payment *entity.Payment) error {
	query := `
		UPDATE payments SET
			callback_delivery_status = ?,
			callback_delivery_attempts = ?,
			callback_delivery_next_at = ?,
			callback_delivery_last_error = ?,
			updated_at = ?
		WHERE id = ? AND state = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		payment.CallbackDeliveryStatus,
		payment.CallbackDeliveryAttempts,
		nullableTimeValue(payment.CallbackDeliveryNextAt),
		nullableStringValue(payment.CallbackDeliveryLastErr),
		payment.UpdatedAt,
		payment.ID,
		payment.State,
	)
	if err != nil {
		return err
	}

	ok, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPaymentStateChanged
	}
	return nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id uint64) (*entity.Payment, error) {
	return r.findOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
}

func (r *PaymentRepository) FindByCallerRequestID(ctx context.Context, callerService, requestID string) (*entity.Payment, error) {
	return r.findOne(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE caller_service = ? AND request_id = ?
		LIMIT 1
	`, callerService, requestID)
}

func (r *PaymentRepository) FindByStatusToken(ctx context.Context, token string) (*entity.Payment, error) {
	return r.findOne(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE status_token = ?
		LIMIT 1
	`, token)
}

// FindActiveByOrderID returns the newest payment for the order that can still
// be paid.
func (r *PaymentRepository) FindActiveByOrderID(ctx context.Context, callerService, orderID string) (*entity.Payment, error) {
	return r.findOne(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE caller_service = ? AND order_id = ? AND state IN (?, ?)
		ORDER BY id DESC
		LIMIT 1
	`, callerService, orderID, entity.PaymentStateNew, entity.PaymentStatePending)
}

func (r *PaymentRepository) List(ctx context.Context, filter PaymentFilter) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments`

	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 6)

	if strings.TrimSpace(filter.RequestID) != "" {
		conditions = append(conditions, "request_id = ?")
		args = append(args, filter.RequestID)
	}
	if strings.TrimSpace(filter.CallerService) != "" {
		conditions = append(conditions, "caller_service = ?")
		args = append(args, filter.CallerService)
	}
	if strings.TrimSpace(filter.OrderID) != "" {
		conditions = append(conditions, "order_id = ?")
		args = append(args, filter.OrderID)
	}
	if strings.TrimSpace(filter.State) != "" {
		conditions = append(conditions, "state = ?")
		args = append(args, filter.State)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	return r.findMany(ctx, query, args...)
}

func (r *PaymentRepository) ListDueCallbackDispatch(ctx context.Context, now time.Time, limit int32) ([]*entity.Payment, error) {
	return r.findMany(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE callback_delivery_status = ?
		  AND callback_delivery_next_at IS NOT NULL
		  AND callback_delivery_next_at <= ?
		ORDER BY callback_delivery_next_at ASC
		LIMIT ?
	`, entity.CallbackDeliveryPending, now, limit)
}

// ListExpiredPending returns unpaid payments created before cutoff.
func (r *PaymentRepository) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.Payment, error) {
	return r.findMany(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE state IN (?, ?)
		  AND created_at <= ?
		ORDER BY created_at ASC
		LIMIT ?
	`, entity.PaymentStateNew, entity.PaymentStatePending, cutoff, limit)
}

// ListForReconcile returns pending payments with an issued reference that were
// not touched since before.
func (r *PaymentRepository) ListForReconcile(ctx context.Context, before time.Time, limit int32) ([]*entity.Payment, error) {
	return r.findMany(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE state = ?
		  AND reference IS NOT NULL
		  AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`, entity.PaymentStatePending, before, limit)
}

// Touch bumps updated_at so reconcile batches rotate through pending payments.
func (r *PaymentRepository) Touch(ctx context.Context, id uint64, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE payments SET updated_at = ? WHERE id = ? AND state = ?`, now, id, entity.PaymentStatePending)
	return err
}

func (r *PaymentRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.Payment, error) {
	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, args...), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return payment, nil
}

func (r *PaymentRepository) findMany(ctx context.Context, query string, args ...interface{}) ([]*entity.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*entity.Payment, 0)
	for rows.Next() {
		item := &entity.Payment{}
		if err := scanPayment(rows, item); err != nil {
			return nil, err
		}
		payments = append(payments, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(scan rowScanner, payment *entity.Payment) error {
	var reference sql.NullString
	var signature sql.NullString
	var completedAt sql.NullTime
	var metadataJSON string
	var callbackNextAt sql.NullTime
	var callbackLastErr sql.NullString

	err := scan.Scan(
		&payment.ID,
		&payment.RequestID,
		&payment.CallerService,
		&payment.OrderID,
		&payment.Amount,
		&payment.TokenMint,
		&payment.Recipient,
		&reference,
		&payment.StatusToken,
		&payment.Label,
		&payment.Message,
		&payment.State,
		&payment.RefundedAmount,
		&signature,
		&completedAt,
		&payment.StatusCallbackURL,
		&metadataJSON,
		&payment.CallbackDeliveryStatus,
		&payment.CallbackDeliveryAttempts,
		&callbackNextAt,
		&callbackLastErr,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return err
	}

	payment.Reference = stringPtrFromNull(reference)
	payment.Signature = stringPtrFromNull(signature)
	payment.CompletedAt = timePtrFromNull(completedAt)
	payment.CallbackDeliveryNextAt = timePtrFromNull(callbackNextAt)
	payment.CallbackDeliveryLastErr = stringPtrFromNull(callbackLastErr)

	metadata, err := parseMetadata(metadataJSON)
	if err != nil {
		return err
	}
	payment.Metadata = metadata

	return nil
}
