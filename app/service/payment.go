package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-solana-pay/app/entity"
	"github.com/vibast-solutions/ms-go-solana-pay/app/factory"
	"github.com/vibast-solutions/ms-go-solana-pay/app/metrics"
	"github.com/vibast-solutions/ms-go-solana-pay/app/provider"
	"github.com/vibast-solutions/ms-go-solana-pay/app/repository"
	"github.com/vibast-solutions/ms-go-solana-pay/app/solanapay"
	"github.com/vibast-solutions/ms-go-solana-pay/app/wallet"
	"github.com/vibast-solutions/ms-go-solana-pay/config"
	"golang.org/x/sync/singleflight"
)

const (
	defaultListLimit = int32(100)
	defaultBatchSize = int32(100)
)

type createPaymentRequest interface {
	GetRequestId() string
	GetCallerService() string
	GetOrderId() string
	GetAmount() string
	GetTokenMint() string
	GetLabel() string
	GetMessage() string
	GetStatusCallbackUrl() string
	GetMetadata() map[string]string
}

type listPaymentsRequest interface {
	GetRequestId() string
	GetCallerService() string
	GetOrderId() string
	GetState() string
	GetLimit() int32
	GetOffset() int32
}

type paymentActionRequest interface {
	GetId() uint64
	GetReason() string
}

type refundPaymentRequest interface {
	GetId() uint64
	GetAmount() string
	GetReason() string
}

type paymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	UpdateIfState(ctx context.Context, payment *entity.Payment, expectedState string, expectedRefunded decimal.Decimal) (bool, error)
	AssignReference(ctx context.Context, id uint64, reference string, now time.Time) (bool, error)
	UpdateCallbackDelivery(ctx context.Context, payment *entity.Payment) error
	FindByID(ctx context.Context, id uint64) (*entity.Payment, error)
	FindByCallerRequestID(ctx context.Context, callerService, requestID string) (*entity.Payment, error)
	FindByStatusToken(ctx context.Context, token string) (*entity.Payment, error)
	FindActiveByOrderID(ctx context.Context, callerService, orderID string) (*entity.Payment, error)
	List(ctx context.Context, filter repository.PaymentFilter) ([]*entity.Payment, error)
	ListDueCallbackDispatch(ctx context.Context, now time.Time, limit int32) ([]*entity.Payment, error)
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.Payment, error)
	ListForReconcile(ctx context.Context, before time.Time, limit int32) ([]*entity.Payment, error)
	Touch(ctx context.Context, id uint64, now time.Time) error
}

type paymentEventRepository interface {
	Create(ctx context.Context, event *entity.PaymentEvent) error
}

type paymentVerificationRepository interface {
	Create(ctx context.Context, verification *entity.PaymentVerification) error
	ListByPayment(ctx context.Context, paymentID uint64, limit int32) ([]*entity.PaymentVerification, error)
}

type referenceGenerator interface {
	Generate() (solana.PublicKey, error)
}

type paymentVerifier interface {
	Check(ctx context.Context, reference string, expectedAmount decimal.Decimal, expectedRecipient string) (solanapay.Result, error)
}

type rpcEndpoints interface {
	DefaultKey() string
	Balance(ctx context.Context, key, address string) (uint64, provider.Endpoint, error)
}

type PaymentService struct {
	paymentRepo      paymentRepository
	eventRepo        paymentEventRepository
	verificationRepo paymentVerificationRepository
	references       referenceGenerator
	verifier         paymentVerifier
	endpoints        rpcEndpoints
	merchantWallet   string
	publicBaseURL    string
	pollerCfg        config.PollerConfig
	paymentsCfg      config.PaymentsConfig
	appAPIKey        string
	callbackHTTP     *http.Client
	verifyGroup      singleflight.Group
	logger           logrus.FieldLogger
}

func NewPaymentService(
	paymentRepo paymentRepository,
	eventRepo paymentEventRepository,
	verificationRepo paymentVerificationRepository,
	references referenceGenerator,
	verifier paymentVerifier,
	endpoints rpcEndpoints,
	cfg *config.Config,
) *PaymentService {
	timeout := cfg.Payments.CallbackHTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &PaymentService{
		paymentRepo:      paymentRepo,
		eventRepo:        eventRepo,
		verificationRepo: verificationRepo,
		references:       references,
		verifier:         verifier,
		endpoints:        endpoints,
		merchantWallet:   strings.TrimSpace(cfg.Solana.MerchantWallet),
		publicBaseURL:    strings.TrimRight(cfg.App.PublicBaseURL, "/"),
		pollerCfg:        cfg.Poller,
		paymentsCfg:      cfg.Payments,
		appAPIKey:        strings.TrimSpace(cfg.App.APIKey),
		callbackHTTP:     &http.Client{Timeout: timeout},
		logger:           factory.NewModuleLogger("payment-service"),
	}
}

// CreatePayment registers a payment for an order. Retries with the same
// (caller_service, request_id) return the stored payment. An order keeps at
// most one payable payment: one with the same amount is reused, any other is
// superseded.
func (s *PaymentService) CreatePayment(ctx context.Context, req createPaymentRequest) (*entity.Payment, error) {
	requestID := strings.TrimSpace(req.GetRequestId())
	callerService := strings.TrimSpace(req.GetCallerService())
	orderID := strings.TrimSpace(req.GetOrderId())
	if requestID == "" || callerService == "" || orderID == "" {
		return nil, ErrInvalidRequest
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.GetAmount()))
	if err != nil || solanapay.ValidateAmount(amount) != nil {
		return nil, ErrInvalidAmount
	}

	tokenMint := strings.TrimSpace(req.GetTokenMint())
	if tokenMint != "" && tokenMint != solanapay.NativeMint {
		return nil, fmt.Errorf("%w: only native SOL payments are supported", ErrInvalidRequest)
	}
	tokenMint = solanapay.NativeMint

	if s.merchantWallet == "" || wallet.Validate(s.merchantWallet) != nil {
		return nil, ErrConfiguration
	}

	existing, err := s.paymentRepo.FindByCallerRequestID(ctx, callerService, requestID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	active, err := s.paymentRepo.FindActiveByOrderID(ctx, callerService, orderID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		if active.Amount.Equal(amount) && active.Recipient == s.merchantWallet {
			return active, nil
		}
		if _, err := s.transition(ctx, active, "payment_superseded", func(next *entity.Payment) {
			next.State = entity.PaymentStateCanceled
		}); err != nil && !errors.Is(err, ErrStateConflict) {
			return nil, err
		}
	}

	label := strings.TrimSpace(req.GetLabel())
	if label == "" {
		label = "Payment for order #" + orderID
	}
	message := strings.TrimSpace(req.GetMessage())
	if message == "" {
		message = "Order #" + orderID
	}

	now := time.Now().UTC()
	payment := &entity.Payment{
		RequestID:              requestID,
		CallerService:          callerService,
		OrderID:                orderID,
		Amount:                 amount,
		TokenMint:              tokenMint,
		Recipient:              s.merchantWallet,
		StatusToken:            uuid.NewString(),
		Label:                  label,
		Message:                message,
		State:                  entity.PaymentStateNew,
		RefundedAmount:         decimal.Zero,
		StatusCallbackURL:      strings.TrimSpace(req.GetStatusCallbackUrl()),
		Metadata:               cloneMetadata(req.GetMetadata()),
		CallbackDeliveryStatus: entity.CallbackDeliveryNone,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrPaymentAlreadyExists) {
			return nil, ErrPaymentAlreadyExists
		}
		return nil, err
	}

	_ = s.eventRepo.Create(ctx, &entity.PaymentEvent{
		PaymentID: payment.ID,
		EventType: "payment_created",
		NewState:  payment.State,
		CreatedAt: now,
	})
	metrics.IncStateTransition("", payment.State)

	return payment, nil
}

func (s *PaymentService) GetPayment(ctx context.Context, id uint64) (*entity.Payment, error) {
	payment, err := s.paymentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

func (s *PaymentService) ListPayments(ctx context.Context, req listPaymentsRequest) ([]*entity.Payment, error) {
	limit := req.GetLimit()
	if limit <= 0 {
		limit = defaultListLimit
	}

	filter := repository.PaymentFilter{
		RequestID:     strings.TrimSpace(req.GetRequestId()),
		CallerService: strings.TrimSpace(req.GetCallerService()),
		OrderID:       strings.TrimSpace(req.GetOrderId()),
		State:         strings.TrimSpace(req.GetState()),
		Limit:         limit,
		Offset:        req.GetOffset(),
	}

	return s.paymentRepo.List(ctx, filter)
}

// ReceivePayment records a payment confirmed outside the chain scan, e.g. by
// an operator who saw the transfer in a wallet.
func (s *PaymentService) ReceivePayment(ctx context.Context, req paymentActionRequest) (*entity.Payment, error) {
	payment, err := s.GetPayment(ctx, req.GetId())
	if err != nil {
		return nil, err
	}
	if payment.State != entity.PaymentStatePending {
		return nil, fmt.Errorf("%w: only pending payments can be received", ErrInvalidStatus)
	}

	return s.transition(ctx, payment, "payment_received", func(next *entity.Payment) {
		now := time.Now().UTC()
		next.State = entity.PaymentStateCompleted
		next.CompletedAt = &now
		next.Metadata = withReason(next.Metadata, req.GetReason())
	})
}

func (s *PaymentService) VoidPayment(ctx context.Context, req paymentActionRequest) (*entity.Payment, error) {
	payment, err := s.GetPayment(ctx, req.GetId())
	if err != nil {
		return nil, err
	}
	if payment.State != entity.PaymentStatePending {
		return nil, fmt.Errorf("%w: only pending payments can be voided", ErrInvalidStatus)
	}

	return s.transition(ctx, payment, "payment_voided", func(next *entity.Payment) {
		next.State = entity.PaymentStateVoided
		next.Metadata = withReason(next.Metadata, req.GetReason())
	})
}

// RefundPayment books a refund against a completed payment. An empty amount
// refunds whatever has not been refunded yet.
func (s *PaymentService) RefundPayment(ctx context.Context, req refundPaymentRequest) (*entity.Payment, error) {
	payment, err := s.GetPayment(ctx, req.GetId())
	if err != nil {
		return nil, err
	}
	if payment.State != entity.PaymentStateCompleted && payment.State != entity.PaymentStatePartiallyRefunded {
		return nil, fmt.Errorf("%w: only completed payments can be refunded", ErrInvalidStatus)
	}

	remaining := payment.RemainingAmount()
	amount := remaining
	if raw := strings.TrimSpace(req.GetAmount()); raw != "" {
		amount, err = decimal.NewFromString(raw)
		if err != nil || solanapay.ValidateAmount(amount) != nil {
			return nil, ErrInvalidAmount
		}
	}
	if !amount.IsPositive() || amount.GreaterThan(remaining) {
		return nil, fmt.Errorf("%w: refund exceeds the remaining %s", ErrInvalidAmount, solanapay.FormatAmount(remaining))
	}

	return s.transition(ctx, payment, "payment_refunded", func(next *entity.Payment) {
		next.RefundedAmount = next.RefundedAmount.Add(amount)
		if next.RefundedAmount.LessThan(next.Amount) {
			next.State = entity.PaymentStatePartiallyRefunded
		} else {
			next.State = entity.PaymentStateRefunded
		}
		next.Metadata = withReason(next.Metadata, req.GetReason())
	})
}

func (s *PaymentService) CancelPayment(ctx context.Context, req paymentActionRequest) (*entity.Payment, error) {
	payment, err := s.GetPayment(ctx, req.GetId())
	if err != nil {
		return nil, err
	}
	if payment.State != entity.PaymentStateNew && payment.State != entity.PaymentStatePending {
		return nil, fmt.Errorf("%w: only unpaid payments can be canceled", ErrInvalidStatus)
	}

	return s.transition(ctx, payment, "payment_canceled", func(next *entity.Payment) {
		next.State = entity.PaymentStateCanceled
		next.Metadata = withReason(next.Metadata, req.GetReason())
	})
}

// transition applies mutate to a copy of current and stores it only if the
// row still holds current.State and current.RefundedAmount. Losing that race
// yields ErrStateConflict.
func (s *PaymentService) transition(
	ctx context.Context,
	current *entity.Payment,
	eventType string,
	mutate func(next *entity.Payment),
) (*entity.Payment, error) {
	now := time.Now().UTC()
	next := *current
	mutate(&next)
	next.UpdatedAt = now

	if next.State != current.State && notifiableState(next.State) && next.StatusCallbackURL != "" {
		s.markForCallbackDelivery(&next, now)
	}

	ok, err := s.paymentRepo.UpdateIfState(ctx, &next, current.State, current.RefundedAmount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStateConflict
	}

	oldState := current.State
	_ = s.eventRepo.Create(ctx, &entity.PaymentEvent{
		PaymentID: next.ID,
		EventType: eventType,
		OldState:  &oldState,
		NewState:  next.State,
		Signature: next.Signature,
		CreatedAt: now,
	})
	if next.State != oldState {
		metrics.IncStateTransition(oldState, next.State)
	}

	return &next, nil
}

func (s *PaymentService) markForCallbackDelivery(payment *entity.Payment, now time.Time) {
	payment.CallbackDeliveryStatus = entity.CallbackDeliveryPending
	payment.CallbackDeliveryAttempts = 0
	payment.CallbackDeliveryNextAt = &now
	payment.CallbackDeliveryLastErr = nil
}

func (s *PaymentService) batchSize() int32 {
	if s.paymentsCfg.JobBatchSize > 0 {
		return s.paymentsCfg.JobBatchSize
	}
	return defaultBatchSize
}

// notifiableState reports whether callers get a status callback on entering state.
func notifiableState(state string) bool {
	switch state {
	case entity.PaymentStateCompleted,
		entity.PaymentStatePartiallyRefunded,
		entity.PaymentStateRefunded,
		entity.PaymentStateVoided,
		entity.PaymentStateCanceled:
		return true
	default:
		return false
	}
}

func withReason(metadata map[string]string, reason string) map[string]string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return metadata
	}
	out := cloneMetadata(metadata)
	out["reason"] = truncate(reason, 255)
	return out
}

func cloneMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return map[string]string{}
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
