package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-solana-pay/app/entity"
	"github.com/vibast-solutions/ms-go-solana-pay/app/metrics"
	"github.com/vibast-solutions/ms-go-solana-pay/app/provider"
	"github.com/vibast-solutions/ms-go-solana-pay/app/repository"
	"github.com/vibast-solutions/ms-go-solana-pay/app/solanapay"
	"github.com/vibast-solutions/ms-go-solana-pay/app/wallet"
	"github.com/vibast-solutions/ms-go-solana-pay/config"
)

// Public status values served to the payment page poller.
const (
	PublicStatusPending   = "pending"
	PublicStatusConfirmed = "confirmed"
)

const defaultVerificationListLimit = int32(50)

type CheckoutResult struct {
	Payment    *entity.Payment
	PaymentURL string
	StatusURL  string
	Poll       config.PollerConfig
	Reused     bool
}

type WalletBalance struct {
	Address  string
	Lamports uint64
	SOL      decimal.Decimal
	Endpoint provider.Endpoint
}

// IssuePaymentRequest returns the solana: URI for a payment, generating its
// reference on first use. Every later call hands out the same reference so a
// reloaded payment page never orphans a transfer already in flight.
func (s *PaymentService) IssuePaymentRequest(ctx context.Context, id uint64) (*CheckoutResult, error) {
	payment, err := s.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.State != entity.PaymentStateNew && payment.State != entity.PaymentStatePending {
		return nil, fmt.Errorf("%w: payment is %s", ErrInvalidStatus, payment.State)
	}
	if strings.TrimSpace(payment.Recipient) == "" {
		return nil, ErrConfiguration
	}

	reused := payment.HasReference()
	if !reused {
		payment, reused, err = s.assignReference(ctx, payment)
		if err != nil {
			return nil, err
		}
	}

	paymentURL, err := solanapay.BuildURL(solanapay.PaymentRequest{
		Recipient: payment.Recipient,
		Amount:    payment.Amount,
		TokenMint: payment.TokenMint,
		Reference: *payment.Reference,
		Label:     payment.Label,
		Message:   payment.Message,
	})
	if err != nil {
		if errors.Is(err, solanapay.ErrConfiguration) {
			return nil, ErrConfiguration
		}
		return nil, err
	}
	metrics.IncPaymentRequestIssued(reused)

	return &CheckoutResult{
		Payment:    payment,
		PaymentURL: paymentURL,
		StatusURL:  s.StatusURL(payment),
		Poll:       s.pollerCfg,
		Reused:     reused,
	}, nil
}

// assignReference stores a fresh reference. When a concurrent request stored
// one first, that stored reference wins and is returned instead.
func (s *PaymentService) assignReference(ctx context.Context, payment *entity.Payment) (*entity.Payment, bool, error) {
	key, err := s.references.Generate()
	if err != nil {
		if errors.Is(err, solanapay.ErrCryptoUnavailable) {
			return nil, false, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		return nil, false, err
	}

	reference := key.String()
	assigned, err := s.paymentRepo.AssignReference(ctx, payment.ID, reference, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrReferenceInUse) {
			return nil, false, fmt.Errorf("%w: reference collision", ErrStateConflict)
		}
		return nil, false, err
	}

	stored, err := s.GetPayment(ctx, payment.ID)
	if err != nil {
		return nil, false, err
	}
	if !stored.HasReference() {
		return nil, false, fmt.Errorf("%w: payment is %s", ErrInvalidStatus, stored.State)
	}
	if !assigned {
		return stored, true, nil
	}

	oldState := payment.State
	_ = s.eventRepo.Create(ctx, &entity.PaymentEvent{
		PaymentID: stored.ID,
		EventType: "payment_request_issued",
		OldState:  &oldState,
		NewState:  stored.State,
		CreatedAt: stored.UpdatedAt,
	})
	if oldState != stored.State {
		metrics.IncStateTransition(oldState, stored.State)
	}

	return stored, false, nil
}

func (s *PaymentService) StatusURL(payment *entity.Payment) string {
	return s.publicBaseURL + "/pay/" + payment.StatusToken + "/status"
}

// GetPublicStatus answers the payment page poller. A pending payment is
// verified on the spot, so polling alone is enough to complete it.
func (s *PaymentService) GetPublicStatus(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidRequest
	}

	payment, err := s.paymentRepo.FindByStatusToken(ctx, token)
	if err != nil {
		return "", err
	}
	if payment == nil {
		return "", ErrPaymentNotFound
	}

	if payment.State == entity.PaymentStatePending && payment.HasReference() {
		result, err := s.VerifyPayment(ctx, payment.ID)
		if err != nil {
			return "", err
		}
		payment = result.Payment
	}

	return publicStatus(payment.State), nil
}

func (s *PaymentService) ListVerifications(ctx context.Context, id uint64) ([]*entity.PaymentVerification, error) {
	if _, err := s.GetPayment(ctx, id); err != nil {
		return nil, err
	}
	return s.verificationRepo.ListByPayment(ctx, id, defaultVerificationListLimit)
}

// WalletBalance reads an address balance through the named RPC endpoint, or
// the default one when endpointKey is empty.
func (s *PaymentService) WalletBalance(ctx context.Context, address, endpointKey string) (*WalletBalance, error) {
	address = strings.TrimSpace(address)
	if err := wallet.Validate(address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	lamports, endpoint, err := s.endpoints.Balance(ctx, endpointKey, address)
	if err != nil {
		if errors.Is(err, provider.ErrEndpointNotFound) {
			return nil, ErrEndpointNotFound
		}
		if errors.Is(err, provider.ErrInvalidAddress) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return nil, err
	}

	return &WalletBalance{
		Address:  address,
		Lamports: lamports,
		SOL:      solanapay.FromLamports(lamports),
		Endpoint: endpoint,
	}, nil
}

func publicStatus(state string) string {
	switch state {
	case entity.PaymentStateNew, entity.PaymentStatePending:
		return PublicStatusPending
	case entity.PaymentStateCompleted, entity.PaymentStatePartiallyRefunded, entity.PaymentStateRefunded:
		return PublicStatusConfirmed
	default:
		return state
	}
}
