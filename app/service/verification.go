package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-solana-pay/app/entity"
	"github.com/vibast-solutions/ms-go-solana-pay/app/metrics"
	"github.com/vibast-solutions/ms-go-solana-pay/app/solanapay"
	"golang.org/x/sync/singleflight"
)

type VerificationResult struct {
	Payment *entity.Payment
	Outcome solanapay.Outcome
	Matched bool
}

// VerifyPayment checks the chain for the payment's transfer and completes the
// payment when one matches. Concurrent calls for the same payment share one
// chain lookup, and the pending to completed write only lands once.
// Inconclusive lookups are not errors: the result reports the outcome and the
// payment stays pending. The shared lookup outlives the caller that started
// it, so a caller going away does not fail the ones that joined.
func (s *PaymentService) VerifyPayment(ctx context.Context, id uint64) (*VerificationResult, error) {
	shareCtx := context.WithoutCancel(ctx)
	ch := s.verifyGroup.DoChan(strconv.FormatUint(id, 10), func() (interface{}, error) {
		return s.verifyPayment(shareCtx, id)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}

	shared := res.Val.(*VerificationResult)
	return &VerificationResult{Payment: shared.Payment, Outcome: shared.Outcome, Matched: shared.Matched}, nil
}

func (s *PaymentService) verifyPayment(ctx context.Context, id uint64) (*VerificationResult, error) {
	payment, err := s.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}

	switch payment.State {
	case entity.PaymentStateCompleted, entity.PaymentStatePartiallyRefunded, entity.PaymentStateRefunded:
		return &VerificationResult{Payment: payment, Outcome: solanapay.OutcomeConfirmed, Matched: true}, nil
	case entity.PaymentStatePending:
	default:
		return nil, fmt.Errorf("%w: payment is %s", ErrInvalidStatus, payment.State)
	}
	if !payment.HasReference() {
		return nil, fmt.Errorf("%w: no payment request was issued", ErrInvalidStatus)
	}

	started := time.Now()
	result, checkErr := s.verifier.Check(ctx, *payment.Reference, payment.Amount, payment.Recipient)
	elapsed := time.Since(started)

	s.recordVerification(ctx, payment, result, checkErr, elapsed)

	if !result.Matched() {
		return &VerificationResult{Payment: payment, Outcome: result.Outcome}, nil
	}

	signature := result.Signature
	completed, err := s.transition(ctx, payment, "payment_completed", func(next *entity.Payment) {
		now := time.Now().UTC()
		next.State = entity.PaymentStateCompleted
		next.Signature = &signature
		next.CompletedAt = &now
	})
	if err == nil {
		return &VerificationResult{Payment: completed, Outcome: result.Outcome, Matched: true}, nil
	}
	if !errors.Is(err, ErrStateConflict) {
		return nil, err
	}

	// Another writer moved the payment first; report what it stored.
	current, err := s.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"payment_id": id,
		"state":      current.State,
	}).Debug("payment completed by a concurrent writer")

	return &VerificationResult{
		Payment: current,
		Outcome: result.Outcome,
		Matched: current.State == entity.PaymentStateCompleted,
	}, nil
}

func (s *PaymentService) recordVerification(
	ctx context.Context,
	payment *entity.Payment,
	result solanapay.Result,
	checkErr error,
	elapsed time.Duration,
) {
	endpoint := s.endpoints.DefaultKey()
	metrics.ObserveVerification(string(result.Outcome), endpoint, elapsed)

	item := &entity.PaymentVerification{
		PaymentID:  payment.ID,
		Reference:  *payment.Reference,
		Endpoint:   endpoint,
		Outcome:    string(result.Outcome),
		Signature:  optionalString(result.Signature),
		Reason:     optionalString(truncate(result.Reason, 255)),
		DurationMs: elapsed.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if checkErr != nil {
		msg := truncate(checkErr.Error(), 1024)
		item.Error = &msg
		s.logger.WithError(checkErr).WithFields(logrus.Fields{
			"payment_id": payment.ID,
			"endpoint":   endpoint,
		}).Warn("payment verification inconclusive")
	}

	_ = s.verificationRepo.Create(ctx, item)
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
