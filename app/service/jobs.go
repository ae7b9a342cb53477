package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-solana-pay/app/entity"
	"github.com/vibast-solutions/ms-go-solana-pay/app/mapper"
	"github.com/vibast-solutions/ms-go-solana-pay/app/repository"
	"github.com/vibast-solutions/ms-go-solana-pay/app/solanapay"
	"github.com/vibast-solutions/ms-go-solana-pay/app/types"
)

// RunReconcileBatch re-verifies pending payments whose page may have been
// closed before the poller saw the transfer.
func (s *PaymentService) RunReconcileBatch(ctx context.Context) error {
	now := time.Now().UTC()
	before := now.Add(-s.paymentsCfg.ReconcileStaleAfter)
	items, err := s.paymentRepo.ListForReconcile(ctx, before, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, payment := range items {
		if payment == nil || !payment.HasReference() {
			continue
		}

		result, err := s.VerifyPayment(ctx, payment.ID)
		if err != nil {
			if !errors.Is(err, ErrInvalidStatus) {
				firstErr = keepFirstErr(firstErr, err)
			}
			continue
		}
		if result.Matched {
			continue
		}

		if err := s.paymentRepo.Touch(ctx, payment.ID, now); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func (s *PaymentService) RunDispatchCallbacksBatch(ctx context.Context) error {
	now := time.Now().UTC()
	items, err := s.paymentRepo.ListDueCallbackDispatch(ctx, now, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, payment := range items {
		if payment == nil {
			continue
		}
		err := s.dispatchCallback(ctx, payment, now)
		if errors.Is(err, repository.ErrPaymentStateChanged) {
			// the newer transition queued its own callback
			continue
		}
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

// RunExpirePendingBatch cancels payments left unpaid past the pending
// timeout. A payment with an issued reference gets one last chain check
// first, so a late transfer still completes it.
func (s *PaymentService) RunExpirePendingBatch(ctx context.Context) error {
	now := time.Now().UTC()
	cutoff := now.Add(-s.paymentsCfg.PendingTimeout)
	items, err := s.paymentRepo.ListExpiredPending(ctx, cutoff, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, payment := range items {
		if payment == nil {
			continue
		}

		if payment.State == entity.PaymentStatePending && payment.HasReference() {
			result, err := s.VerifyPayment(ctx, payment.ID)
			if err != nil {
				firstErr = keepFirstErr(firstErr, err)
				continue
			}
			if result.Outcome == solanapay.OutcomeError {
				// Node unreachable: keep the payment for the next run.
				continue
			}
			if result.Payment.State != entity.PaymentStatePending {
				continue
			}
			payment = result.Payment
		}

		_, err := s.transition(ctx, payment, "payment_expired", func(next *entity.Payment) {
			next.State = entity.PaymentStateCanceled
		})
		if err != nil && !errors.Is(err, ErrStateConflict) {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func (s *PaymentService) dispatchCallback(ctx context.Context, payment *entity.Payment, now time.Time) error {
	if strings.TrimSpace(payment.StatusCallbackURL) == "" {
		errMsg := "status_callback_url is empty"
		payment.CallbackDeliveryStatus = entity.CallbackDeliveryFailed
		payment.CallbackDeliveryNextAt = nil
		payment.CallbackDeliveryLastErr = &errMsg
		payment.UpdatedAt = now
		return s.paymentRepo.UpdateCallbackDelivery(ctx, payment)
	}

	payload := &types.PaymentEnvelopeResponse{Payment: mapper.PaymentToResponse(payment, mapper.Display{})}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, payment.StatusCallbackURL, bytes.NewReader(body))
	if err != nil {
		return s.recordDispatchFailure(ctx, payment, now, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", payment.RequestID)
	if s.appAPIKey != "" {
		req.Header.Set("X-API-Key", s.appAPIKey)
	}

	resp, err := s.callbackHTTP.Do(req)
	if err != nil {
		return s.recordDispatchFailure(ctx, payment, now, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return s.recordDispatchFailure(ctx, payment, now, fmt.Errorf("callback endpoint returned status=%d", resp.StatusCode))
	}

	payment.CallbackDeliveryStatus = entity.CallbackDeliverySuccess
	payment.CallbackDeliveryNextAt = nil
	payment.CallbackDeliveryLastErr = nil
	payment.UpdatedAt = now

	if err := s.paymentRepo.UpdateCallbackDelivery(ctx, payment); err != nil {
		return err
	}

	_ = s.eventRepo.Create(ctx, &entity.PaymentEvent{
		PaymentID: payment.ID,
		EventType: "callback_dispatched",
		NewState:  payment.State,
		CreatedAt: now,
	})

	return nil
}

func (s *PaymentService) recordDispatchFailure(ctx context.Context, payment *entity.Payment, now time.Time, dispatchErr error) error {
	payment.CallbackDeliveryAttempts++
	trimmed := truncate(dispatchErr.Error(), 1024)
	payment.CallbackDeliveryLastErr = &trimmed

	maxAttempts := s.paymentsCfg.CallbackMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	if payment.CallbackDeliveryAttempts >= maxAttempts {
		payment.CallbackDeliveryStatus = entity.CallbackDeliveryFailed
		payment.CallbackDeliveryNextAt = nil
	} else {
		retryInterval := s.paymentsCfg.CallbackRetryInterval
		if retryInterval <= 0 {
			retryInterval = 5 * time.Minute
		}
		next := now.Add(retryInterval)
		payment.CallbackDeliveryStatus = entity.CallbackDeliveryPending
		payment.CallbackDeliveryNextAt = &next
	}
	payment.UpdatedAt = now

	if err := s.paymentRepo.UpdateCallbackDelivery(ctx, payment); err != nil {
		return err
	}

	_ = s.eventRepo.Create(ctx, &entity.PaymentEvent{
		PaymentID: payment.ID,
		EventType: "callback_dispatch_failed",
		NewState:  payment.State,
		CreatedAt: now,
	})

	return dispatchErr
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
