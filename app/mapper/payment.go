package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-solana-pay/app/entity"
	"github.com/vibast-solutions/ms-go-solana-pay/app/provider"
	"github.com/vibast-solutions/ms-go-solana-pay/app/solanapay"
	"github.com/vibast-solutions/ms-go-solana-pay/app/types"
	"github.com/vibast-solutions/ms-go-solana-pay/app/wallet"
	"github.com/vibast-solutions/ms-go-solana-pay/config"
)

// Display controls how wallet addresses and signatures are rendered.
type Display struct {
	Explorer   string
	TrimLength int
}

func PaymentToResponse(item *entity.Payment, display Display) *types.Payment {
	if item == nil {
		return nil
	}

	out := &types.Payment{
		Id:                item.ID,
		RequestId:         item.RequestID,
		CallerService:     item.CallerService,
		OrderId:           item.OrderID,
		Amount:            item.Amount.String(),
		TokenMint:         item.TokenMint,
		Recipient:         item.Recipient,
		RecipientDisplay:  wallet.Abbreviate(item.Recipient, display.TrimLength),
		ExplorerUrl:       wallet.ExplorerURL(item.Recipient, display.Explorer),
		Reference:         derefString(item.Reference),
		StatusToken:       item.StatusToken,
		Label:             item.Label,
		Message:           item.Message,
		State:             item.State,
		RefundedAmount:    item.RefundedAmount.String(),
		Signature:         derefString(item.Signature),
		StatusCallbackUrl: item.StatusCallbackURL,
		Metadata:          cloneMetadata(item.Metadata),
		CreatedAt:         item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         item.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if out.Signature != "" {
		out.TransactionUrl = wallet.TransactionURL(out.Signature, display.Explorer)
	}
	if item.CompletedAt != nil {
		out.CompletedAt = item.CompletedAt.UTC().Format(time.RFC3339)
	}

	return out
}

func PaymentsToResponse(items []*entity.Payment, display Display) []*types.Payment {
	result := make([]*types.Payment, 0, len(items))
	for _, item := range items {
		result = append(result, PaymentToResponse(item, display))
	}
	return result
}

func VerificationsToResponse(items []*entity.PaymentVerification) []*types.PaymentVerification {
	result := make([]*types.PaymentVerification, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		result = append(result, &types.PaymentVerification{
			Id:         item.ID,
			Endpoint:   item.Endpoint,
			Outcome:    item.Outcome,
			Signature:  derefString(item.Signature),
			Reason:     derefString(item.Reason),
			Error:      derefString(item.Error),
			DurationMs: item.DurationMs,
			CreatedAt:  item.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return result
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
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

func PollSettingsToResponse(cfg config.PollerConfig) *types.PollSettings {
	return &types.PollSettings{
		InitialDelayMs:  cfg.InitialDelay.Milliseconds(),
		IntervalMs:      cfg.Interval.Milliseconds(),
		MaxAttempts:     cfg.MaxAttempts,
		RedirectDelayMs: cfg.RedirectDelay.Milliseconds(),
	}
}

func WalletBalanceToResponse(address string, lamports uint64, endpoint provider.Endpoint, display Display) *types.WalletBalanceResponse {
	return &types.WalletBalanceResponse{
		Address:        address,
		AddressDisplay: wallet.Abbreviate(address, display.TrimLength),
		Lamports:       lamports,
		Sol:            solanapay.FormatAmount(solanapay.FromLamports(lamports)),
		Endpoint:       endpoint.Key,
		EndpointName:   endpoint.Name,
		ExplorerUrl:    wallet.ExplorerURL(address, display.Explorer),
	}
}
