package mapper

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-solana-pay/app/entity"
	"github.com/vibast-solutions/ms-go-solana-pay/app/provider"
	"github.com/vibast-solutions/ms-go-solana-pay/app/wallet"
	"github.com/vibast-solutions/ms-go-solana-pay/config"
)

func TestPaymentToResponse(t *testing.T) {
	reference := "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	signature := "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"
	completedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	item := &entity.Payment{
		ID:             9,
		OrderID:        "42",
		Amount:         decimal.RequireFromString("1.500000000"),
		Recipient:      "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		Reference:      &reference,
		StatusToken:    "tok",
		State:          entity.PaymentStateCompleted,
		RefundedAmount: decimal.Zero,
		Signature:      &signature,
		CompletedAt:    &completedAt,
		CreatedAt:      completedAt.Add(-time.Minute),
		UpdatedAt:      completedAt,
	}

	out := PaymentToResponse(item, Display{Explorer: wallet.ExplorerOfficial, TrimLength: 4})
	if out.Amount != "1.5" || out.RefundedAmount != "0" {
		t.Fatalf("unexpected amounts: %s / %s", out.Amount, out.RefundedAmount)
	}
	if out.RecipientDisplay != "9WzD...AWWM" {
		t.Fatalf("unexpected recipient display: %s", out.RecipientDisplay)
	}
	if out.ExplorerUrl != "https://explorer.solana.com/address/"+item.Recipient {
		t.Fatalf("unexpected explorer url: %s", out.ExplorerUrl)
	}
	if out.TransactionUrl != "https://explorer.solana.com/tx/"+signature {
		t.Fatalf("unexpected transaction url: %s", out.TransactionUrl)
	}
	if out.Reference != reference || out.CompletedAt != "2026-03-01T12:00:00Z" {
		t.Fatalf("unexpected reference/completed_at: %+v", out)
	}
	if out.Metadata == nil {
		t.Fatal("expected non-nil metadata map")
	}
}

func TestPaymentToResponseWithoutOptionalFields(t *testing.T) {
	item := &entity.Payment{
		Amount:    decimal.RequireFromString("2"),
		Recipient: "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		State:     entity.PaymentStateNew,
	}

	out := PaymentToResponse(item, Display{})
	if out.Reference != "" || out.Signature != "" || out.TransactionUrl != "" || out.CompletedAt != "" {
		t.Fatalf("expected empty optional fields, got %+v", out)
	}
	if out.ExplorerUrl != "https://solscan.io/account/"+item.Recipient {
		t.Fatalf("expected default explorer, got %s", out.ExplorerUrl)
	}
	if PaymentToResponse(nil, Display{}) != nil {
		t.Fatal("expected nil for nil payment")
	}
}

func TestPollSettingsToResponse(t *testing.T) {
	out := PollSettingsToResponse(config.PollerConfig{
		InitialDelay:  3 * time.Second,
		Interval:      3 * time.Second,
		MaxAttempts:   40,
		RedirectDelay: 2 * time.Second,
	})
	if out.InitialDelayMs != 3000 || out.IntervalMs != 3000 || out.MaxAttempts != 40 || out.RedirectDelayMs != 2000 {
		t.Fatalf("unexpected poll settings: %+v", out)
	}
}

func TestWalletBalanceToResponse(t *testing.T) {
	address := "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	out := WalletBalanceToResponse(address, 1_500_000_001, provider.Endpoint{Key: "devnet", Name: "Devnet"}, Display{TrimLength: 6})
	if out.Sol != "1.500000001" || out.Lamports != 1_500_000_001 {
		t.Fatalf("unexpected amounts: %+v", out)
	}
	if out.AddressDisplay != "9WzDXw...YtAWWM" {
		t.Fatalf("unexpected display: %s", out.AddressDisplay)
	}
	if out.Endpoint != "devnet" || out.EndpointName != "Devnet" {
		t.Fatalf("unexpected endpoint: %+v", out)
	}
}
