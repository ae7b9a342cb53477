package solanapay

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

func newTestRequest(t *testing.T) PaymentRequest {
	t.Helper()
	reference, err := NewReferenceGenerator().Generate()
	if err != nil {
		t.Fatalf("generate reference: %v", err)
	}
	return PaymentRequest{
		Recipient: solana.NewWallet().PublicKey().String(),
		Amount:    decimal.RequireFromString("1.25"),
		Reference: reference.String(),
		Label:     "Payment for order #42",
		Message:   "Order #42 & co / thanks?",
	}
}

func TestBuildURLEncodesSolanaPayTransfer(t *testing.T) {
	req := newTestRequest(t)

	raw, err := BuildURL(req)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	expected := "solana:" + req.Recipient +
		"?recipient=" + req.Recipient +
		"&amount=1.25" +
		"&reference=" + req.Reference +
		"&label=" + url.QueryEscape(req.Label) +
		"&message=" + url.QueryEscape(req.Message)
	if raw != expected {
		t.Fatalf("unexpected url:\n got %s\nwant %s", raw, expected)
	}
}

func TestBuildURLIncludesSPLTokenForNonNativeMint(t *testing.T) {
	req := newTestRequest(t)
	req.TokenMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

	raw, err := BuildURL(req)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !strings.Contains(raw, "&amount=1.25&spl-token="+req.TokenMint+"&reference=") {
		t.Fatalf("expected spl-token between amount and reference, got %s", raw)
	}

	req.TokenMint = NativeMint
	raw, err = BuildURL(req)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if strings.Contains(raw, "spl-token") {
		t.Fatalf("expected native mint to omit spl-token, got %s", raw)
	}
}

func TestBuildURLRequiresRecipient(t *testing.T) {
	req := newTestRequest(t)
	req.Recipient = "  "

	_, err := BuildURL(req)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestBuildURLRequiresReference(t *testing.T) {
	req := newTestRequest(t)
	req.Reference = ""

	_, err := BuildURL(req)
	if !errors.Is(err, ErrMissingReference) {
		t.Fatalf("expected ErrMissingReference, got %v", err)
	}
}

func TestBuildURLRoundTrip(t *testing.T) {
	amounts := []string{"0.000000001", "1", "1.5", "12345.678901234", "0.1"}
	labels := []string{"", "Shop", "Café ünïcode", "a+b=c&d", "100% off #1"}

	for _, amountRaw := range amounts {
		for _, label := range labels {
			req := newTestRequest(t)
			req.Amount = decimal.RequireFromString(amountRaw)
			req.Label = label
			req.Message = "msg " + label

			raw, err := BuildURL(req)
			if err != nil {
				t.Fatalf("build failed: %v", err)
			}
			if !strings.HasPrefix(raw, "solana:"+req.Recipient+"?") {
				t.Fatalf("unexpected prefix: %s", raw)
			}

			parsed, err := ParseURL(raw)
			if err != nil {
				t.Fatalf("parse failed for %s: %v", raw, err)
			}
			if parsed.Recipient != req.Recipient || parsed.Reference != req.Reference {
				t.Fatalf("recipient/reference mismatch: %+v vs %+v", parsed, req)
			}
			if !parsed.Amount.Equal(req.Amount) {
				t.Fatalf("amount mismatch: %s vs %s", parsed.Amount, req.Amount)
			}
			if parsed.Label != req.Label || parsed.Message != req.Message {
				t.Fatalf("label/message mismatch: %q/%q vs %q/%q", parsed.Label, parsed.Message, req.Label, req.Message)
			}
		}
	}
}

func TestParseURLRejectsOtherSchemes(t *testing.T) {
	if _, err := ParseURL("https://example.com"); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
	if _, err := ParseURL("solana:?amount=1"); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL for missing recipient, got %v", err)
	}
	if _, err := ParseURL("solana:abc?amount=one"); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL for bad amount, got %v", err)
	}
}

func TestToLamports(t *testing.T) {
	cases := map[string]uint64{
		"1":           LamportsPerSOL,
		"0.5":         500_000_000,
		"0.000000001": 1,
		"2.123456789": 2_123_456_789,
		"0.1":         100_000_000,
		"0.3":         300_000_000,
	}
	for raw, want := range cases {
		got, err := ToLamports(decimal.RequireFromString(raw))
		if err != nil {
			t.Fatalf("%s: unexpected error %v", raw, err)
		}
		if got != want {
			t.Fatalf("%s: expected %d lamports, got %d", raw, want, got)
		}
	}

	for _, raw := range []string{"0", "-1", "0.0000000001", "1.1234567891"} {
		if _, err := ToLamports(decimal.RequireFromString(raw)); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%s: expected ErrInvalidAmount, got %v", raw, err)
		}
	}
}

func TestFromLamports(t *testing.T) {
	if got := FromLamports(1_500_000_000); !got.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("unexpected SOL amount: %s", got)
	}
	if got := FromLamports(1); got.String() != "0.000000001" {
		t.Fatalf("unexpected SOL amount: %s", got)
	}
}

func TestValidateAddress(t *testing.T) {
	if err := ValidateAddress(solana.NewWallet().PublicKey().String()); err != nil {
		t.Fatalf("expected valid address, got %v", err)
	}
	if err := ValidateAddress("not-an-address"); err == nil {
		t.Fatal("expected invalid address error")
	}
}
