package solanapay

import (
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

const (
	URIScheme = "solana"

	// NativeMint is the wrapped-SOL mint, used as the sentinel for the
	// chain's native currency.
	NativeMint = "So11111111111111111111111111111111111111112"

	NativeDecimals = 9
	LamportsPerSOL = 1_000_000_000
)

var (
	ErrConfiguration    = errors.New("solana pay is not configured")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrMissingReference = errors.New("payment reference is required")
	ErrInvalidURL       = errors.New("invalid solana pay url")
)

type PaymentRequest struct {
	Recipient string
	Amount    decimal.Decimal
	TokenMint string
	Reference string
	Label     string
	Message   string
}

// IsNative reports whether the request moves the chain's native currency.
func (r PaymentRequest) IsNative() bool {
	mint := strings.TrimSpace(r.TokenMint)
	return mint == "" || mint == NativeMint
}

// BuildURL encodes the request as a Solana Pay transfer URI. Parameter order
// is fixed so the same request always yields the same bytes.
func BuildURL(req PaymentRequest) (string, error) {
	recipient := strings.TrimSpace(req.Recipient)
	if recipient == "" {
		return "", fmt.Errorf("%w: merchant wallet address is empty", ErrConfiguration)
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return "", ErrMissingReference
	}

	var b strings.Builder
	b.WriteString(URIScheme)
	b.WriteString(":")
	b.WriteString(recipient)
	b.WriteString("?recipient=")
	b.WriteString(recipient)
	b.WriteString("&amount=")
	b.WriteString(FormatAmount(req.Amount))
	if !req.IsNative() {
		b.WriteString("&spl-token=")
		b.WriteString(strings.TrimSpace(req.TokenMint))
	}
	b.WriteString("&reference=")
	b.WriteString(reference)
	b.WriteString("&label=")
	b.WriteString(url.QueryEscape(req.Label))
	b.WriteString("&message=")
	b.WriteString(url.QueryEscape(req.Message))

	return b.String(), nil
}

// ParseURL is the inverse of BuildURL.
func ParseURL(raw string) (PaymentRequest, error) {
	prefix := URIScheme + ":"
	if !strings.HasPrefix(raw, prefix) {
		return PaymentRequest{}, fmt.Errorf("%w: missing %q scheme", ErrInvalidURL, URIScheme)
	}

	rest := strings.TrimPrefix(raw, prefix)
	recipient, rawQuery, _ := strings.Cut(rest, "?")
	if recipient == "" {
		return PaymentRequest{}, fmt.Errorf("%w: missing recipient", ErrInvalidURL)
	}

	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return PaymentRequest{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	req := PaymentRequest{
		Recipient: recipient,
		TokenMint: query.Get("spl-token"),
		Reference: query.Get("reference"),
		Label:     query.Get("label"),
		Message:   query.Get("message"),
	}
	if amountRaw := query.Get("amount"); amountRaw != "" {
		amount, err := decimal.NewFromString(amountRaw)
		if err != nil {
			return PaymentRequest{}, fmt.Errorf("%w: amount %q", ErrInvalidURL, amountRaw)
		}
		req.Amount = amount
	}

	return req, nil
}

func FormatAmount(amount decimal.Decimal) string {
	return amount.String()
}

// ValidateAmount checks that amount is positive and representable in lamports.
func ValidateAmount(amount decimal.Decimal) error {
	_, err := ToLamports(amount)
	return err
}

// ToLamports converts a native-unit amount to lamports using fixed-point
// arithmetic. Amounts finer than one lamport are rejected rather than rounded.
func ToLamports(amount decimal.Decimal) (uint64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: must be > 0", ErrInvalidAmount)
	}
	if !amount.Equal(amount.Truncate(NativeDecimals)) {
		return 0, fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, NativeDecimals)
	}

	lamports := amount.Shift(NativeDecimals).BigInt()
	if !lamports.IsUint64() {
		return 0, fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}
	return lamports.Uint64(), nil
}

func FromLamports(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -NativeDecimals)
}

// ValidateAddress reports whether s decodes to a 32-byte public key.
func ValidateAddress(s string) error {
	if _, err := solana.PublicKeyFromBase58(strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("invalid address %q: %w", s, err)
	}
	return nil
}
