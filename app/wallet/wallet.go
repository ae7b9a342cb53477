package wallet

import (
	"errors"
	"regexp"
	"strings"

	"github.com/gagliardetto/solana-go"
)

const (
	ExplorerSolscan  = "solscan"
	ExplorerSolanaFM = "solanafm"
	ExplorerOfficial = "official"

	DefaultTrimLength = 4
)

var (
	ErrInvalidAddress = errors.New("invalid solana wallet address")

	base58Address = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

func Validate(address string) error {
	address = strings.TrimSpace(address)
	if !base58Address.MatchString(address) {
		return ErrInvalidAddress
	}
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return ErrInvalidAddress
	}
	return nil
}

// Abbreviate keeps trimLength characters at each end, e.g. 43rW...y5kC.
// Addresses too short to benefit are returned unchanged.
func Abbreviate(address string, trimLength int) string {
	if trimLength <= 0 {
		trimLength = DefaultTrimLength
	}
	if len(address) <= trimLength*2 {
		return address
	}
	return address[:trimLength] + "..." + address[len(address)-trimLength:]
}

func ExplorerURL(address, explorer string) string {
	switch explorer {
	case ExplorerSolanaFM:
		return "https://solana.fm/address/" + address
	case ExplorerOfficial:
		return "https://explorer.solana.com/address/" + address
	default:
		return "https://solscan.io/account/" + address
	}
}

func TransactionURL(signature, explorer string) string {
	switch explorer {
	case ExplorerSolanaFM:
		return "https://solana.fm/tx/" + signature
	case ExplorerOfficial:
		return "https://explorer.solana.com/tx/" + signature
	default:
		return "https://solscan.io/tx/" + signature
	}
}
