package solanapay

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/gagliardetto/solana-go"
)

var ErrCryptoUnavailable = errors.New("secure random source unavailable")

// ReferenceGenerator mints throwaway public keys used only to correlate a
// payment request with its on-chain transfer. The private half never leaves
// Generate.
type ReferenceGenerator struct {
	random io.Reader
}

func NewReferenceGenerator() *ReferenceGenerator {
	return &ReferenceGenerator{random: rand.Reader}
}

// NewReferenceGeneratorWithReader is meant for tests; production code must use
// crypto/rand through NewReferenceGenerator.
func NewReferenceGeneratorWithReader(r io.Reader) *ReferenceGenerator {
	return &ReferenceGenerator{random: r}
}

func (g *ReferenceGenerator) Generate() (solana.PublicKey, error) {
	if g == nil || g.random == nil {
		return solana.PublicKey{}, ErrCryptoUnavailable
	}

	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(g.random, seed); err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
	}

	privateKey := ed25519.NewKeyFromSeed(seed)
	publicKey := solana.PublicKeyFromBytes(privateKey.Public().(ed25519.PublicKey))

	for i := range seed {
		seed[i] = 0
	}
	for i := range privateKey {
		privateKey[i] = 0
	}

	return publicKey, nil
}
