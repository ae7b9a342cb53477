package solanapay

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-solana-pay/app/factory"
)

const transferInstructionType = "transfer"

type SignatureInfo struct {
	Signature string
	Slot      uint64
	Err       json.RawMessage
}

// Instruction is a top-level instruction in jsonParsed encoding. Info is left
// raw because its shape depends on Program and Type.
type Instruction struct {
	ProgramID string
	Program   string
	Type      string
	Info      json.RawMessage
}

type Transaction struct {
	Signature    string
	Slot         uint64
	Err          json.RawMessage
	Instructions []Instruction
}

func (t *Transaction) Failed() bool {
	return hasRPCError(t.Err)
}

// RPC is the subset of the Solana JSON-RPC API the verifier depends on.
// GetTransaction returns (nil, nil) when the node does not know the signature.
type RPC interface {
	GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]SignatureInfo, error)
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)
}

type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeRejected  Outcome = "rejected"
	OutcomeError     Outcome = "error"
)

type Result struct {
	Outcome   Outcome
	Signature string
	Reason    string
}

func (r Result) Matched() bool {
	return r.Outcome == OutcomeConfirmed
}

type Verifier struct {
	rpc    RPC
	logger logrus.FieldLogger
}

func NewVerifier(rpc RPC) *Verifier {
	return &Verifier{
		rpc:    rpc,
		logger: factory.NewModuleLogger("solana-pay-verifier"),
	}
}

// Verify reports whether a transfer matching the expected recipient and amount
// has been confirmed for reference. Every failure, including transport errors,
// collapses to false; callers retry.
func (v *Verifier) Verify(ctx context.Context, reference string, expectedAmount decimal.Decimal, expectedRecipient string) bool {
	result, err := v.Check(ctx, reference, expectedAmount, expectedRecipient)
	entry := v.logger.WithFields(logrus.Fields{
		"reference": reference,
		"outcome":   result.Outcome,
	})
	if err != nil {
		entry.WithError(err).Warn("payment verification inconclusive")
		return false
	}
	if result.Signature != "" {
		entry = entry.WithField("signature", result.Signature)
	}
	if result.Reason != "" {
		entry = entry.WithField("reason", result.Reason)
	}
	entry.Debug("payment verification finished")
	return result.Matched()
}

// Check is Verify with the outcome kept apart: transport failures come back as
// OutcomeError together with the error, everything else with a nil error.
func (v *Verifier) Check(ctx context.Context, reference string, expectedAmount decimal.Decimal, expectedRecipient string) (Result, error) {
	reference = strings.TrimSpace(reference)
	expectedRecipient = strings.TrimSpace(expectedRecipient)
	if reference == "" || expectedRecipient == "" {
		return Result{Outcome: OutcomeRejected, Reason: "reference and recipient are required"}, nil
	}

	expectedLamports, err := ToLamports(expectedAmount)
	if err != nil {
		return Result{Outcome: OutcomeRejected, Reason: err.Error()}, nil
	}

	signatures, err := v.rpc.GetSignaturesForAddress(ctx, reference, 1)
	if err != nil {
		return Result{Outcome: OutcomeError}, err
	}
	if len(signatures) == 0 {
		return Result{Outcome: OutcomeNotFound}, nil
	}

	signature := signatures[0].Signature
	tx, err := v.rpc.GetTransaction(ctx, signature)
	if err != nil {
		return Result{Outcome: OutcomeError, Signature: signature}, err
	}
	if tx == nil {
		return Result{Outcome: OutcomeNotFound, Signature: signature, Reason: "transaction not available yet"}, nil
	}
	if tx.Failed() {
		return Result{Outcome: OutcomeRejected, Signature: signature, Reason: "transaction failed: " + string(tx.Err)}, nil
	}

	if matchTransfer(tx.Instructions, expectedRecipient, expectedLamports) {
		return Result{Outcome: OutcomeConfirmed, Signature: signature}, nil
	}

	return Result{Outcome: OutcomeRejected, Signature: signature, Reason: "no matching transfer instruction"}, nil
}

type transferInfo struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Lamports    uint64 `json:"lamports"`
}

func matchTransfer(instructions []Instruction, recipient string, lamports uint64) bool {
	systemProgram := solana.SystemProgramID.String()
	for _, ix := range instructions {
		if ix.ProgramID != systemProgram || ix.Type != transferInstructionType {
			continue
		}

		var info transferInfo
		if err := json.Unmarshal(ix.Info, &info); err != nil {
			continue
		}
		if info.Destination == recipient && info.Lamports == lamports {
			return true
		}
	}
	return false
}

func hasRPCError(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null"
}
