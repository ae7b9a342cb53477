package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/vibast-solutions/ms-go-solana-pay/app/solanapay"
)

const defaultRequestTimeout = 5 * time.Second

var ErrInvalidAddress = errors.New("invalid wallet address")

type SolanaClient struct {
	endpoint Endpoint
	client   *rpc.Client
	timeout  time.Duration
}

func NewSolanaClient(endpoint Endpoint, timeout time.Duration) *SolanaClient {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &SolanaClient{
		endpoint: endpoint,
		client:   rpc.New(endpoint.URL),
		timeout:  timeout,
	}
}

func (c *SolanaClient) Endpoint() Endpoint {
	return c.endpoint
}

func (c *SolanaClient) GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]solanapay.SignatureInfo, error) {
	pubkey, err := solana.PublicKeyFromBase58(strings.TrimSpace(address))
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}
	if limit <= 0 {
		limit = 1
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.client.GetSignaturesForAddressWithOpts(ctx, pubkey, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("getSignaturesForAddress on %s: %w", c.endpoint.Key, err)
	}

	items := make([]solanapay.SignatureInfo, 0, len(out))
	for _, sig := range out {
		if sig == nil {
			continue
		}
		info := solanapay.SignatureInfo{
			Signature: sig.Signature.String(),
			Slot:      uint64(sig.Slot),
		}
		if sig.Err != nil {
			if raw, err := json.Marshal(sig.Err); err == nil {
				info.Err = raw
			}
		}
		items = append(items, info)
	}

	return items, nil
}

type parsedTransactionResponse struct {
	Slot uint64 `json:"slot"`
	Meta *struct {
		Err json.RawMessage `json:"err"`
	} `json:"meta"`
	Transaction struct {
		Signatures []string `json:"signatures"`
		Message    struct {
			Instructions []parsedInstruction `json:"instructions"`
		} `json:"message"`
	} `json:"transaction"`
}

type parsedInstruction struct {
	Program   string          `json:"program"`
	ProgramID string          `json:"programId"`
	Parsed    json.RawMessage `json:"parsed"`
}

type parsedInstructionBody struct {
	Type string          `json:"type"`
	Info json.RawMessage `json:"info"`
}

// GetTransaction fetches a transaction in jsonParsed encoding. The typed
// GetTransaction of solana-go only decodes binary encodings, so the call goes
// through the raw JSON-RPC entry point.
func (c *SolanaClient) GetTransaction(ctx context.Context, signature string) (*solanapay.Transaction, error) {
	sig, err := solana.SignatureFromBase58(strings.TrimSpace(signature))
	if err != nil {
		return nil, fmt.Errorf("invalid signature %q: %w", signature, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := []interface{}{
		sig.String(),
		map[string]interface{}{
			"encoding":                       string(solana.EncodingJSONParsed),
			"commitment":                     string(rpc.CommitmentConfirmed),
			"maxSupportedTransactionVersion": 0,
		},
	}

	var out *parsedTransactionResponse
	if err := c.client.RPCCallForInto(ctx, &out, "getTransaction", params); err != nil {
		return nil, fmt.Errorf("getTransaction on %s: %w", c.endpoint.Key, err)
	}
	if out == nil {
		return nil, nil
	}

	tx := &solanapay.Transaction{
		Signature:    sig.String(),
		Slot:         out.Slot,
		Instructions: make([]solanapay.Instruction, 0, len(out.Transaction.Message.Instructions)),
	}
	if out.Meta != nil {
		tx.Err = out.Meta.Err
	}
	for _, ix := range out.Transaction.Message.Instructions {
		item := solanapay.Instruction{
			ProgramID: ix.ProgramID,
			Program:   ix.Program,
		}
		var body parsedInstructionBody
		if len(ix.Parsed) > 0 && json.Unmarshal(ix.Parsed, &body) == nil {
			item.Type = body.Type
			item.Info = body.Info
		}
		tx.Instructions = append(tx.Instructions, item)
	}

	return tx, nil
}

// GetBalance returns the finalized balance of address in lamports.
func (c *SolanaClient) GetBalance(ctx context.Context, address string) (uint64, error) {
	pubkey, err := solana.PublicKeyFromBase58(strings.TrimSpace(address))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.client.GetBalance(ctx, pubkey, rpc.CommitmentFinalized)
	if err != nil {
		return 0, fmt.Errorf("getBalance on %s: %w", c.endpoint.Key, err)
	}
	if out == nil {
		return 0, nil
	}
	return out.Value, nil
}

// GetHealth reports whether the node answers getHealth with "ok".
func (c *SolanaClient) GetHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.client.GetHealth(ctx)
	if err != nil {
		return fmt.Errorf("getHealth on %s: %w", c.endpoint.Key, err)
	}
	if out != "ok" {
		return fmt.Errorf("getHealth on %s: node reports %q", c.endpoint.Key, out)
	}
	return nil
}
