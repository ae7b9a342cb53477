package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-solana-pay/app/poller"
	"github.com/vibast-solutions/ms-go-solana-pay/app/provider"
	"github.com/vibast-solutions/ms-go-solana-pay/app/solanapay"
	"github.com/vibast-solutions/ms-go-solana-pay/app/wallet"
	"github.com/vibast-solutions/ms-go-solana-pay/config"
)

var errNotConfirmed = errors.New("payment was not confirmed")

var (
	balanceEndpoint string

	urlRecipient string
	urlAmount    string
	urlReference string
	urlLabel     string
	urlMessage   string

	watchInterval    time.Duration
	watchMaxAttempts int

	verifyReference string
	verifyAmount    string
	verifyRecipient string
	verifyEndpoint  string
)

var balanceCmd = &cobra.Command{
	Use:   "balance <address>",
	Short: "Print the SOL balance of a wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadOfflineConfig()
		if err != nil {
			return err
		}
		return printBalance(cmd.Context(), cmd.OutOrStdout(), newRegistry(cfg), balanceEndpoint, args[0], cfg.Solana.WalletTrimLength)
	},
}

var urlCmd = &cobra.Command{
	Use:   "url",
	Short: "Build a Solana Pay payment URL",
	RunE: func(cmd *cobra.Command, _ []string) error {
		recipient := strings.TrimSpace(urlRecipient)
		if recipient == "" {
			cfg, err := loadOfflineConfig()
			if err != nil {
				return err
			}
			recipient = cfg.Solana.MerchantWallet
		}
		return printPaymentURL(cmd.OutOrStdout(), solanapay.NewReferenceGenerator(), recipient, urlAmount, urlReference, urlLabel, urlMessage)
	},
}

var urlParseCmd = &cobra.Command{
	Use:   "parse <solana-url>",
	Short: "Decode a Solana Pay payment URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printParsedURL(cmd.OutOrStdout(), args[0])
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <status-url>",
	Short: "Poll a payment status URL until the payment is confirmed",
	Long:  "Poll a public payment status URL the way the payment page does. Send SIGUSR1 to check again immediately.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadOfflineConfig()
		if err != nil {
			return err
		}

		pollCfg := poller.Config{
			InitialDelay:  cfg.Poller.InitialDelay,
			Interval:      cfg.Poller.Interval,
			MaxAttempts:   cfg.Poller.MaxAttempts,
			RedirectDelay: 0,
		}
		if watchInterval > 0 {
			pollCfg.Interval = watchInterval
		}
		if watchMaxAttempts > 0 {
			pollCfg.MaxAttempts = watchMaxAttempts
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		checkNow := make(chan os.Signal, 1)
		signal.Notify(checkNow, syscall.SIGUSR1)
		defer signal.Stop(checkNow)

		fetcher := poller.NewHTTPStatusFetcher(args[0], cfg.Solana.RequestTimeout)
		return watchStatus(ctx, cmd.OutOrStdout(), fetcher, pollCfg, checkNow)
	},
}

var verifyReferenceCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the chain for a transfer matching a reference",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadOfflineConfig()
		if err != nil {
			return err
		}
		recipient := strings.TrimSpace(verifyRecipient)
		if recipient == "" {
			recipient = cfg.Solana.MerchantWallet
		}

		registry := newRegistry(cfg)
		client := registry.Default()
		if verifyEndpoint != "" {
			if client, err = registry.Get(verifyEndpoint); err != nil {
				return fmt.Errorf("%w: %s", err, verifyEndpoint)
			}
		}
		return printVerification(cmd.Context(), cmd.OutOrStdout(), solanapay.NewVerifier(client), verifyReference, verifyAmount, recipient)
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(urlCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(verifyReferenceCmd)
	urlCmd.AddCommand(urlParseCmd)

	balanceCmd.Flags().StringVar(&balanceEndpoint, "endpoint", "", "RPC endpoint key (defaults to the configured default)")

	urlCmd.Flags().StringVar(&urlRecipient, "recipient", "", "Recipient wallet (defaults to SOLANA_MERCHANT_WALLET)")
	urlCmd.Flags().StringVar(&urlAmount, "amount", "", "Amount in SOL")
	urlCmd.Flags().StringVar(&urlReference, "reference", "", "Reference key (a fresh one is generated when empty)")
	urlCmd.Flags().StringVar(&urlLabel, "label", "", "Label shown by the wallet")
	urlCmd.Flags().StringVar(&urlMessage, "message", "", "Message shown by the wallet")
	_ = urlCmd.MarkFlagRequired("amount")

	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Polling interval (defaults to POLLER_INTERVAL_SECONDS)")
	watchCmd.Flags().IntVar(&watchMaxAttempts, "max-attempts", 0, "Attempt ceiling (defaults to POLLER_MAX_ATTEMPTS)")

	verifyReferenceCmd.Flags().StringVar(&verifyReference, "reference", "", "Reference key of the payment request")
	verifyReferenceCmd.Flags().StringVar(&verifyAmount, "amount", "", "Expected amount in SOL")
	verifyReferenceCmd.Flags().StringVar(&verifyRecipient, "recipient", "", "Expected recipient (defaults to SOLANA_MERCHANT_WALLET)")
	verifyReferenceCmd.Flags().StringVar(&verifyEndpoint, "endpoint", "", "RPC endpoint key (defaults to the configured default)")
	_ = verifyReferenceCmd.MarkFlagRequired("reference")
	_ = verifyReferenceCmd.MarkFlagRequired("amount")
}

func loadOfflineConfig() (*config.Config, error) {
	cfg, err := config.LoadOffline()
	if err != nil {
		return nil, err
	}
	if err := configureLogging(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

type balanceReader interface {
	Balance(ctx context.Context, key, address string) (uint64, provider.Endpoint, error)
}

func printBalance(ctx context.Context, w io.Writer, reader balanceReader, endpointKey, address string, trimLength int) error {
	if err := wallet.Validate(address); err != nil {
		return err
	}

	lamports, endpoint, err := reader.Balance(ctx, endpointKey, address)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "wallet:   %s\n", wallet.Abbreviate(address, trimLength))
	fmt.Fprintf(w, "balance:  %s SOL\n", solanapay.FromLamports(lamports).String())
	fmt.Fprintf(w, "lamports: %d\n", lamports)
	fmt.Fprintf(w, "endpoint: %s (%s)\n", endpoint.Name, endpoint.URL)
	return nil
}

type referenceSource interface {
	Generate() (solana.PublicKey, error)
}

func printPaymentURL(w io.Writer, references referenceSource, recipient, amountRaw, reference, label, message string) error {
	amount, err := decimal.NewFromString(strings.TrimSpace(amountRaw))
	if err != nil {
		return fmt.Errorf("%w: %q", solanapay.ErrInvalidAmount, amountRaw)
	}
	if err := solanapay.ValidateAmount(amount); err != nil {
		return err
	}

	if strings.TrimSpace(reference) == "" {
		key, err := references.Generate()
		if err != nil {
			return err
		}
		reference = key.String()
	}

	out, err := solanapay.BuildURL(solanapay.PaymentRequest{
		Recipient: recipient,
		Amount:    amount,
		Reference: reference,
		Label:     label,
		Message:   message,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(w, out)
	return nil
}

func printParsedURL(w io.Writer, raw string) error {
	req, err := solanapay.ParseURL(strings.TrimSpace(raw))
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "recipient: %s\n", req.Recipient)
	fmt.Fprintf(w, "amount:    %s\n", solanapay.FormatAmount(req.Amount))
	if !req.IsNative() {
		fmt.Fprintf(w, "token:     %s\n", req.TokenMint)
	}
	fmt.Fprintf(w, "reference: %s\n", req.Reference)
	if req.Label != "" {
		fmt.Fprintf(w, "label:     %s\n", req.Label)
	}
	if req.Message != "" {
		fmt.Fprintf(w, "message:   %s\n", req.Message)
	}
	return nil
}

func watchStatus(ctx context.Context, w io.Writer, fetcher poller.StatusFetcher, cfg poller.Config, checkNow <-chan os.Signal) error {
	p := poller.New(fetcher, cfg, func() {
		fmt.Fprintln(w, "payment confirmed")
	})
	p.Start(ctx)

	for {
		waitCtx, cancel := context.WithCancel(ctx)
		go func() {
			select {
			case <-checkNow:
				cancel()
			case <-waitCtx.Done():
			}
		}()

		state := p.Wait(waitCtx)
		interrupted := waitCtx.Err() != nil && ctx.Err() == nil
		cancel()

		if interrupted {
			logrus.WithField("attempts", p.Attempts()).Info("checking payment status now")
			p.CheckNow()
			continue
		}

		fmt.Fprintf(w, "state: %s (attempts %d)\n", state, p.Attempts())
		if state == poller.StateConfirmed {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if state == poller.StateTimedOut {
			fmt.Fprintln(w, "no confirmation yet, send SIGUSR1 to check again")
			select {
			case <-ctx.Done():
				return errNotConfirmed
			case <-checkNow:
				logrus.Info("checking payment status again after timeout")
				p.CheckNow()
				continue
			}
		}
		if status := p.LastStatus(); status != "" && state == poller.StateError {
			return fmt.Errorf("%w: status %q", errNotConfirmed, status)
		}
		return errNotConfirmed
	}
}

type transferChecker interface {
	Check(ctx context.Context, reference string, expectedAmount decimal.Decimal, expectedRecipient string) (solanapay.Result, error)
}

func printVerification(ctx context.Context, w io.Writer, checker transferChecker, reference, amountRaw, recipient string) error {
	amount, err := decimal.NewFromString(strings.TrimSpace(amountRaw))
	if err != nil {
		return fmt.Errorf("%w: %q", solanapay.ErrInvalidAmount, amountRaw)
	}
	if err := solanapay.ValidateAddress(recipient); err != nil {
		return fmt.Errorf("%w: %v", solanapay.ErrConfiguration, err)
	}

	result, checkErr := checker.Check(ctx, strings.TrimSpace(reference), amount, recipient)
	fmt.Fprintf(w, "outcome:   %s\n", result.Outcome)
	if result.Signature != "" {
		fmt.Fprintf(w, "signature: %s\n", result.Signature)
	}
	if result.Reason != "" {
		fmt.Fprintf(w, "reason:    %s\n", result.Reason)
	}
	if checkErr != nil {
		return checkErr
	}
	if !result.Matched() {
		return errNotConfirmed
	}
	return nil
}
