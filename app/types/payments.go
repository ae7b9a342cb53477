package types

import (
	"errors"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-solana-pay/app/solanapay"
	"github.com/vibast-solutions/ms-go-solana-pay/app/wallet"
)

const maxListLimit = 500

var paymentStates = map[string]struct{}{
	"new":                {},
	"pending":            {},
	"completed":          {},
	"partially_refunded": {},
	"refunded":           {},
	"voided":             {},
	"canceled":           {},
}

func NewCreatePaymentRequestFromContext(ctx echo.Context) (*CreatePaymentRequest, error) {
	var body CreatePaymentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.RequestId = strings.TrimSpace(body.RequestId)
	if body.RequestId == "" {
		body.RequestId = strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
	}
	body.CallerService = strings.TrimSpace(body.CallerService)
	body.OrderId = strings.TrimSpace(body.OrderId)
	body.Amount = strings.TrimSpace(body.Amount)
	body.TokenMint = strings.TrimSpace(body.TokenMint)
	body.Label = strings.TrimSpace(body.Label)
	body.Message = strings.TrimSpace(body.Message)
	body.StatusCallbackUrl = strings.TrimSpace(body.StatusCallbackUrl)

	return &body, nil
}

func (r *CreatePaymentRequest) Validate() error {
	if strings.TrimSpace(r.GetRequestId()) == "" {
		return errors.New("request_id is required")
	}
	if strings.TrimSpace(r.GetCallerService()) == "" {
		return errors.New("caller_service is required")
	}
	if strings.TrimSpace(r.GetOrderId()) == "" {
		return errors.New("order_id is required")
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(r.GetAmount()))
	if err != nil {
		return errors.New("amount must be a decimal number")
	}
	if err := solanapay.ValidateAmount(amount); err != nil {
		return errors.New("amount must be > 0 with at most 9 decimal places")
	}
	if mint := strings.TrimSpace(r.GetTokenMint()); mint != "" && wallet.Validate(mint) != nil {
		return errors.New("token_mint is not a valid address")
	}
	if callbackURL := strings.TrimSpace(r.GetStatusCallbackUrl()); callbackURL != "" && !isHTTPURL(callbackURL) {
		return errors.New("status_callback_url must be an absolute http(s) url")
	}
	return nil
}

func NewGetPaymentRequestFromContext(ctx echo.Context) (*GetPaymentRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	return &GetPaymentRequest{Id: id}, nil
}

func (r *GetPaymentRequest) Validate() error {
	if r.GetId() == 0 {
		return errors.New("invalid payment id")
	}
	return nil
}

func NewListPaymentsRequestFromContext(ctx echo.Context) (*ListPaymentsRequest, error) {
	req := &ListPaymentsRequest{
		RequestId:     strings.TrimSpace(ctx.QueryParam("request_id")),
		CallerService: strings.TrimSpace(ctx.QueryParam("caller_service")),
		OrderId:       strings.TrimSpace(ctx.QueryParam("order_id")),
		State:         strings.ToLower(strings.TrimSpace(ctx.QueryParam("state"))),
		Limit:         100,
		Offset:        0,
	}

	if limitRaw := strings.TrimSpace(ctx.QueryParam("limit")); limitRaw != "" {
		limit, err := strconv.ParseInt(limitRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Limit = int32(limit)
	}

	if offsetRaw := strings.TrimSpace(ctx.QueryParam("offset")); offsetRaw != "" {
		offset, err := strconv.ParseInt(offsetRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Offset = int32(offset)
	}

	return req, nil
}

func (r *ListPaymentsRequest) Validate() error {
	if r.Limit == 0 {
		r.Limit = 100
	}
	if r.GetLimit() <= 0 || r.GetLimit() > maxListLimit {
		return errors.New("limit must be between 1 and 500")
	}
	if r.GetOffset() < 0 {
		return errors.New("offset must be >= 0")
	}
	if state := r.GetState(); state != "" {
		if _, ok := paymentStates[state]; !ok {
			return errors.New("invalid state")
		}
	}
	return nil
}

func NewPaymentActionRequestFromContext(ctx echo.Context) (*PaymentActionRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}

	var body PaymentActionRequest
	if err = ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.Id = id
	body.Reason = strings.TrimSpace(body.Reason)

	return &body, nil
}

func (r *PaymentActionRequest) Validate() error {
	if r.GetId() == 0 {
		return errors.New("invalid payment id")
	}
	return nil
}

func NewRefundPaymentRequestFromContext(ctx echo.Context) (*RefundPaymentRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}

	var body RefundPaymentRequest
	if err = ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.Id = id
	body.Amount = strings.TrimSpace(body.Amount)
	body.Reason = strings.TrimSpace(body.Reason)

	return &body, nil
}

// Validate accepts an empty amount, meaning a full refund of what remains.
func (r *RefundPaymentRequest) Validate() error {
	if r.GetId() == 0 {
		return errors.New("invalid payment id")
	}
	if raw := strings.TrimSpace(r.GetAmount()); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return errors.New("amount must be a decimal number")
		}
		if err := solanapay.ValidateAmount(amount); err != nil {
			return errors.New("amount must be > 0 with at most 9 decimal places")
		}
	}
	return nil
}

func NewPublicStatusRequestFromContext(ctx echo.Context) (*PublicStatusRequest, error) {
	return &PublicStatusRequest{Token: strings.TrimSpace(ctx.Param("token"))}, nil
}

func (r *PublicStatusRequest) Validate() error {
	if r.GetToken() == "" {
		return errors.New("status token is required")
	}
	return nil
}

func NewWalletBalanceRequestFromContext(ctx echo.Context) (*WalletBalanceRequest, error) {
	return &WalletBalanceRequest{
		Address:  strings.TrimSpace(ctx.Param("address")),
		Endpoint: strings.TrimSpace(ctx.QueryParam("endpoint")),
	}, nil
}

func (r *WalletBalanceRequest) Validate() error {
	if err := wallet.Validate(r.GetAddress()); err != nil {
		return errors.New("invalid wallet address")
	}
	return nil
}

func isHTTPURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
