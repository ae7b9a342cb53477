package types

type CreatePaymentRequest struct {
	RequestId         string            `json:"request_id"`
	CallerService     string            `json:"caller_service"`
	OrderId           string            `json:"order_id"`
	Amount            string            `json:"amount"`
	TokenMint         string            `json:"token_mint"`
	Label             string            `json:"label"`
	Message           string            `json:"message"`
	StatusCallbackUrl string            `json:"status_callback_url"`
	Metadata          map[string]string `json:"metadata"`
}

func (r *CreatePaymentRequest) GetRequestId() string         { return r.RequestId }
func (r *CreatePaymentRequest) GetCallerService() string     { return r.CallerService }
func (r *CreatePaymentRequest) GetOrderId() string           { return r.OrderId }
func (r *CreatePaymentRequest) GetAmount() string            { return r.Amount }
func (r *CreatePaymentRequest) GetTokenMint() string         { return r.TokenMint }
func (r *CreatePaymentRequest) GetLabel() string             { return r.Label }
func (r *CreatePaymentRequest) GetMessage() string           { return r.Message }
func (r *CreatePaymentRequest) GetStatusCallbackUrl() string { return r.StatusCallbackUrl }
func (r *CreatePaymentRequest) GetMetadata() map[string]string {
	return r.Metadata
}

type GetPaymentRequest struct {
	Id uint64 `json:"id"`
}

func (r *GetPaymentRequest) GetId() uint64 { return r.Id }

type ListPaymentsRequest struct {
	RequestId     string `json:"request_id"`
	CallerService string `json:"caller_service"`
	OrderId       string `json:"order_id"`
	State         string `json:"state"`
	Limit         int32  `json:"limit"`
	Offset        int32  `json:"offset"`
}

func (r *ListPaymentsRequest) GetRequestId() string     { return r.RequestId }
func (r *ListPaymentsRequest) GetCallerService() string { return r.CallerService }
func (r *ListPaymentsRequest) GetOrderId() string       { return r.OrderId }
func (r *ListPaymentsRequest) GetState() string         { return r.State }
func (r *ListPaymentsRequest) GetLimit() int32          { return r.Limit }
func (r *ListPaymentsRequest) GetOffset() int32         { return r.Offset }

// PaymentActionRequest carries the path id of checkout, verify, receive, void
// and cancel calls.
type PaymentActionRequest struct {
	Id     uint64 `json:"id"`
	Reason string `json:"reason"`
}

func (r *PaymentActionRequest) GetId() uint64     { return r.Id }
func (r *PaymentActionRequest) GetReason() string { return r.Reason }

type RefundPaymentRequest struct {
	Id     uint64 `json:"id"`
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

func (r *RefundPaymentRequest) GetId() uint64     { return r.Id }
func (r *RefundPaymentRequest) GetAmount() string { return r.Amount }
func (r *RefundPaymentRequest) GetReason() string { return r.Reason }

type PublicStatusRequest struct {
	Token string `json:"token"`
}

func (r *PublicStatusRequest) GetToken() string { return r.Token }

type WalletBalanceRequest struct {
	Address  string `json:"address"`
	Endpoint string `json:"endpoint"`
}

func (r *WalletBalanceRequest) GetAddress() string  { return r.Address }
func (r *WalletBalanceRequest) GetEndpoint() string { return r.Endpoint }

type Payment struct {
	Id                uint64            `json:"id"`
	RequestId         string            `json:"request_id"`
	CallerService     string            `json:"caller_service"`
	OrderId           string            `json:"order_id"`
	Amount            string            `json:"amount"`
	TokenMint         string            `json:"token_mint,omitempty"`
	Recipient         string            `json:"recipient"`
	RecipientDisplay  string            `json:"recipient_display"`
	ExplorerUrl       string            `json:"explorer_url"`
	Reference         string            `json:"reference,omitempty"`
	StatusToken       string            `json:"status_token"`
	Label             string            `json:"label,omitempty"`
	Message           string            `json:"message,omitempty"`
	State             string            `json:"state"`
	RefundedAmount    string            `json:"refunded_amount"`
	Signature         string            `json:"signature,omitempty"`
	TransactionUrl    string            `json:"transaction_url,omitempty"`
	CompletedAt       string            `json:"completed_at,omitempty"`
	StatusCallbackUrl string            `json:"status_callback_url,omitempty"`
	Metadata          map[string]string `json:"metadata"`
	CreatedAt         string            `json:"created_at"`
	UpdatedAt         string            `json:"updated_at"`
}

type PaymentEnvelopeResponse struct {
	Payment *Payment `json:"payment"`
}

type ListPaymentsResponse struct {
	Payments []*Payment `json:"payments"`
}

type PollSettings struct {
	InitialDelayMs  int64 `json:"initial_delay_ms"`
	IntervalMs      int64 `json:"interval_ms"`
	MaxAttempts     int   `json:"max_attempts"`
	RedirectDelayMs int64 `json:"redirect_delay_ms"`
}

type CheckoutResponse struct {
	Payment    *Payment      `json:"payment"`
	PaymentUrl string        `json:"payment_url"`
	StatusUrl  string        `json:"status_url"`
	Poll       *PollSettings `json:"poll"`
}

type VerifyPaymentResponse struct {
	Payment *Payment `json:"payment"`
	Matched bool     `json:"matched"`
	Outcome string   `json:"outcome"`
}

type PaymentVerification struct {
	Id         uint64 `json:"id"`
	Endpoint   string `json:"endpoint"`
	Outcome    string `json:"outcome"`
	Signature  string `json:"signature,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	CreatedAt  string `json:"created_at"`
}

type ListVerificationsResponse struct {
	Verifications []*PaymentVerification `json:"verifications"`
}

type PublicStatusResponse struct {
	Status string `json:"status"`
}

type WalletBalanceResponse struct {
	Address        string `json:"address"`
	AddressDisplay string `json:"address_display"`
	Lamports       uint64 `json:"lamports"`
	Sol            string `json:"sol"`
	Endpoint       string `json:"endpoint"`
	EndpointName   string `json:"endpoint_name"`
	ExplorerUrl    string `json:"explorer_url"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
