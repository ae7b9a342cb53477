package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-solana-pay/app/factory"
	"github.com/vibast-solutions/ms-go-solana-pay/app/mapper"
	"github.com/vibast-solutions/ms-go-solana-pay/app/service"
	"github.com/vibast-solutions/ms-go-solana-pay/app/types"
)

type PaymentController struct {
	paymentService *service.PaymentService
	display        mapper.Display
	logger         logrus.FieldLogger
}

func NewPaymentController(paymentService *service.PaymentService, display mapper.Display) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		display:        display,
		logger:         factory.NewModuleLogger("payments-controller"),
	}
}

func (c *PaymentController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *PaymentController) CreatePayment(ctx echo.Context) error {
	req, err := types.NewCreatePaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.CreatePayment(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "Create payment failed")
	}

	return ctx.JSON(http.StatusCreated, &types.PaymentEnvelopeResponse{Payment: mapper.PaymentToResponse(item, c.display)})
}

func (c *PaymentController) GetPayment(ctx echo.Context) error {
	req, err := types.NewGetPaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.GetPayment(ctx.Request().Context(), req.GetId())
	if err != nil {
		return c.writeServiceError(ctx, err, "Get payment failed")
	}

	return ctx.JSON(http.StatusOK, &types.PaymentEnvelopeResponse{Payment: mapper.PaymentToResponse(item, c.display)})
}

func (c *PaymentController) ListPayments(ctx echo.Context) error {
	req, err := types.NewListPaymentsRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.paymentService.ListPayments(ctx.Request().Context(), req)
	if err != nil {
		c.logger.WithError(err).Error("List payments failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.ListPaymentsResponse{Payments: mapper.PaymentsToResponse(items, c.display)})
}

// Checkout hands out the payment URI together with what the payment page needs
// to poll for completion.
func (c *PaymentController) Checkout(ctx echo.Context) error {
	req, err := types.NewGetPaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.paymentService.IssuePaymentRequest(ctx.Request().Context(), req.GetId())
	if err != nil {
		return c.writeServiceError(ctx, err, "Issue payment request failed")
	}

	return ctx.JSON(http.StatusOK, &types.CheckoutResponse{
		Payment:    mapper.PaymentToResponse(result.Payment, c.display),
		PaymentUrl: result.PaymentURL,
		StatusUrl:  result.StatusURL,
		Poll:       mapper.PollSettingsToResponse(result.Poll),
	})
}

func (c *PaymentController) VerifyPayment(ctx echo.Context) error {
	req, err := types.NewPaymentActionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.paymentService.VerifyPayment(ctx.Request().Context(), req.GetId())
	if err != nil {
		return c.writeServiceError(ctx, err, "Verify payment failed")
	}

	return ctx.JSON(http.StatusOK, &types.VerifyPaymentResponse{
		Payment: mapper.PaymentToResponse(result.Payment, c.display),
		Matched: result.Matched,
		Outcome: string(result.Outcome),
	})
}

func (c *PaymentController) ListVerifications(ctx echo.Context) error {
	req, err := types.NewGetPaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.paymentService.ListVerifications(ctx.Request().Context(), req.GetId())
	if err != nil {
		return c.writeServiceError(ctx, err, "List verifications failed")
	}

	return ctx.JSON(http.StatusOK, &types.ListVerificationsResponse{Verifications: mapper.VerificationsToResponse(items)})
}

func (c *PaymentController) ReceivePayment(ctx echo.Context) error {
	req, err := types.NewPaymentActionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.ReceivePayment(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "Receive payment failed")
	}

	return ctx.JSON(http.StatusOK, &types.PaymentEnvelopeResponse{Payment: mapper.PaymentToResponse(item, c.display)})
}

func (c *PaymentController) VoidPayment(ctx echo.Context) error {
	req, err := types.NewPaymentActionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.VoidPayment(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "Void payment failed")
	}

	return ctx.JSON(http.StatusOK, &types.PaymentEnvelopeResponse{Payment: mapper.PaymentToResponse(item, c.display)})
}

func (c *PaymentController) RefundPayment(ctx echo.Context) error {
	req, err := types.NewRefundPaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.RefundPayment(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "Refund payment failed")
	}

	return ctx.JSON(http.StatusOK, &types.PaymentEnvelopeResponse{Payment: mapper.PaymentToResponse(item, c.display)})
}

func (c *PaymentController) CancelPayment(ctx echo.Context) error {
	req, err := types.NewPaymentActionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.CancelPayment(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "Cancel payment failed")
	}

	return ctx.JSON(http.StatusOK, &types.PaymentEnvelopeResponse{Payment: mapper.PaymentToResponse(item, c.display)})
}

func (c *PaymentController) WalletBalance(ctx echo.Context) error {
	req, err := types.NewWalletBalanceRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	balance, err := c.paymentService.WalletBalance(ctx.Request().Context(), req.GetAddress(), req.GetEndpoint())
	if err != nil {
		if errors.Is(err, service.ErrEndpointNotFound) {
			return c.writeError(ctx, http.StatusNotFound, err.Error())
		}
		return c.writeServiceError(ctx, err, "Wallet balance lookup failed")
	}

	return ctx.JSON(http.StatusOK, mapper.WalletBalanceToResponse(balance.Address, balance.Lamports, balance.Endpoint, c.display))
}

// PublicStatus is polled by the payment page; it is served without internal
// auth and only ever exposes the status string.
func (c *PaymentController) PublicStatus(ctx echo.Context) error {
	req, err := types.NewPublicStatusRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	status, err := c.paymentService.GetPublicStatus(ctx.Request().Context(), req.GetToken())
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "payment not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Public status lookup failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.PublicStatusResponse{Status: status})
}

func (c *PaymentController) writeServiceError(ctx echo.Context, err error, logMessage string) error {
	switch {
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrInvalidStatus):
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrPaymentNotFound):
		return c.writeError(ctx, http.StatusNotFound, "payment not found")
	case errors.Is(err, service.ErrPaymentAlreadyExists), errors.Is(err, service.ErrStateConflict):
		return c.writeError(ctx, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrConfiguration):
		return c.writeError(ctx, http.StatusServiceUnavailable, err.Error())
	default:
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(logMessage)
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
}

func (c *PaymentController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
