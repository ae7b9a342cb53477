package cmd

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	authclient "github.com/vibast-solutions/lib-go-auth/client"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	authlibservice "github.com/vibast-solutions/lib-go-auth/service"
	"github.com/vibast-solutions/ms-go-solana-pay/app/controller"
	paymentgrpc "github.com/vibast-solutions/ms-go-solana-pay/app/grpc"
	"github.com/vibast-solutions/ms-go-solana-pay/app/mapper"
	"github.com/vibast-solutions/ms-go-solana-pay/app/metrics"
	"github.com/vibast-solutions/ms-go-solana-pay/app/provider"
	"github.com/vibast-solutions/ms-go-solana-pay/app/repository"
	"github.com/vibast-solutions/ms-go-solana-pay/app/service"
	"github.com/vibast-solutions/ms-go-solana-pay/app/solanapay"
	"github.com/vibast-solutions/ms-go-solana-pay/app/types"
	"github.com/vibast-solutions/ms-go-solana-pay/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  "Start the HTTP (Echo) API, the public payment status endpoint and the gRPC health server.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	deps := mustCreatePaymentService()
	defer deps.cleanup()
	cfg := deps.cfg

	metrics.MustRegister()

	paymentController := controller.NewPaymentController(deps.paymentService, displayFromConfig(cfg))
	healthServer := paymentgrpc.NewServer(deps.registry)

	authGRPCClient, err := authclient.NewGRPCClientFromAddr(context.Background(), cfg.InternalEndpoints.AuthGRPCAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize auth gRPC client")
	}
	defer authGRPCClient.Close()

	internalAuthService := authlibservice.NewInternalAuthService(authGRPCClient)
	echoInternalAuthMiddleware := authmiddleware.NewEchoInternalAuthMiddleware(internalAuthService)
	grpcInternalAuthMiddleware := authmiddleware.NewGRPCInternalAuthMiddleware(internalAuthService)

	e := setupHTTPServer(paymentController, echoInternalAuthMiddleware, cfg.App.ServiceName)
	grpcSrv, lis := setupGRPCServer(cfg, healthServer, grpcInternalAuthMiddleware, cfg.App.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logrus.WithField("addr", lis.Addr().String()).Info("Starting gRPC server")
		return grpcSrv.Serve(lis)
	})

	g.Go(func() error {
		healthServer.Run(gctx, cfg.Jobs.HealthCheckInterval)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := e.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Warn("HTTP shutdown error")
		}
		grpcSrv.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logrus.WithError(err).Fatal("Server error")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(
	paymentController *controller.PaymentController,
	internalAuthMiddleware *authmiddleware.EchoInternalAuthMiddleware,
	appServiceName string,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			if v.RequestID != "" {
				fields["request_id"] = v.RequestID
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/health", paymentController.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Polled by the buyer's payment page; no internal credentials.
	e.GET("/pay/:token/status", paymentController.PublicStatus)

	internal := []echo.MiddlewareFunc{
		requireRequestID(),
		internalAuthMiddleware.RequireInternalAccess(appServiceName),
	}

	payments := e.Group("/payments", internal...)
	payments.POST("", paymentController.CreatePayment)
	payments.GET("", paymentController.ListPayments)
	payments.GET("/:id", paymentController.GetPayment)
	payments.POST("/:id/checkout", paymentController.Checkout)
	payments.POST("/:id/verify", paymentController.VerifyPayment)
	payments.GET("/:id/verifications", paymentController.ListVerifications)
	payments.POST("/:id/receive", paymentController.ReceivePayment)
	payments.POST("/:id/void", paymentController.VoidPayment)
	payments.POST("/:id/refund", paymentController.RefundPayment)
	payments.POST("/:id/cancel", paymentController.CancelPayment)

	wallets := e.Group("/wallets", internal...)
	wallets.GET("/:address/balance", paymentController.WalletBalance)

	return e
}

func requireRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "x-request-id header is required"})
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

func setupGRPCServer(
	cfg *config.Config,
	healthServer *paymentgrpc.Server,
	internalAuthMiddleware *authmiddleware.GRPCInternalAuthMiddleware,
	appServiceName string,
) (*grpc.Server, net.Listener) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	grpcSrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			paymentgrpc.RecoveryInterceptor(),
			paymentgrpc.RequestIDInterceptor(),
			paymentgrpc.LoggingInterceptor(),
			paymentgrpc.SkipHealth(internalAuthMiddleware.UnaryRequireInternalAccess(appServiceName)),
		),
	)
	healthServer.Register(grpcSrv)

	return grpcSrv, lis
}

type serviceDeps struct {
	cfg            *config.Config
	paymentService *service.PaymentService
	registry       *provider.Registry
	cleanup        func()
}

func mustCreatePaymentService() *serviceDeps {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	paymentRepo := repository.NewPaymentRepository(db)
	eventRepo := repository.NewPaymentEventRepository(db)
	verificationRepo := repository.NewPaymentVerificationRepository(db)

	registry := newRegistry(cfg)
	logrus.WithField("endpoint", registry.DefaultKey()).Info("Using Solana RPC endpoint")

	paymentService := service.NewPaymentService(
		paymentRepo,
		eventRepo,
		verificationRepo,
		solanapay.NewReferenceGenerator(),
		solanapay.NewVerifier(registry.Default()),
		registry,
		cfg,
	)

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return &serviceDeps{
		cfg:            cfg,
		paymentService: paymentService,
		registry:       registry,
		cleanup:        cleanup,
	}
}

func newRegistry(cfg *config.Config) *provider.Registry {
	endpoints := make([]provider.Endpoint, 0, len(cfg.Solana.Endpoints))
	for _, item := range cfg.Solana.Endpoints {
		endpoints = append(endpoints, provider.Endpoint{
			Key:     item.Key,
			Name:    item.Name,
			URL:     item.URL,
			Enabled: item.Enabled,
		})
	}
	return provider.NewRegistry(endpoints, cfg.Solana.DefaultEndpoint, cfg.Solana.RequestTimeout)
}

func displayFromConfig(cfg *config.Config) mapper.Display {
	return mapper.Display{
		Explorer:   cfg.Solana.Explorer,
		TrimLength: cfg.Solana.WalletTrimLength,
	}
}
