package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appcoupon "github.com/minsoo-kang/commerce-fulfillment/internal/application/coupon"
	apporder "github.com/minsoo-kang/commerce-fulfillment/internal/application/order"
	apppayment "github.com/minsoo-kang/commerce-fulfillment/internal/application/payment"
	appstock "github.com/minsoo-kang/commerce-fulfillment/internal/application/stock"
	"github.com/minsoo-kang/commerce-fulfillment/internal/config"
	domevent "github.com/minsoo-kang/commerce-fulfillment/internal/domain/event"
	domorder "github.com/minsoo-kang/commerce-fulfillment/internal/domain/order"
	domstock "github.com/minsoo-kang/commerce-fulfillment/internal/domain/stock"
	"github.com/minsoo-kang/commerce-fulfillment/internal/infrastructure/cache"
	"github.com/minsoo-kang/commerce-fulfillment/internal/infrastructure/gateway"
	"github.com/minsoo-kang/commerce-fulfillment/internal/infrastructure/id"
	"github.com/minsoo-kang/commerce-fulfillment/internal/infrastructure/memory"
	obsprovider "github.com/minsoo-kang/commerce-fulfillment/internal/infrastructure/observability"
	"github.com/minsoo-kang/commerce-fulfillment/internal/infrastructure/observability/oteltrace"
	"github.com/minsoo-kang/commerce-fulfillment/internal/infrastructure/observability/prometrics"
	"github.com/minsoo-kang/commerce-fulfillment/internal/infrastructure/observability/zaplogger"
	"github.com/minsoo-kang/commerce-fulfillment/internal/infrastructure/outbox"
	"github.com/minsoo-kang/commerce-fulfillment/internal/infrastructure/postgres"
	"github.com/minsoo-kang/commerce-fulfillment/internal/infrastructure/stream"
	"github.com/minsoo-kang/commerce-fulfillment/internal/observability"
	httppresentation "github.com/minsoo-kang/commerce-fulfillment/internal/presentation/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

func main() {
	cfg := config.Load()

	logger := zaplogger.New(
		observability.F("service", cfg.ServiceName),
		observability.F("env", cfg.Env),
	)
	defer func() {
		if s, ok := logger.(interface{ Sync() error }); ok {
			_ = s.Sync()
		}
	}()

	tel := buildObservability(cfg, logger)
	sysLog := tel.Logger().With(observability.F("component", "main"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Repositories. The hot path (orders, products, reservations) moves to
	// Postgres when a DSN is configured; the rest stays in memory.
	var (
		orderRepo       domorder.Repository
		productRepo     domstock.ProductRepository
		reservationRepo domstock.ReservationRepository
	)
	if cfg.PostgresDSN != "" {
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			sysLog.Error("postgres_connect_failed", observability.F("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()
		orderRepo = postgres.NewOrderRepository(pool)
		productRepo = postgres.NewProductRepository(pool)
		reservationRepo = postgres.NewReservationRepository(pool)
		sysLog.Info("storage_postgres")
	} else {
		orderRepo = memory.NewOrderRepository()
		productRepo = memory.NewProductRepository()
		reservationRepo = memory.NewReservationRepository()
		sysLog.Info("storage_memory")
	}

	couponRepo := memory.NewCouponRepository()
	userCouponRepo := memory.NewUserCouponRepository()
	paymentRepo := memory.NewPaymentRepository()
	pointRepo := memory.NewPointRepository()
	handledRepo := memory.NewHandledEventRepository()
	deadLetterRepo := memory.NewDeadLetterRepository()
	locks := memory.NewKeyLock()
	ids := id.NewUUIDGenerator()

	// Optional side channels.
	var (
		stockStream appstock.Stream
		orderStream apporder.Stream
		invalidator appstock.CacheInvalidator
	)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub := stream.NewKafkaPublisher(cfg.KafkaBrokers, tel)
		defer func() { _ = kafkaPub.Close() }()
		stockStream = kafkaPub
		orderStream = kafkaPub
		sysLog.Info("stream_kafka_enabled")
	}
	if cfg.RedisAddr != "" {
		redisInv := cache.NewRedisInvalidator(cfg.RedisAddr, tel)
		defer func() { _ = redisInv.Close() }()
		invalidator = redisInv
		sysLog.Info("cache_redis_enabled")
	}

	maxAmount, err := decimal.NewFromString(cfg.Gateway.MaxAmount)
	if err != nil {
		sysLog.Error("invalid_gateway_max_amount", observability.F("value", cfg.Gateway.MaxAmount))
		os.Exit(1)
	}

	gatewayClient := gateway.NewResilientClient(gateway.NewClient(cfg.Gateway, tel), cfg.Gateway, tel)

	bus := outbox.NewBus(cfg.Bus, tel.Logger())
	bus.Start(ctx)
	defer bus.Stop(context.Background())

	guard := domevent.NewGuard(handledRepo, tel.Logger())

	stockSvc := appstock.NewService(productRepo, reservationRepo, locks, stockStream, invalidator, tel)
	couponSvc := appcoupon.NewService(couponRepo, userCouponRepo, locks, tel)
	paymentSvc := apppayment.NewService(
		paymentRepo,
		apppayment.NewFactory(
			apppayment.NewPointProcessor(pointRepo, locks),
			apppayment.NewGatewayProcessor(gatewayClient, cfg.Gateway.CallbackURL, maxAmount, tel),
		),
		bus,
		ids,
		tel,
	)
	orderSvc := apporder.NewService(orderRepo, stockSvc, couponSvc, ids, bus, tel)

	appcoupon.NewWorker(couponSvc, bus, bus, guard, tel).Start()
	apppayment.NewWorker(paymentSvc, bus, guard, tel).Start()
	apporder.NewWorker(orderRepo, stockSvc, bus, guard, deadLetterRepo, ids, orderStream, tel).Start()

	reconciler := apppayment.NewReconciler(paymentSvc, paymentRepo, gatewayClient, cfg.Poller, tel)
	reconciler.Start(ctx)

	handler := httppresentation.NewHandler(orderSvc, paymentSvc, couponSvc, tel)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		sysLog.Info("http_server_start", observability.F("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sysLog.Error("http_server_error", observability.F("error", err.Error()))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		sysLog.Error("http_server_shutdown_error", observability.F("error", err.Error()))
	} else {
		sysLog.Info("http_server_stopped")
	}
}

func buildObservability(cfg config.Config, logger observability.Logger) observability.Observability {
	reg := prometrics.New("", "")

	counters := map[observability.MetricKey]observability.Counter{
		observability.MUsecaseRequests: reg.Counter(
			string(observability.MUsecaseRequests), "Total number of use case invocations.",
			"use_case", "outcome",
		),
		observability.MHTTPRequests: reg.Counter(
			string(observability.MHTTPRequests), "Total number of HTTP requests.",
			"method", "route", "status",
		),
		observability.MExternalRequests: reg.Counter(
			string(observability.MExternalRequests), "Total number of outbound requests.",
			"peer", "endpoint", "outcome",
		),
		observability.MSagaDeadLetters: reg.Counter(
			string(observability.MSagaDeadLetters), "Compensations parked for manual intervention.",
			"handler", "event",
		),
		observability.MPaymentManualReview: reg.Counter(
			string(observability.MPaymentManualReview), "Payments flagged for manual review.",
			"method",
		),
	}
	histograms := map[observability.MetricKey]observability.Histogram{
		observability.MUsecaseDuration: reg.Histogram(
			string(observability.MUsecaseDuration), "Duration of use case execution in seconds.", nil,
			"use_case",
		),
		observability.MHTTPRequestDuration: reg.Histogram(
			string(observability.MHTTPRequestDuration), "Duration of HTTP requests in seconds.", nil,
			"method", "route", "status",
		),
		observability.MExternalRequestDuration: reg.Histogram(
			string(observability.MExternalRequestDuration), "Duration of outbound requests in seconds.", nil,
			"peer", "endpoint",
		),
	}

	return obsprovider.New(oteltrace.New(cfg.ServiceName), logger, counters, histograms)
}
