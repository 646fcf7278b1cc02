package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/zark-commerce/api/internal/handlers"
	"github.com/zark-commerce/api/internal/platform/config"
	"github.com/zark-commerce/api/internal/platform/observability"
	"github.com/zark-commerce/api/internal/rates"
	"github.com/zark-commerce/api/internal/services"
)

func main() {
	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	provider, err := selectRateProvider(cfg.Shipping)
	if err != nil {
		logger.Fatal("failed to initialise rate provider", zap.Error(err))
	}
	if provider.Name() == rates.ProviderEstimate {
		logger.Warn("shipping quotes running in estimate mode; no provider token configured")
	}

	quotes, err := services.NewQuoteService(services.QuoteServiceDeps{
		Provider:        provider,
		OriginZip:       cfg.Shipping.OriginZip,
		AllowedCarriers: cfg.Shipping.AllowedCarriers,
		MinWidthCm:      cfg.Shipping.MinWidthCm,
		MinHeightCm:     cfg.Shipping.MinHeightCm,
		MinLengthCm:     cfg.Shipping.MinLengthCm,
		MinWeightKg:     cfg.Shipping.MinWeightKg,
		CacheTTL:        cfg.Shipping.CacheTTL,
	})
	if err != nil {
		logger.Fatal("failed to initialise quote service", zap.Error(err))
	}

	pixService, err := services.NewPixService(services.PixServiceDeps{
		Key:          cfg.Pix.Key,
		MerchantName: cfg.Pix.MerchantName,
		MerchantCity: cfg.Pix.MerchantCity,
		ChargeTTL:    cfg.Pix.ChargeTTL,
		QRSize:       cfg.Pix.QRSize,
	})
	if err != nil {
		logger.Fatal("failed to initialise pix service", zap.Error(err))
	}

	limiter := handlers.NewFixedWindowLimiter(cfg.RateLimit.ShippingMax, cfg.RateLimit.ShippingWindow)
	shippingHandlers := handlers.NewShippingHandlers(quotes, limiter)
	pixHandlers := handlers.NewPixHandlers(pixService)
	healthHandlers := handlers.NewHealthHandlers(handlers.WithHealthProviderName(provider.Name()))

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithShippingRoutes(shippingHandlers.Routes),
		handlers.WithPixRoutes(pixHandlers.Routes),
	)

	sweepCtx, sweepCancel := context.WithCancel(observability.WithLogger(context.Background(), logger))
	var sweepWG sync.WaitGroup
	sweepWG.Add(1)
	go func() {
		defer sweepWG.Done()
		ticker := time.NewTicker(cfg.Shipping.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				quotes.SweepQuoteCache(sweepCtx)
			}
		}
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("zark commerce api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	sweepCancel()
	sweepWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// selectRateProvider picks the live client when a token is configured and the
// estimate fallback otherwise. The choice is made once; request handling never
// switches providers.
func selectRateProvider(cfg config.ShippingConfig) (rates.Provider, error) {
	if cfg.Token == "" || cfg.ForceEstimate {
		return rates.NewEstimateProvider(estimateTiers(cfg.EstimateTiers))
	}
	return rates.NewMelhorEnvio(rates.MelhorEnvioConfig{
		Token:     cfg.Token,
		BaseURL:   cfg.BaseURL,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.RequestTimeout,
	})
}

func estimateTiers(tiers []config.EstimateTier) []rates.Tier {
	out := make([]rates.Tier, 0, len(tiers))
	for _, tier := range tiers {
		out = append(out, rates.Tier{
			MaxWeightKg: tier.MaxWeightKg,
			PriceCents:  tier.PriceCents,
			CatchAll:    tier.CatchAll,
		})
	}
	return out
}
