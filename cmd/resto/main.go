// Package main запускает HTTP-сервер сервиса ресторанных заказов.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/resto-system/internal/config"
	"github.com/mmeshcher/resto-system/internal/events"
	"github.com/mmeshcher/resto-system/internal/handler"
	"github.com/mmeshcher/resto-system/internal/kitchen"
	"github.com/mmeshcher/resto-system/internal/order"
	"github.com/mmeshcher/resto-system/internal/payment"
	"github.com/mmeshcher/resto-system/internal/promo"
	"github.com/mmeshcher/resto-system/internal/repository"
	"github.com/mmeshcher/resto-system/internal/stock"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.RabbitMQURL != "" {
		rmq, err := events.NewRabbitMQPublisher(cfg.RabbitMQURL)
		if err != nil {
			sugar.Fatalw("RabbitMQ initialization error", "error", err.Error())
		}
		publisher = rmq
	}
	defer publisher.Close()

	var promos promo.Adapter = promo.Noop{}
	if cfg.PromosEnabled {
		promos = promo.NewService(repo)
	}

	stockEngine := stock.NewEngine(repo)
	ticketRouter := kitchen.NewRouter(repo)

	orders := order.NewService(repo, stockEngine, ticketRouter, promos, publisher, logger)
	ledger := payment.NewLedger(repo, stockEngine, publisher, logger)

	h := handler.NewHandler(orders, ledger, repo, logger)
	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting resto server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
