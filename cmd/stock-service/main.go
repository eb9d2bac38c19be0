package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/stockflow/stockflow-backend/internal/catalog/consumers"
	cataloghandler "github.com/stockflow/stockflow-backend/internal/catalog/handler"
	catalogrepo "github.com/stockflow/stockflow-backend/internal/catalog/repository"
	"github.com/stockflow/stockflow-backend/internal/stock/events"
	"github.com/stockflow/stockflow-backend/internal/stock/handler"
	"github.com/stockflow/stockflow-backend/internal/stock/repository"
	"github.com/stockflow/stockflow-backend/internal/stock/service"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/i18n"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("stock-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("stock-service", cfg.Server.Environment)
	log.Info().Msg("starting Stock Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewStockEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize catalog repositories
	productRepo := catalogrepo.NewProductRepository(db)
	warehouseRepo := catalogrepo.NewWarehouseRepository(db)
	employeeRepo := catalogrepo.NewEmployeeCacheRepository(db)

	// Initialize stock services
	runner := repository.NewTxRunner(db)
	allocator := service.NewAllocator(nil)

	orderService := service.NewOrderService(runner, allocator, productRepo, warehouseRepo, employeeRepo, publisher, log)
	transferService := service.NewTransferService(runner, allocator, productRepo, warehouseRepo, publisher, log)
	productionService := service.NewProductionService(runner, allocator, productRepo, warehouseRepo, employeeRepo, publisher, log)
	stockService := service.NewStockService(runner, allocator, productRepo, warehouseRepo, publisher, log)

	// Initialize handlers
	orderHandler := handler.NewOrderHandler(orderService, log)
	transferHandler := handler.NewTransferHandler(transferService, log)
	productionHandler := handler.NewProductionHandler(productionService, log)
	stockHandler := handler.NewStockHandler(stockService, log)
	productHandler := cataloghandler.NewProductHandler(productRepo, log)
	warehouseHandler := cataloghandler.NewWarehouseHandler(warehouseRepo, log)

	// Start user event consumer
	userConsumer, err := consumers.NewUserEventConsumer(rmq, employeeRepo, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create user event consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := userConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start user event consumer")
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Accept-Language"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// i18n middleware - extract locale from Accept-Language header
	r.Use(i18n.Middleware)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "stock-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httputil.Auth(cfg.JWT.Secret, log))

		// Catalog routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", productHandler.List)
			r.Post("/", productHandler.Create)
			r.Get("/{id}", productHandler.Get)
			r.Put("/{id}", productHandler.Update)
			r.Delete("/{id}", productHandler.Delete)
			r.Get("/{id}/stock", stockHandler.ProductStock)
		})

		r.Route("/warehouses", func(r chi.Router) {
			r.Get("/", warehouseHandler.List)
			r.Post("/", warehouseHandler.Create)
			r.Get("/{id}", warehouseHandler.Get)
			r.Put("/{id}", warehouseHandler.Update)
			r.Delete("/{id}", warehouseHandler.Delete)
			r.Get("/{id}/stock", stockHandler.WarehouseStock)
			r.Get("/{id}/expiring", stockHandler.ExpiringBatches)
		})

		// Goods receipt
		r.Post("/stock/receive", stockHandler.Receive)

		// Output orders
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", orderHandler.List)
			r.Post("/", orderHandler.Create)
			r.Get("/{id}", orderHandler.Get)
			r.Put("/{id}/lines", orderHandler.UpdateLines)
			r.Post("/{id}/confirm", orderHandler.Confirm)
			r.Post("/{id}/deliver", orderHandler.StartDelivery)
			r.Post("/{id}/complete", orderHandler.Complete)
			r.Post("/{id}/cancel", orderHandler.Cancel)
			r.Post("/{id}/returns", orderHandler.Return)
			r.Get("/{id}/returns", orderHandler.ListReturns)
		})

		// Inter-warehouse transfers
		r.Route("/transfers", func(r chi.Router) {
			r.Get("/", transferHandler.List)
			r.Post("/", transferHandler.Create)
			r.Get("/{id}", transferHandler.Get)
			r.Put("/{id}/lines", transferHandler.Update)
			r.Post("/{id}/confirm", transferHandler.Confirm)
			r.Post("/{id}/cancel", transferHandler.Cancel)
		})

		// Production orders
		r.Route("/productions", func(r chi.Router) {
			r.Get("/", productionHandler.List)
			r.Post("/", productionHandler.Create)
			r.Get("/{id}", productionHandler.Get)
			r.Post("/{id}/start", productionHandler.Start)
			r.Post("/{id}/waiting-approval", productionHandler.MoveToWaitingApproval)
			r.Post("/{id}/finish", productionHandler.Finish)
			r.Post("/{id}/cancel", productionHandler.Cancel)
		})
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop consumers
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
