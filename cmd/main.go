// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Shivanand-hulikatti/library-reservations/internal/clock"
	"github.com/Shivanand-hulikatti/library-reservations/internal/config"
	"github.com/Shivanand-hulikatti/library-reservations/internal/database"
	"github.com/Shivanand-hulikatti/library-reservations/internal/handler"
	"github.com/Shivanand-hulikatti/library-reservations/internal/inventory"
	"github.com/Shivanand-hulikatti/library-reservations/internal/model"
	"github.com/Shivanand-hulikatti/library-reservations/internal/repository"
	"github.com/Shivanand-hulikatti/library-reservations/internal/service"
	"github.com/Shivanand-hulikatti/library-reservations/internal/storage"
	"github.com/Shivanand-hulikatti/library-reservations/internal/storage/memory"
	"github.com/Shivanand-hulikatti/library-reservations/internal/sweeper"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Storage backend ────────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// ── 2. Wire up layers ────────────────────────────────────────────────
	ledger := inventory.NewLedger(logger.With("component", "inventory"))
	svc, err := service.NewReservationService(store, ledger, clock.System{},
		service.WithLoanPeriod(cfg.LoanPeriodDays),
		service.WithReturnPolicy(cfg.ReturnPolicy),
		service.WithLogger(logger.With("component", "reservations")),
	)
	if err != nil {
		return fmt.Errorf("reservation service: %w", err)
	}
	h := handler.NewReservationHandler(svc, logger)
	limiter := handler.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// ── 3. Background overdue sweep ──────────────────────────────────────
	var wg sync.WaitGroup
	runner := sweeper.New(svc, cfg.OverdueSweepInterval, logger.With("component", "sweeper"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		runner.Run(ctx)
	}()

	// ── 4. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      handler.Routes(h, logger, limiter),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"port", cfg.Port, "backend", cfg.StorageBackend, "return_policy", cfg.ReturnPolicy)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Block until SIGINT or SIGTERM, or the listener fails.
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	wg.Wait()
	logger.Info("server stopped")
	return nil
}

// openStore connects the configured backend. The memory backend starts with
// a small demo catalog so the API can be tried without a database.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.Store, func(), error) {
	if cfg.StorageBackend == config.BackendMemory {
		logger.Warn("using in-memory storage; data is lost on exit and all writes are serialised")
		store := memory.New()
		seedDemo(store, logger)
		return store, func() {}, nil
	}

	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	logger.Info("connected to PostgreSQL", "host", cfg.Database.Host, "db", cfg.Database.DBName)

	store, err := repository.New(pool, repository.WithLogger(logger.With("component", "repository")))
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("repository: %w", err)
	}
	return store, pool.Close, nil
}

func seedDemo(store *memory.Store, logger *slog.Logger) {
	u := store.AddUser(model.User{DisplayName: "Demo Reader"})
	books := []model.Book{
		{Title: "The Left Hand of Darkness", Author: "Ursula K. Le Guin", AvailableCopies: 2},
		{Title: "Invisible Cities", Author: "Italo Calvino", AvailableCopies: 1},
		{Title: "Solaris", Author: "Stanisław Lem", AvailableCopies: 0},
	}
	for _, b := range books {
		b = store.AddBook(b)
		logger.Info("demo book", "book_id", b.ID, "title", b.Title, "available_copies", b.AvailableCopies)
	}
	logger.Info("demo user", "user_id", u.ID, "display_name", u.DisplayName)
}
