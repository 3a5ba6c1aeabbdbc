package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/offer-assistant/internal/api"
	"github.com/ashureev/offer-assistant/internal/middleware"
	"github.com/ashureev/offer-assistant/internal/session"
	"github.com/ashureev/offer-assistant/internal/stream"
)

// serveCmd runs the HTTP gateway
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway to the assistant",
	Long: `Opens the assistant connection and serves it over HTTP:
  REST routes under /api, the SSE event stream at /api/events and a
  heartbeat at /health. Stops gracefully on SIGINT/SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func newRouter(h *api.Handler, allowedOrigins []string) chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins))

	h.RegisterRoutes(r)
	return r
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()
	slog.Info("Starting server", "port", cfg.Server.Port, "assistant", cfg.Assistant.URL)

	sess := session.New(cfg.SessionConfig(), cfg.Transport(), logger)
	defer sess.Close()

	board := stream.NewOfferBoard()
	broadcaster := stream.NewBroadcaster(sess, board, cfg.StreamOptions(), logger)
	defer broadcaster.Close()

	handler := api.NewHandler(sess, board, broadcaster.HandleStream, cfg.SendLimiter())

	// SSE connections require no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newRouter(handler, cfg.Server.CORSAllowedOrigins),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	sess.Connect()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		broadcaster.Close()
		sess.Disconnect()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server stopped with error", "error", err)
		return err
	}

	slog.Info("Server stopped successfully")
	return nil
}
