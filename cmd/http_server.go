package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/vehicle-rental/internal/booking"
	"github.com/frahmantamala/vehicle-rental/internal/driver"
	"github.com/frahmantamala/vehicle-rental/internal/payment"
	"github.com/frahmantamala/vehicle-rental/internal/scheduler"
	"github.com/frahmantamala/vehicle-rental/internal/transport"
	"github.com/frahmantamala/vehicle-rental/internal/transport/rest"
	"github.com/frahmantamala/vehicle-rental/internal/vehicle"
)

var withSweeper bool

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	router := chi.NewRouter()
	setupRoutes(router, deps)

	var sched *scheduler.Scheduler
	if withSweeper {
		sched, err = scheduler.New(deps.Config.Scheduler.NoShowSweep, deps.Bookings, deps.Logger)
		if err != nil {
			deps.Logger.Error("failed to start scheduler", "error", err)
			return
		}
		sched.Start()
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("server failed", "error", err)
		}
	}

	if sched != nil {
		sched.Stop()
	}
	deps.Logger.Info("server stopped")
}

func setupRoutes(router *chi.Mux, deps *Dependencies) {
	base := transport.NewBaseHandler(deps.Logger)

	checks := map[string]rest.CheckFunc{"postgres": deps.DB.PingContext}
	if deps.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() }
	}

	rest.RegisterAllRoutes(router, rest.Handlers{
		Health:  rest.NewHealthHandler(checks),
		Booking: booking.NewHandler(base, deps.Bookings, deps.Logger),
		Payment: payment.NewHandler(base, deps.Payments, deps.Orchestrator, deps.Logger),
		Webhook: payment.NewWebhookHandler(base, deps.Payments, deps.Logger),
		Vehicle: vehicle.NewHandler(base, deps.Vehicles, deps.Logger),
		Driver:  driver.NewHandler(base, deps.Drivers, deps.Logger),
	}, deps.Logger)
}

func init() {
	httpServerCmd.Flags().BoolVar(&withSweeper, "with-sweeper", false, "also run the no-show sweeper in this process")
}
