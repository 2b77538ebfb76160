package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/vehicle-rental/internal/scheduler"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background jobs that run outside the HTTP server.`,
}

var sweeperWorkerCmd = &cobra.Command{
	Use:   "sweeper",
	Short: "Start the no-show sweeper",
	Long:  `Mark confirmed bookings as no-show once their start has passed the grace period. Runs on the configured cron schedule, or once with --once.`,
	Run: func(cmd *cobra.Command, args []string) {
		startSweeper()
	},
}

var (
	sweepOnce     bool
	sweepSchedule string
)

func startSweeper() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	log := deps.Logger

	if sweepOnce {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		marked, err := deps.Bookings.SweepNoShows(ctx)
		if err != nil {
			log.Error("no-show sweep failed", "error", err)
			return
		}
		log.Info("no-show sweep finished", "marked", marked)
		return
	}

	spec := getStringFlag(sweepSchedule, deps.Config.Scheduler.NoShowSweep)
	sched, err := scheduler.New(spec, deps.Bookings, log)
	if err != nil {
		log.Error("failed to register sweeper", "error", err)
		return
	}
	sched.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info("sweeper is running. Press Ctrl+C to stop.", "schedule", spec)

	sig := <-sigChan
	log.Info("received signal, shutting down sweeper", "signal", sig)
	sched.Stop()
}

func getStringFlag(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func init() {
	sweeperWorkerCmd.Flags().BoolVar(&sweepOnce, "once", false, "run a single sweep and exit")
	sweeperWorkerCmd.Flags().StringVar(&sweepSchedule, "schedule", "", "cron schedule with seconds (overrides config)")

	workerCmd.AddCommand(sweeperWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
