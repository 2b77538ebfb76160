package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/vehicle-rental/internal/core/events"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Inspect the event bus: publish events to the subscribers the server runs.`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish an event to the application's subscribers",
	Long: `Publish a booking.status_changed, payment.status_changed or free-form event on the
application bus. The driver mirror, vehicle stats and booking audit subscribers run
against the configured database, so a booking event replays its side effects.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := publishTestEvent(args[0]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

var (
	eventData      string
	eventBookingID int64
	eventVehicleID int64
	eventDriverID  int64
	eventFrom      string
	eventTo        string
	eventNetPaid   int64
)

func buildTestEvent(eventType string) events.Event {
	switch eventType {
	case events.EventTypeBookingStatusChanged:
		var driverID *int64
		if eventDriverID > 0 {
			driverID = &eventDriverID
		}
		return events.NewBookingStatusChangedEvent(eventBookingID, eventVehicleID, driverID, eventFrom, eventTo)
	case events.EventTypePaymentStatusChanged:
		return events.NewPaymentStatusChangedEvent(eventBookingID, eventFrom, eventTo, eventNetPaid)
	}
	return events.BaseEvent{
		ID:        fmt.Sprintf("test-%d", time.Now().Unix()),
		Type:      eventType,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"message": eventData,
			"source":  "cli-command",
		},
	}
}

func publishTestEvent(eventType string) error {
	deps, err := initializeDependencies()
	if err != nil {
		return err
	}
	defer deps.Close()

	return publishEvent(context.Background(), deps.Bus, deps.Logger, buildTestEvent(eventType))
}

// publishEvent delivers event to every subscriber on bus, plus a handler
// that logs what arrived.
func publishEvent(ctx context.Context, bus *events.EventBus, log *slog.Logger, event events.Event) error {
	bus.Subscribe(event.EventType(), func(ctx context.Context, event events.Event) error {
		log.Info("event received",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	})

	log.Info("publishing event", "event_type", event.EventType(), "event_id", event.EventID())
	if err := bus.PublishSync(ctx, event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Info("event published successfully")
	return nil
}

func init() {
	publishEventCmd.Flags().StringVar(&eventData, "data", "test message", "Event data message")
	publishEventCmd.Flags().Int64Var(&eventBookingID, "booking-id", 1, "Booking id for status change events")
	publishEventCmd.Flags().Int64Var(&eventVehicleID, "vehicle-id", 0, "Vehicle id for booking status change events")
	publishEventCmd.Flags().Int64Var(&eventDriverID, "driver-id", 0, "Assigned driver id for booking status change events")
	publishEventCmd.Flags().StringVar(&eventFrom, "from", "pending", "Previous status for status change events")
	publishEventCmd.Flags().StringVar(&eventTo, "to", "confirmed", "New status for status change events")
	publishEventCmd.Flags().Int64Var(&eventNetPaid, "net-paid", 0, "Net paid for payment status change events")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
