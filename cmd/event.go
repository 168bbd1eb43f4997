package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gsPatrick/nutri-lp/internal/core/events"
	"github.com/gsPatrick/nutri-lp/pkg/logger"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Publish synthetic payment events to check downstream consumers`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a test payment event",
	Long:  `Publish a payment event (e.g. payment.access_granted) on the event bus, and to Kafka when events.kafka_brokers is set`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := publishTestEvent(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to publish event: %v\n", err)
			os.Exit(1)
		}
	},
}

var (
	eventPaymentID string
	eventReference string
	eventStatus    string
)

func publishTestEvent(eventType string) error {
	config, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	lg := logger.Init(config.Logging.Level, config.Logging.Format)

	eventBus := events.NewEventBus(lg)
	eventBus.Subscribe(events.WildcardEventType, func(ctx context.Context, event events.Event) error {
		lg.Info("test handler received event",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	})

	if brokers := config.Events.Brokers(); len(brokers) > 0 {
		forwarder, err := events.NewKafkaForwarder(brokers, config.Events.KafkaTopic, lg)
		if err != nil {
			return fmt.Errorf("failed to connect to kafka: %w", err)
		}
		defer forwarder.Close()
		eventBus.Subscribe(events.WildcardEventType, forwarder.Handle)
	}

	event := events.NewPaymentEvent(eventType, events.PaymentChange{
		PaymentID:         eventPaymentID,
		ExternalReference: eventReference,
		CustomerEmail:     "cli@example.com",
		BillingType:       "PIX",
		Value:             "5.00",
		Status:            eventStatus,
		At:                time.Now(),
	})

	lg.Info("publishing test event", "event_type", eventType, "event_id", event.EventID())
	return eventBus.PublishSync(context.Background(), event)
}

func init() {
	publishEventCmd.Flags().StringVar(&eventPaymentID, "payment-id", "pay_cli_test", "Gateway payment id carried by the event")
	publishEventCmd.Flags().StringVar(&eventReference, "reference", "GR-CLITEST0", "External reference carried by the event")
	publishEventCmd.Flags().StringVar(&eventStatus, "status", "RECEIVED", "Payment status carried by the event")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
