// Command mercato wires the catalog write-side runtime: database, write
// batcher, command bus with every service, projection-backed read models,
// the outbox poller with its watermill bridge, and the scheduler driver.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/akeemphilbert/mercato/internal/application"
	appinfra "github.com/akeemphilbert/mercato/internal/infrastructure"
	"github.com/akeemphilbert/mercato/pkg/infrastructure"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	config, err := infrastructure.LoadConfig()
	if err != nil {
		return err
	}
	logger := infrastructure.NewLogger(config.Logging.Level, config.Logging.Format)

	db, err := infrastructure.NewDatabase(config.Database)
	if err != nil {
		return err
	}
	if err := infrastructure.Migrate(db); err != nil {
		return err
	}
	if err := appinfra.MigrateViews(db); err != nil {
		return err
	}

	batcher := infrastructure.NewBatcher(db, logger, config.Batcher)
	cache := infrastructure.NewSnapshotCache(30 * time.Second)
	tx := infrastructure.NewTransactionManager(db, batcher, cache, logger)

	views := appinfra.NewViewRepositories(db)
	services := application.NewServices(tx, views, logger)
	bus := application.NewCommandBus()
	services.RegisterAll(bus)

	// Outbox delivery: every event fans out to the watermill pub/sub, from
	// which downstream consumers subscribe per event name.
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NopLogger{})
	poller, err := infrastructure.NewOutboxPoller(db, logger, config.Outbox)
	if err != nil {
		return err
	}
	bridge := infrastructure.NewWatermillPublisherHandler(pubSub)
	for _, eventName := range application.PublishedEventNames() {
		poller.Register(eventName, bridge)
	}
	poller.Start()

	scheduler := application.NewSchedulerDriver(services, views, bus, logger, config.Scheduler)
	scheduler.Start()

	logger.Info("mercato catalog runtime started", "driver", config.Database.Driver)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	scheduler.Stop()
	poller.Stop()
	batcher.Stop()
	return nil
}
