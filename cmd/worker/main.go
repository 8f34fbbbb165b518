package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mvoronin91/washbooking/config"
	"github.com/mvoronin91/washbooking/internal/allocator"
	"github.com/mvoronin91/washbooking/internal/cache"
	"github.com/mvoronin91/washbooking/internal/kafka"
	"github.com/mvoronin91/washbooking/internal/notify"
	"github.com/mvoronin91/washbooking/internal/repository"
	"github.com/mvoronin91/washbooking/internal/service/booking"
	kafkaGo "github.com/segmentio/kafka-go"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()
	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Booking.ServicesCacheTTL)*time.Second)

	bookingRepo := repository.NewBookingRepository(pool)
	serviceCatalog := repository.NewServiceCatalog(pool)
	vehicleRegistry := repository.NewVehicleRegistry(pool)
	resourceDirectory := repository.NewResourceDirectory(pool)
	commitmentStore := repository.NewCommitmentStore(pool)

	alloc := allocator.New(resourceDirectory, commitmentStore, allocator.DefaultConfig())
	bookingService := booking.NewBookingService(
		bookingRepo,
		serviceCatalog,
		vehicleRegistry,
		alloc,
		redisCache,
		producer,
		cfg.Kafka.BookingTopic,
		time.Duration(cfg.Booking.SlotLockTTLMinutes)*time.Minute,
		time.Duration(cfg.Booking.BufferMinutes)*time.Minute,
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
	)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
	defer consumer.Close()

	sender := notify.NewSender()

	go func() {
		if err := consumer.Consume(ctx, func(ctx context.Context, msg kafkaGo.Message) error {
			var event kafka.BookingEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				log.Printf("decode event error: %v", err)
				return nil
			}
			return sender.Send(ctx, event)
		}); err != nil {
			log.Printf("consumer stopped: %v", err)
		}
	}()

	sweepTicker := time.NewTicker(time.Duration(cfg.Worker.NoShowSweepMinutes) * time.Minute)
	defer sweepTicker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sweepTicker.C:
			marked, err := bookingService.SweepNoShows(ctx)
			if err != nil {
				log.Printf("no-show sweep error: %v", err)
				continue
			}
			if len(marked) > 0 {
				log.Printf("marked %d bookings as no-show", len(marked))
			}
		case s := <-sig:
			log.Printf("received signal %v, shutting down", s)
			return
		}
	}
}
