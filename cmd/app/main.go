package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mvoronin91/washbooking/config"
	"github.com/mvoronin91/washbooking/internal/allocator"
	"github.com/mvoronin91/washbooking/internal/bootstrap"
	"github.com/mvoronin91/washbooking/internal/cache"
	"github.com/mvoronin91/washbooking/internal/kafka"
	"github.com/mvoronin91/washbooking/internal/repository"
	"github.com/mvoronin91/washbooking/internal/service/booking"
	"github.com/mvoronin91/washbooking/internal/service/catalog"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Booking.ServicesCacheTTL)*time.Second)
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	bookingRepo := repository.NewBookingRepository(pool)
	serviceCatalog := repository.NewServiceCatalog(pool)
	vehicleRegistry := repository.NewVehicleRegistry(pool)
	resourceDirectory := repository.NewResourceDirectory(pool)
	commitmentStore := repository.NewCommitmentStore(pool)

	allocCfg := allocatorConfig(cfg.Booking)
	alloc := allocator.New(resourceDirectory, commitmentStore, allocCfg)

	catalogService := catalog.NewCatalogService(serviceCatalog, redisCache)
	bookingService := booking.NewBookingService(
		bookingRepo,
		serviceCatalog,
		vehicleRegistry,
		alloc,
		redisCache,
		producer,
		cfg.Kafka.BookingTopic,
		time.Duration(cfg.Booking.SlotLockTTLMinutes)*time.Minute,
		allocCfg.Buffer,
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
	)

	if err := bootstrap.Run(ctx, cfg, bookingService, catalogService); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func allocatorConfig(cfg config.BookingConfig) allocator.Config {
	out := allocator.DefaultConfig()
	if cfg.BufferMinutes > 0 {
		out.Buffer = time.Duration(cfg.BufferMinutes) * time.Minute
	}
	if cfg.SuggestionCount > 0 {
		out.SuggestionCount = cfg.SuggestionCount
	}
	if cfg.ScanStepMinutes > 0 {
		out.ScanStep = time.Duration(cfg.ScanStepMinutes) * time.Minute
	}
	if cfg.ScanHorizonHours > 0 {
		out.ScanHorizon = time.Duration(cfg.ScanHorizonHours) * time.Hour
	}
	return out
}
