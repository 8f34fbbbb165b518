package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mvoronin91/washbooking/internal/allocator"
	"github.com/mvoronin91/washbooking/internal/domain"
	"github.com/mvoronin91/washbooking/internal/kafka"
	"github.com/mvoronin91/washbooking/internal/policy"
	"github.com/mvoronin91/washbooking/internal/repository"
)

type BookingUseCase interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error)
	GetBooking(ctx context.Context, id string) (*domain.Booking, error)
	ConfirmBooking(ctx context.Context, id string) (*domain.Booking, error)
	StartBooking(ctx context.Context, id string) (*domain.Booking, error)
	CompleteBooking(ctx context.Context, id string) (*domain.Booking, error)
	CancelBooking(ctx context.Context, id string) (*domain.Booking, error)
	MarkNoShow(ctx context.Context, id string) (*domain.Booking, error)
	RescheduleBooking(ctx context.Context, id string, newTime time.Time) (*domain.Booking, error)
	AddService(ctx context.Context, id string, serviceID int64) (*domain.Booking, error)
	RemoveService(ctx context.Context, id string, serviceID int64) (*domain.Booking, error)
	RateBooking(ctx context.Context, id string, score int, feedback string) (*domain.Booking, error)
	SweepNoShows(ctx context.Context) ([]domain.Booking, error)
}

type Allocator interface {
	Allocate(ctx context.Context, req allocator.Request) (*domain.Resource, error)
	Suggest(ctx context.Context, req allocator.Request) ([]time.Time, error)
}

type Cache interface {
	AcquireSlotLock(ctx context.Context, resourceID int64, slot time.Time, ttl time.Duration) (bool, error)
	ReleaseSlotLock(ctx context.Context, resourceID int64, slot time.Time) error
}

type Producer interface {
	PublishWithRetry(ctx context.Context, topic, key string, value interface{}, maxRetries int) error
}

// publishRetries bounds delivery attempts for post-commit events.
const publishRetries = 3

// BookingService orchestrates the booking lifecycle: collaborator
// validation, capacity allocation, aggregate mutation, atomic persistence
// and post-commit events.
type BookingService struct {
	bookings           repository.BookingRepository
	catalog            repository.ServiceCatalog
	vehicles           repository.VehicleRegistry
	allocator          Allocator
	cache              Cache
	producer           Producer
	bookingTopic       string
	notificationsTopic string
	slotLockTTL        time.Duration
	buffer             time.Duration
	now                func() time.Time
}

type CreateBookingInput struct {
	CustomerID  int64              `json:"customer_id"`
	VehicleID   int64              `json:"vehicle_id"`
	ServiceIDs  []int64            `json:"service_ids"`
	ScheduledAt time.Time          `json:"scheduled_at"`
	Kind        domain.BookingKind `json:"kind"`
	Location    *domain.GeoPoint   `json:"location,omitempty"`
}

type BookingServiceOption func(*BookingService)

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.notificationsTopic = topic
	}
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	catalog repository.ServiceCatalog,
	vehicles repository.VehicleRegistry,
	alloc Allocator,
	cache Cache,
	producer Producer,
	bookingTopic string,
	slotLockTTL, buffer time.Duration,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		bookings:     bookings,
		catalog:      catalog,
		vehicles:     vehicles,
		allocator:    alloc,
		cache:        cache,
		producer:     producer,
		bookingTopic: bookingTopic,
		slotLockTTL:  slotLockTTL,
		buffer:       buffer,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *BookingService) CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error) {
	if len(input.ServiceIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one service is required", domain.ErrInvalidInput)
	}

	// Collaborator reads happen before, and outside of, the write transaction.
	services, err := s.catalog.GetServices(ctx, input.ServiceIDs)
	if err != nil {
		return nil, err
	}
	owned, err := s.vehicles.BelongsToCustomer(ctx, input.VehicleID, input.CustomerID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, fmt.Errorf("%w: vehicle %d does not belong to customer %d", domain.ErrInvalidInput, input.VehicleID, input.CustomerID)
	}
	size, err := s.vehicles.SizeClass(ctx, input.VehicleID)
	if err != nil {
		return nil, err
	}

	b, err := domain.NewBooking(domain.NewBookingInput{
		CustomerID:  input.CustomerID,
		VehicleID:   input.VehicleID,
		VehicleSize: size,
		Kind:        input.Kind,
		Location:    input.Location,
		ScheduledAt: input.ScheduledAt,
	}, services, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.allocateAndPersist(ctx, b, s.bookings.Create); err != nil {
		return nil, err
	}

	s.publish(ctx, "booking_created", b)
	return b, nil
}

// allocateAndPersist picks a resource and commits the reservation. A lost
// race (redis lock or the reservation transaction) triggers one fresh
// allocation attempt; a second loss surfaces as no capacity.
func (s *BookingService) allocateAndPersist(ctx context.Context, b *domain.Booking, persist func(context.Context, *domain.Booking, domain.Window) error) error {
	req := allocator.Request{
		Kind:             b.Kind,
		ScheduledAt:      b.ScheduledAt,
		DurationMinutes:  b.TotalDurationMinutes,
		VehicleSize:      b.VehicleSize,
		Location:         b.Location,
		ExcludeBookingID: b.ID,
		Now:              s.now(),
	}

	for attempt := 0; attempt <= 1; attempt++ {
		res, err := s.allocator.Allocate(ctx, req)
		if err != nil {
			return err
		}

		locked := false
		if s.cache != nil {
			ok, err := s.cache.AcquireSlotLock(ctx, res.ID, b.ScheduledAt, s.slotLockTTL)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			locked = true
		}

		b.ResourceID = &res.ID
		err = persist(ctx, b, b.Window().Expand(s.buffer))
		if locked {
			_ = s.cache.ReleaseSlotLock(ctx, res.ID, b.ScheduledAt)
		}
		if err == nil {
			return nil
		}
		b.ResourceID = nil
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			continue
		}
		return err
	}

	// Both attempts lost the slot to concurrent writers; the failure still
	// reports where capacity remains.
	alternatives, err := s.allocator.Suggest(ctx, req)
	if err != nil {
		log.Printf("WARNING: failed to scan alternative slots: %v", err)
		alternatives = nil
	}
	return &domain.NoCapacityError{Requested: b.ScheduledAt, Alternatives: alternatives}
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	return s.bookings.GetByID(ctx, id)
}

func (s *BookingService) ConfirmBooking(ctx context.Context, id string) (*domain.Booking, error) {
	return s.mutate(ctx, id, "booking_confirmed", func(b *domain.Booking) error {
		return b.Confirm()
	})
}

func (s *BookingService) StartBooking(ctx context.Context, id string) (*domain.Booking, error) {
	return s.mutate(ctx, id, "booking_started", func(b *domain.Booking) error {
		return b.Start(s.now())
	})
}

func (s *BookingService) CompleteBooking(ctx context.Context, id string) (*domain.Booking, error) {
	return s.mutate(ctx, id, "booking_completed", func(b *domain.Booking) error {
		return b.Complete(s.now())
	})
}

func (s *BookingService) CancelBooking(ctx context.Context, id string) (*domain.Booking, error) {
	return s.mutate(ctx, id, "booking_cancelled", func(b *domain.Booking) error {
		return b.Cancel(s.now())
	})
}

func (s *BookingService) MarkNoShow(ctx context.Context, id string) (*domain.Booking, error) {
	return s.mutate(ctx, id, "booking_no_show", func(b *domain.Booking) error {
		return b.MarkNoShow(s.now())
	})
}

// RescheduleBooking moves the window and re-allocates; pure status
// transitions never re-allocate, only this and creation do.
func (s *BookingService) RescheduleBooking(ctx context.Context, id string, newTime time.Time) (*domain.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := b.Reschedule(newTime, s.now()); err != nil {
		return nil, err
	}
	if err := s.allocateAndPersist(ctx, b, s.bookings.Reassign); err != nil {
		return nil, err
	}
	s.publish(ctx, "booking_rescheduled", b)
	return b, nil
}

func (s *BookingService) AddService(ctx context.Context, id string, serviceID int64) (*domain.Booking, error) {
	services, err := s.catalog.GetServices(ctx, []int64{serviceID})
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, "booking_updated", func(b *domain.Booking) error {
		return b.AddService(services[0])
	})
}

func (s *BookingService) RemoveService(ctx context.Context, id string, serviceID int64) (*domain.Booking, error) {
	services, err := s.catalog.GetServices(ctx, []int64{serviceID})
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, "booking_updated", func(b *domain.Booking) error {
		return b.RemoveService(services[0])
	})
}

func (s *BookingService) RateBooking(ctx context.Context, id string, score int, feedback string) (*domain.Booking, error) {
	return s.mutate(ctx, id, "booking_rated", func(b *domain.Booking) error {
		return b.Rate(score, feedback)
	})
}

// SweepNoShows marks overdue confirmed bookings NO_SHOW. Run periodically by
// the worker.
func (s *BookingService) SweepNoShows(ctx context.Context) ([]domain.Booking, error) {
	now := s.now()
	overdue, err := s.bookings.ListOverdueConfirmed(ctx, now.Add(-policy.GracePeriod))
	if err != nil {
		return nil, err
	}

	var marked []domain.Booking
	for i := range overdue {
		b := &overdue[i]
		if err := b.MarkNoShow(now); err != nil {
			continue
		}
		if err := s.bookings.Update(ctx, b); err != nil {
			log.Printf("sweep: update booking %s: %v", b.ID, err)
			continue
		}
		s.publish(ctx, "booking_no_show", b)
		marked = append(marked, *b)
	}
	return marked, nil
}

func (s *BookingService) mutate(ctx context.Context, id, eventType string, fn func(*domain.Booking) error) (*domain.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(b); err != nil {
		return nil, err
	}
	if err := s.bookings.Update(ctx, b); err != nil {
		return nil, err
	}
	s.publish(ctx, eventType, b)
	return b, nil
}

// publish emits the post-commit event, fire-and-forget: failures are logged,
// never rolled back.
func (s *BookingService) publish(ctx context.Context, eventType string, b *domain.Booking) {
	if s.producer == nil || s.bookingTopic == "" {
		return
	}
	event := kafka.BookingEvent{
		Type:       eventType,
		BookingID:  b.ID,
		CustomerID: b.CustomerID,
		Status:     string(b.Status),
		OccurredAt: s.now().UTC(),
	}
	if err := s.producer.PublishWithRetry(ctx, s.bookingTopic, b.ID, event, publishRetries); err != nil {
		log.Printf("WARNING: failed to publish %s event for booking %s: %v", eventType, b.ID, err)
	}
	if s.notificationsTopic != "" {
		if err := s.producer.PublishWithRetry(ctx, s.notificationsTopic, b.ID, event, publishRetries); err != nil {
			log.Printf("WARNING: failed to publish %s notification for booking %s: %v", eventType, b.ID, err)
		}
	}
}

var _ BookingUseCase = (*BookingService)(nil)
