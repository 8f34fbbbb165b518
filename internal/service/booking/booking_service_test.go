package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mvoronin91/washbooking/internal/allocator"
	"github.com/mvoronin91/washbooking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) Create(ctx context.Context, b *domain.Booking, reserve domain.Window) error {
	args := m.Called(ctx, b, reserve)
	return args.Error(0)
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) Update(ctx context.Context, b *domain.Booking) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *MockBookingRepository) Reassign(ctx context.Context, b *domain.Booking, reserve domain.Window) error {
	args := m.Called(ctx, b, reserve)
	return args.Error(0)
}

func (m *MockBookingRepository) ListOverdueConfirmed(ctx context.Context, cutoff time.Time) ([]domain.Booking, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

type MockServiceCatalog struct {
	mock.Mock
}

func (m *MockServiceCatalog) GetServices(ctx context.Context, ids []int64) ([]domain.Service, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Service), args.Error(1)
}

func (m *MockServiceCatalog) ListActive(ctx context.Context) ([]domain.Service, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Service), args.Error(1)
}

type MockVehicleRegistry struct {
	mock.Mock
}

func (m *MockVehicleRegistry) BelongsToCustomer(ctx context.Context, vehicleID, customerID int64) (bool, error) {
	args := m.Called(ctx, vehicleID, customerID)
	return args.Bool(0), args.Error(1)
}

func (m *MockVehicleRegistry) SizeClass(ctx context.Context, vehicleID int64) (domain.VehicleSize, error) {
	args := m.Called(ctx, vehicleID)
	return args.Get(0).(domain.VehicleSize), args.Error(1)
}

type MockAllocator struct {
	mock.Mock
}

func (m *MockAllocator) Allocate(ctx context.Context, req allocator.Request) (*domain.Resource, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Resource), args.Error(1)
}

func (m *MockAllocator) Suggest(ctx context.Context, req allocator.Request) ([]time.Time, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]time.Time), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) AcquireSlotLock(ctx context.Context, resourceID int64, slot time.Time, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, resourceID, slot, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) ReleaseSlotLock(ctx context.Context, resourceID int64, slot time.Time) error {
	args := m.Called(ctx, resourceID, slot)
	return args.Error(0)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) PublishWithRetry(ctx context.Context, topic, key string, value interface{}, maxRetries int) error {
	args := m.Called(ctx, topic, key, value, maxRetries)
	return args.Error(0)
}

var serviceNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type serviceMocks struct {
	bookings  *MockBookingRepository
	catalog   *MockServiceCatalog
	vehicles  *MockVehicleRegistry
	allocator *MockAllocator
	cache     *MockCache
	producer  *MockProducer
}

func newTestService() (*BookingService, *serviceMocks) {
	m := &serviceMocks{
		bookings:  &MockBookingRepository{},
		catalog:   &MockServiceCatalog{},
		vehicles:  &MockVehicleRegistry{},
		allocator: &MockAllocator{},
		cache:     &MockCache{},
		producer:  &MockProducer{},
	}
	svc := NewBookingService(
		m.bookings, m.catalog, m.vehicles, m.allocator, m.cache, m.producer,
		"booking_events",
		5*time.Minute, 15*time.Minute,
		WithClock(func() time.Time { return serviceNow }),
	)
	return svc, m
}

func catalogServices() []domain.Service {
	return []domain.Service{
		{ID: 1, Name: "Exterior wash", DurationMinutes: 30, PriceCents: 2500, IsActive: true},
		{ID: 2, Name: "Interior detail", DurationMinutes: 60, PriceCents: 7500, IsActive: true},
	}
}

func mobileInput() CreateBookingInput {
	return CreateBookingInput{
		CustomerID:  7,
		VehicleID:   3,
		ServiceIDs:  []int64{1, 2},
		ScheduledAt: serviceNow.Add(48 * time.Hour),
		Kind:        domain.BookingKindMobile,
		Location:    &domain.GeoPoint{Latitude: 40.0, Longitude: -75.0},
	}
}

func storedBooking(t *testing.T, scheduledAt time.Time) *domain.Booking {
	t.Helper()
	creation := serviceNow
	if !scheduledAt.After(creation) {
		creation = scheduledAt.Add(-24 * time.Hour)
	}
	b, err := domain.NewBooking(domain.NewBookingInput{
		CustomerID:  7,
		VehicleID:   3,
		VehicleSize: domain.VehicleSizeSedan,
		Kind:        domain.BookingKindStationary,
		ScheduledAt: scheduledAt,
	}, catalogServices(), creation)
	assert.NoError(t, err)
	return b
}

func TestCreateBooking_MobileSuccess(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	input := mobileInput()

	team := &domain.Resource{ID: 11, Kind: domain.BookingKindMobile, ServiceRadiusKm: 25, DailyCapacity: 8, IsActive: true}

	m.catalog.On("GetServices", ctx, input.ServiceIDs).Return(catalogServices(), nil).Once()
	m.vehicles.On("BelongsToCustomer", ctx, int64(3), int64(7)).Return(true, nil).Once()
	m.vehicles.On("SizeClass", ctx, int64(3)).Return(domain.VehicleSizeSedan, nil).Once()
	m.allocator.On("Allocate", ctx, mock.AnythingOfType("allocator.Request")).Return(team, nil).Once()
	m.cache.On("AcquireSlotLock", ctx, int64(11), input.ScheduledAt, 5*time.Minute).Return(true, nil).Once()
	m.bookings.On("Create", ctx, mock.AnythingOfType("*domain.Booking"), mock.AnythingOfType("domain.Window")).Return(nil).Once()
	m.cache.On("ReleaseSlotLock", ctx, int64(11), input.ScheduledAt).Return(nil).Once()
	m.producer.On("PublishWithRetry", ctx, "booking_events", mock.Anything, mock.Anything, 3).Return(nil).Once()

	b, err := svc.CreateBooking(ctx, input)

	assert.NoError(t, err)
	assert.NotNil(t, b)
	assert.Equal(t, domain.BookingStatusPending, b.Status)
	assert.Equal(t, int64(11), *b.ResourceID)
	assert.Equal(t, 90, b.TotalDurationMinutes)
	assert.Equal(t, int64(10000), b.TotalPriceCents)

	m.bookings.AssertExpectations(t)
	m.allocator.AssertExpectations(t)
	m.cache.AssertExpectations(t)
	m.producer.AssertExpectations(t)
}

func TestCreateBooking_TooFarAhead(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	input := mobileInput()
	input.ScheduledAt = serviceNow.AddDate(0, 0, 91)

	m.catalog.On("GetServices", ctx, input.ServiceIDs).Return(catalogServices(), nil).Once()
	m.vehicles.On("BelongsToCustomer", ctx, int64(3), int64(7)).Return(true, nil).Once()
	m.vehicles.On("SizeClass", ctx, int64(3)).Return(domain.VehicleSizeSedan, nil).Once()

	_, err := svc.CreateBooking(ctx, input)

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	m.allocator.AssertNotCalled(t, "Allocate", mock.Anything, mock.Anything)
	m.bookings.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateBooking_VehicleNotOwned(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	input := mobileInput()

	m.catalog.On("GetServices", ctx, input.ServiceIDs).Return(catalogServices(), nil).Once()
	m.vehicles.On("BelongsToCustomer", ctx, int64(3), int64(7)).Return(false, nil).Once()

	_, err := svc.CreateBooking(ctx, input)

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	m.vehicles.AssertNotCalled(t, "SizeClass", mock.Anything, mock.Anything)
}

func TestCreateBooking_RetriesLostRaceOnce(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	input := mobileInput()

	team := &domain.Resource{ID: 11, Kind: domain.BookingKindMobile, IsActive: true}

	m.catalog.On("GetServices", ctx, input.ServiceIDs).Return(catalogServices(), nil).Once()
	m.vehicles.On("BelongsToCustomer", ctx, int64(3), int64(7)).Return(true, nil).Once()
	m.vehicles.On("SizeClass", ctx, int64(3)).Return(domain.VehicleSizeSedan, nil).Once()
	m.allocator.On("Allocate", ctx, mock.AnythingOfType("allocator.Request")).Return(team, nil).Twice()
	m.cache.On("AcquireSlotLock", ctx, int64(11), input.ScheduledAt, 5*time.Minute).Return(true, nil).Twice()
	m.bookings.On("Create", ctx, mock.AnythingOfType("*domain.Booking"), mock.AnythingOfType("domain.Window")).
		Return(domain.ErrConcurrencyConflict).Twice()
	m.cache.On("ReleaseSlotLock", ctx, int64(11), input.ScheduledAt).Return(nil).Twice()
	m.allocator.On("Suggest", ctx, mock.AnythingOfType("allocator.Request")).
		Return([]time.Time{input.ScheduledAt.Add(30 * time.Minute)}, nil).Once()

	_, err := svc.CreateBooking(ctx, input)

	var noCap *domain.NoCapacityError
	assert.ErrorAs(t, err, &noCap)
	assert.Equal(t, input.ScheduledAt, noCap.Requested)
	assert.Equal(t, []time.Time{input.ScheduledAt.Add(30 * time.Minute)}, noCap.Alternatives)
	m.allocator.AssertExpectations(t)
	m.bookings.AssertExpectations(t)
}

func TestCreateBooking_SecondAttemptWins(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	input := mobileInput()

	team := &domain.Resource{ID: 11, Kind: domain.BookingKindMobile, IsActive: true}

	m.catalog.On("GetServices", ctx, input.ServiceIDs).Return(catalogServices(), nil).Once()
	m.vehicles.On("BelongsToCustomer", ctx, int64(3), int64(7)).Return(true, nil).Once()
	m.vehicles.On("SizeClass", ctx, int64(3)).Return(domain.VehicleSizeSedan, nil).Once()
	m.allocator.On("Allocate", ctx, mock.AnythingOfType("allocator.Request")).Return(team, nil).Twice()
	m.cache.On("AcquireSlotLock", ctx, int64(11), input.ScheduledAt, 5*time.Minute).Return(true, nil).Twice()
	m.bookings.On("Create", ctx, mock.AnythingOfType("*domain.Booking"), mock.AnythingOfType("domain.Window")).
		Return(domain.ErrConcurrencyConflict).Once()
	m.bookings.On("Create", ctx, mock.AnythingOfType("*domain.Booking"), mock.AnythingOfType("domain.Window")).
		Return(nil).Once()
	m.cache.On("ReleaseSlotLock", ctx, int64(11), input.ScheduledAt).Return(nil).Twice()
	m.producer.On("PublishWithRetry", ctx, "booking_events", mock.Anything, mock.Anything, 3).Return(nil).Once()

	b, err := svc.CreateBooking(ctx, input)

	assert.NoError(t, err)
	assert.Equal(t, int64(11), *b.ResourceID)
	m.bookings.AssertExpectations(t)
}

// Two parallel requests for the same window: the repository accepts exactly
// one reservation, so one caller wins and the other ends with NoCapacityError.
func TestCreateBooking_ConcurrentRequestsOneWinner(t *testing.T) {
	svc, m := newTestService()
	input := mobileInput()

	team := &domain.Resource{ID: 11, Kind: domain.BookingKindMobile, IsActive: true}

	m.catalog.On("GetServices", mock.Anything, input.ServiceIDs).Return(catalogServices(), nil)
	m.vehicles.On("BelongsToCustomer", mock.Anything, int64(3), int64(7)).Return(true, nil)
	m.vehicles.On("SizeClass", mock.Anything, int64(3)).Return(domain.VehicleSizeSedan, nil)
	m.allocator.On("Allocate", mock.Anything, mock.AnythingOfType("allocator.Request")).Return(team, nil)
	m.cache.On("AcquireSlotLock", mock.Anything, int64(11), input.ScheduledAt, 5*time.Minute).Return(true, nil)
	m.cache.On("ReleaseSlotLock", mock.Anything, int64(11), input.ScheduledAt).Return(nil)
	m.producer.On("PublishWithRetry", mock.Anything, "booking_events", mock.Anything, mock.Anything, 3).Return(nil)
	m.allocator.On("Suggest", mock.Anything, mock.AnythingOfType("allocator.Request")).Return([]time.Time{}, nil)

	// First insert into the window wins; every later one conflicts.
	m.bookings.On("Create", mock.Anything, mock.AnythingOfType("*domain.Booking"), mock.AnythingOfType("domain.Window")).
		Return(nil).Once()
	m.bookings.On("Create", mock.Anything, mock.AnythingOfType("*domain.Booking"), mock.AnythingOfType("domain.Window")).
		Return(domain.ErrConcurrencyConflict)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.CreateBooking(context.Background(), input)
		}(i)
	}
	wg.Wait()

	var noCap *domain.NoCapacityError
	if results[0] == nil {
		assert.ErrorAs(t, results[1], &noCap)
	} else {
		assert.NoError(t, results[1])
		assert.ErrorAs(t, results[0], &noCap)
	}
}

func TestConfirmBooking(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	stored := storedBooking(t, serviceNow.Add(48*time.Hour))

	m.bookings.On("GetByID", ctx, stored.ID).Return(stored, nil).Once()
	m.bookings.On("Update", ctx, stored).Return(nil).Once()
	m.producer.On("PublishWithRetry", ctx, "booking_events", stored.ID, mock.Anything, 3).Return(nil).Once()

	b, err := svc.ConfirmBooking(ctx, stored.ID)

	assert.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, b.Status)
	m.bookings.AssertExpectations(t)
	m.producer.AssertExpectations(t)
}

func TestCancelBooking_FeeFromNotice(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	stored := storedBooking(t, serviceNow.Add(10*time.Hour))
	assert.NoError(t, stored.Confirm())

	m.bookings.On("GetByID", ctx, stored.ID).Return(stored, nil).Once()
	m.bookings.On("Update", ctx, stored).Return(nil).Once()
	m.producer.On("PublishWithRetry", ctx, "booking_events", stored.ID, mock.Anything, 3).Return(nil).Once()

	b, err := svc.CancelBooking(ctx, stored.ID)

	assert.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, b.Status)
	// 10 hours of notice on 100.00 lands in the 25% tier.
	assert.Equal(t, int64(2500), *b.CancellationFeeCents)
}

func TestCancelBooking_TerminalState(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	stored := storedBooking(t, serviceNow.Add(10*time.Hour))
	assert.NoError(t, stored.Cancel(serviceNow))

	m.bookings.On("GetByID", ctx, stored.ID).Return(stored, nil).Once()

	_, err := svc.CancelBooking(ctx, stored.ID)

	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	m.bookings.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestRescheduleBooking_ShortNotice(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	stored := storedBooking(t, serviceNow.Add(48*time.Hour))

	m.bookings.On("GetByID", ctx, stored.ID).Return(stored, nil).Once()

	_, err := svc.RescheduleBooking(ctx, stored.ID, serviceNow.Add(time.Hour))

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	m.bookings.AssertNotCalled(t, "Reassign", mock.Anything, mock.Anything, mock.Anything)
}

func TestRescheduleBooking_Reallocates(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	stored := storedBooking(t, serviceNow.Add(48*time.Hour))
	bay := &domain.Resource{ID: 2, Kind: domain.BookingKindStationary, MaxVehicleSize: domain.VehicleSizeSUV, IsActive: true}
	newTime := serviceNow.Add(72 * time.Hour)

	m.bookings.On("GetByID", ctx, stored.ID).Return(stored, nil).Once()
	m.allocator.On("Allocate", ctx, mock.MatchedBy(func(req allocator.Request) bool {
		return req.ExcludeBookingID == stored.ID && req.ScheduledAt.Equal(newTime)
	})).Return(bay, nil).Once()
	m.cache.On("AcquireSlotLock", ctx, int64(2), newTime, 5*time.Minute).Return(true, nil).Once()
	m.bookings.On("Reassign", ctx, stored, mock.AnythingOfType("domain.Window")).Return(nil).Once()
	m.cache.On("ReleaseSlotLock", ctx, int64(2), newTime).Return(nil).Once()
	m.producer.On("PublishWithRetry", ctx, "booking_events", stored.ID, mock.Anything, 3).Return(nil).Once()

	b, err := svc.RescheduleBooking(ctx, stored.ID, newTime)

	assert.NoError(t, err)
	assert.Equal(t, newTime, b.ScheduledAt)
	assert.Equal(t, int64(2), *b.ResourceID)
	m.allocator.AssertExpectations(t)
	m.bookings.AssertExpectations(t)
}

func TestSweepNoShows(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	overdue := storedBooking(t, serviceNow.Add(-time.Hour))
	assert.NoError(t, overdue.Confirm())

	m.bookings.On("ListOverdueConfirmed", ctx, serviceNow.Add(-30*time.Minute)).
		Return([]domain.Booking{*overdue}, nil).Once()
	m.bookings.On("Update", ctx, mock.AnythingOfType("*domain.Booking")).Return(nil).Once()
	m.producer.On("PublishWithRetry", ctx, "booking_events", overdue.ID, mock.Anything, 3).Return(nil).Once()

	marked, err := svc.SweepNoShows(ctx)

	assert.NoError(t, err)
	assert.Len(t, marked, 1)
	assert.Equal(t, domain.BookingStatusNoShow, marked[0].Status)
	assert.Equal(t, overdue.TotalPriceCents, *marked[0].CancellationFeeCents)
	m.bookings.AssertExpectations(t)
}

func TestAddService_OnlyWhilePending(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	stored := storedBooking(t, serviceNow.Add(48*time.Hour))
	assert.NoError(t, stored.Confirm())

	wax := []domain.Service{{ID: 3, Name: "Wax", DurationMinutes: 45, PriceCents: 4000, IsActive: true}}
	m.catalog.On("GetServices", ctx, []int64{3}).Return(wax, nil).Once()
	m.bookings.On("GetByID", ctx, stored.ID).Return(stored, nil).Once()

	_, err := svc.AddService(ctx, stored.ID, 3)

	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	m.bookings.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestRateBooking_Twice(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	stored := storedBooking(t, serviceNow.Add(-2*time.Hour))
	assert.NoError(t, stored.Confirm())
	assert.NoError(t, stored.Start(stored.ScheduledAt))
	assert.NoError(t, stored.Complete(stored.ScheduledAt.Add(time.Hour)))

	m.bookings.On("GetByID", ctx, stored.ID).Return(stored, nil).Twice()
	m.bookings.On("Update", ctx, stored).Return(nil).Once()
	m.producer.On("PublishWithRetry", ctx, "booking_events", stored.ID, mock.Anything, 3).Return(nil).Once()

	_, err := svc.RateBooking(ctx, stored.ID, 5, "spotless")
	assert.NoError(t, err)

	_, err = svc.RateBooking(ctx, stored.ID, 4, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
