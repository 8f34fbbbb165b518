package domain

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mvoronin91/washbooking/internal/policy"
)

type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "PENDING"
	BookingStatusConfirmed  BookingStatus = "CONFIRMED"
	BookingStatusInProgress BookingStatus = "IN_PROGRESS"
	BookingStatusCompleted  BookingStatus = "COMPLETED"
	BookingStatusCancelled  BookingStatus = "CANCELLED"
	BookingStatusNoShow     BookingStatus = "NO_SHOW"
)

// ActiveStatuses are the statuses under which a booking still holds its
// resource. Used when deriving commitments for overlap checks.
var ActiveStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusConfirmed,
	BookingStatusInProgress,
}

func (s BookingStatus) Terminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled || s == BookingStatusNoShow
}

var transitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:    {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed:  {BookingStatusInProgress, BookingStatusCancelled, BookingStatusNoShow},
	BookingStatusInProgress: {BookingStatusCompleted},
}

func (s BookingStatus) CanTransitionTo(to BookingStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Business validation constants.
const (
	MinServices             = 1
	MaxServices             = 10
	MinTotalDurationMinutes = 30
	MaxTotalDurationMinutes = 240
	MaxTotalPriceCents      = 1_000_000
	MaxAdvanceDays          = 90
	MinRescheduleNotice     = 2 * time.Hour
	MinRatingScore          = 1
	MaxRatingScore          = 5
	MaxFeedbackLength       = 1000
)

type Booking struct {
	ID                   string
	CustomerID           int64
	VehicleID            int64
	VehicleSize          VehicleSize
	ServiceIDs           []int64
	Kind                 BookingKind
	Location             *GeoPoint
	ScheduledAt          time.Time
	TotalDurationMinutes int
	TotalPriceCents      int64
	Status               BookingStatus
	ResourceID           *int64
	ActualStart          *time.Time
	ActualEnd            *time.Time
	CancellationFeeCents *int64
	OvertimeChargeCents  *int64
	RatingScore          *int
	RatingFeedback       *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type NewBookingInput struct {
	CustomerID  int64
	VehicleID   int64
	VehicleSize VehicleSize
	Kind        BookingKind
	Location    *GeoPoint
	ScheduledAt time.Time
}

// NewBooking builds a PENDING booking from the input and the resolved service
// catalog entries, enforcing every creation invariant. Services must already
// be validated as existing and active by the caller.
func NewBooking(input NewBookingInput, services []Service, now time.Time) (*Booking, error) {
	if input.CustomerID <= 0 {
		return nil, fmt.Errorf("%w: customer id must be positive", ErrInvalidInput)
	}
	if input.VehicleID <= 0 {
		return nil, fmt.Errorf("%w: vehicle id must be positive", ErrInvalidInput)
	}
	if input.Kind != BookingKindStationary && input.Kind != BookingKindMobile {
		return nil, fmt.Errorf("%w: unknown booking kind %q", ErrInvalidInput, input.Kind)
	}
	if input.Kind == BookingKindMobile {
		if input.Location == nil {
			return nil, fmt.Errorf("%w: mobile booking requires a location", ErrInvalidInput)
		}
		if !input.Location.Valid() {
			return nil, fmt.Errorf("%w: location out of range", ErrInvalidInput)
		}
	}
	if err := validateSchedule(input.ScheduledAt, now); err != nil {
		return nil, err
	}

	b := &Booking{
		ID:          uuid.NewString(),
		CustomerID:  input.CustomerID,
		VehicleID:   input.VehicleID,
		VehicleSize: input.VehicleSize,
		Kind:        input.Kind,
		Location:    input.Location,
		ScheduledAt: input.ScheduledAt.UTC(),
		Status:      BookingStatusPending,
	}
	seen := make(map[int64]bool, len(services))
	for _, svc := range services {
		if seen[svc.ID] {
			return nil, fmt.Errorf("%w: duplicate service %d", ErrInvalidInput, svc.ID)
		}
		seen[svc.ID] = true
		b.ServiceIDs = append(b.ServiceIDs, svc.ID)
		b.TotalDurationMinutes += svc.DurationMinutes
		b.TotalPriceCents += svc.PriceCents
	}
	if err := b.validateTotals(); err != nil {
		return nil, err
	}
	return b, nil
}

func validateSchedule(scheduledAt, now time.Time) error {
	if !scheduledAt.After(now) {
		return fmt.Errorf("%w: scheduled time must be in the future", ErrInvalidInput)
	}
	if scheduledAt.After(now.AddDate(0, 0, MaxAdvanceDays)) {
		return fmt.Errorf("%w: scheduled time more than %d days ahead", ErrInvalidInput, MaxAdvanceDays)
	}
	return nil
}

func (b *Booking) validateTotals() error {
	if len(b.ServiceIDs) < MinServices || len(b.ServiceIDs) > MaxServices {
		return fmt.Errorf("%w: service count must be between %d and %d", ErrInvalidInput, MinServices, MaxServices)
	}
	if b.TotalDurationMinutes < MinTotalDurationMinutes || b.TotalDurationMinutes > MaxTotalDurationMinutes {
		return fmt.Errorf("%w: total duration %d outside [%d,%d] minutes", ErrInvalidInput, b.TotalDurationMinutes, MinTotalDurationMinutes, MaxTotalDurationMinutes)
	}
	if b.TotalPriceCents < 0 || b.TotalPriceCents > MaxTotalPriceCents {
		return fmt.Errorf("%w: total price out of range", ErrInvalidInput)
	}
	return nil
}

// Window is the interval the booking occupies on its resource.
func (b *Booking) Window() Window {
	return NewWindow(b.ScheduledAt, b.TotalDurationMinutes)
}

func (b *Booking) transition(to BookingStatus) error {
	if !b.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, to)
	}
	b.Status = to
	return nil
}

// Confirm moves PENDING -> CONFIRMED.
func (b *Booking) Confirm() error {
	return b.transition(BookingStatusConfirmed)
}

// Start moves CONFIRMED -> IN_PROGRESS and records the actual start.
func (b *Booking) Start(now time.Time) error {
	if err := b.transition(BookingStatusInProgress); err != nil {
		return err
	}
	started := now.UTC()
	b.ActualStart = &started
	return nil
}

// Complete moves IN_PROGRESS -> COMPLETED, records the actual end and charges
// overtime when the work ran past the planned duration.
func (b *Booking) Complete(now time.Time) error {
	if err := b.transition(BookingStatusCompleted); err != nil {
		return err
	}
	ended := now.UTC()
	b.ActualEnd = &ended
	if b.ActualStart != nil {
		actualMinutes := int(ended.Sub(*b.ActualStart) / time.Minute)
		if charge := policy.OvertimeCharge(actualMinutes - b.TotalDurationMinutes); charge > 0 {
			b.OvertimeChargeCents = &charge
		}
	}
	return nil
}

// Cancel moves PENDING or CONFIRMED -> CANCELLED and records the fee derived
// from the remaining notice.
func (b *Booking) Cancel(now time.Time) error {
	if err := b.transition(BookingStatusCancelled); err != nil {
		return err
	}
	fee := policy.CancellationFee(b.TotalPriceCents, b.ScheduledAt, now.UTC())
	b.CancellationFeeCents = &fee
	return nil
}

// MarkNoShow moves CONFIRMED -> NO_SHOW once the grace period after the
// scheduled start has elapsed. The fee is the full price.
func (b *Booking) MarkNoShow(now time.Time) error {
	if b.Status != BookingStatusConfirmed || b.ActualStart != nil {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, BookingStatusNoShow)
	}
	if !policy.IsNoShowEligible(b.ScheduledAt, now.UTC(), policy.GracePeriod) {
		return fmt.Errorf("%w: grace period has not elapsed", ErrInvalidTransition)
	}
	if err := b.transition(BookingStatusNoShow); err != nil {
		return err
	}
	fee := policy.NoShowFee(b.TotalPriceCents)
	b.CancellationFeeCents = &fee
	return nil
}

// Reschedule moves the booking to a new start time. Allowed only while
// PENDING or CONFIRMED, with at least MinRescheduleNotice before the new
// time; the status does not change. Re-allocation of the resource is the
// orchestrator's job.
func (b *Booking) Reschedule(newTime, now time.Time) error {
	if b.Status != BookingStatusPending && b.Status != BookingStatusConfirmed {
		return fmt.Errorf("%w: cannot reschedule a %s booking", ErrInvalidTransition, b.Status)
	}
	now = now.UTC()
	newTime = newTime.UTC()
	if newTime.Sub(now) < MinRescheduleNotice {
		return fmt.Errorf("%w: rescheduling requires at least %s notice", ErrInvalidInput, MinRescheduleNotice)
	}
	if err := validateSchedule(newTime, now); err != nil {
		return err
	}
	b.ScheduledAt = newTime
	return nil
}

// AddService appends a service while the booking is still PENDING.
func (b *Booking) AddService(svc Service) error {
	if b.Status != BookingStatusPending {
		return fmt.Errorf("%w: services can only change while PENDING", ErrInvalidTransition)
	}
	for _, id := range b.ServiceIDs {
		if id == svc.ID {
			return fmt.Errorf("%w: service %d already booked", ErrInvalidInput, svc.ID)
		}
	}
	b.ServiceIDs = append(b.ServiceIDs, svc.ID)
	b.TotalDurationMinutes += svc.DurationMinutes
	b.TotalPriceCents += svc.PriceCents
	if err := b.validateTotals(); err != nil {
		b.ServiceIDs = b.ServiceIDs[:len(b.ServiceIDs)-1]
		b.TotalDurationMinutes -= svc.DurationMinutes
		b.TotalPriceCents -= svc.PriceCents
		return err
	}
	return nil
}

// RemoveService drops a service while the booking is still PENDING. The full
// service attributes are needed to roll the totals back.
func (b *Booking) RemoveService(svc Service) error {
	if b.Status != BookingStatusPending {
		return fmt.Errorf("%w: services can only change while PENDING", ErrInvalidTransition)
	}
	idx := -1
	for i, id := range b.ServiceIDs {
		if id == svc.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: service %d not on booking", ErrInvalidInput, svc.ID)
	}
	ids := append(append([]int64{}, b.ServiceIDs[:idx]...), b.ServiceIDs[idx+1:]...)
	duration := b.TotalDurationMinutes - svc.DurationMinutes
	price := b.TotalPriceCents - svc.PriceCents
	probe := &Booking{ServiceIDs: ids, TotalDurationMinutes: duration, TotalPriceCents: price}
	if err := probe.validateTotals(); err != nil {
		return err
	}
	b.ServiceIDs = ids
	b.TotalDurationMinutes = duration
	b.TotalPriceCents = price
	return nil
}

// Rate records the quality score and optional feedback. Allowed once, and
// only for a COMPLETED booking.
func (b *Booking) Rate(score int, feedback string) error {
	if b.Status != BookingStatusCompleted {
		return fmt.Errorf("%w: only completed bookings can be rated", ErrInvalidTransition)
	}
	if b.RatingScore != nil {
		return fmt.Errorf("%w: booking already rated", ErrInvalidInput)
	}
	if score < MinRatingScore || score > MaxRatingScore {
		return fmt.Errorf("%w: rating must be between %d and %d", ErrInvalidInput, MinRatingScore, MaxRatingScore)
	}
	if utf8.RuneCountInString(feedback) > MaxFeedbackLength {
		return fmt.Errorf("%w: feedback longer than %d characters", ErrInvalidInput, MaxFeedbackLength)
	}
	b.RatingScore = &score
	if feedback != "" {
		b.RatingFeedback = &feedback
	}
	return nil
}
