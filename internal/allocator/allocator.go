// Package allocator finds a free, compatible resource for a booking window,
// or reports the nearest slots where one exists.
package allocator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mvoronin91/washbooking/internal/domain"
)

type ResourceDirectory interface {
	ListByKind(ctx context.Context, kind domain.BookingKind) ([]domain.Resource, error)
}

// CommitmentStore is a read-only view of reserved intervals, derived from
// active bookings. excludeBookingID lets a reschedule ignore its own window.
type CommitmentStore interface {
	FindOverlapping(ctx context.Context, resourceID int64, window domain.Window, excludeBookingID string) ([]domain.Commitment, error)
	CountForDay(ctx context.Context, resourceID int64, day time.Time, excludeBookingID string) (int, error)
}

type Config struct {
	// Buffer is added to both ends of the requested window before the
	// overlap test, to leave turnaround time between jobs.
	Buffer time.Duration
	// SuggestionCount bounds the number of alternative slots reported on a
	// no-capacity failure.
	SuggestionCount int
	// ScanStep and ScanHorizon control the forward/backward search for
	// alternative slots.
	ScanStep    time.Duration
	ScanHorizon time.Duration
}

func DefaultConfig() Config {
	return Config{
		Buffer:          15 * time.Minute,
		SuggestionCount: 3,
		ScanStep:        30 * time.Minute,
		ScanHorizon:     8 * time.Hour,
	}
}

type Request struct {
	Kind             domain.BookingKind
	ScheduledAt      time.Time
	DurationMinutes  int
	VehicleSize      domain.VehicleSize
	Location         *domain.GeoPoint
	ExcludeBookingID string
	// Now is the request instant, used to avoid suggesting slots in the past.
	Now time.Time
}

type Allocator struct {
	directory   ResourceDirectory
	commitments CommitmentStore
	cfg         Config
}

func New(directory ResourceDirectory, commitments CommitmentStore, cfg Config) *Allocator {
	if cfg.SuggestionCount <= 0 {
		cfg = DefaultConfig()
	}
	return &Allocator{directory: directory, commitments: commitments, cfg: cfg}
}

// Allocate returns the first compatible free resource in ascending id order.
// The deterministic ordering means repeated identical requests pick the same
// resource; the final word on conflicts belongs to the reservation
// transaction, not to this read.
func (a *Allocator) Allocate(ctx context.Context, req Request) (*domain.Resource, error) {
	candidates, err := a.compatible(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no active %s fits vehicle size %d", domain.ErrNoCompatibleResource, req.Kind, req.VehicleSize)
	}

	for i := range candidates {
		free, err := a.isFree(ctx, candidates[i], req.ScheduledAt, req)
		if err != nil {
			return nil, err
		}
		if free {
			return &candidates[i], nil
		}
	}

	alternatives, err := a.scanAlternatives(ctx, candidates, req)
	if err != nil {
		return nil, err
	}
	return nil, &domain.NoCapacityError{Requested: req.ScheduledAt, Alternatives: alternatives}
}

// Suggest reports nearby free start times without allocating anything. Used
// when a reservation is lost to concurrent writers after allocation already
// succeeded, so the failure still carries alternatives.
func (a *Allocator) Suggest(ctx context.Context, req Request) ([]time.Time, error) {
	candidates, err := a.compatible(ctx, req)
	if err != nil || len(candidates) == 0 {
		return nil, err
	}
	return a.scanAlternatives(ctx, candidates, req)
}

func (a *Allocator) compatible(ctx context.Context, req Request) ([]domain.Resource, error) {
	all, err := a.directory.ListByKind(ctx, req.Kind)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	var candidates []domain.Resource
	for _, r := range all {
		if !r.IsActive {
			continue
		}
		switch req.Kind {
		case domain.BookingKindStationary:
			if r.MaxVehicleSize >= req.VehicleSize {
				candidates = append(candidates, r)
			}
		case domain.BookingKindMobile:
			if req.Location != nil && haversineKm(r.Base, *req.Location) <= r.ServiceRadiusKm {
				candidates = append(candidates, r)
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	return candidates, nil
}

func (a *Allocator) isFree(ctx context.Context, r domain.Resource, start time.Time, req Request) (bool, error) {
	window := domain.NewWindow(start, req.DurationMinutes).Expand(a.cfg.Buffer)
	overlapping, err := a.commitments.FindOverlapping(ctx, r.ID, window, req.ExcludeBookingID)
	if err != nil {
		return false, fmt.Errorf("find overlapping commitments: %w", err)
	}
	if len(overlapping) > 0 {
		return false, nil
	}
	if r.Kind == domain.BookingKindMobile && r.DailyCapacity > 0 {
		day := start.UTC().Truncate(24 * time.Hour)
		count, err := a.commitments.CountForDay(ctx, r.ID, day, req.ExcludeBookingID)
		if err != nil {
			return false, fmt.Errorf("count daily jobs: %w", err)
		}
		if count >= r.DailyCapacity {
			return false, nil
		}
	}
	return true, nil
}

// scanAlternatives probes slots around the requested time, alternating
// forward and backward in ScanStep increments up to ScanHorizon, and collects
// the first starts at which any candidate is free.
func (a *Allocator) scanAlternatives(ctx context.Context, candidates []domain.Resource, req Request) ([]time.Time, error) {
	var alternatives []time.Time
	steps := int(a.cfg.ScanHorizon / a.cfg.ScanStep)
	for i := 1; i <= steps && len(alternatives) < a.cfg.SuggestionCount; i++ {
		offset := time.Duration(i) * a.cfg.ScanStep
		for _, start := range []time.Time{req.ScheduledAt.Add(offset), req.ScheduledAt.Add(-offset)} {
			if len(alternatives) >= a.cfg.SuggestionCount {
				break
			}
			if !req.Now.IsZero() && !start.After(req.Now) {
				continue
			}
			for _, r := range candidates {
				free, err := a.isFree(ctx, r, start, req)
				if err != nil {
					return nil, err
				}
				if free {
					alternatives = append(alternatives, start)
					break
				}
			}
		}
	}
	return alternatives, nil
}

const earthRadiusKm = 6371.0

func haversineKm(a, b domain.GeoPoint) float64 {
	latA := a.Latitude * math.Pi / 180
	latB := b.Latitude * math.Pi / 180
	dLat := latB - latA
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(latA)*math.Cos(latB)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
