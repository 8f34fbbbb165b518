package domain

import "time"

type BookingKind string

const (
	BookingKindStationary BookingKind = "STATIONARY"
	BookingKindMobile     BookingKind = "MOBILE"
)

// VehicleSize is an ordered size class: a bay with MaxVehicleSize 3 fits
// classes 1..3.
type VehicleSize int

const (
	VehicleSizeCompact VehicleSize = 1
	VehicleSizeSedan   VehicleSize = 2
	VehicleSizeSUV     VehicleSize = 3
	VehicleSizeTruck   VehicleSize = 4
)

type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (p GeoPoint) Valid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// Resource is a bay or a mobile team as seen by the allocator. Bay fields and
// team fields are mutually exclusive depending on Kind. Resource definitions
// are owned by facility/fleet management; this subsystem only reads them.
type Resource struct {
	ID              int64
	Kind            BookingKind
	MaxVehicleSize  VehicleSize // bays only
	Base            GeoPoint    // mobile teams only
	ServiceRadiusKm float64     // mobile teams only
	DailyCapacity   int         // mobile teams only
	IsActive        bool
}

type Service struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
	IsActive        bool   `json:"is_active"`
}

// Window is a closed time interval.
type Window struct {
	Start time.Time
	End   time.Time
}

func NewWindow(start time.Time, durationMinutes int) Window {
	return Window{Start: start, End: start.Add(time.Duration(durationMinutes) * time.Minute)}
}

// Expand widens the window by d on both ends.
func (w Window) Expand(d time.Duration) Window {
	return Window{Start: w.Start.Add(-d), End: w.End.Add(d)}
}

// Overlaps reports closed-interval overlap: windows that merely touch at an
// endpoint still conflict.
func (w Window) Overlaps(o Window) bool {
	return !w.Start.After(o.End) && !o.Start.After(w.End)
}

// Commitment is a resource's reserved interval, derived from a non-terminal
// booking that holds a resource assignment.
type Commitment struct {
	BookingID  string
	ResourceID int64
	Window     Window
}
