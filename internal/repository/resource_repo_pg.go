package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mvoronin91/washbooking/internal/domain"
)

// PGResourceDirectory reads bay and mobile-team definitions owned by
// facility/fleet management.
type PGResourceDirectory struct {
	db *pgxpool.Pool
}

func NewResourceDirectory(db *pgxpool.Pool) *PGResourceDirectory {
	return &PGResourceDirectory{db: db}
}

func (r *PGResourceDirectory) ListByKind(ctx context.Context, kind domain.BookingKind) ([]domain.Resource, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, kind, max_vehicle_size, base_lat, base_lng, service_radius_km, daily_capacity, is_active
		FROM resources WHERE kind=$1 ORDER BY id`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resources := make([]domain.Resource, 0)
	for rows.Next() {
		var (
			res      domain.Resource
			resKind  string
			maxSize  int
			lat, lng float64
		)
		if err := rows.Scan(&res.ID, &resKind, &maxSize, &lat, &lng, &res.ServiceRadiusKm, &res.DailyCapacity, &res.IsActive); err != nil {
			return nil, err
		}
		res.Kind = domain.BookingKind(resKind)
		res.MaxVehicleSize = domain.VehicleSize(maxSize)
		res.Base = domain.GeoPoint{Latitude: lat, Longitude: lng}
		resources = append(resources, res)
	}
	return resources, rows.Err()
}
