package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mvoronin91/washbooking/internal/domain"
)

// ServiceCatalog and VehicleRegistry are external collaborators; the booking
// core only reads through them.
type ServiceCatalog interface {
	// GetServices resolves ids to active catalog entries, in the requested
	// order. Any unknown or inactive id fails the whole call with
	// domain.ErrNotFound.
	GetServices(ctx context.Context, ids []int64) ([]domain.Service, error)
	ListActive(ctx context.Context) ([]domain.Service, error)
}

type VehicleRegistry interface {
	BelongsToCustomer(ctx context.Context, vehicleID, customerID int64) (bool, error)
	SizeClass(ctx context.Context, vehicleID int64) (domain.VehicleSize, error)
}

type PGServiceCatalog struct {
	db *pgxpool.Pool
}

func NewServiceCatalog(db *pgxpool.Pool) ServiceCatalog {
	return &PGServiceCatalog{db: db}
}

func (r *PGServiceCatalog) GetServices(ctx context.Context, ids []int64) ([]domain.Service, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, duration_minutes, price_cents, is_active FROM services WHERE id = ANY($1) AND is_active`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[int64]domain.Service, len(ids))
	for rows.Next() {
		var s domain.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.DurationMinutes, &s.PriceCents, &s.IsActive); err != nil {
			return nil, err
		}
		byID[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	services := make([]domain.Service, 0, len(ids))
	for _, id := range ids {
		s, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: service %d unknown or inactive", domain.ErrNotFound, id)
		}
		services = append(services, s)
	}
	return services, nil
}

func (r *PGServiceCatalog) ListActive(ctx context.Context) ([]domain.Service, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, duration_minutes, price_cents, is_active FROM services WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]domain.Service, 0)
	for rows.Next() {
		var s domain.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.DurationMinutes, &s.PriceCents, &s.IsActive); err != nil {
			return nil, err
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

type PGVehicleRegistry struct {
	db *pgxpool.Pool
}

func NewVehicleRegistry(db *pgxpool.Pool) VehicleRegistry {
	return &PGVehicleRegistry{db: db}
}

func (r *PGVehicleRegistry) BelongsToCustomer(ctx context.Context, vehicleID, customerID int64) (bool, error) {
	var owned bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM vehicles WHERE id=$1 AND customer_id=$2)`, vehicleID, customerID).Scan(&owned)
	return owned, err
}

func (r *PGVehicleRegistry) SizeClass(ctx context.Context, vehicleID int64) (domain.VehicleSize, error) {
	var size int
	if err := r.db.QueryRow(ctx, `SELECT size_class FROM vehicles WHERE id=$1`, vehicleID).Scan(&size); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: vehicle %d", domain.ErrNotFound, vehicleID)
		}
		return 0, err
	}
	return domain.VehicleSize(size), nil
}

var _ ServiceCatalog = (*PGServiceCatalog)(nil)
var _ VehicleRegistry = (*PGVehicleRegistry)(nil)
