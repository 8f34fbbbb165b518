package catalog

import (
	"context"

	"github.com/mvoronin91/washbooking/internal/domain"
	"github.com/mvoronin91/washbooking/internal/repository"
)

type CatalogUseCase interface {
	ListServices(ctx context.Context) ([]domain.Service, error)
}

type Cache interface {
	GetServices(ctx context.Context) ([]domain.Service, error)
	SetServices(ctx context.Context, services []domain.Service) error
}

// CatalogService serves the active service list, cache-aside.
type CatalogService struct {
	repo  repository.ServiceCatalog
	cache Cache
}

func NewCatalogService(repo repository.ServiceCatalog, cache Cache) *CatalogService {
	return &CatalogService{repo: repo, cache: cache}
}

func (s *CatalogService) ListServices(ctx context.Context) ([]domain.Service, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetServices(ctx); err == nil && cached != nil {
			return cached, nil
		}
	}

	services, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetServices(ctx, services)
	}
	return services, nil
}

var _ CatalogUseCase = (*CatalogService)(nil)
