package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mvoronin91/washbooking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockCatalogUseCase is a mock implementation of catalog.CatalogUseCase
type MockCatalogUseCase struct {
	mock.Mock
}

func (m *MockCatalogUseCase) ListServices(ctx context.Context) ([]domain.Service, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Service), args.Error(1)
}

func newServiceRouter(service *MockCatalogUseCase) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewServiceHandler(service).Register(router.Group("/services"))
	return router
}

func TestServiceHandler_list(t *testing.T) {
	mockService := &MockCatalogUseCase{}
	router := newServiceRouter(mockService)

	services := []domain.Service{
		{ID: 1, Name: "Exterior wash", DurationMinutes: 30, PriceCents: 2500, IsActive: true},
		{ID: 2, Name: "Interior detail", DurationMinutes: 60, PriceCents: 7500, IsActive: true},
	}
	mockService.On("ListServices", mock.Anything).Return(services, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/services/", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp []domain.Service
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)
	assert.Equal(t, "Exterior wash", resp[0].Name)

	mockService.AssertExpectations(t)
}

func TestServiceHandler_list_error(t *testing.T) {
	mockService := &MockCatalogUseCase{}
	router := newServiceRouter(mockService)

	mockService.On("ListServices", mock.Anything).Return(nil, errors.New("redis down"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/services/", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
