package bootstrap

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mvoronin91/washbooking/api"
	"github.com/mvoronin91/washbooking/config"
	"github.com/mvoronin91/washbooking/internal/service/booking"
	"github.com/mvoronin91/washbooking/internal/service/catalog"
)

// Run starts the HTTP server and blocks until the context is canceled or the
// server fails.
func Run(ctx context.Context, cfg *config.Config, bookingSvc booking.BookingUseCase, catalogSvc catalog.CatalogUseCase) error {
	router := gin.Default()

	bookingHandler := api.NewBookingHandler(bookingSvc)
	bookingHandler.Register(router.Group("/bookings"))

	serviceHandler := api.NewServiceHandler(catalogSvc)
	serviceHandler.Register(router.Group("/services"))

	httpSrv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}
