package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mvoronin91/washbooking/internal/domain"
	"github.com/mvoronin91/washbooking/internal/service/booking"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type createBookingRequest struct {
	CustomerID  int64            `json:"customer_id"`
	VehicleID   int64            `json:"vehicle_id"`
	ServiceIDs  []int64          `json:"service_ids"`
	ScheduledAt time.Time        `json:"scheduled_at"`
	Kind        string           `json:"kind"`
	Location    *domain.GeoPoint `json:"location,omitempty"`
}

type rescheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

type serviceRequest struct {
	ServiceID int64 `json:"service_id"`
}

type ratingRequest struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback,omitempty"`
}

type bookingResponse struct {
	ID                   string           `json:"id"`
	CustomerID           int64            `json:"customer_id"`
	VehicleID            int64            `json:"vehicle_id"`
	ServiceIDs           []int64          `json:"service_ids"`
	Kind                 string           `json:"kind"`
	Location             *domain.GeoPoint `json:"location,omitempty"`
	ScheduledAt          string           `json:"scheduled_at"`
	TotalDurationMinutes int              `json:"total_duration_minutes"`
	TotalPriceCents      int64            `json:"total_price_cents"`
	Status               string           `json:"status"`
	ResourceID           *int64           `json:"resource_id,omitempty"`
	ActualStart          *string          `json:"actual_start,omitempty"`
	ActualEnd            *string          `json:"actual_end,omitempty"`
	CancellationFeeCents *int64           `json:"cancellation_fee_cents,omitempty"`
	OvertimeChargeCents  *int64           `json:"overtime_charge_cents,omitempty"`
	RatingScore          *int             `json:"rating_score,omitempty"`
	RatingFeedback       *string          `json:"rating_feedback,omitempty"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("/", h.create)
	router.GET("/:id", h.get)
	router.POST("/:id/confirm", h.confirm)
	router.POST("/:id/start", h.start)
	router.POST("/:id/complete", h.complete)
	router.POST("/:id/cancel", h.cancel)
	router.POST("/:id/no-show", h.noShow)
	router.POST("/:id/reschedule", h.reschedule)
	router.POST("/:id/services", h.addService)
	router.DELETE("/:id/services/:serviceID", h.removeService)
	router.POST("/:id/rating", h.rate)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b, err := h.service.CreateBooking(c.Request.Context(), booking.CreateBookingInput{
		CustomerID:  req.CustomerID,
		VehicleID:   req.VehicleID,
		ServiceIDs:  req.ServiceIDs,
		ScheduledAt: req.ScheduledAt,
		Kind:        domain.BookingKind(req.Kind),
		Location:    req.Location,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toResponse(b))
}

func (h *BookingHandler) get(c *gin.Context) {
	b, err := h.service.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(b))
}

func (h *BookingHandler) confirm(c *gin.Context) {
	h.transition(c, h.service.ConfirmBooking)
}

func (h *BookingHandler) start(c *gin.Context) {
	h.transition(c, h.service.StartBooking)
}

func (h *BookingHandler) complete(c *gin.Context) {
	h.transition(c, h.service.CompleteBooking)
}

func (h *BookingHandler) cancel(c *gin.Context) {
	h.transition(c, h.service.CancelBooking)
}

func (h *BookingHandler) noShow(c *gin.Context) {
	h.transition(c, h.service.MarkNoShow)
}

func (h *BookingHandler) reschedule(c *gin.Context) {
	var req rescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b, err := h.service.RescheduleBooking(c.Request.Context(), c.Param("id"), req.ScheduledAt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(b))
}

func (h *BookingHandler) addService(c *gin.Context) {
	var req serviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b, err := h.service.AddService(c.Request.Context(), c.Param("id"), req.ServiceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(b))
}

func (h *BookingHandler) removeService(c *gin.Context) {
	serviceID, err := parseID(c.Param("serviceID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid service id"})
		return
	}
	b, err := h.service.RemoveService(c.Request.Context(), c.Param("id"), serviceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(b))
}

func (h *BookingHandler) rate(c *gin.Context) {
	var req ratingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b, err := h.service.RateBooking(c.Request.Context(), c.Param("id"), req.Score, req.Feedback)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(b))
}

func (h *BookingHandler) transition(c *gin.Context, op func(ctx context.Context, id string) (*domain.Booking, error)) {
	b, err := op(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(b))
}

// writeError maps the domain error taxonomy to HTTP statuses without leaking
// business logic into the transport layer.
func writeError(c *gin.Context, err error) {
	var noCap *domain.NoCapacityError
	switch {
	case errors.As(err, &noCap):
		alternatives := make([]string, 0, len(noCap.Alternatives))
		for _, t := range noCap.Alternatives {
			alternatives = append(alternatives, t.Format(time.RFC3339))
		}
		c.JSON(http.StatusConflict, gin.H{"error": noCap.Error(), "alternatives": alternatives})
	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNoCompatibleResource):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}

func toResponse(b *domain.Booking) bookingResponse {
	resp := bookingResponse{
		ID:                   b.ID,
		CustomerID:           b.CustomerID,
		VehicleID:            b.VehicleID,
		ServiceIDs:           b.ServiceIDs,
		Kind:                 string(b.Kind),
		Location:             b.Location,
		ScheduledAt:          b.ScheduledAt.Format(time.RFC3339),
		TotalDurationMinutes: b.TotalDurationMinutes,
		TotalPriceCents:      b.TotalPriceCents,
		Status:               string(b.Status),
		ResourceID:           b.ResourceID,
		CancellationFeeCents: b.CancellationFeeCents,
		OvertimeChargeCents:  b.OvertimeChargeCents,
		RatingScore:          b.RatingScore,
		RatingFeedback:       b.RatingFeedback,
	}
	if b.ActualStart != nil {
		s := b.ActualStart.Format(time.RFC3339)
		resp.ActualStart = &s
	}
	if b.ActualEnd != nil {
		s := b.ActualEnd.Format(time.RFC3339)
		resp.ActualEnd = &s
	}
	return resp
}
