package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mvoronin91/washbooking/internal/service/catalog"
)

type ServiceHandler struct {
	service catalog.CatalogUseCase
}

func NewServiceHandler(service catalog.CatalogUseCase) *ServiceHandler {
	return &ServiceHandler{service: service}
}

func (h *ServiceHandler) Register(router *gin.RouterGroup) {
	router.GET("/", h.list)
}

func (h *ServiceHandler) list(c *gin.Context) {
	services, err := h.service.ListServices(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, services)
}
