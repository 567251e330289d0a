package handlers

import (
	"context"
	"net/http"

	"transitpay/internal/domain/models"

	"github.com/gin-gonic/gin"
)

type OccupancyReader interface {
	Snapshot(ctx context.Context, vehicleID int64) (models.VehicleOccupancy, error)
	RouteSnapshot(ctx context.Context, routeID int64) ([]models.VehicleOccupancy, error)
	Reset(ctx context.Context, vehicleID int64) (models.VehicleOccupancy, error)
}

type OccupancyHandler struct {
	Service OccupancyReader
}

// Route handles GET /api/routes/:id/occupancy.
func (h OccupancyHandler) Route(c *gin.Context) {
	routeID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	list, err := h.Service.RouteSnapshot(c.Request.Context(), routeID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	free := 0
	for _, o := range list {
		if o.HasRoom() {
			free += o.Capacity - o.CurrentOccupancy
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"route_id":    routeID,
		"vehicles":    list,
		"seats_free":  free,
		"has_vehicle": len(list) > 0,
	})
}

// Vehicle handles GET /api/vehicles/:id/occupancy.
func (h OccupancyHandler) Vehicle(c *gin.Context) {
	vehicleID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	snap, err := h.Service.Snapshot(c.Request.Context(), vehicleID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Reset handles POST /api/vehicles/:id/occupancy/reset (admin only).
func (h OccupancyHandler) Reset(c *gin.Context) {
	vehicleID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	snap, err := h.Service.Reset(c.Request.Context(), vehicleID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "occupancy reset", "occupancy": snap})
}
