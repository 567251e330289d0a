package models

import "time"

type OccupancyStatus string

const (
	OccupancyAvailable OccupancyStatus = "available"
	OccupancyFull      OccupancyStatus = "full"
)

// DeriveOccupancyStatus returns full iff current >= capacity.
func DeriveOccupancyStatus(current, capacity int) OccupancyStatus {
	if current >= capacity {
		return OccupancyFull
	}
	return OccupancyAvailable
}

type Vehicle struct {
	ID          int64  `json:"id"`
	RouteID     int64  `json:"route_id"`
	PlateNumber string `json:"plate_number"`
	Capacity    int    `json:"capacity"`
	DriverID    *int64 `json:"driver_id,omitempty"`
}

type Driver struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// VehicleOccupancy is the live seat count of one vehicle, joined with its capacity.
// Vehicles without an occupancy row yet report zero occupancy.
type VehicleOccupancy struct {
	VehicleID        int64           `json:"vehicle_id"`
	RouteID          int64           `json:"route_id"`
	PlateNumber      string          `json:"plate_number"`
	DriverID         *int64          `json:"driver_id,omitempty"`
	Capacity         int             `json:"capacity"`
	CurrentOccupancy int             `json:"current_occupancy"`
	Status           OccupancyStatus `json:"occupancy_status"`
	UpdatedAt        *time.Time      `json:"updated_at,omitempty"`
}

// HasRoom reports whether at least one more seat can be sold.
func (o VehicleOccupancy) HasRoom() bool {
	return o.CurrentOccupancy < o.Capacity
}
