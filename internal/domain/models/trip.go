package models

import "time"

type TripStatus string

const (
	TripScheduled TripStatus = "scheduled"
	TripBoarding  TripStatus = "boarding"
	TripFull      TripStatus = "full"
	TripCompleted TripStatus = "completed"
)

// Trip is a single scheduled run of a vehicle. Only scheduled and boarding trips accept passengers.
type Trip struct {
	ID               int64      `json:"id"`
	VehicleID        int64      `json:"vehicle_id"`
	Capacity         int        `json:"capacity"`
	CurrentOccupancy int        `json:"current_occupancy"`
	Status           TripStatus `json:"status"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Open reports whether the trip still boards passengers.
func (t Trip) Open() bool {
	return t.Status == TripScheduled || t.Status == TripBoarding
}
