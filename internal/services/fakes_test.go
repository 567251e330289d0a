package services

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"transitpay/internal/domain"
	"transitpay/internal/domain/models"
	"transitpay/internal/gateway"
)

type memPayments struct {
	mu      sync.Mutex
	nextID  int64
	rows    map[int64]models.Payment
	creates int

	// consumed one per SetCheckout call
	setCheckoutErrs []error
}

func newMemPayments() *memPayments {
	return &memPayments{rows: map[int64]models.Payment{}}
}

func (m *memPayments) Create(_ context.Context, p models.Payment) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.creates++
	p.ID = m.nextID
	p.Status = models.PaymentPending
	m.rows[p.ID] = p
	return p.ID, nil
}

func (m *memPayments) GetByID(_ context.Context, id int64) (models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return models.Payment{}, domain.NotFoundError{Resource: "payment"}
	}
	return p, nil
}

func (m *memPayments) GetByCheckoutID(_ context.Context, checkoutID string) (models.Payment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.rows {
		if p.CheckoutRequestID == checkoutID {
			return p, true, nil
		}
	}
	return models.Payment{}, false, nil
}

func (m *memPayments) SetCheckout(_ context.Context, id int64, checkoutID, merchantID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.setCheckoutErrs) > 0 {
		err := m.setCheckoutErrs[0]
		m.setCheckoutErrs = m.setCheckoutErrs[1:]
		if err != nil {
			return err
		}
	}
	p := m.rows[id]
	if p.Status == models.PaymentPending {
		p.CheckoutRequestID = checkoutID
		p.MerchantRequestID = merchantID
		p.UpdatedAt = now
		m.rows[id] = p
	}
	return nil
}

func (m *memPayments) MarkCompleted(_ context.Context, id int64, receipt string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok || p.Status != models.PaymentPending {
		return false, nil
	}
	p.Status = models.PaymentCompleted
	p.ReceiptNumber = receipt
	p.UpdatedAt = now
	m.rows[id] = p
	return true, nil
}

func (m *memPayments) MarkFailed(_ context.Context, id int64, reason string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok || p.Status != models.PaymentPending {
		return false, nil
	}
	p.Status = models.PaymentFailed
	p.FailureReason = &reason
	p.UpdatedAt = now
	m.rows[id] = p
	return true, nil
}

func (m *memPayments) AssignVehicle(_ context.Context, id, vehicleID int64, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok || p.VehicleID != nil {
		return false, nil
	}
	v := vehicleID
	p.VehicleID = &v
	m.rows[id] = p
	return true, nil
}

func (m *memPayments) SaveNotification(_ context.Context, id int64, n models.NotificationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.rows[id]
	p.Notification = &n
	m.rows[id] = p
	return nil
}

func (m *memPayments) ListStalePending(_ context.Context, before time.Time, limit int) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Payment{}
	for _, p := range m.rows {
		if p.Status == models.PaymentPending && p.CheckoutRequestID != "" && p.CreatedAt.Before(before) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memPayments) get(id int64) models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

// memFleet serves vehicles, drivers and occupancy rows from memory.
type memFleet struct {
	mu        sync.Mutex
	routes    map[int64]bool
	vehicles  map[int64]models.Vehicle
	drivers   map[int64]models.Driver
	occupancy map[int64]int
	trips     map[int64]*models.Trip
}

func newMemFleet() *memFleet {
	return &memFleet{
		routes:    map[int64]bool{},
		vehicles:  map[int64]models.Vehicle{},
		drivers:   map[int64]models.Driver{},
		occupancy: map[int64]int{},
		trips:     map[int64]*models.Trip{},
	}
}

func (f *memFleet) addVehicle(v models.Vehicle) {
	f.routes[v.RouteID] = true
	f.vehicles[v.ID] = v
}

func (f *memFleet) GetVehicle(_ context.Context, id int64) (models.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vehicles[id]
	if !ok {
		return models.Vehicle{}, domain.NotFoundError{Resource: "vehicle"}
	}
	return v, nil
}

func (f *memFleet) GetDriver(_ context.Context, id int64) (models.Driver, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drivers[id]
	return d, ok, nil
}

func (f *memFleet) RouteExists(_ context.Context, routeID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.routes[routeID], nil
}

func (f *memFleet) EnsureRow(_ context.Context, v models.Vehicle, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.occupancy[v.ID]; !ok {
		f.occupancy[v.ID] = 0
	}
	return nil
}

func (f *memFleet) IncrementIfBelow(_ context.Context, vehicleID int64, capacity int, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.occupancy[vehicleID] >= capacity {
		return false, nil
	}
	f.occupancy[vehicleID]++
	return true, nil
}

func (f *memFleet) snapshot(v models.Vehicle) models.VehicleOccupancy {
	n := f.occupancy[v.ID]
	return models.VehicleOccupancy{
		VehicleID:        v.ID,
		RouteID:          v.RouteID,
		PlateNumber:      v.PlateNumber,
		DriverID:         v.DriverID,
		Capacity:         v.Capacity,
		CurrentOccupancy: n,
		Status:           models.DeriveOccupancyStatus(n, v.Capacity),
	}
}

func (f *memFleet) GetByVehicle(_ context.Context, vehicleID int64) (models.VehicleOccupancy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vehicles[vehicleID]
	if !ok {
		return models.VehicleOccupancy{}, domain.NotFoundError{Resource: "vehicle"}
	}
	return f.snapshot(v), nil
}

func (f *memFleet) ListByRoute(_ context.Context, routeID int64) ([]models.VehicleOccupancy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.VehicleOccupancy{}
	for _, v := range f.vehicles {
		if v.RouteID == routeID {
			out = append(out, f.snapshot(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out, nil
}

func (f *memFleet) Reset(_ context.Context, vehicleID int64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.occupancy[vehicleID] = 0
	return nil
}

func (f *memFleet) OpenTripForVehicle(_ context.Context, vehicleID int64) (models.Trip, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.trips[vehicleID]
	if !ok || !t.Open() {
		return models.Trip{}, false, nil
	}
	return *t, true, nil
}

func (f *memFleet) IncrementTrip(_ context.Context, tripID int64, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.trips {
		if t.ID != tripID || !t.Open() || t.CurrentOccupancy >= t.Capacity {
			continue
		}
		t.CurrentOccupancy++
		t.Status = models.TripBoarding
		if t.CurrentOccupancy >= t.Capacity {
			t.Status = models.TripFull
		}
		return true, nil
	}
	return false, nil
}

func (f *memFleet) count(vehicleID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.occupancy[vehicleID]
}

type stubGateway struct {
	mu         sync.Mutex
	pushReqs   []gateway.PushRequest
	pushResp   gateway.PushResponse
	pushErr    error
	queryResp  gateway.StatusResponse
	queryErr   error
	queryCalls int32
	queryGate  chan struct{}
}

func (g *stubGateway) Push(_ context.Context, req gateway.PushRequest) (gateway.PushResponse, error) {
	g.mu.Lock()
	g.pushReqs = append(g.pushReqs, req)
	g.mu.Unlock()
	return g.pushResp, g.pushErr
}

func (g *stubGateway) QueryStatus(_ context.Context, _ string) (gateway.StatusResponse, error) {
	atomic.AddInt32(&g.queryCalls, 1)
	if g.queryGate != nil {
		<-g.queryGate
	}
	return g.queryResp, g.queryErr
}

func (g *stubGateway) pushes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pushReqs)
}

type countingNotifier struct {
	calls  int32
	seated atomic.Bool
}

func (n *countingNotifier) Notify(_ context.Context, p models.Payment, seated bool) models.NotificationResult {
	atomic.AddInt32(&n.calls, 1)
	n.seated.Store(seated)
	return models.NotificationResult{
		Passenger: models.ChannelResult{Attempted: true, Delivered: true},
		Driver:    models.ChannelResult{Attempted: true, Delivered: true},
	}
}

type countingAllocator struct {
	inner Allocator
	calls int32
}

func (a *countingAllocator) SelectVehicleForRoute(ctx context.Context, routeID int64) (int64, bool, error) {
	return a.inner.SelectVehicleForRoute(ctx, routeID)
}

func (a *countingAllocator) ApplyCompletedPayment(ctx context.Context, p models.Payment) (AllocationResult, error) {
	atomic.AddInt32(&a.calls, 1)
	return a.inner.ApplyCompletedPayment(ctx, p)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
