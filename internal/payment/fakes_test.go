package payment

import (
	"context"
	"sync"
	"time"

	"github.com/frahmantamala/vehicle-rental/internal"
	bookingmodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/booking"
	"github.com/frahmantamala/vehicle-rental/internal/core/events"
	"github.com/frahmantamala/vehicle-rental/internal/paymentgateway"
)

type memoryRepo struct {
	mu           sync.Mutex
	nextID       int64
	clock        time.Time
	payments     []*Payment
	bookings     map[int64]*BookingBalance
	statusWrites int
	locks        int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		clock:    time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		bookings: make(map[int64]*BookingBalance),
	}
}

func (r *memoryRepo) addBooking(id, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookings[id] = &BookingBalance{
		BookingID:     id,
		Total:         total,
		Currency:      "USD",
		Status:        bookingmodel.StatusConfirmed,
		PaymentStatus: paymentStatusPending,
	}
}

func (r *memoryRepo) setBookingStatus(id int64, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookings[id].Status = status
}

func (r *memoryRepo) paymentStatus(bookingID int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bookings[bookingID].PaymentStatus
}

func (r *memoryRepo) Create(_ context.Context, p *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.clock = r.clock.Add(time.Second)
	p.ID = r.nextID
	p.CreatedAt = r.clock
	p.UpdatedAt = r.clock
	cp := *p
	r.payments = append(r.payments, &cp)
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id int64) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, internal.ErrPaymentNotFound
}

func (r *memoryRepo) GetByCorrelationID(_ context.Context, correlationID string) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.CorrelationID != nil && *p.CorrelationID == correlationID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, internal.ErrPaymentNotFound
}

func (r *memoryRepo) TransactionIDExists(_ context.Context, transactionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.TransactionID == transactionID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) ListByBooking(_ context.Context, bookingID int64) (Ledger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ledger Ledger
	for _, p := range r.payments {
		if p.BookingID == bookingID {
			cp := *p
			ledger = append(ledger, &cp)
		}
	}
	return ledger, nil
}

func (r *memoryRepo) UpdateSettlement(_ context.Context, id int64, s Settlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.ID != id {
			continue
		}
		p.Status = s.Status
		if s.Reference != nil {
			p.GatewayReference = s.Reference
		}
		if s.FailureReason != nil {
			p.FailureReason = s.FailureReason
		}
		if s.Response != nil {
			p.GatewayResponse = s.Response
		}
		if s.ProcessedAt != nil {
			p.ProcessedAt = s.ProcessedAt
		}
		return nil
	}
	return internal.ErrPaymentNotFound
}

func (r *memoryRepo) BookingBalance(_ context.Context, bookingID int64) (*BookingBalance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[bookingID]
	if !ok {
		return nil, internal.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *memoryRepo) LockBooking(_ context.Context, bookingID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bookings[bookingID]; !ok {
		return internal.ErrBookingNotFound
	}
	r.locks++
	return nil
}

func (r *memoryRepo) SetBookingPaymentStatus(_ context.Context, bookingID int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[bookingID]
	if !ok {
		return internal.ErrBookingNotFound
	}
	b.PaymentStatus = status
	r.statusWrites++
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) PublishSync(ctx context.Context, event events.Event) error {
	return p.Publish(ctx, event)
}

func (p *recordingPublisher) statusChanges() []*events.PaymentStatusChangedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*events.PaymentStatusChangedEvent
	for _, e := range p.events {
		if ev, ok := e.(*events.PaymentStatusChangedEvent); ok {
			out = append(out, ev)
		}
	}
	return out
}

type stubGateway struct {
	name   string
	calls  int
	charge func(ctx context.Context, req paymentgateway.ChargeRequest) (*paymentgateway.ChargeResult, error)
}

func (g *stubGateway) Name() string   { return g.name }
func (g *stubGateway) Method() string { return "card" }

func (g *stubGateway) Charge(ctx context.Context, req paymentgateway.ChargeRequest) (*paymentgateway.ChargeResult, error) {
	g.calls++
	return g.charge(ctx, req)
}
