package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdnguyen/movie-ticket-booking/internal/model"
	"github.com/tdnguyen/movie-ticket-booking/internal/payment"
	"github.com/tdnguyen/movie-ticket-booking/internal/queue"
	"github.com/tdnguyen/movie-ticket-booking/internal/repository"
)

// Function-field mocks so each test overrides only what it cares
// about.

type mockUserStore struct {
	getByID func(ctx context.Context, id uint64) (*model.User, error)
	getCard func(ctx context.Context, userID, cardID uint64) (*model.PaymentCard, error)
}

func (m *mockUserStore) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return m.getByID(ctx, id)
}

func (m *mockUserStore) GetCard(ctx context.Context, userID, cardID uint64) (*model.PaymentCard, error) {
	return m.getCard(ctx, userID, cardID)
}

type mockProductStore struct {
	findByIDs func(ctx context.Context, ids []uint64) (map[uint64]model.Product, error)
}

func (m *mockProductStore) FindByIDs(ctx context.Context, ids []uint64) (map[uint64]model.Product, error) {
	return m.findByIDs(ctx, ids)
}

type mockShowTimeStore struct {
	getByID func(ctx context.Context, id uint64) (*model.ShowTime, error)
}

func (m *mockShowTimeStore) GetByID(ctx context.Context, id uint64) (*model.ShowTime, error) {
	return m.getByID(ctx, id)
}

type mockTicketStore struct {
	findByIDs   func(ctx context.Context, ids []uint64) ([]model.Ticket, error)
	unavailable func(ctx context.Context, ids []uint64) ([]uint64, error)
}

func (m *mockTicketStore) FindByIDs(ctx context.Context, ids []uint64) ([]model.Ticket, error) {
	return m.findByIDs(ctx, ids)
}

func (m *mockTicketStore) Unavailable(ctx context.Context, ids []uint64) ([]uint64, error) {
	return m.unavailable(ctx, ids)
}

type mockReservationStore struct {
	create func(ctx context.Context, res *model.Reservation, ticketIDs []uint64) ([]uint64, error)
}

func (m *mockReservationStore) CreateWithTickets(ctx context.Context, res *model.Reservation, ticketIDs []uint64) ([]uint64, error) {
	return m.create(ctx, res, ticketIDs)
}

type mockPromotionStore struct {
	checkValid func(ctx context.Context, promotionID, userID uint64) (*model.Promotion, error)
	markUsed   func(ctx context.Context, promotionID, userID, reservationID uint64) error
}

func (m *mockPromotionStore) CheckValid(ctx context.Context, promotionID, userID uint64) (*model.Promotion, error) {
	return m.checkValid(ctx, promotionID, userID)
}

func (m *mockPromotionStore) MarkUsed(ctx context.Context, promotionID, userID, reservationID uint64) error {
	return m.markUsed(ctx, promotionID, userID, reservationID)
}

type refundCall struct {
	PaymentRef  string
	AmountCents int64
	Reason      string
}

type mockRefundOutbox struct {
	mu    sync.Mutex
	calls []refundCall
	err   error
}

func (m *mockRefundOutbox) Enqueue(ctx context.Context, paymentRef string, amountCents int64, currency, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, refundCall{PaymentRef: paymentRef, AmountCents: amountCents, Reason: reason})
	return nil
}

func (m *mockRefundOutbox) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockGateway struct {
	mu      sync.Mutex
	charges int
	charge  func(ctx context.Context, req payment.ChargeRequest) (string, error)
}

func (m *mockGateway) Charge(ctx context.Context, req payment.ChargeRequest) (string, error) {
	m.mu.Lock()
	m.charges++
	m.mu.Unlock()
	if m.charge != nil {
		return m.charge(ctx, req)
	}
	return "pay_ref_1", nil
}

func (m *mockGateway) Refund(ctx context.Context, paymentRef string, amountCents int64) error {
	return nil
}

func (m *mockGateway) chargeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.charges
}

type mockBroadcaster struct {
	mu      sync.Mutex
	channel string
	event   string
	payload interface{}
	done    chan struct{}
}

func (m *mockBroadcaster) Publish(ctx context.Context, channel, event string, payload interface{}) error {
	m.mu.Lock()
	m.channel, m.event, m.payload = channel, event, payload
	m.mu.Unlock()
	if m.done != nil {
		close(m.done)
	}
	return nil
}

type mockNotifier struct {
	mu   sync.Mutex
	evs  []queue.ReservationCreatedEvent
	done chan struct{}
}

func (m *mockNotifier) PushReservationCreated(ctx context.Context, ev queue.ReservationCreatedEvent) error {
	m.mu.Lock()
	m.evs = append(m.evs, ev)
	m.mu.Unlock()
	if m.done != nil {
		close(m.done)
	}
	return nil
}

// fixture bundles the service and every mock with happy-path defaults:
// a complete user, one card, one show time, two free tickets and one
// product.
type fixture struct {
	svc          *ReservationService
	users        *mockUserStore
	products     *mockProductStore
	showTimes    *mockShowTimeStore
	tickets      *mockTicketStore
	reservations *mockReservationStore
	promotions   *mockPromotionStore
	refunds      *mockRefundOutbox
	gateway      *mockGateway
	broadcaster  *mockBroadcaster
	notifier     *mockNotifier
}

func newFixture() *fixture {
	f := &fixture{
		users: &mockUserStore{
			getByID: func(ctx context.Context, id uint64) (*model.User, error) {
				return &model.User{ID: id, FullName: "Tuan Nguyen", Email: "tuan@example.com", PhoneNumber: "0901234567"}, nil
			},
			getCard: func(ctx context.Context, userID, cardID uint64) (*model.PaymentCard, error) {
				return &model.PaymentCard{ID: cardID, UserID: userID, GatewayToken: "tok_visa"}, nil
			},
		},
		products: &mockProductStore{
			findByIDs: func(ctx context.Context, ids []uint64) (map[uint64]model.Product, error) {
				return map[uint64]model.Product{
					10: {ID: 10, Name: "popcorn", PriceCents: 5000},
				}, nil
			},
		},
		showTimes: &mockShowTimeStore{
			getByID: func(ctx context.Context, id uint64) (*model.ShowTime, error) {
				return &model.ShowTime{ID: id, MovieTitle: "Dune", HallName: "Hall 1"}, nil
			},
		},
		tickets: &mockTicketStore{
			findByIDs: func(ctx context.Context, ids []uint64) ([]model.Ticket, error) {
				out := make([]model.Ticket, 0, len(ids))
				for i, id := range ids {
					out = append(out, model.Ticket{ID: id, ShowTimeID: 7, SeatRow: "C", SeatColumn: uint32(i + 1), PriceCents: 10000})
				}
				return out, nil
			},
			unavailable: func(ctx context.Context, ids []uint64) ([]uint64, error) {
				return nil, nil
			},
		},
		reservations: &mockReservationStore{
			create: func(ctx context.Context, res *model.Reservation, ticketIDs []uint64) ([]uint64, error) {
				res.ID = 42
				res.CreatedAt = time.Now()
				return nil, nil
			},
		},
		promotions: &mockPromotionStore{
			checkValid: func(ctx context.Context, promotionID, userID uint64) (*model.Promotion, error) {
				return nil, repository.ErrPromotionNotFound
			},
			markUsed: func(ctx context.Context, promotionID, userID, reservationID uint64) error {
				return nil
			},
		},
		refunds:     &mockRefundOutbox{},
		gateway:     &mockGateway{},
		broadcaster: &mockBroadcaster{},
		notifier:    &mockNotifier{},
	}
	f.svc = NewReservationService(
		f.users, f.products, f.showTimes, f.tickets, f.reservations,
		f.promotions, f.refunds, f.gateway, f.broadcaster, f.notifier,
		Config{}, zerolog.Nop(),
	)
	return f
}

func validRequest() CreateReservationRequest {
	return CreateReservationRequest{
		UserID:      1,
		Email:       "tuan@example.com",
		PhoneNumber: "0901234567",
		ShowTimeID:  7,
		Products:    []ProductLine{{ProductID: 10, Quantity: 2}},
		TicketIDs:   []uint64{101, 102},
		PayCardID:   3,
	}
}

func TestCreateReservation_Success(t *testing.T) {
	f := newFixture()
	f.broadcaster.done = make(chan struct{})
	f.notifier.done = make(chan struct{})

	created, err := f.svc.CreateReservation(context.Background(), validRequest())
	require.NoError(t, err)
	require.NotNil(t, created)

	// 2 tickets * 10000 + 2 popcorn * 5000.
	assert.Equal(t, int64(30000), created.OriginalPriceCents)
	assert.Equal(t, int64(30000), created.TotalPriceCents)
	assert.Equal(t, "pay_ref_1", created.PaymentRef)
	assert.Equal(t, uint64(42), created.Reservation.ID)
	assert.Equal(t, []string{"C1", "C2"}, created.Seats)
	assert.Equal(t, 1, f.gateway.chargeCount())
	assert.Equal(t, 0, f.refunds.count())

	select {
	case <-f.broadcaster.done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast never happened")
	}
	select {
	case <-f.notifier.done:
	case <-time.After(2 * time.Second):
		t.Fatal("push notification never happened")
	}

	f.broadcaster.mu.Lock()
	assert.Equal(t, "reservation:7", f.broadcaster.channel)
	assert.Equal(t, "reserved", f.broadcaster.event)
	payload, ok := f.broadcaster.payload.(map[string]model.Reservation)
	f.broadcaster.mu.Unlock()
	require.True(t, ok)
	assert.Len(t, payload, 2)
	assert.Contains(t, payload, "101")
	assert.Contains(t, payload, "102")
}

func TestCreateReservation_PromotionDiscountRoundsUp(t *testing.T) {
	f := newFixture()
	f.promotions.checkValid = func(ctx context.Context, promotionID, userID uint64) (*model.Promotion, error) {
		return &model.Promotion{ID: promotionID, Code: "TENOFF", Discount: 0.33}, nil
	}
	var usedPromo, usedRes uint64
	f.promotions.markUsed = func(ctx context.Context, promotionID, userID, reservationID uint64) error {
		usedPromo, usedRes = promotionID, reservationID
		return nil
	}

	req := validRequest()
	promoID := uint64(9)
	req.PromotionID = &promoID

	created, err := f.svc.CreateReservation(context.Background(), req)
	require.NoError(t, err)

	// ceil(30000 * 0.67) = 20100
	assert.Equal(t, int64(30000), created.OriginalPriceCents)
	assert.Equal(t, int64(20100), created.TotalPriceCents)
	require.NotNil(t, created.PromotionID)
	assert.Equal(t, promoID, *created.PromotionID)
	assert.Equal(t, promoID, usedPromo)
	assert.Equal(t, uint64(42), usedRes)
}

func TestCreateReservation_InvalidPromotionNoCharge(t *testing.T) {
	f := newFixture()

	req := validRequest()
	promoID := uint64(999)
	req.PromotionID = &promoID

	_, err := f.svc.CreateReservation(context.Background(), req)
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, f.gateway.chargeCount())
}

func TestCreateReservation_PreCheckConflictNoCharge(t *testing.T) {
	f := newFixture()
	f.tickets.unavailable = func(ctx context.Context, ids []uint64) ([]uint64, error) {
		return []uint64{101}, nil
	}

	_, err := f.svc.CreateReservation(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "C1")
	assert.Equal(t, 0, f.gateway.chargeCount())
	assert.Equal(t, 0, f.refunds.count())
}

func TestCreateReservation_MissingProductNoCharge(t *testing.T) {
	f := newFixture()
	f.products.findByIDs = func(ctx context.Context, ids []uint64) (map[uint64]model.Product, error) {
		return map[uint64]model.Product{}, nil
	}

	_, err := f.svc.CreateReservation(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, f.gateway.chargeCount())
}

func TestCreateReservation_CardDeclined(t *testing.T) {
	f := newFixture()
	f.gateway.charge = func(ctx context.Context, req payment.ChargeRequest) (string, error) {
		return "", payment.ErrCardDeclined
	}

	_, err := f.svc.CreateReservation(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrPayment)
	assert.Equal(t, 0, f.refunds.count())
}

func TestCreateReservation_ClaimConflictAfterChargeEnqueuesRefund(t *testing.T) {
	f := newFixture()
	f.reservations.create = func(ctx context.Context, res *model.Reservation, ticketIDs []uint64) ([]uint64, error) {
		return []uint64{102}, nil
	}

	_, err := f.svc.CreateReservation(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "C2")

	require.Equal(t, 1, f.refunds.count())
	call := f.refunds.calls[0]
	assert.Equal(t, "pay_ref_1", call.PaymentRef)
	assert.Equal(t, int64(30000), call.AmountCents)
	assert.Equal(t, "ticket conflict after charge", call.Reason)
}

func TestCreateReservation_PersistenceFailureEnqueuesRefund(t *testing.T) {
	f := newFixture()
	f.reservations.create = func(ctx context.Context, res *model.Reservation, ticketIDs []uint64) ([]uint64, error) {
		return nil, errors.New("deadlock found when trying to get lock")
	}

	_, err := f.svc.CreateReservation(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrPersistence)

	require.Equal(t, 1, f.refunds.count())
	assert.Equal(t, "reservation persistence failed", f.refunds.calls[0].Reason)
}

func TestCreateReservation_FailedAttemptDoesNotConsumePromotion(t *testing.T) {
	failures := []struct {
		name   string
		create func(ctx context.Context, res *model.Reservation, ticketIDs []uint64) ([]uint64, error)
	}{
		{
			name: "claim conflict",
			create: func(ctx context.Context, res *model.Reservation, ticketIDs []uint64) ([]uint64, error) {
				return []uint64{102}, nil
			},
		},
		{
			name: "persistence error",
			create: func(ctx context.Context, res *model.Reservation, ticketIDs []uint64) ([]uint64, error) {
				return nil, errors.New("connection reset by peer")
			},
		},
	}
	for _, tc := range failures {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.promotions.checkValid = func(ctx context.Context, promotionID, userID uint64) (*model.Promotion, error) {
				return &model.Promotion{ID: promotionID, Code: "TENOFF", Discount: 0.10}, nil
			}
			var used int
			f.promotions.markUsed = func(ctx context.Context, promotionID, userID, reservationID uint64) error {
				used++
				return nil
			}
			f.reservations.create = tc.create

			req := validRequest()
			promoID := uint64(9)
			req.PromotionID = &promoID

			_, err := f.svc.CreateReservation(context.Background(), req)
			require.Error(t, err)

			assert.Zero(t, used, "failed attempt must not record promotion usage")
			require.Equal(t, 1, f.refunds.count())
			assert.Equal(t, int64(27000), f.refunds.calls[0].AmountCents, "refund covers the discounted charge")
		})
	}
}

func TestCreateReservation_MarkUsedFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture()
	f.promotions.checkValid = func(ctx context.Context, promotionID, userID uint64) (*model.Promotion, error) {
		return &model.Promotion{ID: promotionID, Discount: 0.10}, nil
	}
	f.promotions.markUsed = func(ctx context.Context, promotionID, userID, reservationID uint64) error {
		return errors.New("promotions table unavailable")
	}

	req := validRequest()
	promoID := uint64(9)
	req.PromotionID = &promoID

	created, err := f.svc.CreateReservation(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(27000), created.TotalPriceCents)
}

func TestCreateReservation_TicketFromOtherShowTime(t *testing.T) {
	f := newFixture()
	f.tickets.findByIDs = func(ctx context.Context, ids []uint64) ([]model.Ticket, error) {
		return []model.Ticket{
			{ID: 101, ShowTimeID: 7, SeatRow: "C", SeatColumn: 1, PriceCents: 10000},
			{ID: 102, ShowTimeID: 8, SeatRow: "A", SeatColumn: 1, PriceCents: 10000},
		}, nil
	}

	_, err := f.svc.CreateReservation(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, f.gateway.chargeCount())
}

func TestCreateReservation_DuplicateTicketIDsDeduplicated(t *testing.T) {
	f := newFixture()
	var claimed []uint64
	f.reservations.create = func(ctx context.Context, res *model.Reservation, ticketIDs []uint64) ([]uint64, error) {
		claimed = ticketIDs
		res.ID = 42
		return nil, nil
	}

	req := validRequest()
	req.TicketIDs = []uint64{101, 101, 102, 0}

	_, err := f.svc.CreateReservation(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []uint64{101, 102}, claimed)
}

// raceStore is a ReservationStore backed by an in-memory claim table so
// two concurrent requests for the same seats contend the way rows in
// MySQL would.
type raceStore struct {
	mu      sync.Mutex
	claimed map[uint64]uint64
	nextID  uint64
}

func (s *raceStore) CreateWithTickets(ctx context.Context, res *model.Reservation, ticketIDs []uint64) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var conflicts []uint64
	for _, id := range ticketIDs {
		if _, taken := s.claimed[id]; taken {
			conflicts = append(conflicts, id)
		}
	}
	if len(conflicts) > 0 {
		return conflicts, nil
	}
	s.nextID++
	res.ID = s.nextID
	for _, id := range ticketIDs {
		s.claimed[id] = res.ID
	}
	return nil, nil
}

func TestCreateReservation_ConcurrentRequestsOneWinner(t *testing.T) {
	f := newFixture()
	store := &raceStore{claimed: make(map[uint64]uint64)}
	f.svc.reservations = store

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := validRequest()
			req.UserID = uint64(i + 1)
			_, err := f.svc.CreateReservation(context.Background(), req)
			results[i] = err
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins, "exactly one request should claim the seats")
	assert.Equal(t, 1, conflicts, "the loser should get a conflict")

	// Both requests charged, the loser's charge must be queued for
	// refund.
	assert.Equal(t, 2, f.gateway.chargeCount())
	assert.Equal(t, 1, f.refunds.count())
}
