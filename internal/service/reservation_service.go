package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/tdnguyen/movie-ticket-booking/internal/model"
	"github.com/tdnguyen/movie-ticket-booking/internal/payment"
	"github.com/tdnguyen/movie-ticket-booking/internal/pricing"
	"github.com/tdnguyen/movie-ticket-booking/internal/queue"
	"github.com/tdnguyen/movie-ticket-booking/internal/repository"
)

// Stages of the reservation workflow, in order.  A request moves
// through them linearly; every failure exits at the stage it occurred
// and is classified by one of the package sentinels.
const (
	stageValidating = "validating"
	stagePriced     = "priced"
	stageCharged    = "charged"
	stagePersisting = "persisting"
	stagePromotion  = "promotion_recorded"
	stageCommitted  = "committed"
)

// UserStore resolves the requester and their payment methods.
type UserStore interface {
	GetByID(ctx context.Context, id uint64) (*model.User, error)
	GetCard(ctx context.Context, userID, cardID uint64) (*model.PaymentCard, error)
}

// ProductStore reads the add-on catalog.
type ProductStore interface {
	FindByIDs(ctx context.Context, ids []uint64) (map[uint64]model.Product, error)
}

// ShowTimeStore reads show times.
type ShowTimeStore interface {
	GetByID(ctx context.Context, id uint64) (*model.ShowTime, error)
}

// TicketStore reads tickets and answers the racy availability
// pre-check.  The authoritative claim happens inside
// ReservationStore.CreateWithTickets.
type TicketStore interface {
	FindByIDs(ctx context.Context, ids []uint64) ([]model.Ticket, error)
	Unavailable(ctx context.Context, ids []uint64) ([]uint64, error)
}

// ReservationStore persists a reservation and its ticket claims as one
// atomic unit.  A non-empty conflict slice means nothing was retained.
type ReservationStore interface {
	CreateWithTickets(ctx context.Context, res *model.Reservation, ticketIDs []uint64) (conflicts []uint64, err error)
}

// PromotionStore is the validate/consume contract of the promotions
// service.  MarkUsed must tolerate at-least-once delivery.
type PromotionStore interface {
	CheckValid(ctx context.Context, promotionID, userID uint64) (*model.Promotion, error)
	MarkUsed(ctx context.Context, promotionID, userID, reservationID uint64) error
}

// RefundOutbox durably records a refund obligation for later delivery
// by the refund worker.
type RefundOutbox interface {
	Enqueue(ctx context.Context, paymentRef string, amountCents int64, currency, reason string) error
}

// Broadcaster publishes post-commit events to real-time subscribers of
// a show time.  Failures are logged, never surfaced.
type Broadcaster interface {
	Publish(ctx context.Context, channel, event string, payload interface{}) error
}

// Notifier delivers the push notification for a committed reservation.
// Failures are logged, never surfaced.
type Notifier interface {
	PushReservationCreated(ctx context.Context, ev queue.ReservationCreatedEvent) error
}

// Config carries the tunables of the reservation workflow.
type Config struct {
	Currency       string
	ChargeTimeout  time.Duration
	PersistTimeout time.Duration
	FanoutTimeout  time.Duration
}

// ReservationService coordinates validation, pricing, payment, the
// atomic ticket claim and post-commit side effects for reservation
// creation.
type ReservationService struct {
	users        UserStore
	products     ProductStore
	showTimes    ShowTimeStore
	tickets      TicketStore
	reservations ReservationStore
	promotions   PromotionStore
	refunds      RefundOutbox
	gateway      payment.Gateway
	broadcaster  Broadcaster
	notifier     Notifier
	cfg          Config
	logger       zerolog.Logger
	now          func() time.Time
}

// NewReservationService wires the coordinator.  All collaborators must
// be non-nil.
func NewReservationService(
	users UserStore,
	products ProductStore,
	showTimes ShowTimeStore,
	tickets TicketStore,
	reservations ReservationStore,
	promotions PromotionStore,
	refunds RefundOutbox,
	gateway payment.Gateway,
	broadcaster Broadcaster,
	notifier Notifier,
	cfg Config,
	logger zerolog.Logger,
) *ReservationService {
	if cfg.Currency == "" {
		cfg.Currency = "vnd"
	}
	if cfg.ChargeTimeout <= 0 {
		cfg.ChargeTimeout = 10 * time.Second
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	if cfg.FanoutTimeout <= 0 {
		cfg.FanoutTimeout = 10 * time.Second
	}
	return &ReservationService{
		users:        users,
		products:     products,
		showTimes:    showTimes,
		tickets:      tickets,
		reservations: reservations,
		promotions:   promotions,
		refunds:      refunds,
		gateway:      gateway,
		broadcaster:  broadcaster,
		notifier:     notifier,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

// ProductLine is one requested product with its quantity.
type ProductLine struct {
	ProductID uint64 `json:"product_id"`
	Quantity  uint32 `json:"quantity"`
}

// CreateReservationRequest is the reservation creation input.  UserID
// comes from the authenticated session, everything else from the
// request body.
type CreateReservationRequest struct {
	UserID      uint64        `json:"-"`
	Email       string        `json:"email"`
	PhoneNumber string        `json:"phone_number"`
	ShowTimeID  uint64        `json:"show_time_id"`
	Products    []ProductLine `json:"products"`
	TicketIDs   []uint64      `json:"ticket_ids"`
	PayCardID   uint64        `json:"pay_card_id"`
	PromotionID *uint64       `json:"promotion_id"`
}

// CreatedReservation is the success response: the persisted
// reservation plus the resolved user and the claimed seats.
type CreatedReservation struct {
	model.Reservation
	User      model.User `json:"user"`
	TicketIDs []uint64   `json:"ticket_ids"`
	Seats     []string   `json:"seats"`
}

// CreateReservation runs the full workflow.  The charge is only
// attempted after every validation and the optimistic availability
// check have passed, and any failure after the charge enqueues a
// durable refund before the error is returned, so the caller never
// keeps a charge without a reservation.
func (s *ReservationService) CreateReservation(ctx context.Context, req CreateReservationRequest) (*CreatedReservation, error) {
	logger := s.logger.With().Uint64("user_id", req.UserID).Uint64("show_time_id", req.ShowTimeID).Logger()
	logger.Debug().Str("stage", stageValidating).Msg("create reservation")

	ticketIDs := dedupe(req.TicketIDs)
	if len(ticketIDs) == 0 {
		return nil, fmt.Errorf("%w: ticket_ids is required", ErrValidation)
	}
	if req.Email == "" || req.PhoneNumber == "" {
		return nil, fmt.Errorf("%w: email and phone_number are required", ErrValidation)
	}

	user, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: unknown user", ErrValidation)
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !user.Complete() {
		return nil, fmt.Errorf("%w: complete your profile before reserving", ErrValidation)
	}

	card, err := s.users.GetCard(ctx, req.UserID, req.PayCardID)
	if err != nil {
		if errors.Is(err, repository.ErrCardNotFound) {
			return nil, fmt.Errorf("%w: payment card not found", ErrValidation)
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	showTime, err := s.showTimes.GetByID(ctx, req.ShowTimeID)
	if err != nil {
		if errors.Is(err, repository.ErrShowTimeNotFound) {
			return nil, fmt.Errorf("%w: show time %d", ErrNotFound, req.ShowTimeID)
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	lines, snapshot, err := s.resolveProducts(ctx, req.Products)
	if err != nil {
		return nil, err
	}

	tickets, err := s.resolveTickets(ctx, ticketIDs, showTime.ID)
	if err != nil {
		return nil, err
	}

	// Optimistic pre-flight: never attempt a charge for a request that
	// is already known to conflict.  The claim inside the transaction
	// re-verifies this.
	taken, err := s.tickets.Unavailable(ctx, ticketIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if len(taken) > 0 {
		return nil, fmt.Errorf("%w: seats %s", ErrConflict, seatLabels(tickets, taken))
	}

	originalPrice := pricing.OriginalPrice(tickets, lines)
	totalPrice := originalPrice
	var promo *model.Promotion
	if req.PromotionID != nil {
		promo, err = s.promotions.CheckValid(ctx, *req.PromotionID, req.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrPromotionNotFound) {
				return nil, fmt.Errorf("%w: invalid promotion", ErrValidation)
			}
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		totalPrice = pricing.ApplyDiscount(originalPrice, promo.Discount)
	}
	logger.Debug().Str("stage", stagePriced).
		Int64("original_price", originalPrice).Int64("total_price", totalPrice).Send()

	chargeCtx, cancelCharge := context.WithTimeout(ctx, s.cfg.ChargeTimeout)
	defer cancelCharge()
	paymentRef, err := s.gateway.Charge(chargeCtx, payment.ChargeRequest{
		CardToken:      card.GatewayToken,
		AmountCents:    totalPrice,
		Currency:       s.cfg.Currency,
		IdempotencyKey: payment.IdempotencyKey(req.UserID, ticketIDs, s.now()),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayment, err)
	}
	logger.Debug().Str("stage", stageCharged).Str("payment_ref", paymentRef).Send()

	res := &model.Reservation{
		UserID:             req.UserID,
		ShowTimeID:         showTime.ID,
		Email:              req.Email,
		PhoneNumber:        req.PhoneNumber,
		Products:           snapshot,
		OriginalPriceCents: originalPrice,
		TotalPriceCents:    totalPrice,
		PaymentRef:         paymentRef,
		IsActive:           true,
	}
	if promo != nil {
		res.PromotionID = &promo.ID
	}

	persistCtx, cancelPersist := context.WithTimeout(ctx, s.cfg.PersistTimeout)
	defer cancelPersist()
	conflicts, err := s.reservations.CreateWithTickets(persistCtx, res, ticketIDs)
	if err != nil {
		s.compensate(logger, paymentRef, totalPrice, "reservation persistence failed")
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if len(conflicts) > 0 {
		s.compensate(logger, paymentRef, totalPrice, "ticket conflict after charge")
		return nil, fmt.Errorf("%w: seats %s", ErrConflict, seatLabels(tickets, conflicts))
	}
	logger.Debug().Str("stage", stagePersisting).Uint64("reservation_id", res.ID).Send()

	// Usage recording is best effort: the reservation is committed and
	// paid, so a failure here is reconciled out of band, not rolled
	// back.
	if promo != nil {
		if err := s.promotions.MarkUsed(ctx, promo.ID, req.UserID, res.ID); err != nil {
			logger.Error().Err(err).Uint64("promotion_id", promo.ID).
				Str("stage", stagePromotion).Msg("failed to record promotion usage")
		}
	}

	s.fanout(*res, *user, tickets)
	logger.Info().Str("stage", stageCommitted).Uint64("reservation_id", res.ID).Msg("reservation committed")

	return &CreatedReservation{
		Reservation: *res,
		User:        *user,
		TicketIDs:   ticketIDs,
		Seats:       allSeatLabels(tickets),
	}, nil
}

func (s *ReservationService) resolveProducts(ctx context.Context, requested []ProductLine) ([]pricing.Line, []model.ReservationProduct, error) {
	ids := make([]uint64, 0, len(requested))
	for _, l := range requested {
		if l.Quantity == 0 {
			return nil, nil, fmt.Errorf("%w: product quantity must be positive", ErrValidation)
		}
		ids = append(ids, l.ProductID)
	}
	catalog, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	lines := make([]pricing.Line, 0, len(requested))
	snapshot := make([]model.ReservationProduct, 0, len(requested))
	for _, l := range requested {
		p, ok := catalog[l.ProductID]
		if !ok {
			return nil, nil, fmt.Errorf("%w: product %d", ErrNotFound, l.ProductID)
		}
		lines = append(lines, pricing.Line{UnitPriceCents: p.PriceCents, Quantity: l.Quantity})
		snapshot = append(snapshot, model.ReservationProduct{
			ProductID:      p.ID,
			Quantity:       l.Quantity,
			UnitPriceCents: p.PriceCents,
		})
	}
	return lines, snapshot, nil
}

func (s *ReservationService) resolveTickets(ctx context.Context, ids []uint64, showTimeID uint64) ([]model.Ticket, error) {
	tickets, err := s.tickets.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if len(tickets) != len(ids) {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, repository.ErrTicketNotFound)
	}
	for _, t := range tickets {
		if t.ShowTimeID != showTimeID {
			return nil, fmt.Errorf("%w: ticket %d does not belong to show time %d", ErrValidation, t.ID, showTimeID)
		}
	}
	return tickets, nil
}

// compensate durably records the refund obligation for a charge whose
// reservation failed.  It runs on a fresh context so a cancelled
// request cannot lose the obligation; if even the enqueue fails the
// payment reference is logged for manual reconciliation.
func (s *ReservationService) compensate(logger zerolog.Logger, paymentRef string, amountCents int64, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
	defer cancel()
	if err := s.refunds.Enqueue(ctx, paymentRef, amountCents, s.cfg.Currency, reason); err != nil {
		logger.Error().Err(err).Str("payment_ref", paymentRef).Int64("amount", amountCents).
			Msg("failed to enqueue refund; reconcile manually")
		return
	}
	logger.Warn().Str("payment_ref", paymentRef).Str("reason", reason).Msg("refund enqueued")
}

// fanout triggers the post-commit side effects on a detached goroutine
// so the response never waits for them and their failures never affect
// the already-returned result.
func (s *ReservationService) fanout(res model.Reservation, user model.User, tickets []model.Ticket) {
	broadcaster, notifier := s.broadcaster, s.notifier
	logger := s.logger.With().Uint64("reservation_id", res.ID).Logger()
	timeout := s.cfg.FanoutTimeout

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		payload := make(map[string]model.Reservation, len(tickets))
		seats := make([]string, 0, len(tickets))
		for _, t := range tickets {
			payload[strconv.FormatUint(t.ID, 10)] = res
			seats = append(seats, t.SeatLabel())
		}
		channel := "reservation:" + strconv.FormatUint(res.ShowTimeID, 10)
		if err := broadcaster.Publish(ctx, channel, "reserved", payload); err != nil {
			logger.Error().Err(err).Str("channel", channel).Msg("broadcast failed")
		}

		ev := queue.ReservationCreatedEvent{
			ReservationID:   res.ID,
			UserID:          user.ID,
			ShowTimeID:      res.ShowTimeID,
			Email:           res.Email,
			SeatLabels:      seats,
			TotalPriceCents: res.TotalPriceCents,
			CreatedAt:       res.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := notifier.PushReservationCreated(ctx, ev); err != nil {
			logger.Error().Err(err).Msg("push notification failed")
		}
	}()
}

func dedupe(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func seatLabels(tickets []model.Ticket, ids []uint64) string {
	wanted := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	label := ""
	for _, t := range tickets {
		if _, ok := wanted[t.ID]; ok {
			if label != "" {
				label += ", "
			}
			label += t.SeatLabel()
		}
	}
	return label
}

func allSeatLabels(tickets []model.Ticket) []string {
	out := make([]string, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, t.SeatLabel())
	}
	return out
}
