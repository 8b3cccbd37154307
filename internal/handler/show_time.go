package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tdnguyen/movie-ticket-booking/internal/repository"
)

// ShowTimeHandler exposes public, unauthenticated browse endpoints
// for show times and their seat availability.
type ShowTimeHandler struct {
	ShowTimeRepo *repository.ShowTimeRepo
	TicketRepo   *repository.TicketRepo
}

// NewShowTimeHandler constructs a ShowTimeHandler.
func NewShowTimeHandler(showTimeRepo *repository.ShowTimeRepo, ticketRepo *repository.TicketRepo) *ShowTimeHandler {
	if showTimeRepo == nil || ticketRepo == nil {
		panic("nil repository passed to NewShowTimeHandler")
	}
	return &ShowTimeHandler{ShowTimeRepo: showTimeRepo, TicketRepo: ticketRepo}
}

// ListTickets handles GET /v1/show-times/:id/tickets.  It returns the
// show time together with every ticket and its availability so seat
// maps can be rendered.  Availability is a snapshot; a ticket shown
// free can still lose the race at reservation time.
func (h *ShowTimeHandler) ListTickets(c echo.Context) error {
	showTimeID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || showTimeID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show time id"})
	}
	ctx := c.Request().Context()

	showTime, err := h.ShowTimeRepo.GetByID(ctx, showTimeID)
	if err != nil {
		if errors.Is(err, repository.ErrShowTimeNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "show time not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	tickets, err := h.TicketRepo.ListByShowTime(ctx, showTimeID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load tickets"})
	}

	type seat struct {
		TicketID   uint64 `json:"ticket_id"`
		Seat       string `json:"seat"`
		PriceCents int64  `json:"price"`
		Available  bool   `json:"available"`
	}
	seats := make([]seat, 0, len(tickets))
	for i := range tickets {
		t := &tickets[i]
		seats = append(seats, seat{
			TicketID:   t.ID,
			Seat:       t.SeatLabel(),
			PriceCents: t.PriceCents,
			Available:  t.Available(),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"show_time": showTime,
		"tickets":   seats,
	})
}
