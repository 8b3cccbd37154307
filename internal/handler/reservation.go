package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tdnguyen/movie-ticket-booking/internal/middleware"
	"github.com/tdnguyen/movie-ticket-booking/internal/repository"
	"github.com/tdnguyen/movie-ticket-booking/internal/service"
)

// ReservationHandler exposes reservation creation and read endpoints.
// All methods assume JWT authentication has already been performed by
// middleware and may return 401 Unauthorized if the user ID cannot be
// extracted from the context.
type ReservationHandler struct {
	Svc             *service.ReservationService
	ReservationRepo *repository.ReservationRepo
}

// NewReservationHandler constructs a ReservationHandler.  All
// dependencies must be non-nil.
func NewReservationHandler(svc *service.ReservationService, reservationRepo *repository.ReservationRepo) *ReservationHandler {
	if svc == nil || reservationRepo == nil {
		panic("nil dependency passed to NewReservationHandler")
	}
	return &ReservationHandler{Svc: svc, ReservationRepo: reservationRepo}
}

// Create handles POST /v1/reservations.  It binds the request body,
// runs the reservation workflow and maps each failure class to its
// status code: validation 400, missing entity 404, seat conflict 409,
// payment failure 402 and anything else 422.  The workflow guarantees
// that any error response left no reservation and no retained charge.
func (h *ReservationHandler) Create(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req service.CreateReservationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	req.UserID = userID

	created, err := h.Svc.CreateReservation(c.Request().Context(), req)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// Get handles GET /v1/reservations/:id.  It returns the details of a
// single reservation for the authenticated user; reservations owned
// by someone else surface as 404.
func (h *ReservationHandler) Get(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	resID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || resID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	detail, err := h.ReservationRepo.GetByIDForUser(c.Request().Context(), resID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch reservation"})
	}
	return c.JSON(http.StatusOK, echo.Map{"item": detail})
}

// ListMine handles GET /v1/my-reservations.  It returns all
// reservations created by the current user, newest first.
func (h *ReservationHandler) ListMine(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	items, err := h.ReservationRepo.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load reservations"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

func writeServiceError(c echo.Context, err error) error {
	msg := err.Error()
	switch {
	case errors.Is(err, service.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": msg})
	case errors.Is(err, service.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": msg})
	case errors.Is(err, service.ErrPayment):
		return c.JSON(http.StatusPaymentRequired, echo.Map{"error": msg})
	default:
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": msg})
	}
}
