package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"eventpass/internal/logger"
	"eventpass/internal/models"
	"eventpass/internal/qr"
	"eventpass/internal/utils"
)

type TicketDBLayer interface {
	GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error)
	GetTicketByID(ctx context.Context, ticketID string) (*models.Ticket, error)
}

// Handler serves the ticket-holder surface: tickets for an order and the
// rendered QR image.
type Handler struct {
	DB     TicketDBLayer
	Logger *logger.Logger
}

// GetTicketsByOrder handles GET /orders/{orderID}/tickets.
func (h *Handler) GetTicketsByOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	tickets, err := h.DB.GetTicketsByOrder(r.Context(), orderID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("tickets for order %s: %v", orderID, err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("failed to load tickets", "internal error"))
		return
	}
	if len(tickets) == 0 {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("no tickets found", "order has no issued tickets"))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("tickets retrieved", tickets))
}

// GetTicketQR handles GET /tickets/{ticketID}/qr, returning the PNG that
// gets rendered on the attendee's device.
func (h *Handler) GetTicketQR(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	ticket, err := h.DB.GetTicketByID(r.Context(), ticketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("ticket not found", "unknown ticket id"))
			return
		}
		h.Logger.Error("API", fmt.Sprintf("load ticket %s: %v", ticketID, err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("failed to load ticket", "internal error"))
		return
	}

	png, err := qr.Image(ticket.QRData)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("render QR for ticket %s: %v", ticketID, err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("failed to render QR", "internal error"))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
