package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"eventpass/internal/auth"
	"eventpass/internal/checkin"
	"eventpass/internal/logger"
	"eventpass/internal/utils"
)

type CheckinService interface {
	Validate(ctx context.Context, qrData, eventID, scannerID string) (checkin.Result, error)
	CheckIn(ctx context.Context, ticketID, eventID, scannerID string) (checkin.Result, error)
}

type Handler struct {
	Checkin CheckinService
	Logger  *logger.Logger
}

// Validate handles POST /events/{eventID}/checkin/validate. Validation
// outcomes are expected business results, so the response is 200 with the
// status in the body; only scanner authorization failures and internal
// errors get non-200 codes.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	scannerID := auth.UserID(r.Context())
	if scannerID == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("authentication required", "missing user identity"))
		return
	}

	var body struct {
		QRData string `json:"qr_data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.QRData == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", "qr_data is required"))
		return
	}

	result, err := h.Checkin.Validate(r.Context(), body.QRData, eventID, scannerID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("validate scan for event %s: %v", eventID, err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("validation failed", "internal error"))
		return
	}

	status := http.StatusOK
	if result.Status == checkin.StatusUnauthorized {
		status = http.StatusForbidden
	}
	utils.WriteJSON(w, status, utils.SuccessResponse("scan validated", result))
}

// CheckIn handles POST /events/{eventID}/checkin. A lost optimistic-lock
// race surfaces as 409 so the UI can tell "already scanned" apart from an
// invalid ticket.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	scannerID := auth.UserID(r.Context())
	if scannerID == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("authentication required", "missing user identity"))
		return
	}

	var body struct {
		TicketID string `json:"ticket_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.TicketID == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", "ticket_id is required"))
		return
	}

	result, err := h.Checkin.CheckIn(r.Context(), body.TicketID, eventID, scannerID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("check in ticket %s: %v", body.TicketID, err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("check-in failed", "internal error"))
		return
	}

	var status int
	switch result.Status {
	case checkin.StatusSuccess:
		status = http.StatusOK
	case checkin.StatusAlreadyUsed:
		status = http.StatusConflict
	case checkin.StatusUnauthorized:
		status = http.StatusForbidden
	case checkin.StatusTicketNotFound:
		status = http.StatusNotFound
	default:
		status = http.StatusUnprocessableEntity
	}

	if result.Status == checkin.StatusSuccess {
		utils.WriteJSON(w, status, utils.SuccessResponse("ticket checked in", result))
		return
	}
	utils.WriteJSON(w, status, utils.APIResponse{
		Success: false,
		Message: "check-in rejected",
		Data:    result,
	})
}
