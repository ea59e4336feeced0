package payment

import (
	"errors"
	"fmt"
	"net/http"

	"eventpass/internal/logger"
)

type Handler struct {
	Service *Service
	Logger  *logger.Logger
}

// StripeWebhook is the inbound payment-event endpoint. 200 on successful
// intake (including ignored kinds), 400 on signature failure, 500 on
// internal failure so the provider retries delivery.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.HandleWebhook(r); err != nil {
		h.Logger.Error("API", fmt.Sprintf("stripe webhook: %v", err))

		var webhookErr *WebhookError
		if errors.As(err, &webhookErr) {
			http.Error(w, webhookErr.PublicError, webhookErr.StatusCode)
			return
		}
		http.Error(w, "Webhook processing error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
