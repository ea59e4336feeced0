package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"eventpass/internal/issuer"
	"eventpass/internal/logger"
	"eventpass/internal/models"
)

type OrderDBLayer interface {
	GetOrderByID(ctx context.Context, orderID string) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error)
	MarkOrderCompleted(ctx context.Context, orderID string, completedAt time.Time) (bool, error)
	MarkOrderFailed(ctx context.Context, orderID string) (bool, error)
}

type TicketIssuer interface {
	Issue(ctx context.Context, req issuer.IssueRequest) ([]models.Ticket, error)
}

// EventCache deduplicates provider event IDs. An ID is recorded only after
// the event was fully processed, so a hit always means tickets exist and a
// failed delivery stays retryable. Advisory only: the issuance idempotency
// check against persisted rows stays authoritative.
type EventCache interface {
	Processed(ctx context.Context, providerEventID string) (bool, error)
	MarkProcessed(ctx context.Context, providerEventID string) (bool, error)
}

// EventKind is the closed set of provider notifications this service acts
// on. Everything else maps to KindUnhandled and is acknowledged untouched.
type EventKind int

const (
	KindUnhandled EventKind = iota
	KindCheckoutCompleted
	KindCheckoutExpired
)

func kindOf(eventType string) EventKind {
	switch eventType {
	case "checkout.session.completed":
		return KindCheckoutCompleted
	case "checkout.session.expired":
		return KindCheckoutExpired
	default:
		return KindUnhandled
	}
}

// WebhookError carries an HTTP status and a public message separate from
// the internal detail that goes to the logs.
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int
	PublicError   string
	InternalError string
	OriginalErr   error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

// Service verifies and processes payment-provider notifications and drives
// ticket issuance exactly once per order.
type Service struct {
	DB            OrderDBLayer
	Issuer        TicketIssuer
	Cache         EventCache
	Logger        *logger.Logger
	WebhookSecret string
}

func NewService(db OrderDBLayer, ticketIssuer TicketIssuer, cache EventCache, log *logger.Logger, webhookSecret string) *Service {
	return &Service{DB: db, Issuer: ticketIssuer, Cache: cache, Logger: log, WebhookSecret: webhookSecret}
}

// HandleWebhook verifies the provider signature, then dispatches on the
// event kind. A nil return means the provider gets a 200, including the
// "ignored, not an error" cases.
func (s *Service) HandleWebhook(r *http.Request) error {
	if s.WebhookSecret == "" {
		return &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "stripe webhook secret is not configured",
		}
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("read webhook payload: %v", err),
			OriginalErr:   err,
		}
	}

	opts := webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true}
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), s.WebhookSecret, opts)
	if err != nil {
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Webhook signature verification failed",
			InternalError: fmt.Sprintf("verify webhook signature: %v", err),
			OriginalErr:   err,
		}
	}

	s.Logger.LogWebhook(string(event.Type), "received event "+event.ID)

	switch kindOf(string(event.Type)) {
	case KindCheckoutCompleted:
		return s.handleCheckoutCompleted(r.Context(), event)
	case KindCheckoutExpired:
		return s.handleCheckoutExpired(r.Context(), event)
	case KindUnhandled:
		s.Logger.LogWebhook(string(event.Type), "unhandled event type, acknowledged")
		return nil
	}
	return nil
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid event data",
			InternalError: fmt.Sprintf("unmarshal checkout session: %v", err),
			OriginalErr:   err,
		}
	}

	orderID := session.Metadata["order_id"]
	eventID := session.Metadata["event_id"]
	userID := session.Metadata["user_id"]
	if orderID == "" || eventID == "" || userID == "" {
		// The provider will not retry a 2xx, but a malformed-but-received
		// event must not bounce the whole intake either. Log loudly and
		// acknowledge.
		s.Logger.Error("WEBHOOK", fmt.Sprintf("event %s: checkout session %s missing correlation metadata, skipping", event.ID, session.ID))
		return nil
	}

	if s.Cache != nil {
		seen, err := s.Cache.Processed(ctx, event.ID)
		if err != nil {
			s.Logger.Warn("WEBHOOK", fmt.Sprintf("event dedup cache unavailable: %v", err))
		} else if seen {
			s.Logger.LogWebhook(string(event.Type), fmt.Sprintf("event %s already processed, skipping", event.ID))
			return nil
		}
	}

	order, err := s.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Failed to process payment",
			InternalError: fmt.Sprintf("load order %s: %v", orderID, err),
			OriginalErr:   err,
		}
	}

	if order.Status == models.OrderStatusCompleted {
		// Duplicate or out-of-order delivery. Status is settled; still run
		// issuance so a partial prior failure heals itself.
		s.Logger.LogWebhook(string(event.Type), fmt.Sprintf("order %s already completed, verifying tickets", orderID))
	} else {
		moved, err := s.DB.MarkOrderCompleted(ctx, orderID, time.Now())
		if err != nil {
			return &WebhookError{
				Category:      "processing",
				StatusCode:    http.StatusInternalServerError,
				PublicError:   "Failed to process payment",
				InternalError: fmt.Sprintf("mark order %s completed: %v", orderID, err),
				OriginalErr:   err,
			}
		}
		if !moved {
			s.Logger.Warn("WEBHOOK", fmt.Sprintf("order %s was not pending, status transition skipped", orderID))
		}
	}

	items, err := s.DB.GetOrderItems(ctx, orderID)
	if err != nil {
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Failed to process payment",
			InternalError: fmt.Sprintf("load order items for %s: %v", orderID, err),
			OriginalErr:   err,
		}
	}

	req := issuer.IssueRequest{
		OrderID:     orderID,
		EventID:     eventID,
		UserID:      userID,
		NotifyEmail: notifyEmail(&session),
	}
	for _, item := range items {
		req.Items = append(req.Items, issuer.Item{TicketTypeID: item.TicketTypeID, Quantity: item.Quantity})
	}

	// Issuance failure does not fail the intake: the order is completed, the
	// event stays unrecorded in the cache, and the next delivery of the same
	// event re-runs the idempotent issue.
	if _, err := s.Issuer.Issue(ctx, req); err != nil {
		s.Logger.Error("WEBHOOK", fmt.Sprintf("issue tickets for order %s: %v", orderID, err))
		return nil
	}

	// Record the event ID only now that tickets are known to exist; a crash
	// or failure above leaves the redelivery path open.
	if s.Cache != nil {
		if _, err := s.Cache.MarkProcessed(ctx, event.ID); err != nil {
			s.Logger.Warn("WEBHOOK", fmt.Sprintf("record processed event %s: %v", event.ID, err))
		}
	}

	s.Logger.LogWebhook(string(event.Type), fmt.Sprintf("order %s completed and tickets issued", orderID))
	return nil
}

func (s *Service) handleCheckoutExpired(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid event data",
			InternalError: fmt.Sprintf("unmarshal checkout session: %v", err),
			OriginalErr:   err,
		}
	}

	orderID := session.Metadata["order_id"]
	if orderID == "" {
		s.Logger.Error("WEBHOOK", fmt.Sprintf("event %s: expired checkout session %s has no order_id, skipping", event.ID, session.ID))
		return nil
	}

	moved, err := s.DB.MarkOrderFailed(ctx, orderID)
	if err != nil {
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Failed to process payment",
			InternalError: fmt.Sprintf("mark order %s failed: %v", orderID, err),
			OriginalErr:   err,
		}
	}
	if !moved {
		s.Logger.LogWebhook(string(event.Type), fmt.Sprintf("order %s already settled, expiry ignored", orderID))
		return nil
	}

	s.Logger.LogWebhook(string(event.Type), fmt.Sprintf("order %s marked failed", orderID))
	return nil
}

func notifyEmail(session *stripe.CheckoutSession) string {
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		return session.CustomerDetails.Email
	}
	return session.CustomerEmail
}
