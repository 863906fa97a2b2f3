// This file implements quota pack checkout and the Stripe webhook.
//
// Routes:
//   - POST /api/purchases/checkout -> CreateCheckout (session auth)
//   - POST /webhooks/stripe        -> HandleStripeWebhook (public)
//
// The webhook is authenticated by the Stripe signature, not a session.
package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DukeRupert/inkwell/internal/auth"
	"github.com/DukeRupert/inkwell/internal/billing"
	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/service"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
)

// WebhookHandler handles quota pack purchases through Stripe.
type WebhookHandler struct {
	billing   billing.Service
	purchases service.PurchaseService
	baseURL   string
	logger    *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured.
func NewWebhookHandler(billingService billing.Service, purchases service.PurchaseService, baseURL string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing:   billingService,
		purchases: purchases,
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    logger,
	}
}

// RegisterRoutes registers purchase routes on the provided mux.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /api/purchases/checkout", requireUser(http.HandlerFunc(h.CreateCheckout)))
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

type checkoutRequest struct {
	PriceID string `json:"price_id"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

// CreateCheckout starts a Stripe Checkout session for a quota pack.
func (h *WebhookHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		ErrorResponse(w, r, h.logger, domain.Unavailable(nil, "", "Purchases are not available"))
		return
	}
	user := auth.GetUserFromRequest(r)

	var req checkoutRequest
	if err := decodeJSON(r, &req, false); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if _, ok := h.billing.PackForPriceID(req.PriceID); !ok {
		ErrorResponse(w, r, h.logger, domain.NewValidationError("", "price_id", "Unknown quota pack"))
		return
	}

	url, err := h.billing.CreateCheckoutSession(user.ID, user.Email, req.PriceID,
		h.baseURL+"/purchases/success", h.baseURL+"/purchases/cancel")
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Unavailable(err, "", "Payment provider is unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{URL: url})
}

// HandleStripeWebhook processes incoming Stripe webhook events.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	// Read body (limit to 64KB)
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	event, err := h.billing.VerifyWebhookSignature(body, signature)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)

	switch event.Type {
	case "checkout.session.completed":
		// A storage failure returns 500 so Stripe redelivers; the insert is
		// idempotent on the session ID.
		if err := h.handleCheckoutCompleted(r, event); err != nil {
			h.logger.Error("failed to record purchase", "error", err, "event_id", event.ID)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleCheckoutCompleted(r *http.Request, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.logger.Error("failed to parse checkout session", "error", err)
		return nil
	}

	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		h.logger.Info("checkout session not paid yet", "session_id", session.ID, "status", session.PaymentStatus)
		return nil
	}

	userID, err := uuid.Parse(session.Metadata[billing.MetadataUserID])
	if err != nil {
		h.logger.Warn("checkout session missing user id", "session_id", session.ID)
		return nil
	}
	pack, ok := h.billing.PackForPriceID(session.Metadata[billing.MetadataPriceID])
	if !ok {
		h.logger.Warn("checkout session for unknown price", "session_id", session.ID,
			"price_id", session.Metadata[billing.MetadataPriceID])
		return nil
	}

	created, err := h.purchases.Record(r.Context(), service.RecordPurchaseParams{
		UserID:       userID,
		Type:         domain.PurchaseTypeQuotaPack,
		AmountCents:  session.AmountTotal,
		Currency:     string(session.Currency),
		PurchaseDate: time.Unix(session.Created, 0).UTC(),
		Bonus:        pack.Bonus,
		ExternalID:   session.ID,
	})
	if err != nil {
		if domain.ErrorCode(err) == domain.EINTERNAL {
			return err
		}
		h.logger.Warn("purchase rejected", "session_id", session.ID, "user_id", userID, "error", err)
		return nil
	}

	h.logger.Info("quota pack purchased",
		"user_id", userID,
		"pack", pack.Name,
		"session_id", session.ID,
		"replay", !created,
	)
	return nil
}
