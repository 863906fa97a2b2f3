// Package billing provides Stripe integration for one-off quota pack purchases.
package billing

import (
	"fmt"

	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Checkout session metadata keys. The webhook reads these back to credit the
// right user with the right pack.
const (
	MetadataUserID  = "user_id"
	MetadataPriceID = "price_id"
)

// Service defines the interface for billing operations.
type Service interface {
	// CreateCheckoutSession creates a one-off payment session for a quota pack.
	// Returns the checkout URL to redirect the user to.
	CreateCheckoutSession(userID uuid.UUID, email, priceID, successURL, cancelURL string) (string, error)

	// VerifyWebhookSignature verifies the Stripe webhook signature and returns the event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)

	// PackForPriceID returns the quota pack sold under a Stripe price ID.
	PackForPriceID(priceID string) (Pack, bool)
}

// Pack is a purchasable bundle of extra monthly allowance.
type Pack struct {
	Name  string
	Bonus domain.Bonus
}

// PriceConfig holds the Stripe price IDs for each pack.
type PriceConfig struct {
	StoryPackPriceID      string
	AssessmentPackPriceID string
	BundlePackPriceID     string
}

// Standard packs.
var (
	StoryPack      = Pack{Name: "story_pack", Bonus: domain.Bonus{StoriesAdded: 5}}
	AssessmentPack = Pack{Name: "assessment_pack", Bonus: domain.Bonus{AssessmentsAdded: 5, AttemptsAdded: 15}}
	BundlePack     = Pack{Name: "bundle_pack", Bonus: domain.Bonus{
		StoriesAdded:     5,
		AssessmentsAdded: 5,
		AttemptsAdded:    15,
		EntriesAdded:     1,
	}}
)

// stripeService is the concrete implementation of Service.
type stripeService struct {
	webhookSecret string
	priceToPack   map[string]Pack
}

// NewStripeService creates a new Stripe billing service.
//
// The secretKey is used to authenticate Stripe API calls.
// The webhookSecret is used to verify incoming webhook signatures.
func NewStripeService(secretKey, webhookSecret string, prices PriceConfig) Service {
	stripe.Key = secretKey

	priceToPack := make(map[string]Pack)
	if prices.StoryPackPriceID != "" {
		priceToPack[prices.StoryPackPriceID] = StoryPack
	}
	if prices.AssessmentPackPriceID != "" {
		priceToPack[prices.AssessmentPackPriceID] = AssessmentPack
	}
	if prices.BundlePackPriceID != "" {
		priceToPack[prices.BundlePackPriceID] = BundlePack
	}

	return &stripeService{
		webhookSecret: webhookSecret,
		priceToPack:   priceToPack,
	}
}

func (s *stripeService) CreateCheckoutSession(userID uuid.UUID, email, priceID, successURL, cancelURL string) (string, error) {
	if _, ok := s.priceToPack[priceID]; !ok {
		return "", fmt.Errorf("unknown quota pack price %q", priceID)
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(userID.String()),
	}
	if email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	params.AddMetadata(MetadataUserID, userID.String())
	params.AddMetadata(MetadataPriceID, priceID)

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}

func (s *stripeService) PackForPriceID(priceID string) (Pack, bool) {
	pack, ok := s.priceToPack[priceID]
	return pack, ok
}
