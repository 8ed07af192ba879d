// Package billing provides Stripe Checkout integration for one-time order
// payments.
package billing

import (
	"fmt"

	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/tshopco/tshop/internal/domain"
)

// Service defines the interface for payment operations.
type Service interface {
	// CreateOrderCheckout creates a payment-mode Checkout session for an
	// order. Returns the session ID and the URL to redirect the customer
	// to.
	CreateOrderCheckout(order *domain.Order, successURL, cancelURL string) (string, string, error)

	// VerifyWebhookSignature verifies the Stripe webhook signature and
	// returns the event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)
}

// stripeService is the concrete implementation of Service.
type stripeService struct {
	webhookSecret string
}

// NewStripeService creates a new Stripe payment service.
//
// The secretKey is used to authenticate Stripe API calls.
// The webhookSecret is used to verify incoming webhook signatures.
func NewStripeService(secretKey, webhookSecret string) Service {
	stripe.Key = secretKey

	return &stripeService{
		webhookSecret: webhookSecret,
	}
}

func (s *stripeService) CreateOrderCheckout(order *domain.Order, successURL, cancelURL string) (string, string, error) {
	// One line item per ordered position plus a shipping line. Amounts are
	// already integer cents, which is what Stripe wants.
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(order.Items)+1)
	perItem := order.SubtotalCents / int64(totalQuantity(order.Items))
	for _, item := range order.Items {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(item.Quantity)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(order.Currency),
				UnitAmount: stripe.Int64(perItem),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Custom printed item"),
					Metadata: map[string]string{
						"variant_id": item.VariantID.String(),
						"design_id":  item.DesignID.String(),
					},
				},
			},
		})
	}
	if order.ShippingCents > 0 {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(order.Currency),
				UnitAmount: stripe.Int64(order.ShippingCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Shipping"),
				},
			},
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:  lineItems,
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		Metadata: map[string]string{
			"order_id": order.ID.String(),
		},
	}
	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", "", fmt.Errorf("stripe create checkout session: %w", err)
	}
	return sess.ID, sess.URL, nil
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}

func totalQuantity(items []domain.LineItem) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	if total == 0 {
		return 1
	}
	return total
}
