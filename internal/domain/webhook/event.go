package webhook

import (
	"time"
)

type EventType string

const (
	EventPaymentSucceeded      EventType = "payment.succeeded"
	EventSubscriptionActive    EventType = "subscription.active"
	EventSubscriptionRenewed   EventType = "subscription.renewed"
	EventSubscriptionCancelled EventType = "subscription.cancelled"
	EventSubscriptionExpired   EventType = "subscription.expired"
	EventSubscriptionFailed    EventType = "subscription.failed"
	EventSubscriptionOnHold    EventType = "subscription.on_hold"
	EventDisputeOpened         EventType = "dispute.opened"
	EventDisputeLost           EventType = "dispute.lost"
	EventDisputeWon            EventType = "dispute.won"
	EventRefundSucceeded       EventType = "refund.succeeded"
)

// Event is a payment provider notification. ID comes from the webhook-id header.
type Event struct {
	ID        string    `json:"-"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
}

type EventData struct {
	PaymentID       string            `json:"payment_id,omitempty"`
	SubscriptionID  string            `json:"subscription_id,omitempty"`
	ProductID       string            `json:"product_id,omitempty"`
	ProductCart     []CartItem        `json:"product_cart,omitempty"`
	Customer        Customer          `json:"customer"`
	NextBillingDate *time.Time        `json:"next_billing_date,omitempty"`
	Status          string            `json:"status,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type Customer struct {
	CustomerID string `json:"customer_id,omitempty"`
	Email      string `json:"email"`
	Name       string `json:"name,omitempty"`
}

// Product returns the purchased product, from the subscription or the first cart line.
func (d EventData) Product() string {
	if d.ProductID != "" {
		return d.ProductID
	}
	if len(d.ProductCart) > 0 {
		return d.ProductCart[0].ProductID
	}
	return ""
}
