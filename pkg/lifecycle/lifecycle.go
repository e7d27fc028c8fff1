// Package lifecycle is the finite-state machine for order status. Every
// mutation of a placed order goes through Advance, which yields the partial
// field update to apply at the storage layer.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/quickorder/pkg/models"
)

// Actor is who is requesting a transition.
type Actor string

const (
	ActorMerchant Actor = "merchant"
	ActorCustomer Actor = "customer"
)

var (
	ErrInvalidTransition = errors.New("lifecycle: transition not permitted")
	ErrActorNotAllowed   = errors.New("lifecycle: actor not allowed for transition")
	ErrTrackingRequired  = errors.New("lifecycle: tracking number required to ship")
	ErrNotDurable        = errors.New("lifecycle: order has no storage id")
	ErrEmptyCart         = errors.New("lifecycle: cart is empty")
	ErrStorePaused       = errors.New("lifecycle: store is not accepting orders")
	ErrCustomerDetails   = errors.New("lifecycle: incomplete customer details")
)

type rule struct {
	to     models.OrderStatus
	actors []Actor
}

// transitions is the permitted-move table. cancelled -> pending is the
// merchant reopen escape hatch, the only backward edge.
var transitions = map[models.OrderStatus][]rule{
	models.StatusPending: {
		{to: models.StatusPaid, actors: []Actor{ActorMerchant, ActorCustomer}},
		{to: models.StatusCancelled, actors: []Actor{ActorMerchant}},
	},
	models.StatusPaid: {
		{to: models.StatusConfirmed, actors: []Actor{ActorMerchant}},
		{to: models.StatusCancelled, actors: []Actor{ActorMerchant}},
	},
	models.StatusConfirmed: {
		{to: models.StatusShipped, actors: []Actor{ActorMerchant}},
	},
	models.StatusShipped: {
		{to: models.StatusDelivered, actors: []Actor{ActorMerchant}},
	},
	models.StatusCancelled: {
		{to: models.StatusPending, actors: []Actor{ActorMerchant}},
	},
}

// Options carries transition side-effect inputs.
type Options struct {
	TrackingNumber string
	PaymentID      string
}

// Update is the partial field set to write against the order document.
// Applying the same Update twice leaves the document unchanged.
type Update struct {
	Status models.OrderStatus
	Fields map[string]interface{}
}

// Advance validates a status transition and returns the storage update.
// An order without a storage id cannot be advanced.
func Advance(order *models.Order, to models.OrderStatus, by Actor, opts Options) (Update, error) {
	if order.ID == "" {
		return Update{}, ErrNotDurable
	}

	rules, ok := transitions[order.Status]
	if !ok {
		return Update{}, fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, order.Status)
	}

	var matched *rule
	for i := range rules {
		if rules[i].to == to {
			matched = &rules[i]
			break
		}
	}
	if matched == nil {
		return Update{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, to)
	}

	allowed := false
	for _, a := range matched.actors {
		if a == by {
			allowed = true
			break
		}
	}
	if !allowed {
		return Update{}, fmt.Errorf("%w: %s may not apply %s -> %s", ErrActorNotAllowed, by, order.Status, to)
	}

	fields := map[string]interface{}{"status": to}

	switch to {
	case models.StatusPaid:
		paymentID := opts.PaymentID
		if paymentID == "" {
			paymentID = fmt.Sprintf("UPI-%d", time.Now().UnixMilli())
		}
		fields["paymentId"] = paymentID
	case models.StatusShipped:
		tracking := strings.TrimSpace(opts.TrackingNumber)
		if tracking == "" {
			return Update{}, ErrTrackingRequired
		}
		fields["trackingNumber"] = tracking
	}

	return Update{Status: to, Fields: fields}, nil
}

// NewOrder builds a pending order from a cart. The total is the sum of
// snapshot price x quantity, frozen from this point on.
func NewOrder(store *models.Store, userID string, customer models.CustomerDetails, items []models.ProductOrder, now time.Time) (*models.Order, error) {
	if !store.IsActive {
		return nil, ErrStorePaused
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	if strings.TrimSpace(customer.Name) == "" ||
		strings.TrimSpace(customer.Address) == "" ||
		strings.TrimSpace(customer.Contact) == "" {
		return nil, ErrCustomerDetails
	}

	var total float64
	for _, item := range items {
		total += item.Product.Price * float64(item.Quantity)
	}

	return &models.Order{
		OrderID:     fmt.Sprintf("ORD-%d", now.UnixMilli()),
		StoreID:     store.StoreID,
		UserID:      userID,
		Customer:    customer,
		Products:    items,
		TotalAmount: total,
		Status:      models.StatusPending,
		CreatedAt:   now,
	}, nil
}

// IsTerminal reports whether no forward transition remains. The cancelled
// reopen path is deliberately not counted.
func IsTerminal(s models.OrderStatus) bool {
	return s == models.StatusDelivered || s == models.StatusCancelled
}

// IsActive reports whether an order still needs merchant attention.
func IsActive(s models.OrderStatus) bool {
	return !IsTerminal(s)
}
