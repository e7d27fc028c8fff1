package models

import (
	"time"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusConfirmed OrderStatus = "confirmed"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

type Role string

const (
	RoleRoot     Role = "root"
	RoleSeller   Role = "seller"
	RoleCustomer Role = "customer"
)

type View string

const (
	ViewLanding  View = "landing"
	ViewCustomer View = "customer"
	ViewAdmin    View = "admin"
)

// Store is a merchant tenant. StoreID is the URL slug and document key; it is
// immutable after creation.
type Store struct {
	StoreID      string    `bson:"_id" json:"storeId"`
	Name         string    `bson:"name" json:"name"`
	OwnerEmail   string    `bson:"ownerEmail,omitempty" json:"ownerEmail,omitempty"`
	OwnerPhone   string    `bson:"ownerPhone,omitempty" json:"ownerPhone,omitempty"`
	VPA          string    `bson:"vpa" json:"vpa"`
	MerchantName string    `bson:"merchantName" json:"merchantName"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
	IsActive     bool      `bson:"isActive" json:"isActive"`
}

// Product belongs to exactly one store. ID is the storage-assigned document
// id and is the only valid target for updates and deletes. SortKey is a
// legacy creation-millis value used for newest-first ordering only.
type Product struct {
	ID          string    `bson:"_id,omitempty" json:"id"`
	StoreID     string    `bson:"storeId" json:"storeId"`
	Name        string    `bson:"name" json:"name"`
	Description string    `bson:"description" json:"description"`
	Price       float64   `bson:"price" json:"price"`
	Unit        string    `bson:"unit" json:"unit"`
	ImageURL    string    `bson:"imageUrl" json:"imageUrl"`
	SortKey     int64     `bson:"sortKey" json:"sortKey"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
}

type CustomerDetails struct {
	Name    string `bson:"name" json:"name"`
	Address string `bson:"address" json:"address"`
	Contact string `bson:"contact" json:"contact"`
}

// ProductOrder is a line item. Product is a snapshot taken at order time, so
// later catalog changes never alter a placed order.
type ProductOrder struct {
	Product  Product `bson:"product" json:"product"`
	Quantity int     `bson:"quantity" json:"quantity"`
}

// Order is created once by a customer and afterwards mutated only through
// status transitions. ID is the storage-assigned document id; OrderID is the
// client-assigned human-readable reference, unique per store.
type Order struct {
	ID             string          `bson:"_id,omitempty" json:"firestoreId,omitempty"`
	OrderID        string          `bson:"orderId" json:"orderId"`
	StoreID        string          `bson:"storeId" json:"storeId"`
	UserID         string          `bson:"userId,omitempty" json:"userId,omitempty"`
	Customer       CustomerDetails `bson:"customer" json:"customer"`
	Products       []ProductOrder  `bson:"products" json:"products"`
	TotalAmount    float64         `bson:"totalAmount" json:"totalAmount"`
	Status         OrderStatus     `bson:"status" json:"status"`
	TrackingNumber string          `bson:"trackingNumber,omitempty" json:"trackingNumber,omitempty"`
	PaymentID      string          `bson:"paymentId,omitempty" json:"paymentId,omitempty"`
	CreatedAt      time.Time       `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
}

// Admin is a database-backed admin entry, consulted after the hardcoded root
// allow-list.
type Admin struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Email     string    `bson:"email,omitempty" json:"email,omitempty"`
	Phone     string    `bson:"phone,omitempty" json:"phone,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// User is a transient session identity, rebuilt on every sign-in from
// identity-provider claims plus ownership lookups. Never persisted.
type User struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Email           string   `json:"email,omitempty"`
	PhoneNumber     string   `json:"phoneNumber,omitempty"`
	Role            Role     `json:"role"`
	ManagedStoreIDs []string `json:"managedStoreIds,omitempty"`
	Avatar          string   `json:"avatar,omitempty"`
}

// ManagesStore reports whether the user's managed set contains storeID.
func (u *User) ManagesStore(storeID string) bool {
	for _, id := range u.ManagedStoreIDs {
		if id == storeID {
			return true
		}
	}
	return false
}
