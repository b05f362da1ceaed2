package models

import "time"

// OrderStatus is the fulfillment status of a purchased package.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// BillingAddress holds the structured billing fields collected at checkout.
type BillingAddress struct {
	Street  string `bson:"street,omitempty" json:"street,omitempty"`
	City    string `bson:"city,omitempty" json:"city,omitempty"`
	State   string `bson:"state,omitempty" json:"state,omitempty"`
	ZipCode string `bson:"zipcode,omitempty" json:"zipCode,omitempty"`
	Country string `bson:"country,omitempty" json:"country,omitempty"`
}

// AdminNote is one entry in the admin notes log on an order or contact.
type AdminNote struct {
	Note    string    `bson:"note" json:"note"`
	AddedBy string    `bson:"added_by" json:"addedBy"`
	AddedAt time.Time `bson:"added_at" json:"addedAt"`
}

// Order represents one fulfilled purchase. Exactly one order may exist per
// payment; the stores enforce uniqueness on PaymentID.
type Order struct {
	ID              string          `bson:"_id,omitempty" json:"id,omitempty"`
	OrderNumber     string          `bson:"order_number" json:"orderNumber"`
	CustomerEmail   string          `bson:"customer_email" json:"customerEmail"`
	CustomerName    string          `bson:"customer_name" json:"customerName"`
	CustomerPhone   string          `bson:"customer_phone,omitempty" json:"customerPhone,omitempty"`
	PackageName     string          `bson:"package_name" json:"packageName"`
	PackagePrice    float64         `bson:"package_price" json:"packagePrice"`
	PackageCurrency string          `bson:"package_currency" json:"packageCurrency"`
	BillingAddress  *BillingAddress `bson:"billing_address,omitempty" json:"billingAddress,omitempty"`
	Status          OrderStatus     `bson:"status" json:"status"`
	PaymentID       string          `bson:"payment_id" json:"paymentId"`
	ServiceStartDate *time.Time     `bson:"service_start_date,omitempty" json:"serviceStartDate,omitempty"`
	ServiceEndDate  *time.Time      `bson:"service_end_date,omitempty" json:"serviceEndDate,omitempty"`
	Notes           string          `bson:"notes,omitempty" json:"notes,omitempty"`
	AdminNotes      []AdminNote     `bson:"admin_notes,omitempty" json:"adminNotes,omitempty"`
	IsSubscription  bool            `bson:"is_subscription" json:"isSubscription"`
	SubscriptionID  string          `bson:"subscription_id,omitempty" json:"subscriptionId,omitempty"`
	NextBillingDate *time.Time      `bson:"next_billing_date,omitempty" json:"nextBillingDate,omitempty"`
	CreatedAt       time.Time       `bson:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `bson:"updated_at" json:"updatedAt"`
}
