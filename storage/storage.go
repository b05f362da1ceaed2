// Package storage defines the persistence contracts for the backend and
// provides two interchangeable implementations: a MongoDB store and a
// flat-file JSON store. The backend is chosen once at startup and injected;
// nothing above this package branches on the storage engine.
package storage

import (
	"context"
	"errors"
	"time"

	"sparknexora-backend/models"
)

var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("storage: record not found")

	// ErrDuplicate is returned when an insert violates a uniqueness
	// constraint. Callers racing to create the same record rely on this to
	// detect that the other writer won.
	ErrDuplicate = errors.New("storage: duplicate record")
)

// PaymentStore persists checkout attempts. Uniqueness is enforced on the
// session id and, among non-placeholder values, on the payment-intent id.
type PaymentStore interface {
	Insert(ctx context.Context, p *models.Payment) error
	FindBySessionID(ctx context.Context, sessionID string) (*models.Payment, error)
	FindByIntentID(ctx context.Context, intentID string) (*models.Payment, error)

	// MarkSucceeded sets the terminal succeeded status, paid-at timestamp,
	// charge reference and webhook-processed flag in a single update. It is
	// a no-op when the payment is already succeeded: succeeded is monotonic.
	MarkSucceeded(ctx context.Context, id string, paidAt time.Time, chargeID string) error

	// MarkFailed and MarkCanceled never overwrite a succeeded payment.
	MarkFailed(ctx context.Context, id string) error
	MarkCanceled(ctx context.Context, id string) error
}

// OrderStore persists fulfilled purchases. Insert rejects a second order for
// the same payment id with ErrDuplicate; that constraint, not the caller's
// pre-check, is what guarantees at-most-one order per payment.
type OrderStore interface {
	Insert(ctx context.Context, o *models.Order) error
	FindByID(ctx context.Context, id string) (*models.Order, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*models.Order, error)
	List(ctx context.Context, limit int64) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error
	AddNote(ctx context.Context, id string, note models.AdminNote) error
	CountCreatedBetween(ctx context.Context, start, end time.Time) (int64, error)

	// NextDailySequence atomically increments and returns the 1-based order
	// sequence for the given day key (YYYYMMDD).
	NextDailySequence(ctx context.Context, day string) (int64, error)
}

// ContactFilter narrows and pages a contact listing.
type ContactFilter struct {
	Status   string
	Priority string
	Service  string
	Search   string
	Page     int64
	Limit    int64
	SortBy   string
	SortDesc bool
}

// ContactPatch carries the mutable triage fields; nil means leave unchanged.
type ContactPatch struct {
	Status   *string
	Priority *string
}

// ContactStore persists website inquiries.
type ContactStore interface {
	Insert(ctx context.Context, c *models.Contact) error
	FindByID(ctx context.Context, id string) (*models.Contact, error)
	List(ctx context.Context, f ContactFilter) ([]models.Contact, int64, error)
	Update(ctx context.Context, id string, patch ContactPatch) (*models.Contact, error)
	AddNote(ctx context.Context, id string, note models.AdminNote) (*models.Contact, error)
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[string]int64, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int64, error)
}

// UserStore persists admin accounts.
type UserStore interface {
	Insert(ctx context.Context, u *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)

	// RecordFailedLogin increments the attempt counter and applies the
	// lockout window once the threshold is crossed.
	RecordFailedLogin(ctx context.Context, id string, lockUntil *time.Time) error
	ResetLoginAttempts(ctx context.Context, id string, lastLogin time.Time) error
}

// Store aggregates the per-entity stores of one backend.
type Store interface {
	Payments() PaymentStore
	Orders() OrderStore
	Contacts() ContactStore
	Users() UserStore
	Close(ctx context.Context) error
}
