package store

import (
	"context"
	"errors"
	"time"

	"github.com/lipaqr/lipaqr-gobackend/internal/models"
)

// ErrNotFound is returned when a lookup matches no document.
var ErrNotFound = errors.New("not found")

// FinalizeOutcome reports what a conditional finalize did to the transaction.
type FinalizeOutcome int

const (
	// FinalizeApplied means the transaction moved from pending to the terminal status.
	FinalizeApplied FinalizeOutcome = iota
	// FinalizeAlreadyApplied means the transaction already carried the same
	// terminal status (duplicate callback delivery).
	FinalizeAlreadyApplied
	// FinalizeConflict means the transaction already carried a different
	// terminal status. The stored status is left untouched.
	FinalizeConflict
)

// TransactionUpdate carries the fields a gateway callback settles on a
// transaction. Zero-valued Amount/PhoneNumber/ReceiptNumber mean "keep what
// was captured at initiation".
type TransactionUpdate struct {
	Status        string
	ReceiptNumber string
	Amount        float64
	PhoneNumber   string
	ResultCode    int
	ResultDesc    string
	RawCallback   map[string]interface{}
}

// ListFilter narrows a merchant transaction listing.
type ListFilter struct {
	Status string
	Start  *time.Time
	End    *time.Time
}

// TransactionStore is the persistence boundary of the payment engine. The
// service layer depends on this interface, not on a concrete implementation.
type TransactionStore interface {
	Create(ctx context.Context, txn *models.Transaction) (string, error)
	GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.Transaction, error)
	// Finalize applies a terminal status with a single conditional update: the
	// transition only happens if the stored status is still pending. Returns
	// ErrNotFound when no transaction carries the checkout request id.
	Finalize(ctx context.Context, checkoutRequestID string, upd TransactionUpdate) (FinalizeOutcome, error)
	ListByMerchant(ctx context.Context, merchantID string, filter ListFilter) ([]models.Transaction, error)
	InsertOrphan(ctx context.Context, orphan *models.OrphanCallback) error
}

// MerchantStore persists merchant accounts.
type MerchantStore interface {
	Create(ctx context.Context, merchant *models.Merchant) (string, error)
	GetByID(ctx context.Context, id string) (*models.Merchant, error)
	GetByEmail(ctx context.Context, email string) (*models.Merchant, error)
}
