package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Transaction statuses. A transaction starts at pending and makes at most one
// transition to success, failed or cancelled. StatusError is reserved for
// manual corrections and is never set by the reconciliation path.
const (
	StatusPending   = "pending"
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusError     = "error"
)

// GuestMerchantInfo identifies a payee that has no registered merchant account.
type GuestMerchantInfo struct {
	Name        string `bson:"name" json:"name"`
	PhoneNumber string `bson:"phone_number" json:"phone_number"`
}

// Transaction is one STK push attempt. CheckoutRequestID is the Daraja
// correlation id and the single canonical join key for callbacks.
type Transaction struct {
	ID                primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	MerchantID        string                 `bson:"merchant_id,omitempty" json:"merchant_id,omitempty"`
	GuestMerchantInfo *GuestMerchantInfo     `bson:"guest_merchant_info,omitempty" json:"guest_merchant_info,omitempty"`
	CheckoutRequestID string                 `bson:"checkout_request_id" json:"checkout_request_id"`
	MerchantRequestID string                 `bson:"merchant_request_id" json:"merchant_request_id"`
	Amount            float64                `bson:"amount" json:"amount"`
	PhoneNumber       string                 `bson:"phone_number" json:"phone_number"`
	AccountReference  string                 `bson:"account_reference" json:"account_reference"`
	Status            string                 `bson:"status" json:"status"`
	ReceiptNumber     string                 `bson:"receipt_number,omitempty" json:"receipt_number,omitempty"`
	ResultCode        int                    `bson:"result_code,omitempty" json:"result_code,omitempty"`
	ResultDesc        string                 `bson:"result_desc,omitempty" json:"result_desc,omitempty"`
	RawCallback       map[string]interface{} `bson:"raw_callback,omitempty" json:"-"`
	CreatedAt         time.Time              `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time              `bson:"updated_at" json:"updated_at"`
}
