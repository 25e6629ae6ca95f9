package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Merchant account types
const (
	AccountTypeTill    = "till"
	AccountTypePaybill = "paybill"
)

// Merchant model
type Merchant struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Email       string             `bson:"email" json:"email"`
	PhoneNumber string             `bson:"phone_number" json:"phone_number"`
	Shortcode   string             `bson:"shortcode,omitempty" json:"shortcode,omitempty"`
	AccountType string             `bson:"account_type" json:"account_type"`
	HPassword   string             `bson:"password" json:"-"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}
