package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrphanCallback stores a gateway callback whose checkout request id matched
// no transaction. Written once for manual inspection, never read by the engine.
type OrphanCallback struct {
	ID                primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	CheckoutRequestID string                 `bson:"checkout_request_id" json:"checkout_request_id"`
	Payload           map[string]interface{} `bson:"payload" json:"payload"`
	ReceivedAt        time.Time              `bson:"received_at" json:"received_at"`
}
