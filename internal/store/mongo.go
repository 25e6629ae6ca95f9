package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lipaqr/lipaqr-gobackend/internal/models"
)

// MongoTransactionStore implements TransactionStore on MongoDB.
type MongoTransactionStore struct {
	transactions *mongo.Collection
	orphans      *mongo.Collection
}

func NewMongoTransactionStore(db *mongo.Database) *MongoTransactionStore {
	return &MongoTransactionStore{
		transactions: db.Collection("transactions"),
		orphans:      db.Collection("orphan_callbacks"),
	}
}

func (s *MongoTransactionStore) Create(ctx context.Context, txn *models.Transaction) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	txn.ID = primitive.NewObjectID()
	now := time.Now()
	txn.CreatedAt = now
	txn.UpdatedAt = now

	result, err := s.transactions.InsertOne(ctx, txn)
	if err != nil {
		log.Printf("Failed to save transaction %s: %v", txn.CheckoutRequestID, err)
		return "", fmt.Errorf("failed to save transaction: %v", err)
	}
	return result.InsertedID.(primitive.ObjectID).Hex(), nil
}

func (s *MongoTransactionStore) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var txn models.Transaction
	err := s.transactions.FindOne(ctx, bson.M{"checkout_request_id": checkoutRequestID}).Decode(&txn)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch transaction: %v", err)
	}
	return &txn, nil
}

// Finalize moves a pending transaction to a terminal status. The status guard
// in the filter is the compare-and-swap that keeps two concurrent deliveries
// of the same callback from both applying: only one update can match while the
// document is still pending.
func (s *MongoTransactionStore) Finalize(ctx context.Context, checkoutRequestID string, upd TransactionUpdate) (FinalizeOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	set := bson.M{
		"status":      upd.Status,
		"result_code": upd.ResultCode,
		"result_desc": upd.ResultDesc,
		"updated_at":  time.Now(),
	}
	// The gateway's confirmed figures are authoritative over what was captured
	// at initiation.
	if upd.ReceiptNumber != "" {
		set["receipt_number"] = upd.ReceiptNumber
	}
	if upd.Amount > 0 {
		set["amount"] = upd.Amount
	}
	if upd.PhoneNumber != "" {
		set["phone_number"] = upd.PhoneNumber
	}
	if upd.RawCallback != nil {
		set["raw_callback"] = upd.RawCallback
	}

	res, err := s.transactions.UpdateOne(ctx,
		bson.M{"checkout_request_id": checkoutRequestID, "status": models.StatusPending},
		bson.M{"$set": set},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update transaction: %v", err)
	}
	if res.MatchedCount == 1 {
		return FinalizeApplied, nil
	}

	// Nothing was pending under that id: either the transaction does not
	// exist, or it was already settled.
	var txn models.Transaction
	err = s.transactions.FindOne(ctx, bson.M{"checkout_request_id": checkoutRequestID}).Decode(&txn)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to fetch transaction: %v", err)
	}

	// Every reconciliation attempt touches updated_at, even a redelivery.
	if _, err := s.transactions.UpdateOne(ctx,
		bson.M{"checkout_request_id": checkoutRequestID},
		bson.M{"$set": bson.M{"updated_at": time.Now()}},
	); err != nil {
		log.Printf("Failed to touch transaction %s: %v", checkoutRequestID, err)
	}

	if txn.Status == upd.Status {
		return FinalizeAlreadyApplied, nil
	}
	return FinalizeConflict, nil
}

func (s *MongoTransactionStore) ListByMerchant(ctx context.Context, merchantID string, filter ListFilter) ([]models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := bson.M{"merchant_id": merchantID}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Start != nil && filter.End != nil {
		query["created_at"] = bson.M{
			"$gte": *filter.Start,
			"$lte": *filter.End,
		}
	}

	cur, err := s.transactions.Find(ctx, query, options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %v", err)
	}
	defer cur.Close(ctx)

	var txns []models.Transaction
	if err := cur.All(ctx, &txns); err != nil {
		return nil, fmt.Errorf("failed to decode transactions: %v", err)
	}
	return txns, nil
}

func (s *MongoTransactionStore) InsertOrphan(ctx context.Context, orphan *models.OrphanCallback) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	orphan.ID = primitive.NewObjectID()
	if orphan.ReceivedAt.IsZero() {
		orphan.ReceivedAt = time.Now()
	}
	_, err := s.orphans.InsertOne(ctx, orphan)
	if err != nil {
		return fmt.Errorf("failed to save orphan callback: %v", err)
	}
	return nil
}

// MongoMerchantStore implements MerchantStore on MongoDB.
type MongoMerchantStore struct {
	merchants *mongo.Collection
}

func NewMongoMerchantStore(db *mongo.Database) *MongoMerchantStore {
	return &MongoMerchantStore{merchants: db.Collection("merchants")}
}

func (s *MongoMerchantStore) Create(ctx context.Context, merchant *models.Merchant) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	merchant.ID = primitive.NewObjectID()
	merchant.CreatedAt = time.Now()

	result, err := s.merchants.InsertOne(ctx, merchant)
	if err != nil {
		return "", fmt.Errorf("failed to save merchant: %v", err)
	}
	return result.InsertedID.(primitive.ObjectID).Hex(), nil
}

func (s *MongoMerchantStore) GetByID(ctx context.Context, id string) (*models.Merchant, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var merchant models.Merchant
	if err := s.merchants.FindOne(ctx, bson.M{"_id": objID}).Decode(&merchant); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch merchant: %v", err)
	}
	return &merchant, nil
}

func (s *MongoMerchantStore) GetByEmail(ctx context.Context, email string) (*models.Merchant, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var merchant models.Merchant
	if err := s.merchants.FindOne(ctx, bson.M{"email": email}).Decode(&merchant); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch merchant: %v", err)
	}
	return &merchant, nil
}
