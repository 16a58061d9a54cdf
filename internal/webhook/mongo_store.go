package webhook

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	subscriptionCollection = "webhook_subscriptions"
	deliveryCollection     = "webhook_deliveries"
)

// MongoStore implements both SubscriptionStore and DeliveryStore against
// MongoDB, grounded on the teacher's internal/storage/mongodb_store.go and
// webhook_queue_mongodb.go (MongoDBStore wrapping *mongo.Database, one
// method per operation, bson.M filters and mongo/options for sort+limit).
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	subs   *mongo.Collection
	dels   *mongo.Collection
}

// NewMongoStore dials connectionString and opens database, mirroring
// the teacher's NewMongoDBStore connect-ping-disconnect-on-failure shape.
func NewMongoStore(connectionString, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	store := &MongoStore{
		client: client,
		db:     db,
		subs:   db.Collection(subscriptionCollection),
		dels:   db.Collection(deliveryCollection),
	}
	if _, err := store.subs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "tenantid", Value: 1}},
	}); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create subscription index: %w", err)
	}
	return store, nil
}

// Close disconnects the underlying mongo.Client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// --- SubscriptionStore ---

func (s *MongoStore) Save(ctx context.Context, sub Subscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	filter := bson.M{"endpointid": sub.EndpointID}
	update := bson.M{"$set": sub}
	_, err := s.subs.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, endpointID string) (Subscription, error) {
	var sub Subscription
	err := s.subs.FindOne(ctx, bson.M{"endpointid": endpointID}).Decode(&sub)
	if err == mongo.ErrNoDocuments {
		return Subscription{}, ErrSubscriptionNotFound
	}
	if err != nil {
		return Subscription{}, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *MongoStore) ListByTenant(ctx context.Context, tenantID string) ([]Subscription, error) {
	cursor, err := s.subs.Find(ctx, bson.M{"tenantid": tenantID})
	if err != nil {
		return nil, fmt.Errorf("list subscriptions by tenant: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Subscription
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode subscriptions: %w", err)
	}
	return out, nil
}

func (s *MongoStore) ListEnabled(ctx context.Context) ([]Subscription, error) {
	cursor, err := s.subs.Find(ctx, bson.M{"enabled": true})
	if err != nil {
		return nil, fmt.Errorf("list enabled subscriptions: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Subscription
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode subscriptions: %w", err)
	}
	return out, nil
}

func (s *MongoStore) Delete(ctx context.Context, endpointID string) error {
	_, err := s.subs.DeleteOne(ctx, bson.M{"endpointid": endpointID})
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// --- DeliveryStore ---

func (s *MongoStore) Enqueue(ctx context.Context, d Delivery) (Delivery, error) {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.MaxAttempts == 0 {
		d.MaxAttempts = DefaultMaxAttempts
	}
	if d.Status == "" {
		d.Status = StatusPending
	}
	if _, err := s.dels.InsertOne(ctx, d); err != nil {
		return Delivery{}, fmt.Errorf("enqueue delivery: %w", err)
	}
	return d, nil
}

func (s *MongoStore) Get(ctx context.Context, deliveryID string) (Delivery, error) {
	var d Delivery
	err := s.dels.FindOne(ctx, bson.M{"deliveryid": deliveryID}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return Delivery{}, ErrDeliveryNotFound
	}
	if err != nil {
		return Delivery{}, fmt.Errorf("get delivery: %w", err)
	}
	return d, nil
}

func (s *MongoStore) DueForDelivery(ctx context.Context, limit int) ([]Delivery, error) {
	filter := bson.M{
		"status": StatusPending,
		"$or": []bson.M{
			{"nextretryat": bson.M{"$lte": time.Now().UTC()}},
			{"nextretryat": time.Time{}},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdat", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.dels.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query due deliveries: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Delivery
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode due deliveries: %w", err)
	}
	return out, nil
}

func (s *MongoStore) MarkProcessing(ctx context.Context, deliveryID string) error {
	result, err := s.dels.UpdateOne(ctx,
		bson.M{"deliveryid": deliveryID},
		bson.M{"$set": bson.M{"status": StatusProcessing}},
	)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

func (s *MongoStore) RecordAttempt(ctx context.Context, deliveryID string, attempt Attempt, status Status, nextRetryAt time.Time) error {
	set := bson.M{
		"status":      status,
		"nextretryat": nextRetryAt,
	}
	if status == StatusSucceeded || status == StatusFailed {
		now := time.Now().UTC()
		set["completedat"] = now
	}
	update := bson.M{
		"$push": bson.M{"attempts": attempt},
		"$set":  set,
	}
	result, err := s.dels.UpdateOne(ctx, bson.M{"deliveryid": deliveryID}, update)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

func (s *MongoStore) ListByEndpoint(ctx context.Context, endpointID string, limit int) ([]Delivery, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdat", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.dels.Find(ctx, bson.M{"endpointid": endpointID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list deliveries by endpoint: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Delivery
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode deliveries: %w", err)
	}
	return out, nil
}
