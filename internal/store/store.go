package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var ErrNotFound = errors.New("record not found")

const (
	transactionsCollection   = "transactions"
	priceSnapshotsCollection = "price_snapshots"
	auditEventsCollection    = "audit_events"
)

// AuditEvent is a durable record of a settlement lifecycle event, appended
// by the manual-settlement audit worker as it drains the Kafka topic the
// settlement engine publishes to, and by the manual status override
// handler for the operator transitions it applies.
type AuditEvent struct {
	Reference  string    `bson:"reference" json:"reference"`
	Type       string    `bson:"type" json:"type"`
	Reason     string    `bson:"reason,omitempty" json:"reason,omitempty"`
	AmountNGN  int64     `bson:"amountNGN,omitempty" json:"amountNGN,omitempty"`
	OccurredAt time.Time `bson:"occurredAt" json:"occurredAt"`
}

type Store struct {
	db *mongo.Database
}

func New(client *mongo.Client, dbName string) *Store {
	return &Store{db: client.Database(dbName)}
}

func (s *Store) transactions() *mongo.Collection {
	return s.db.Collection(transactionsCollection)
}

func (s *Store) priceSnapshots() *mongo.Collection {
	return s.db.Collection(priceSnapshotsCollection)
}

func (s *Store) auditEvents() *mongo.Collection {
	return s.db.Collection(auditEventsCollection)
}

func (s *Store) AppendAuditEvent(ctx context.Context, event AuditEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	_, err := s.auditEvents().InsertOne(ctx, event)
	return err
}

// EnsureIndexes creates the compound and sparse-unique indexes the spec
// requires. Safe to call on every boot; index creation is idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "senderAddress", Value: 1}, {Key: "createdAt", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "reference", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "direction", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "chainTxId", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}

	_, err := s.transactions().Indexes().CreateMany(ctx, models)
	if err != nil {
		return fmt.Errorf("ensure transaction indexes: %w", err)
	}

	_, err = s.priceSnapshots().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "token", Value: 1}, {Key: "fetchedAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("ensure snapshot index: %w", err)
	}

	return nil
}

func (s *Store) Create(ctx context.Context, tx *Transaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	res, err := s.transactions().InsertOne(ctx, tx)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(bson.ObjectID); ok {
		tx.ID = oid.Hex()
	}
	return nil
}

func (s *Store) FindByReference(ctx context.Context, reference string) (*Transaction, error) {
	var tx Transaction
	err := s.transactions().FindOne(ctx, bson.M{"reference": reference}).Decode(&tx)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) FindById(ctx context.Context, id string) (*Transaction, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var tx Transaction
	err = s.transactions().FindOne(ctx, bson.M{"_id": oid}).Decode(&tx)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) FindByAddress(ctx context.Context, address string, filters HistoryFilters, page, limit int64) ([]*Transaction, error) {
	filter := bson.M{
		"$or": bson.A{
			bson.M{"senderAddress": address},
			bson.M{"recipientAddress": address},
		},
	}
	if filters.Direction != "" {
		filter["direction"] = filters.Direction
	}
	if filters.Status != "" {
		filter["status"] = filters.Status
	}
	if filters.Token != "" {
		filter["token"] = filters.Token
	}

	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)

	cur, err := s.transactions().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var results []*Transaction
	if err := cur.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Store) CountByAddress(ctx context.Context, address string, filters HistoryFilters) (int64, error) {
	filter := bson.M{
		"$or": bson.A{
			bson.M{"senderAddress": address},
			bson.M{"recipientAddress": address},
		},
	}
	if filters.Direction != "" {
		filter["direction"] = filters.Direction
	}
	if filters.Status != "" {
		filter["status"] = filters.Status
	}
	if filters.Token != "" {
		filter["token"] = filters.Token
	}
	return s.transactions().CountDocuments(ctx, filter)
}

// ConditionalUpdate is the single primitive the settlement engine relies
// on for exactly-once payout: it applies mutation only if the document's
// current status matches requiredStatus, atomically, and returns the
// document as it looks *after* the update, or nil (with a nil error) when
// no document matched the reference and status, so callers can tell a
// lost race from a first-write.
func (s *Store) ConditionalUpdate(ctx context.Context, reference string, requiredStatus Status, mutation bson.M) (*Transaction, error) {
	filter := bson.M{"reference": reference, "status": requiredStatus}
	update := bson.M{"$set": mutation}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After)

	var tx Transaction
	err := s.transactions().FindOneAndUpdate(ctx, filter, update, opts).Decode(&tx)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) AppendPriceSnapshot(ctx context.Context, snap *PriceSnapshot) error {
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now().UTC()
	}
	_, err := s.priceSnapshots().InsertOne(ctx, snap)
	return err
}

func (s *Store) History(ctx context.Context, token Token, since time.Time) ([]*PriceSnapshot, error) {
	filter := bson.M{"token": token, "fetchedAt": bson.M{"$gte": since}}
	opts := options.Find().SetSort(bson.D{{Key: "fetchedAt", Value: 1}})

	cur, err := s.priceSnapshots().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var results []*PriceSnapshot
	if err := cur.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Aggregate reports per-token counts and volume for records of the given
// direction, used by the transactions stats endpoint.
func (s *Store) Aggregate(ctx context.Context, direction Direction) ([]TokenStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"direction": direction}}},
		{{Key: "$group", Value: bson.M{
			"_id":              "$token",
			"count":            bson.M{"$sum": 1},
			"totalTokenAmount": bson.M{"$sum": "$tokenAmount"},
			"totalNgnAmount":   bson.M{"$sum": "$ngnAmount"},
		}}},
	}

	cur, err := s.transactions().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var results []TokenStats
	if err := cur.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// FindExpiredPending returns pending records past their expiry, used by
// the reaper task to fail stuck offramps that no watcher will ever
// revisit (e.g. the process restarted before notify-tx was called).
func (s *Store) FindExpiredPending(ctx context.Context, now time.Time, limit int64) ([]*Transaction, error) {
	filter := bson.M{"status": StatusPending, "expiresAt": bson.M{"$lte": now}}
	opts := options.Find().SetLimit(limit)

	cur, err := s.transactions().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var results []*Transaction
	if err := cur.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}
