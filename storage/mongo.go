package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sparknexora-backend/models"
)

// MongoStore is the document-database backend.
type MongoStore struct {
	client   *mongo.Client
	payments *mongo.Collection
	orders   *mongo.Collection
	contacts *mongo.Collection
	users    *mongo.Collection
	counters *mongo.Collection
}

// NewMongoStore wires the backend onto the given database.
func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	db := client.Database(dbName)
	return &MongoStore{
		client:   client,
		payments: db.Collection("payments"),
		orders:   db.Collection("orders"),
		contacts: db.Collection("contacts"),
		users:    db.Collection("users"),
		counters: db.Collection("counters"),
	}
}

// EnsureIndexes creates the unique indexes the reconciliation core depends
// on. The unique index on orders.payment_id is the backstop that serializes
// concurrent order creation for the same payment.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.payments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		// Placeholder intent ids embed a UUID, so a plain unique index still
		// tolerates any number of pending payments.
		{Keys: bson.D{{Key: "payment_intent_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "customer_email", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("payments indexes: %w", err)
	}
	_, err = s.orders.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "payment_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "order_number", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "customer_email", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("orders indexes: %w", err)
	}
	_, err = s.contacts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "priority", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("contacts indexes: %w", err)
	}
	_, err = s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Payments() PaymentStore { return &mongoPayments{coll: s.payments} }
func (s *MongoStore) Orders() OrderStore {
	return &mongoOrders{coll: s.orders, counters: s.counters}
}
func (s *MongoStore) Contacts() ContactStore { return &mongoContacts{coll: s.contacts} }
func (s *MongoStore) Users() UserStore       { return &mongoUsers{coll: s.users} }

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func mapMongoErr(err error) error {
	if err == nil {
		return nil
	}
	if err == mongo.ErrNoDocuments {
		return ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

// --- payments ---

type mongoPayments struct {
	coll *mongo.Collection
}

func (m *mongoPayments) Insert(ctx context.Context, p *models.Payment) error {
	if p.ID == "" {
		p.ID = primitive.NewObjectID().Hex()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := m.coll.InsertOne(ctx, p)
	return mapMongoErr(err)
}

func (m *mongoPayments) findOne(ctx context.Context, filter bson.M) (*models.Payment, error) {
	var p models.Payment
	if err := m.coll.FindOne(ctx, filter).Decode(&p); err != nil {
		return nil, mapMongoErr(err)
	}
	return &p, nil
}

func (m *mongoPayments) FindBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	return m.findOne(ctx, bson.M{"session_id": sessionID})
}

func (m *mongoPayments) FindByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	return m.findOne(ctx, bson.M{"payment_intent_id": intentID})
}

func (m *mongoPayments) MarkSucceeded(ctx context.Context, id string, paidAt time.Time, chargeID string) error {
	// The status filter makes succeeded monotonic: a second writer matches
	// nothing and changes nothing.
	res, err := m.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$ne": models.PaymentStatusSucceeded}},
		bson.M{"$set": bson.M{
			"status":            models.PaymentStatusSucceeded,
			"paid_at":           paidAt,
			"charge_id":         chargeID,
			"webhook_processed": true,
			"updated_at":        time.Now(),
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return m.mustExist(ctx, id)
	}
	return nil
}

func (m *mongoPayments) MarkFailed(ctx context.Context, id string) error {
	return m.markTerminal(ctx, id, models.PaymentStatusFailed, true)
}

func (m *mongoPayments) MarkCanceled(ctx context.Context, id string) error {
	return m.markTerminal(ctx, id, models.PaymentStatusCanceled, false)
}

func (m *mongoPayments) markTerminal(ctx context.Context, id string, status models.PaymentStatus, viaWebhook bool) error {
	set := bson.M{"status": status, "updated_at": time.Now()}
	if viaWebhook {
		set["webhook_processed"] = true
	}
	res, err := m.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$ne": models.PaymentStatusSucceeded}},
		bson.M{"$set": set},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return m.mustExist(ctx, id)
	}
	return nil
}

// mustExist distinguishes "already succeeded" (a no-op, not an error) from
// a genuinely missing payment.
func (m *mongoPayments) mustExist(ctx context.Context, id string) error {
	err := m.coll.FindOne(ctx, bson.M{"_id": id}).Err()
	return mapMongoErr(err)
}

// --- orders ---

type mongoOrders struct {
	coll     *mongo.Collection
	counters *mongo.Collection
}

func (m *mongoOrders) Insert(ctx context.Context, o *models.Order) error {
	if o.ID == "" {
		o.ID = primitive.NewObjectID().Hex()
	}
	now := time.Now()
	o.CreatedAt = now
	o.UpdatedAt = now
	_, err := m.coll.InsertOne(ctx, o)
	return mapMongoErr(err)
}

func (m *mongoOrders) findOne(ctx context.Context, filter bson.M) (*models.Order, error) {
	var o models.Order
	if err := m.coll.FindOne(ctx, filter).Decode(&o); err != nil {
		return nil, mapMongoErr(err)
	}
	return &o, nil
}

func (m *mongoOrders) FindByID(ctx context.Context, id string) (*models.Order, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

func (m *mongoOrders) FindByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	return m.findOne(ctx, bson.M{"payment_id": paymentID})
}

func (m *mongoOrders) List(ctx context.Context, limit int64) ([]models.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := m.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (m *mongoOrders) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error {
	res, err := m.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"status": status, "updated_at": time.Now()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *mongoOrders) AddNote(ctx context.Context, id string, note models.AdminNote) error {
	res, err := m.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$push": bson.M{"admin_notes": note},
		"$set":  bson.M{"updated_at": time.Now()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *mongoOrders) CountCreatedBetween(ctx context.Context, start, end time.Time) (int64, error) {
	return m.coll.CountDocuments(ctx, bson.M{
		"created_at": bson.M{"$gte": start, "$lt": end},
	})
}

func (m *mongoOrders) NextDailySequence(ctx context.Context, day string) (int64, error) {
	// One counter document per day, bumped atomically; concurrent order
	// creation can never hand out the same sequence twice.
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := m.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "orders-" + day},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}

// --- contacts ---

type mongoContacts struct {
	coll *mongo.Collection
}

func (m *mongoContacts) Insert(ctx context.Context, c *models.Contact) error {
	if c.ID == "" {
		c.ID = primitive.NewObjectID().Hex()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := m.coll.InsertOne(ctx, c)
	return mapMongoErr(err)
}

func (m *mongoContacts) FindByID(ctx context.Context, id string) (*models.Contact, error) {
	var c models.Contact
	if err := m.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, mapMongoErr(err)
	}
	return &c, nil
}

var contactSortFields = map[string]string{
	"createdAt": "created_at",
	"name":      "name",
	"email":     "email",
	"status":    "status",
	"priority":  "priority",
}

func (m *mongoContacts) List(ctx context.Context, f ContactFilter) ([]models.Contact, int64, error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Priority != "" {
		filter["priority"] = f.Priority
	}
	if f.Service != "" {
		filter["service"] = f.Service
	}
	if f.Search != "" {
		regex := bson.M{"$regex": f.Search, "$options": "i"}
		filter["$or"] = []bson.M{
			{"name": regex},
			{"email": regex},
			{"subject": regex},
			{"company": regex},
		}
	}

	total, err := m.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	sortField, ok := contactSortFields[f.SortBy]
	if !ok {
		sortField = "created_at"
	}
	dir := 1
	if f.SortDesc {
		dir = -1
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: sortField, Value: dir}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)

	cursor, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var contacts []models.Contact
	if err := cursor.All(ctx, &contacts); err != nil {
		return nil, 0, err
	}
	return contacts, total, nil
}

func (m *mongoContacts) Update(ctx context.Context, id string, patch ContactPatch) (*models.Contact, error) {
	set := bson.M{"updated_at": time.Now()}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}
	if patch.Priority != nil {
		set["priority"] = *patch.Priority
	}
	var c models.Contact
	err := m.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return nil, mapMongoErr(err)
	}
	return &c, nil
}

func (m *mongoContacts) AddNote(ctx context.Context, id string, note models.AdminNote) (*models.Contact, error) {
	var c models.Contact
	err := m.coll.FindOneAndUpdate(ctx, bson.M{"_id": id},
		bson.M{
			"$push": bson.M{"admin_notes": note},
			"$set":  bson.M{"updated_at": time.Now()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return nil, mapMongoErr(err)
	}
	return &c, nil
}

func (m *mongoContacts) Delete(ctx context.Context, id string) error {
	res, err := m.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *mongoContacts) CountByStatus(ctx context.Context) (map[string]int64, error) {
	cursor, err := m.coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	counts := make(map[string]int64)
	for cursor.Next(ctx) {
		var row struct {
			ID    string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		counts[row.ID] = row.Count
	}
	return counts, cursor.Err()
}

func (m *mongoContacts) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	return m.coll.CountDocuments(ctx, bson.M{"created_at": bson.M{"$gte": since}})
}

// --- users ---

type mongoUsers struct {
	coll *mongo.Collection
}

func (m *mongoUsers) Insert(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = primitive.NewObjectID().Hex()
	}
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	_, err := m.coll.InsertOne(ctx, u)
	return mapMongoErr(err)
}

func (m *mongoUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := m.coll.FindOne(ctx, bson.M{"email": email}).Decode(&u); err != nil {
		return nil, mapMongoErr(err)
	}
	return &u, nil
}

func (m *mongoUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := m.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, mapMongoErr(err)
	}
	return &u, nil
}

func (m *mongoUsers) RecordFailedLogin(ctx context.Context, id string, lockUntil *time.Time) error {
	update := bson.M{
		"$inc": bson.M{"login_attempts": 1},
		"$set": bson.M{"updated_at": time.Now()},
	}
	if lockUntil != nil {
		update["$set"].(bson.M)["lock_until"] = *lockUntil
	}
	res, err := m.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *mongoUsers) ResetLoginAttempts(ctx context.Context, id string, lastLogin time.Time) error {
	res, err := m.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"login_attempts": 0,
			"last_login":     lastLogin,
			"updated_at":     time.Now(),
		},
		"$unset": bson.M{"lock_until": ""},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
