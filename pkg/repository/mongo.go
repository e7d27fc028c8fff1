package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/quickorder/pkg/config"
	"github.com/example/quickorder/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var (
	ErrNotFound       = errors.New("repository: not found")
	ErrDuplicateStore = errors.New("repository: store id already taken")
	ErrBadStoreID     = errors.New("repository: store id must be alphanumeric")
)

// Publisher receives a change notification after every product/order write.
type Publisher interface {
	Publish(ctx context.Context, channel, payload string) error
}

// MongoRepository is the document-store binding for stores, products,
// orders and admins.
type MongoRepository struct {
	client   *mongo.Client
	database *mongo.Database
	events   Publisher
	logger   *zap.Logger
}

func NewMongoRepository(cfg *config.MongoDBConfig, events Publisher, logger *zap.Logger) (*MongoRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}

	return &MongoRepository{
		client:   client,
		database: client.Database(cfg.Database),
		events:   events,
		logger:   logger,
	}, nil
}

func (m *MongoRepository) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoRepository) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *MongoRepository) stores() *mongo.Collection   { return m.database.Collection("stores") }
func (m *MongoRepository) products() *mongo.Collection { return m.database.Collection("products") }
func (m *MongoRepository) orders() *mongo.Collection   { return m.database.Collection("orders") }
func (m *MongoRepository) admins() *mongo.Collection   { return m.database.Collection("admins") }

// notify publishes a change marker. Subscribers re-query, so the payload
// only has to say which store changed.
func (m *MongoRepository) notify(ctx context.Context, channel, storeID string) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(ctx, channel, storeID); err != nil {
		m.logger.Warn("Failed to publish change notification",
			zap.String("channel", channel), zap.Error(err))
	}
}

// --- Stores ---

func (m *MongoRepository) GetStore(ctx context.Context, storeID string) (*models.Store, error) {
	var store models.Store
	err := m.stores().FindOne(ctx, bson.M{"_id": storeID}).Decode(&store)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &store, nil
}

func (m *MongoRepository) ListStores(ctx context.Context) ([]models.Store, error) {
	cursor, err := m.stores().Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var stores []models.Store
	if err = cursor.All(ctx, &stores); err != nil {
		return nil, err
	}
	return stores, nil
}

// CreateStore inserts a new tenant. The slug must be alphanumeric and unique
// ignoring case; "TejaShop2024" and "tejashop2024" collide.
func (m *MongoRepository) CreateStore(ctx context.Context, store *models.Store) error {
	if err := ValidateStoreID(store.StoreID); err != nil {
		return err
	}

	count, err := m.stores().CountDocuments(ctx, storeIDFilter(store.StoreID))
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateStore
	}

	store.CreatedAt = time.Now()
	store.IsActive = true
	if _, err := m.stores().InsertOne(ctx, store); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateStore
		}
		return err
	}
	return nil
}

// SuggestStoreID derives a free alphanumeric slug from a display name,
// appending a numeric suffix while the base is taken.
func (m *MongoRepository) SuggestStoreID(ctx context.Context, name string) (string, error) {
	return suggestStoreID(name, func(candidate string) (bool, error) {
		count, err := m.stores().CountDocuments(ctx, storeIDFilter(candidate))
		return count > 0, err
	})
}

// UpdateStoreSettings merge-sets the mutable store fields. The store id and
// creation time are immutable.
func (m *MongoRepository) UpdateStoreSettings(ctx context.Context, storeID string, settings *models.Store) error {
	res, err := m.stores().UpdateOne(ctx, bson.M{"_id": storeID}, bson.M{"$set": bson.M{
		"vpa":          settings.VPA,
		"merchantName": settings.MerchantName,
		"ownerEmail":   settings.OwnerEmail,
		"ownerPhone":   settings.OwnerPhone,
		"isActive":     settings.IsActive,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteStore removes the tenant and all of its data.
func (m *MongoRepository) DeleteStore(ctx context.Context, storeID string) error {
	res, err := m.stores().DeleteOne(ctx, bson.M{"_id": storeID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	if _, err := m.products().DeleteMany(ctx, bson.M{"storeId": storeID}); err != nil {
		return err
	}
	if _, err := m.orders().DeleteMany(ctx, bson.M{"storeId": storeID}); err != nil {
		return err
	}
	m.notify(ctx, ProductsChannel(storeID), storeID)
	m.notify(ctx, OrdersChannel(storeID), storeID)
	return nil
}

// StoresByOwner finds stores whose ownerEmail or ownerPhone matches the
// given claims. Either argument may be empty.
func (m *MongoRepository) StoresByOwner(ctx context.Context, email, phone string) ([]models.Store, error) {
	var clauses []bson.M
	if email != "" {
		clauses = append(clauses, bson.M{"ownerEmail": email})
	}
	if phone != "" {
		clauses = append(clauses, bson.M{"ownerPhone": phone})
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	cursor, err := m.stores().Find(ctx, bson.M{"$or": clauses})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var stores []models.Store
	if err = cursor.All(ctx, &stores); err != nil {
		return nil, err
	}
	return stores, nil
}

// --- Products ---

func (m *MongoRepository) ProductsByStore(ctx context.Context, storeID string) ([]models.Product, error) {
	cursor, err := m.products().Find(ctx, bson.M{"storeId": storeID},
		options.Find().SetSort(bson.D{{Key: "sortKey", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var products []models.Product
	if err = cursor.All(ctx, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (m *MongoRepository) CreateProduct(ctx context.Context, product *models.Product) (string, error) {
	product.ID = primitive.NewObjectID().Hex()
	product.SortKey = time.Now().UnixMilli()
	product.CreatedAt = time.Now()

	if _, err := m.products().InsertOne(ctx, product); err != nil {
		return "", err
	}
	m.notify(ctx, ProductsChannel(product.StoreID), product.StoreID)
	return product.ID, nil
}

// UpdateProduct targets the storage-assigned id, never the sort key.
func (m *MongoRepository) UpdateProduct(ctx context.Context, storeID, productID string, product *models.Product) error {
	res, err := m.products().UpdateOne(ctx,
		bson.M{"_id": productID, "storeId": storeID},
		bson.M{"$set": bson.M{
			"name":        product.Name,
			"description": product.Description,
			"price":       product.Price,
			"unit":        product.Unit,
			"imageUrl":    product.ImageURL,
		}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	m.notify(ctx, ProductsChannel(storeID), storeID)
	return nil
}

func (m *MongoRepository) DeleteProduct(ctx context.Context, storeID, productID string) error {
	res, err := m.products().DeleteOne(ctx, bson.M{"_id": productID, "storeId": storeID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	m.notify(ctx, ProductsChannel(storeID), storeID)
	return nil
}

// --- Orders ---

func (m *MongoRepository) OrdersByStore(ctx context.Context, storeID string) ([]models.Order, error) {
	cursor, err := m.orders().Find(ctx, bson.M{"storeId": storeID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	if err = cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (m *MongoRepository) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := m.orders().FindOne(ctx, bson.M{"_id": orderID}).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CreateOrder inserts the order and returns the assigned storage id.
func (m *MongoRepository) CreateOrder(ctx context.Context, order *models.Order) (string, error) {
	order.ID = primitive.NewObjectID().Hex()
	if _, err := m.orders().InsertOne(ctx, order); err != nil {
		return "", err
	}
	m.notify(ctx, OrdersChannel(order.StoreID), order.StoreID)
	return order.ID, nil
}

// ApplyOrderUpdate writes a partial field set against one order document.
// The $set is atomic per document: either all fields land or none do.
func (m *MongoRepository) ApplyOrderUpdate(ctx context.Context, storeID, orderID string, fields map[string]interface{}) error {
	res, err := m.orders().UpdateOne(ctx,
		bson.M{"_id": orderID, "storeId": storeID},
		bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	m.notify(ctx, OrdersChannel(storeID), storeID)
	return nil
}

// DeleteOrder is the explicit merchant purge, the only way an order leaves
// the collection.
func (m *MongoRepository) DeleteOrder(ctx context.Context, storeID, orderID string) error {
	res, err := m.orders().DeleteOne(ctx, bson.M{"_id": orderID, "storeId": storeID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	m.notify(ctx, OrdersChannel(storeID), storeID)
	return nil
}

// --- Admins ---

// IsDatabaseAdmin checks the admins collection by email or phone. Consulted
// after the hardcoded root allow-list.
func (m *MongoRepository) IsDatabaseAdmin(ctx context.Context, email, phone string) (bool, error) {
	if email != "" {
		count, err := m.admins().CountDocuments(ctx, bson.M{"email": email})
		if err != nil {
			return false, err
		}
		if count > 0 {
			return true, nil
		}
	}
	if phone != "" {
		count, err := m.admins().CountDocuments(ctx, bson.M{"phone": phone})
		if err != nil {
			return false, err
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (m *MongoRepository) ListAdmins(ctx context.Context) ([]models.Admin, error) {
	cursor, err := m.admins().Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var admins []models.Admin
	if err = cursor.All(ctx, &admins); err != nil {
		return nil, err
	}
	return admins, nil
}

func (m *MongoRepository) AddAdmin(ctx context.Context, admin *models.Admin) (string, error) {
	admin.ID = primitive.NewObjectID().Hex()
	admin.CreatedAt = time.Now()
	if _, err := m.admins().InsertOne(ctx, admin); err != nil {
		return "", err
	}
	return admin.ID, nil
}

func (m *MongoRepository) RemoveAdmin(ctx context.Context, adminID string) error {
	res, err := m.admins().DeleteOne(ctx, bson.M{"_id": adminID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsureIndexes creates the tenant-key indexes used by the filtered queries.
func (m *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := m.products().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "storeId", Value: 1}, {Key: "sortKey", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("products index: %w", err)
	}
	_, err = m.orders().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "storeId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("orders index: %w", err)
	}
	return nil
}
