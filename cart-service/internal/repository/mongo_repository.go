package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/marketcart/cart-service/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrConflict     = errors.New("concurrent cart update")
)

// Money is stored as a decimal string so no precision is lost in bson doubles.
type lineDocument struct {
	ProductID string    `bson:"product_id"`
	VendorID  string    `bson:"vendor_id"`
	Quantity  int       `bson:"quantity"`
	UnitPrice string    `bson:"unit_price"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type cartDocument struct {
	CartID    string         `bson:"cart_id"`
	UserID    string         `bson:"user_id"`
	Lines     []lineDocument `bson:"lines"`
	CreatedAt time.Time      `bson:"created_at"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

func (d cartDocument) toDomain() (*domain.Cart, error) {
	cart := &domain.Cart{
		ID:        d.CartID,
		UserID:    d.UserID,
		Lines:     make([]domain.CartLine, 0, len(d.Lines)),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, l := range d.Lines {
		price, err := decimal.NewFromString(l.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("line %s has bad unit price %q: %w", l.ProductID, l.UnitPrice, err)
		}
		cart.Lines = append(cart.Lines, domain.CartLine{
			ProductID:         l.ProductID,
			VendorID:          l.VendorID,
			Quantity:          l.Quantity,
			UnitPriceSnapshot: price,
			UpdatedAt:         l.UpdatedAt,
		})
	}
	return cart, nil
}

func newLineDocument(line domain.CartLine, now time.Time) lineDocument {
	return lineDocument{
		ProductID: line.ProductID,
		VendorID:  line.VendorID,
		Quantity:  line.Quantity,
		UnitPrice: line.UnitPriceSnapshot.String(),
		UpdatedAt: now,
	}
}

type mongoRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoRepository(db *mongo.Database) CartRepository {
	return &mongoRepository{
		collection: db.Collection("carts"),
		now:        time.Now,
	}
}

func (m *mongoRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	var doc cartDocument

	err := m.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return doc.toDomain()
}

// UpsertLine replaces the line for line.ProductID or appends it, creating the cart if needed.
func (m *mongoRepository) UpsertLine(ctx context.Context, userID string, line domain.CartLine) error {
	now := m.now()
	doc := newLineDocument(line, now)

	// a concurrent first write for the same user loses the upsert race on the unique
	// user_id index; the second attempt then finds the cart
	for attempt := 0; attempt < 2; attempt++ {
		res, err := m.collection.UpdateOne(ctx,
			bson.M{"user_id": userID, "lines.product_id": line.ProductID},
			bson.M{"$set": bson.M{
				"lines.$[elem]": doc,
				"updated_at":    now,
			}},
			options.Update().SetArrayFilters(options.ArrayFilters{
				Filters: []interface{}{bson.M{"elem.product_id": line.ProductID}},
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to update line: %w", err)
		}
		if res.MatchedCount > 0 {
			return nil
		}

		_, err = m.collection.UpdateOne(ctx,
			bson.M{"user_id": userID, "lines.product_id": bson.M{"$ne": line.ProductID}},
			bson.M{
				"$push":        bson.M{"lines": doc},
				"$set":         bson.M{"updated_at": now},
				"$setOnInsert": bson.M{"cart_id": uuid.NewString(), "created_at": now},
			},
			options.Update().SetUpsert(true),
		)
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("failed to add line: %w", err)
		}
	}
	return fmt.Errorf("upsert line %s: %w", line.ProductID, ErrConflict)
}

func (m *mongoRepository) RemoveLine(ctx context.Context, userID, productID string) error {
	result, err := m.collection.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$pull": bson.M{"lines": bson.M{"product_id": productID}},
			"$set":  bson.M{"updated_at": m.now()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to remove line: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrCartNotFound
	}

	return nil
}

func (m *mongoRepository) DeleteCart(ctx context.Context, userID string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}

	return nil
}

// CreateIndexes enforces one cart per user and expires carts untouched for ttl.
func CreateIndexes(ctx context.Context, db *mongo.Database, ttl time.Duration) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(ttl.Seconds())),
		},
	}

	_, err := db.Collection("carts").Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
