package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/marketcart/cart-service/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"golang.org/x/sync/errgroup"
)

func setupTestDB(t *testing.T) (CartRepository, func()) {
	if testing.Short() {
		t.Skip("skipping mongo container test in short mode")
	}
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, MongoConfig{URI: uri, Database: "testdb"})
	require.NoError(t, err)

	require.NoError(t, CreateIndexes(ctx, db, 90*24*time.Hour))

	cleanup := func() {
		_ = db.Client().Disconnect(ctx)
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return NewMongoRepository(db), cleanup
}

func line(productID string, qty int, price string) domain.CartLine {
	return domain.CartLine{
		ProductID:         productID,
		VendorID:          "v1",
		Quantity:          qty,
		UnitPriceSnapshot: decimal.RequireFromString(price),
	}
}

func TestGetCart_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	cart, err := repo.GetCart(context.Background(), "nonexistent")

	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.Nil(t, cart)
}

func TestUpsertLine_CreatesCart(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.UpsertLine(ctx, "user123", line("p1", 3, "80.125")))

	cart, err := repo.GetCart(ctx, "user123")
	require.NoError(t, err)
	assert.NotEmpty(t, cart.ID)
	assert.Equal(t, "user123", cart.UserID)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 3, cart.Lines[0].Quantity)
	assert.True(t, cart.Lines[0].UnitPriceSnapshot.Equal(decimal.RequireFromString("80.125")))
}

func TestUpsertLine_IsIdempotent(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.UpsertLine(ctx, "user123", line("p1", 3, "90")))
	require.NoError(t, repo.UpsertLine(ctx, "user123", line("p1", 12, "80")))
	require.NoError(t, repo.UpsertLine(ctx, "user123", line("p1", 12, "80")))
	require.NoError(t, repo.UpsertLine(ctx, "user123", line("p2", 1, "10")))

	cart, err := repo.GetCart(ctx, "user123")
	require.NoError(t, err)
	require.Len(t, cart.Lines, 2)
	assert.Equal(t, "p1", cart.Lines[0].ProductID)
	assert.Equal(t, 12, cart.Lines[0].Quantity)
	assert.True(t, cart.Lines[0].UnitPriceSnapshot.Equal(decimal.NewFromInt(80)))
}

func TestUpsertLine_ConcurrentFirstWrites(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	var g errgroup.Group
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		g.Go(func() error { return repo.UpsertLine(ctx, "racer", line(id, 1, "1")) })
	}
	require.NoError(t, g.Wait())

	cart, err := repo.GetCart(ctx, "racer")
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 4)
}

func TestRemoveLine(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.UpsertLine(ctx, "user123", line("p1", 3, "90")))
	require.NoError(t, repo.UpsertLine(ctx, "user123", line("p2", 1, "10")))

	require.NoError(t, repo.RemoveLine(ctx, "user123", "p1"))
	require.NoError(t, repo.RemoveLine(ctx, "user123", "p1"), "removing twice is harmless")

	cart, err := repo.GetCart(ctx, "user123")
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, "p2", cart.Lines[0].ProductID)

	assert.ErrorIs(t, repo.RemoveLine(ctx, "nobody", "p1"), ErrCartNotFound)
}

func TestDeleteCart(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.UpsertLine(ctx, "user123", line("p1", 3, "90")))
	require.NoError(t, repo.DeleteCart(ctx, "user123"))

	_, err := repo.GetCart(ctx, "user123")
	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.ErrorIs(t, repo.DeleteCart(ctx, "user123"), ErrCartNotFound)
}

func TestContextCancellation(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repo.UpsertLine(ctx, "user123", line("p1", 1, "1"))
	assert.Error(t, err)
}
