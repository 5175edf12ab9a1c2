package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/fulfillment-service/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "./migrations",
	}

	repo, err := NewRepository(creds)
	require.NoError(t, err)

	err = repo.RunMigrations(creds)
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func insertProduct(t *testing.T, repo *Repository, name, category, price string, stock int) int64 {
	var id int64
	err := repo.db.QueryRow(
		`INSERT INTO products (name, description, price, stock, category) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		name, name+" description", price, stock, category,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

// placeOrder runs the same transactional steps the order service does.
func placeOrder(ctx context.Context, repo *Repository, userID int64) (*domain.Order, error) {
	var placed *domain.Order
	err := repo.WithOrderTx(ctx, func(tx OrderTx) error {
		cartID, err := tx.GetCartID(ctx, userID)
		if err != nil {
			return err
		}
		lines, err := tx.LockCheckoutLines(ctx, cartID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return domain.ErrEmptyCart
		}
		items := make([]domain.OrderItem, 0, len(lines))
		for _, l := range lines {
			items = append(items, domain.OrderItem{ProductID: l.ProductID, Quantity: l.Quantity, Price: l.Price})
		}
		order := &domain.Order{
			UserID:          userID,
			TotalAmount:     domain.OrderTotal(items),
			ShippingAddress: "221B Baker Street, London",
			Status:          domain.OrderStatusPending,
		}
		if err = tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		for i := range items {
			items[i].OrderID = order.ID
			if err = tx.InsertOrderItem(ctx, &items[i]); err != nil {
				return err
			}
			if err = tx.DecrementStock(ctx, items[i].ProductID, items[i].Quantity); err != nil {
				return err
			}
		}
		if err = tx.ClearCartItems(ctx, cartID); err != nil {
			return err
		}
		err = tx.InsertOutboxEvent(ctx, &domain.OutboxEvent{
			ID:          uuid.New().String(),
			AggregateID: "order",
			EventType:   domain.EventOrderPlaced,
			Payload:     []byte(`{"ok":true}`),
		})
		if err != nil {
			return err
		}
		placed = order
		return nil
	})
	return placed, err
}

func TestRepository_ListProducts_FilterAndSearch(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	insertProduct(t, repo, "Laptop Pro", "Electronics", "999.99", 10)
	insertProduct(t, repo, "Phone", "Electronics", "599.99", 5)
	insertProduct(t, repo, "100% Cotton Shirt", "Clothing", "19.90", 50)

	all, err := repo.ListProducts(ctx, domain.ProductFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	electronics, err := repo.ListProducts(ctx, domain.ProductFilter{Category: "Electronics"})
	require.NoError(t, err)
	assert.Len(t, electronics, 2)

	laptop, err := repo.ListProducts(ctx, domain.ProductFilter{Search: "laptop"})
	require.NoError(t, err)
	require.Len(t, laptop, 1)
	assert.True(t, decimal.RequireFromString("999.99").Equal(laptop[0].Price))

	// % is matched literally
	percent, err := repo.ListProducts(ctx, domain.ProductFilter{Search: "100%"})
	require.NoError(t, err)
	require.Len(t, percent, 1)
	assert.Equal(t, "100% Cotton Shirt", percent[0].Name)

	categories, err := repo.ListCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Clothing", "Electronics"}, categories)
}

func TestRepository_GetProduct_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.GetProduct(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestRepository_CartLifecycle(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	pid := insertProduct(t, repo, "Mouse", "Electronics", "25.50", 10)

	cart, err := repo.GetOrCreateCart(ctx, 1)
	require.NoError(t, err)
	again, err := repo.GetOrCreateCart(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, cart.ID, again.ID)

	require.NoError(t, repo.UpsertCartItem(ctx, cart.ID, pid, 2))
	require.NoError(t, repo.UpsertCartItem(ctx, cart.ID, pid, 1))
	assert.ErrorIs(t, repo.UpsertCartItem(ctx, cart.ID, 9999, 1), ErrProductNotFound)

	lines, err := repo.GetCartLines(ctx, 1)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)

	_, err = repo.GetCartItemStock(ctx, 2, lines[0].ID)
	assert.ErrorIs(t, err, ErrCartItemNotFound)
	assert.ErrorIs(t, repo.SetCartItemQuantity(ctx, 2, lines[0].ID, 1), ErrCartItemNotFound)

	require.NoError(t, repo.SetCartItemQuantity(ctx, 1, lines[0].ID, 4))
	stock, err := repo.GetCartItemStock(ctx, 1, lines[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stock.Quantity)
	assert.Equal(t, 10, stock.Stock)

	require.NoError(t, repo.RemoveCartItem(ctx, 1, lines[0].ID))
	assert.ErrorIs(t, repo.RemoveCartItem(ctx, 1, lines[0].ID), ErrCartItemNotFound)

	empty, err := repo.GetCartLines(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRepository_WithOrderTx_Commit(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	laptop := insertProduct(t, repo, "Laptop", "Electronics", "999.99", 10)
	mouse := insertProduct(t, repo, "Mouse", "Electronics", "25.50", 100)

	cart, err := repo.GetOrCreateCart(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, repo.UpsertCartItem(ctx, cart.ID, laptop, 2))
	require.NoError(t, repo.UpsertCartItem(ctx, cart.ID, mouse, 1))

	order, err := placeOrder(ctx, repo, 1)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2025.48").Equal(order.TotalAmount))

	p, err := repo.GetProduct(ctx, laptop)
	require.NoError(t, err)
	assert.Equal(t, 8, p.Stock)

	lines, err := repo.GetCartLines(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, lines)

	fetched, err := repo.GetOrderForUser(ctx, 1, order.ID)
	require.NoError(t, err)
	assert.Len(t, fetched.Items, 2)
	assert.Equal(t, "Laptop", fetched.Items[0].Name)

	_, err = repo.GetOrderForUser(ctx, 2, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	orders, err := repo.ListOrdersByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.JSONEq(t, `{"ok":true}`, string(events[0].Payload))
	require.NoError(t, repo.MarkEventAsProcessed(ctx, events[0].ID))
	events, err = repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRepository_WithOrderTx_InsufficientStockRollsBack(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	pid := insertProduct(t, repo, "Desk", "Furniture", "150.00", 1)

	cart, err := repo.GetOrCreateCart(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, repo.UpsertCartItem(ctx, cart.ID, pid, 2))

	_, err = placeOrder(ctx, repo, 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	p, err := repo.GetProduct(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stock)

	orders, err := repo.ListOrdersByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, orders)

	lines, err := repo.GetCartLines(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestRepository_ConcurrentOrders_LastUnit(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	pid := insertProduct(t, repo, "Signed Poster", "Art", "49.00", 1)

	const buyers = 5
	for u := int64(1); u <= buyers; u++ {
		cart, err := repo.GetOrCreateCart(ctx, u)
		require.NoError(t, err)
		require.NoError(t, repo.UpsertCartItem(ctx, cart.ID, pid, 1))
	}

	var wg sync.WaitGroup
	errs := make(chan error, buyers)
	for u := int64(1); u <= buyers; u++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := placeOrder(ctx, repo, userID)
			errs <- err
		}(u)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	}
	assert.Equal(t, 1, succeeded)

	p, err := repo.GetProduct(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)
}
