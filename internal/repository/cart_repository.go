package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/fulfillment-service/internal/domain"
)

func (r *Repository) GetOrCreateCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	// The no-op update makes RETURNING yield the row on conflict too.
	query := `INSERT INTO carts (user_id) VALUES ($1)
	          ON CONFLICT (user_id) DO UPDATE SET updated_at = carts.updated_at
	          RETURNING id, user_id, created_at, updated_at`

	var c domain.Cart
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, classify(fmt.Errorf("get or create cart: %w", err))
	}
	return &c, nil
}

func (r *Repository) GetCartLines(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	query := `SELECT ci.id, p.id, p.name, p.price, p.image_url, ci.quantity
	          FROM cart_items ci
	          JOIN carts c ON ci.cart_id = c.id
	          JOIN products p ON ci.product_id = p.id
	          WHERE c.user_id = $1
	          ORDER BY ci.id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, classify(fmt.Errorf("query cart lines: %w", err))
	}
	defer rows.Close()

	lines := make([]domain.CartLine, 0)
	for rows.Next() {
		var l domain.CartLine
		if scanErr := rows.Scan(&l.ID, &l.ProductID, &l.Name, &l.Price, &l.ImageURL, &l.Quantity); scanErr != nil {
			return nil, classify(fmt.Errorf("scan cart line: %w", scanErr))
		}
		lines = append(lines, l)
	}
	if err = rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate cart lines: %w", err))
	}
	return lines, nil
}

func (r *Repository) UpsertCartItem(ctx context.Context, cartID, productID int64, quantity int) error {
	query := `INSERT INTO cart_items (cart_id, product_id, quantity)
	          VALUES ($1, $2, $3)
	          ON CONFLICT (cart_id, product_id)
	          DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query, cartID, productID, quantity)
	if isForeignKeyViolation(err) {
		return ErrProductNotFound
	}
	if err != nil {
		return classify(fmt.Errorf("upsert cart item: %w", err))
	}
	return nil
}

func (r *Repository) GetCartItemStock(ctx context.Context, userID, itemID int64) (*CartItemStock, error) {
	query := `SELECT ci.id, ci.product_id, p.name, p.stock, ci.quantity
	          FROM cart_items ci
	          JOIN carts c ON ci.cart_id = c.id
	          JOIN products p ON ci.product_id = p.id
	          WHERE ci.id = $1 AND c.user_id = $2`

	var s CartItemStock
	err := r.db.QueryRowContext(ctx, query, itemID, userID).Scan(
		&s.ItemID, &s.ProductID, &s.ProductName, &s.Stock, &s.Quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartItemNotFound
	}
	if err != nil {
		return nil, classify(fmt.Errorf("query cart item: %w", err))
	}
	return &s, nil
}

func (r *Repository) SetCartItemQuantity(ctx context.Context, userID, itemID int64, quantity int) error {
	query := `UPDATE cart_items SET quantity = $1, updated_at = NOW()
	          WHERE id = $2 AND cart_id IN (SELECT id FROM carts WHERE user_id = $3)`

	res, err := r.db.ExecContext(ctx, query, quantity, itemID, userID)
	if err != nil {
		return classify(fmt.Errorf("update cart item: %w", err))
	}
	return requireAffected(res, ErrCartItemNotFound)
}

func (r *Repository) RemoveCartItem(ctx context.Context, userID, itemID int64) error {
	query := `DELETE FROM cart_items
	          WHERE id = $1 AND cart_id IN (SELECT id FROM carts WHERE user_id = $2)`

	res, err := r.db.ExecContext(ctx, query, itemID, userID)
	if err != nil {
		return classify(fmt.Errorf("delete cart item: %w", err))
	}
	return requireAffected(res, ErrCartItemNotFound)
}

func (r *Repository) ClearCart(ctx context.Context, userID int64) error {
	query := `DELETE FROM cart_items WHERE cart_id IN (SELECT id FROM carts WHERE user_id = $1)`

	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return classify(fmt.Errorf("clear cart: %w", err))
	}
	return nil
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
