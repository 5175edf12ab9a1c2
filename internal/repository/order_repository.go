package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/fulfillment-service/internal/domain"
)

func (r *Repository) WithOrderTx(ctx context.Context, fn func(tx OrderTx) error) (err error) {
	sqlTx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classify(fmt.Errorf("begin order transaction: %w", err))
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback order transaction: %w", rbErr))
		}
	}()

	if err = fn(&pgOrderTx{tx: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return classify(fmt.Errorf("commit order transaction: %w", err))
	}
	committed = true
	return nil
}

type pgOrderTx struct {
	tx *sql.Tx
}

func (t *pgOrderTx) GetCartID(ctx context.Context, userID int64) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `SELECT id FROM carts WHERE user_id = $1`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrCartNotFound
	}
	if err != nil {
		return 0, classify(fmt.Errorf("query cart id: %w", err))
	}
	return id, nil
}

func (t *pgOrderTx) LockCheckoutLines(ctx context.Context, cartID int64) ([]domain.CheckoutLine, error) {
	// Locking in product id order keeps concurrent checkouts from deadlocking.
	query := `SELECT ci.product_id, p.name, ci.quantity, p.price, p.stock
	          FROM cart_items ci
	          JOIN products p ON ci.product_id = p.id
	          WHERE ci.cart_id = $1
	          ORDER BY p.id
	          FOR UPDATE OF ci, p`

	rows, err := t.tx.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, classify(fmt.Errorf("lock checkout lines: %w", err))
	}
	defer rows.Close()

	lines := make([]domain.CheckoutLine, 0)
	for rows.Next() {
		var l domain.CheckoutLine
		if scanErr := rows.Scan(&l.ProductID, &l.ProductName, &l.Quantity, &l.Price, &l.Stock); scanErr != nil {
			return nil, classify(fmt.Errorf("scan checkout line: %w", scanErr))
		}
		lines = append(lines, l)
	}
	if err = rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate checkout lines: %w", err))
	}
	return lines, nil
}

func (t *pgOrderTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	query := `INSERT INTO orders (user_id, total_amount, shipping_address, status)
	          VALUES ($1, $2, $3, $4)
	          RETURNING id, created_at`

	err := t.tx.QueryRowContext(ctx, query,
		order.UserID,
		order.TotalAmount,
		order.ShippingAddress,
		order.Status,
	).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return classify(fmt.Errorf("insert order: %w", err))
	}
	return nil
}

func (t *pgOrderTx) InsertOrderItem(ctx context.Context, item *domain.OrderItem) error {
	query := `INSERT INTO order_items (order_id, product_id, quantity, price)
	          VALUES ($1, $2, $3, $4)
	          RETURNING id`

	err := t.tx.QueryRowContext(ctx, query, item.OrderID, item.ProductID, item.Quantity, item.Price).Scan(&item.ID)
	if err != nil {
		return classify(fmt.Errorf("insert order item: %w", err))
	}
	return nil
}

func (t *pgOrderTx) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	query := `UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1`

	res, err := t.tx.ExecContext(ctx, query, quantity, productID)
	if err != nil {
		return classify(fmt.Errorf("decrement stock: %w", err))
	}
	return requireAffected(res, &domain.InsufficientStockError{ProductID: productID, Requested: quantity})
}

func (t *pgOrderTx) ClearCartItems(ctx context.Context, cartID int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return classify(fmt.Errorf("clear cart items: %w", err))
	}
	return nil
}

func (t *pgOrderTx) InsertOutboxEvent(ctx context.Context, event *domain.OutboxEvent) error {
	query := `INSERT INTO outbox_events (id, aggregate_id, event_type, payload)
	          VALUES ($1, $2, $3, $4)
	          RETURNING created_at`

	err := t.tx.QueryRowContext(ctx, query,
		event.ID,
		event.AggregateID,
		event.EventType,
		[]byte(event.Payload),
	).Scan(&event.CreatedAt)
	if err != nil {
		return classify(fmt.Errorf("insert outbox event: %w", err))
	}
	return nil
}

func (r *Repository) ListOrdersByUserID(ctx context.Context, userID int64) ([]*domain.Order, error) {
	query := `SELECT id, user_id, total_amount, shipping_address, status, created_at
	          FROM orders WHERE user_id = $1
	          ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, classify(fmt.Errorf("query orders: %w", err))
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		o, scanErr := scanOrder(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		orders = append(orders, o)
	}
	if err = rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate orders: %w", err))
	}
	return orders, nil
}

func (r *Repository) GetOrderForUser(ctx context.Context, userID, orderID int64) (*domain.Order, error) {
	query := `SELECT id, user_id, total_amount, shipping_address, status, created_at
	          FROM orders WHERE id = $1 AND user_id = $2`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, orderID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	itemsQuery := `SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.price, p.name, p.image_url
	               FROM order_items oi
	               JOIN products p ON oi.product_id = p.id
	               WHERE oi.order_id = $1
	               ORDER BY oi.id`

	rows, err := r.db.QueryContext(ctx, itemsQuery, order.ID)
	if err != nil {
		return nil, classify(fmt.Errorf("query order items: %w", err))
	}
	defer rows.Close()

	order.Items = make([]domain.OrderItem, 0)
	for rows.Next() {
		var it domain.OrderItem
		if scanErr := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Price, &it.Name, &it.ImageURL); scanErr != nil {
			return nil, classify(fmt.Errorf("scan order item: %w", scanErr))
		}
		order.Items = append(order.Items, it)
	}
	if err = rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate order items: %w", err))
	}
	return order, nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.ShippingAddress, &o.Status, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, classify(fmt.Errorf("scan order: %w", err))
	}
	return &o, nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM outbox_events
	          WHERE processed_at IS NULL
	          ORDER BY created_at
	          LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, classify(fmt.Errorf("query outbox events: %w", err))
	}
	defer rows.Close()

	events := make([]*domain.OutboxEvent, 0)
	for rows.Next() {
		var e domain.OutboxEvent
		var payload []byte
		if scanErr := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &payload, &e.CreatedAt); scanErr != nil {
			return nil, classify(fmt.Errorf("scan outbox event: %w", scanErr))
		}
		e.Payload = payload
		events = append(events, &e)
	}
	if err = rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate outbox events: %w", err))
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return classify(fmt.Errorf("mark outbox event processed: %w", err))
	}
	return nil
}
