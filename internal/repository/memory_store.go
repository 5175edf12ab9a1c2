package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fjod/go_cart/fulfillment-service/internal/domain"
)

type memoryCartItem struct {
	id        int64
	cartID    int64
	productID int64
	quantity  int
}

type memoryOutboxRow struct {
	event     domain.OutboxEvent
	processed bool
}

// memoryState holds every table. An order transaction works on a copy and
// swaps it in on commit.
type memoryState struct {
	products map[int64]*domain.Product
	carts    map[int64]*domain.Cart // userID -> cart
	items    map[int64]*memoryCartItem
	orders   map[int64]*domain.Order
	outbox   []*memoryOutboxRow

	nextProductID   int64
	nextCartID      int64
	nextItemID      int64
	nextOrderID     int64
	nextOrderItemID int64
}

func newMemoryState() *memoryState {
	return &memoryState{
		products: make(map[int64]*domain.Product),
		carts:    make(map[int64]*domain.Cart),
		items:    make(map[int64]*memoryCartItem),
		orders:   make(map[int64]*domain.Order),
	}
}

func (s *memoryState) clone() *memoryState {
	c := *s
	c.products = make(map[int64]*domain.Product, len(s.products))
	for id, p := range s.products {
		cp := *p
		c.products[id] = &cp
	}
	c.carts = make(map[int64]*domain.Cart, len(s.carts))
	for id, cart := range s.carts {
		cp := *cart
		c.carts[id] = &cp
	}
	c.items = make(map[int64]*memoryCartItem, len(s.items))
	for id, it := range s.items {
		cp := *it
		c.items[id] = &cp
	}
	c.orders = make(map[int64]*domain.Order, len(s.orders))
	for id, o := range s.orders {
		c.orders[id] = copyOrder(o)
	}
	c.outbox = make([]*memoryOutboxRow, len(s.outbox))
	for i, row := range s.outbox {
		cp := *row
		c.outbox[i] = &cp
	}
	return &c
}

// MemoryStore implements Store with in-memory storage. Order transactions are
// serialized on the store mutex.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memoryState
	now   func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: newMemoryState(),
		now:   time.Now,
	}
}

// AddProduct stores a copy of p and returns its assigned id
func (s *MemoryStore) AddProduct(p domain.Product) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.nextProductID++
	p.ID = s.state.nextProductID
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.state.products[p.ID] = &p
	return p.ID
}

// SetStock overwrites a product's stock (for testing)
func (s *MemoryStore) SetStock(productID int64, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.state.products[productID]; ok {
		p.Stock = stock
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// ListProducts returns products matching the filter, newest first
func (s *MemoryStore) ListProducts(_ context.Context, filter domain.ProductFilter) ([]*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	result := make([]*domain.Product, 0)
	for _, p := range s.state.products {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (s *MemoryStore) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.state.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListCategories(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	categories := make([]string, 0)
	for _, p := range s.state.products {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		categories = append(categories, p.Category)
	}
	sort.Strings(categories)
	return categories, nil
}

func (s *MemoryStore) GetOrCreateCart(_ context.Context, userID int64) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.state.carts[userID]
	if !ok {
		now := s.now()
		s.state.nextCartID++
		cart = &domain.Cart{ID: s.state.nextCartID, UserID: userID, CreatedAt: now, UpdatedAt: now}
		s.state.carts[userID] = cart
	}
	cp := *cart
	return &cp, nil
}

func (s *MemoryStore) GetCartLines(_ context.Context, userID int64) ([]domain.CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := make([]domain.CartLine, 0)
	cart, ok := s.state.carts[userID]
	if !ok {
		return lines, nil
	}
	for _, it := range s.state.itemsOf(cart.ID) {
		p := s.state.products[it.productID]
		lines = append(lines, domain.CartLine{
			ID:        it.id,
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			ImageURL:  p.ImageURL,
			Quantity:  it.quantity,
		})
	}
	return lines, nil
}

func (s *MemoryStore) UpsertCartItem(_ context.Context, cartID, productID int64, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.products[productID]; !ok {
		return ErrProductNotFound
	}
	for _, it := range s.state.items {
		if it.cartID == cartID && it.productID == productID {
			it.quantity += quantity
			return nil
		}
	}
	s.state.nextItemID++
	s.state.items[s.state.nextItemID] = &memoryCartItem{
		id:        s.state.nextItemID,
		cartID:    cartID,
		productID: productID,
		quantity:  quantity,
	}
	return nil
}

func (s *MemoryStore) GetCartItemStock(_ context.Context, userID, itemID int64) (*CartItemStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.state.ownedItem(userID, itemID)
	if !ok {
		return nil, ErrCartItemNotFound
	}
	p := s.state.products[it.productID]
	return &CartItemStock{
		ItemID:      it.id,
		ProductID:   p.ID,
		ProductName: p.Name,
		Stock:       p.Stock,
		Quantity:    it.quantity,
	}, nil
}

func (s *MemoryStore) SetCartItemQuantity(_ context.Context, userID, itemID int64, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.state.ownedItem(userID, itemID)
	if !ok {
		return ErrCartItemNotFound
	}
	it.quantity = quantity
	return nil
}

func (s *MemoryStore) RemoveCartItem(_ context.Context, userID, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.ownedItem(userID, itemID); !ok {
		return ErrCartItemNotFound
	}
	delete(s.state.items, itemID)
	return nil
}

func (s *MemoryStore) ClearCart(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cart, ok := s.state.carts[userID]; ok {
		s.state.clearItems(cart.ID)
	}
	return nil
}

// WithOrderTx runs fn against a private copy of the store and publishes the
// copy only if fn succeeds.
func (s *MemoryStore) WithOrderTx(_ context.Context, fn func(tx OrderTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memoryOrderTx{state: work, now: s.now}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *MemoryStore) ListOrdersByUserID(_ context.Context, userID int64) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]*domain.Order, 0)
	for _, o := range s.state.orders {
		if o.UserID != userID {
			continue
		}
		cp := copyOrder(o)
		cp.Items = nil
		orders = append(orders, cp)
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
	return orders, nil
}

func (s *MemoryStore) GetOrderForUser(_ context.Context, userID, orderID int64) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.state.orders[orderID]
	if !ok || o.UserID != userID {
		return nil, ErrOrderNotFound
	}
	cp := copyOrder(o)
	for i := range cp.Items {
		if p, found := s.state.products[cp.Items[i].ProductID]; found {
			cp.Items[i].Name = p.Name
			cp.Items[i].ImageURL = p.ImageURL
		}
	}
	return cp, nil
}

func (s *MemoryStore) GetUnprocessedEvents(_ context.Context, limit int) ([]*domain.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]*domain.OutboxEvent, 0)
	for _, row := range s.state.outbox {
		if len(events) == limit {
			break
		}
		if row.processed {
			continue
		}
		e := row.event
		events = append(events, &e)
	}
	return events, nil
}

func (s *MemoryStore) MarkEventAsProcessed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.state.outbox {
		if row.event.ID == id {
			row.processed = true
		}
	}
	return nil
}

// itemsOf returns the cart's items ordered by id
func (s *memoryState) itemsOf(cartID int64) []*memoryCartItem {
	items := make([]*memoryCartItem, 0)
	for _, it := range s.items {
		if it.cartID == cartID {
			items = append(items, it)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].id < items[j].id })
	return items
}

func (s *memoryState) ownedItem(userID, itemID int64) (*memoryCartItem, bool) {
	it, ok := s.items[itemID]
	if !ok {
		return nil, false
	}
	cart, ok := s.carts[userID]
	if !ok || cart.ID != it.cartID {
		return nil, false
	}
	return it, true
}

func (s *memoryState) clearItems(cartID int64) {
	for id, it := range s.items {
		if it.cartID == cartID {
			delete(s.items, id)
		}
	}
}

func copyOrder(o *domain.Order) *domain.Order {
	cp := *o
	if o.Items != nil {
		cp.Items = append([]domain.OrderItem(nil), o.Items...)
	}
	return &cp
}

type memoryOrderTx struct {
	state *memoryState
	now   func() time.Time
}

func (t *memoryOrderTx) GetCartID(_ context.Context, userID int64) (int64, error) {
	cart, ok := t.state.carts[userID]
	if !ok {
		return 0, ErrCartNotFound
	}
	return cart.ID, nil
}

func (t *memoryOrderTx) LockCheckoutLines(_ context.Context, cartID int64) ([]domain.CheckoutLine, error) {
	lines := make([]domain.CheckoutLine, 0)
	for _, it := range t.state.itemsOf(cartID) {
		p := t.state.products[it.productID]
		lines = append(lines, domain.CheckoutLine{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    it.quantity,
			Price:       p.Price,
			Stock:       p.Stock,
		})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

func (t *memoryOrderTx) InsertOrder(_ context.Context, order *domain.Order) error {
	t.state.nextOrderID++
	order.ID = t.state.nextOrderID
	order.CreatedAt = t.now()
	stored := copyOrder(order)
	stored.Items = make([]domain.OrderItem, 0)
	t.state.orders[order.ID] = stored
	return nil
}

func (t *memoryOrderTx) InsertOrderItem(_ context.Context, item *domain.OrderItem) error {
	o, ok := t.state.orders[item.OrderID]
	if !ok {
		return ErrOrderNotFound
	}
	t.state.nextOrderItemID++
	item.ID = t.state.nextOrderItemID
	stored := *item
	stored.Name = ""
	stored.ImageURL = ""
	o.Items = append(o.Items, stored)
	return nil
}

func (t *memoryOrderTx) DecrementStock(_ context.Context, productID int64, quantity int) error {
	p, ok := t.state.products[productID]
	if !ok || p.Stock < quantity {
		return &domain.InsufficientStockError{ProductID: productID, Requested: quantity}
	}
	p.Stock -= quantity
	return nil
}

func (t *memoryOrderTx) ClearCartItems(_ context.Context, cartID int64) error {
	t.state.clearItems(cartID)
	return nil
}

func (t *memoryOrderTx) InsertOutboxEvent(_ context.Context, event *domain.OutboxEvent) error {
	event.CreatedAt = t.now()
	t.state.outbox = append(t.state.outbox, &memoryOutboxRow{event: *event})
	return nil
}
