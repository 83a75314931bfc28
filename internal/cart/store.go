// Package cart holds the session cart: the selected items, their quantities
// and the total derived from them.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"menu-orders/internal/logger"
	"menu-orders/internal/models"
)

var (
	ErrInvalidQuantity    = errors.New("quantity must be a positive integer")
	ErrCheckoutInProgress = errors.New("checkout already in progress")
)

// ItemRef identifies a cart line. Two adds of the same product with the same
// variant land on the same line.
type ItemRef struct {
	ProductID int64  `json:"product_id"`
	Variant   string `json:"variant,omitempty"`
}

// Item is one line of the cart
type Item struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Variant   string          `json:"variant,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

func (i Item) Ref() ItemRef {
	return ItemRef{ProductID: i.ProductID, Variant: i.Variant}
}

// LineTotal returns unit price × quantity
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Submitter persists cart lines as order items for an existing order
type Submitter interface {
	SubmitOrder(ctx context.Context, orderID string, items []Item) ([]models.OrderItemRecord, error)
}

// Store is the single cart of one session. It is safe for concurrent use;
// subscribers are called after the lock is released.
type Store struct {
	mu          sync.Mutex
	items       []Item
	checkingOut bool

	subMu       sync.Mutex
	subscribers map[uint64]func([]Item)
	nextSubID   uint64

	submitter Submitter
	logger    *logger.Logger
}

// NewStore creates an empty cart that checks out through submitter
func NewStore(submitter Submitter, log *logger.Logger) *Store {
	return &Store{
		subscribers: make(map[uint64]func([]Item)),
		submitter:   submitter,
		logger:      log,
	}
}

// AddItem adds quantity of product. An existing line with the same product and
// variant is incremented and its unit price refreshed.
func (s *Store) AddItem(product models.Product, variant string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("add product %d: %w", product.ID, ErrInvalidQuantity)
	}

	s.mu.Lock()
	ref := ItemRef{ProductID: product.ID, Variant: variant}
	if idx := s.indexOf(ref); idx >= 0 {
		s.items[idx].Quantity += quantity
		s.items[idx].UnitPrice = product.Price
	} else {
		s.items = append(s.items, Item{
			ProductID: product.ID,
			Name:      product.Name,
			Variant:   variant,
			UnitPrice: product.Price,
			Quantity:  quantity,
		})
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snapshot)
	return nil
}

// UpdateQuantity sets the quantity of a line. Zero or less removes it.
// Unknown refs are ignored.
func (s *Store) UpdateQuantity(ref ItemRef, quantity int) {
	if quantity <= 0 {
		s.RemoveItem(ref)
		return
	}

	s.mu.Lock()
	idx := s.indexOf(ref)
	if idx < 0 || s.items[idx].Quantity == quantity {
		s.mu.Unlock()
		return
	}
	s.items[idx].Quantity = quantity
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snapshot)
}

// RemoveItem drops a line. Unknown refs are ignored.
func (s *Store) RemoveItem(ref ItemRef) {
	s.mu.Lock()
	idx := s.indexOf(ref)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snapshot)
}

// Clear empties the cart
func (s *Store) Clear() {
	s.mu.Lock()
	if len(s.items) == 0 {
		s.mu.Unlock()
		return
	}
	s.items = nil
	s.mu.Unlock()

	s.notify(nil)
}

// Total is recomputed from the current lines on every call
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, item := range s.items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// Items returns a copy of the lines in insertion order
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Count returns the number of units across all lines
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, item := range s.items {
		count += item.Quantity
	}
	return count
}

func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items) == 0
}

// Checkout submits the current lines as items of orderID. On success the
// submitted quantities are taken out of the cart; anything added while the
// submission was in flight stays. On any error the cart is left as it was.
func (s *Store) Checkout(ctx context.Context, orderID string) ([]models.OrderItemRecord, error) {
	s.mu.Lock()
	if s.checkingOut {
		s.mu.Unlock()
		return nil, ErrCheckoutInProgress
	}
	s.checkingOut = true
	items := s.snapshotLocked()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.checkingOut = false
		s.mu.Unlock()
	}()

	records, err := s.submitter.SubmitOrder(ctx, orderID, items)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.removeSubmittedLocked(items)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snapshot)
	s.logger.Debug("cart_checked_out", "Submitted lines removed from cart", "", map[string]interface{}{
		"order_id":   orderID,
		"item_count": len(records),
		"remaining":  len(snapshot),
	})
	return records, nil
}

// removeSubmittedLocked subtracts the submitted quantities line by line
func (s *Store) removeSubmittedLocked(submitted []Item) {
	for _, sub := range submitted {
		idx := s.indexOf(sub.Ref())
		if idx < 0 {
			continue
		}
		s.items[idx].Quantity -= sub.Quantity
		if s.items[idx].Quantity <= 0 {
			s.items = append(s.items[:idx], s.items[idx+1:]...)
		}
	}
	if len(s.items) == 0 {
		s.items = nil
	}
}

// Subscription releases a cart subscriber. Unsubscribe may be called any
// number of times.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func (s *Subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

// Subscribe registers fn to receive a snapshot after every change
func (s *Store) Subscribe(fn func([]Item)) *Subscription {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	return &Subscription{cancel: func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}}
}

func (s *Store) notify(snapshot []Item) {
	s.subMu.Lock()
	fns := make([]func([]Item), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}

func (s *Store) indexOf(ref ItemRef) int {
	for i, item := range s.items {
		if item.Ref() == ref {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() []Item {
	if len(s.items) == 0 {
		return nil
	}
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}
