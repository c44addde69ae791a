package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/counterbook/counterbook/internal/events"
	"github.com/counterbook/counterbook/internal/shared"
)

// Service coordinates inventory operations.
type Service struct {
	repo     Repository
	bus      events.Publisher
	validate *validator.Validate
	now      func() time.Time
}

// NewService builds Service. bus may be nil when change notifications are not
// needed (migrations, tests).
func NewService(repo Repository, bus events.Publisher) *Service {
	return &Service{
		repo:     repo,
		bus:      bus,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Get returns a single item.
func (s *Service) Get(ctx context.Context, id string) (Item, error) {
	var item Item
	err := s.repo.WithRead(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		item, err = tx.Get(ctx, id)
		return err
	})
	if err != nil {
		return Item{}, shared.OpError("getInventoryItem", id, err)
	}
	return item, nil
}

// List returns every item.
func (s *Service) List(ctx context.Context) ([]Item, error) {
	var items []Item
	err := s.repo.WithRead(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		items, err = tx.List(ctx)
		return err
	})
	if err != nil {
		return nil, shared.OpError("getInventory", "", err)
	}
	return items, nil
}

// ListBelowThreshold returns items whose quantity has fallen to or below
// their low-stock threshold.
func (s *Service) ListBelowThreshold(ctx context.Context) ([]Item, error) {
	var items []Item
	err := s.repo.WithRead(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		items, err = tx.ListBelowThreshold(ctx)
		return err
	})
	if err != nil {
		return nil, shared.OpError("getLowStock", "", err)
	}
	return items, nil
}

// Create stores a new item. An equivalent existing item (same description,
// category and supplier) is rejected with shared.ErrDuplicateItem.
func (s *Service) Create(ctx context.Context, req CreateItemRequest) (Item, error) {
	if err := s.validate.Struct(req); err != nil {
		return Item{}, shared.OpError("addInventoryItem", "", shared.Validationf("%v", err))
	}
	if req.CostPrice.IsNegative() || req.SellingPrice.IsNegative() {
		return Item{}, shared.OpError("addInventoryItem", "", shared.Validationf("prices must be non-negative"))
	}

	threshold := DefaultLowStockThreshold
	if req.LowStockThreshold != nil {
		threshold = *req.LowStockThreshold
	}
	now := s.now().UTC()
	item := Item{
		ID:                uuid.NewString(),
		Category:          req.Category,
		Description:       req.Description,
		Quantity:          req.Quantity,
		CostPrice:         req.CostPrice,
		SellingPrice:      req.SellingPrice,
		Supplier:          req.Supplier,
		LowStockThreshold: threshold,
		Attributes:        cloneAttrs(req.Attributes),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := s.repo.WithWrite(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := tx.FindEquivalent(ctx, item.Description, item.Category, item.Supplier)
		if err == nil {
			return shared.ErrDuplicateItem
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		return tx.Insert(ctx, item)
	})
	if err != nil {
		return Item{}, shared.OpError("addInventoryItem", "", err)
	}

	s.publish(events.TopicInventoryCreated, item)
	return item, nil
}

// Update merges the given partial fields into an existing item. Unspecified
// fields are preserved and attribute entries are merged key by key.
func (s *Service) Update(ctx context.Context, id string, req UpdateItemRequest) (Item, error) {
	if err := s.validate.Struct(req); err != nil {
		return Item{}, shared.OpError("updateInventoryItem", id, shared.Validationf("%v", err))
	}
	if (req.CostPrice != nil && req.CostPrice.IsNegative()) ||
		(req.SellingPrice != nil && req.SellingPrice.IsNegative()) {
		return Item{}, shared.OpError("updateInventoryItem", id, shared.Validationf("prices must be non-negative"))
	}

	var updated Item
	err := s.repo.WithWrite(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if req.Category != nil {
			item.Category = *req.Category
		}
		if req.Description != nil {
			item.Description = *req.Description
		}
		if req.Quantity != nil {
			item.Quantity = *req.Quantity
		}
		if req.CostPrice != nil {
			item.CostPrice = *req.CostPrice
		}
		if req.SellingPrice != nil {
			item.SellingPrice = *req.SellingPrice
		}
		if req.Supplier != nil {
			item.Supplier = *req.Supplier
		}
		if req.LowStockThreshold != nil {
			item.LowStockThreshold = *req.LowStockThreshold
		}
		if len(req.Attributes) > 0 {
			if item.Attributes == nil {
				item.Attributes = make(map[string]string, len(req.Attributes))
			}
			for k, v := range req.Attributes {
				item.Attributes[k] = v
			}
		}
		item.UpdatedAt = s.now().UTC()
		if err := tx.Update(ctx, item); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return Item{}, shared.OpError("updateInventoryItem", id, err)
	}

	s.publish(events.TopicInventoryUpdated, updated)
	return updated, nil
}

// Delete removes an item.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.repo.WithWrite(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.Get(ctx, id); err != nil {
			return err
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return shared.OpError("deleteInventoryItem", id, err)
	}

	if s.bus != nil {
		s.bus.Publish(events.Event{Topic: events.TopicInventoryDeleted, EntityID: id})
	}
	return nil
}

func (s *Service) publish(topic string, item Item) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{Topic: topic, EntityID: item.ID, Payload: item})
}

func cloneAttrs(attrs map[string]string) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
