package customers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/counterbook/counterbook/internal/events"
	"github.com/counterbook/counterbook/internal/shared"
)

// Service coordinates customer record operations.
type Service struct {
	repo     Repository
	agg      *Aggregator
	bus      events.Publisher
	dedup    *shared.DedupWindow
	validate *validator.Validate
	repairs  singleflight.Group
	now      func() time.Time
}

// NewService builds Service. dedup guards against rapid duplicate creates;
// bus may be nil.
func NewService(repo Repository, agg *Aggregator, bus events.Publisher, dedup *shared.DedupWindow) *Service {
	return &Service{
		repo:     repo,
		agg:      agg,
		bus:      bus,
		dedup:    dedup,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Create stores a new customer. A create with identical name and phone inside
// the dedup window is rejected with shared.ErrDuplicateSubmission.
func (s *Service) Create(ctx context.Context, req CreateCustomerRequest) (Customer, error) {
	if err := s.validate.Struct(req); err != nil {
		return Customer{}, shared.OpError("addCustomer", "", shared.Validationf("%v", err))
	}

	dedupKey := ""
	if s.dedup != nil {
		dedupKey = fmt.Sprintf("customer:%s:%s", req.Name, req.Phone)
		if err := s.dedup.CheckAndInsert(dedupKey); err != nil {
			return Customer{}, shared.OpError("addCustomer", "", err)
		}
	}

	now := s.now().UTC()
	c := Customer{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Address:   req.Address,
		Tag:       req.Tag,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.repo.WithWrite(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, c)
	})
	if err != nil {
		if dedupKey != "" {
			s.dedup.Delete(dedupKey)
		}
		return Customer{}, shared.OpError("addCustomer", "", err)
	}

	s.publish(events.TopicCustomerCreated, c)
	return c, nil
}

// Update merges partial fields into an existing customer.
func (s *Service) Update(ctx context.Context, id string, req UpdateCustomerRequest) (Customer, error) {
	if err := s.validate.Struct(req); err != nil {
		return Customer{}, shared.OpError("updateCustomer", id, shared.Validationf("%v", err))
	}

	var updated Customer
	err := s.repo.WithWrite(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if req.Name != nil {
			if *req.Name == "" {
				return shared.Validationf("name must not be empty")
			}
			c.Name = *req.Name
		}
		if req.Email != nil {
			c.Email = *req.Email
		}
		if req.Phone != nil {
			c.Phone = *req.Phone
		}
		if req.Address != nil {
			c.Address = *req.Address
		}
		if req.Tag != nil {
			c.Tag = *req.Tag
		}
		c.UpdatedAt = s.now().UTC()
		if err := tx.Update(ctx, c); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return Customer{}, shared.OpError("updateCustomer", id, err)
	}

	s.publish(events.TopicCustomerUpdated, updated)
	return updated, nil
}

// Delete removes a customer. Their sales stay in the ledger as walk-in
// history; only the record itself goes away.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.repo.WithWrite(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.Get(ctx, id); err != nil {
			return err
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return shared.OpError("deleteCustomer", id, err)
	}

	if s.bus != nil {
		s.bus.Publish(events.Event{Topic: events.TopicCustomerDeleted, EntityID: id})
	}
	return nil
}

// Get returns a customer with stored aggregates, as written.
func (s *Service) Get(ctx context.Context, id string) (Customer, error) {
	var c Customer
	err := s.repo.WithRead(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		c, err = tx.Get(ctx, id)
		return err
	})
	if err != nil {
		return Customer{}, shared.OpError("getCustomerById", id, err)
	}
	return c, nil
}

// GetVerified returns a customer after checking the stored aggregate against
// the ledger, self-healing via a full recompute when it has drifted.
// Concurrent repairs of the same customer are coalesced.
func (s *Service) GetVerified(ctx context.Context, id string) (Customer, error) {
	var c Customer
	var ledgerCount int
	err := s.repo.WithRead(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		c, err = tx.Get(ctx, id)
		if err != nil {
			return err
		}
		entries, err := tx.LedgerByCustomer(ctx, id)
		if err != nil {
			return err
		}
		ledgerCount = len(entries)
		return nil
	})
	if err != nil {
		return Customer{}, shared.OpError("getCustomerById", id, err)
	}

	if !s.agg.Inconsistent(c.Stats, ledgerCount) {
		return c, nil
	}

	v, err, _ := s.repairs.Do(id, func() (any, error) {
		var repaired Aggregate
		err := s.repo.WithWrite(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			repaired, err = s.agg.RecomputeFromLedger(ctx, tx, id)
			return err
		})
		return repaired, err
	})
	if err != nil {
		return Customer{}, shared.OpError("repairCustomerStats", id, err)
	}
	c.Stats = v.(Aggregate)

	if s.bus != nil {
		s.bus.Publish(events.Event{Topic: events.TopicCustomerStatsUpdated, EntityID: id, Payload: c.Stats})
	}
	return c, nil
}

// List returns every customer.
func (s *Service) List(ctx context.Context) ([]Customer, error) {
	var out []Customer
	err := s.repo.WithRead(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.List(ctx)
		return err
	})
	if err != nil {
		return nil, shared.OpError("getCustomers", "", err)
	}
	return out, nil
}

// Repair forces a ledger recompute for one customer and returns the result.
func (s *Service) Repair(ctx context.Context, id string) (Aggregate, error) {
	var agg Aggregate
	err := s.repo.WithWrite(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.CustomerExists(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return shared.ErrNotFound
		}
		agg, err = s.agg.RecomputeFromLedger(ctx, tx, id)
		return err
	})
	if err != nil {
		return Aggregate{}, shared.OpError("repairCustomerStats", id, err)
	}

	if s.bus != nil {
		s.bus.Publish(events.Event{Topic: events.TopicCustomerStatsUpdated, EntityID: id, Payload: agg})
	}
	return agg, nil
}

// RepairAll recomputes every customer's aggregate from the ledger.
func (s *Service) RepairAll(ctx context.Context) error {
	err := s.repo.WithWrite(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.agg.RecomputeAll(ctx, tx)
	})
	if err != nil {
		return shared.OpError("repairCustomerStats", "", err)
	}
	return nil
}

func (s *Service) publish(topic string, c Customer) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{Topic: topic, EntityID: c.ID, Payload: c})
}
