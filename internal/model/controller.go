package model

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opCreate = "create"
	opGet    = "get"
	opList   = "list"
	opCount  = "count"
	opUpdate = "update"
	opDelete = "delete"

	columnID        = "id"
	columnUpdatedAt = "updated_at"
)

// refreshPageSize bounds each statement issued while re-listing a cached collection.
var refreshPageSize = MaxListLimit

// Entity is implemented by every persisted model.
type Entity interface {
	Descriptor() *Descriptor
	Identity() int64
	Created() time.Time
}

// CreatePayload validates caller input and builds the row to insert.
type CreatePayload[E Entity] interface {
	Validate() error
	Build(actor Ctx, now time.Time) (E, error)
}

// UpdatePayload validates caller input and reports only the columns it sets.
type UpdatePayload interface {
	Validate() error
	Changes() map[string]any
}

// referencer exposes foreign key values of a row being inserted, keyed by column.
type referencer interface {
	References() map[string]int64
}

// UpdateCheck rejects changes an entity does not allow from its current state.
type UpdateCheck[E Entity] func(current E, changes map[string]any) error

// UpdateHook runs inside the update transaction after the row is written and returns
// the names of other cached entities it modified.
type UpdateHook[E Entity] func(tx *gorm.DB, before E, changes map[string]any, now time.Time) ([]string, error)

// Rules carries entity-specific behavior consumed by the generic engine.
type Rules[E Entity] struct {
	CheckUpdate UpdateCheck[E]
	AfterUpdate UpdateHook[E]
}

// Controller implements create/get/list/update/delete once for every entity type.
type Controller[E Entity] struct {
	manager *Manager
	desc    *Descriptor
	rules   Rules[E]
}

func newController[E Entity](manager *Manager, rules Rules[E]) *Controller[E] {
	var zero E
	controller := &Controller[E]{
		manager: manager,
		desc:    zero.Descriptor(),
		rules:   rules,
	}
	if controller.desc.Cached {
		manager.sync.Register(controller.desc.Entity, func(ctx context.Context) (any, error) {
			return controller.listAll(ctx)
		})
	}
	return controller
}

// Descriptor exposes the entity declaration.
func (c *Controller[E]) Descriptor() *Descriptor {
	return c.desc
}

// Create validates and inserts a row, returning the store-assigned id.
func (c *Controller[E]) Create(ctx context.Context, actor Ctx, payload CreatePayload[E]) (int64, error) {
	if err := payload.Validate(); err != nil {
		return 0, &ValidationError{Entity: c.desc.Entity, err: err}
	}
	record, err := payload.Build(actor, c.manager.now())
	if err != nil {
		return 0, &ValidationError{Entity: c.desc.Entity, err: err}
	}

	ctx, cancel := c.manager.bound(ctx)
	defer cancel()

	err = c.manager.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if refs, ok := any(record).(referencer); ok {
			if err := c.checkReferences(tx, refs.References()); err != nil {
				return err
			}
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return 0, c.fail(opCreate, err, zap.Int64("author_id", actor.AuthorID()))
	}

	c.manager.afterMutation(ctx, c.desc.Entity)
	return record.Identity(), nil
}

// Get fetches exactly one row by id.
func (c *Controller[E]) Get(ctx context.Context, actor Ctx, id int64) (E, error) {
	ctx, cancel := c.manager.bound(ctx)
	defer cancel()

	var record E
	err := c.manager.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: columnID}, Value: id}).
		Take(&record).Error
	if err != nil {
		var zero E
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return zero, &EntityNotFoundError{Entity: c.desc.Entity, ID: id}
		}
		return zero, c.fail(opGet, err, zap.Int64("id", id))
	}
	return record, nil
}

// List returns rows matching filter, ordered and bounded by options.
// An invalid filter is rejected before any query runs.
func (c *Controller[E]) List(ctx context.Context, actor Ctx, filter Filter, options *ListOptions) ([]E, error) {
	query, err := compileQuery(c.desc, filter, options)
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.manager.bound(ctx)
	defer cancel()

	records := make([]E, 0)
	var zero E
	if err := query.apply(c.manager.db.WithContext(ctx).Model(&zero)).Find(&records).Error; err != nil {
		return nil, c.fail(opList, err)
	}
	return records, nil
}

// Count returns the number of rows matching filter.
func (c *Controller[E]) Count(ctx context.Context, actor Ctx, filter Filter) (int64, error) {
	where, err := compileFilter(c.desc, filter)
	if err != nil {
		return 0, err
	}

	ctx, cancel := c.manager.bound(ctx)
	defer cancel()

	var zero E
	db := c.manager.db.WithContext(ctx).Model(&zero)
	if len(where) > 0 {
		db = db.Clauses(clause.Where{Exprs: where})
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return 0, c.fail(opCount, err)
	}
	return total, nil
}

// Update applies only the fields set in payload.
func (c *Controller[E]) Update(ctx context.Context, actor Ctx, id int64, payload UpdatePayload) error {
	if err := payload.Validate(); err != nil {
		return &ValidationError{Entity: c.desc.Entity, err: err}
	}
	changes := payload.Changes()

	ctx, cancel := c.manager.bound(ctx)
	defer cancel()

	var touched []string
	err := c.manager.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := c.lockRow(tx, id)
		if err != nil {
			return err
		}
		if c.rules.CheckUpdate != nil {
			if err := c.rules.CheckUpdate(current, changes); err != nil {
				return err
			}
		}
		if len(changes) == 0 {
			return nil
		}
		if err := c.checkReferences(tx, referencedValues(c.desc, changes)); err != nil {
			return err
		}

		now := c.manager.now()
		updates := make(map[string]any, len(changes)+1)
		for column, value := range changes {
			updates[column] = value
		}
		updates[columnUpdatedAt] = monotonic(current.Created(), now)

		var zero E
		if err := tx.Model(&zero).
			Where(clause.Eq{Column: clause.Column{Name: columnID}, Value: id}).
			Updates(updates).Error; err != nil {
			return err
		}
		if c.rules.AfterUpdate != nil {
			touched, err = c.rules.AfterUpdate(tx, current, changes, now)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return c.fail(opUpdate, err, zap.Int64("id", id), zap.Int64("author_id", actor.AuthorID()))
	}

	if len(changes) > 0 {
		c.manager.afterMutation(ctx, c.desc.Entity)
		for _, entity := range touched {
			c.manager.afterMutation(ctx, entity)
		}
	}
	return nil
}

// Delete removes a row. Rows still referenced by declared tables are not deleted.
func (c *Controller[E]) Delete(ctx context.Context, actor Ctx, id int64) error {
	ctx, cancel := c.manager.bound(ctx)
	defer cancel()

	err := c.manager.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := c.lockRow(tx, id); err != nil {
			return err
		}
		for _, ref := range c.desc.ReferencedBy {
			var count int64
			if err := tx.Table(ref.Table).
				Where(clause.Eq{Column: clause.Column{Name: ref.Column}, Value: id}).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return &ConstraintViolationError{Entity: c.desc.Entity, Field: ref.Column}
			}
		}

		var zero E
		result := tx.Where(clause.Eq{Column: clause.Column{Name: columnID}, Value: id}).Delete(&zero)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &EntityNotFoundError{Entity: c.desc.Entity, ID: id}
		}
		return nil
	})
	if err != nil {
		return c.fail(opDelete, err, zap.Int64("id", id), zap.Int64("author_id", actor.AuthorID()))
	}

	c.manager.afterMutation(ctx, c.desc.Entity)
	return nil
}

// listAll reads the whole collection in default order, refreshPageSize rows
// per statement, inside one read transaction.
func (c *Controller[E]) listAll(ctx context.Context) ([]E, error) {
	query, err := compileQuery(c.desc, nil, nil)
	if err != nil {
		return nil, err
	}

	records := make([]E, 0)
	err = c.manager.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var zero E
		for offset := 0; ; offset += refreshPageSize {
			query.limit, query.offset = refreshPageSize, offset
			page := make([]E, 0, refreshPageSize)
			if err := query.apply(tx.Model(&zero)).Find(&page).Error; err != nil {
				return err
			}
			records = append(records, page...)
			if len(page) < refreshPageSize {
				return nil
			}
		}
	})
	if err != nil {
		return nil, classifyStoreError(c.desc.Entity, c.desc.Entity+".list_all", err)
	}
	return records, nil
}

func (c *Controller[E]) lockRow(tx *gorm.DB, id int64) (E, error) {
	var current E
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(clause.Eq{Column: clause.Column{Name: columnID}, Value: id}).
		Take(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return current, &EntityNotFoundError{Entity: c.desc.Entity, ID: id}
	}
	return current, err
}

func (c *Controller[E]) checkReferences(tx *gorm.DB, values map[string]int64) error {
	for _, fk := range c.desc.ForeignKeys {
		value, ok := values[fk.Column]
		if !ok || value == 0 {
			continue
		}
		var ids []int64
		if err := tx.Table(fk.Table).
			Clauses(clause.Locking{Strength: "SHARE"}).
			Where(clause.Eq{Column: clause.Column{Name: columnID}, Value: value}).
			Limit(1).
			Pluck(columnID, &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return &ConstraintViolationError{Entity: c.desc.Entity, Field: fk.Column}
		}
	}
	return nil
}

func (c *Controller[E]) fail(operation string, err error, fields ...zap.Field) error {
	classified := classifyStoreError(c.desc.Entity, c.desc.Entity+"."+operation, err)
	var storeErr *StoreError
	if errors.As(classified, &storeErr) || errors.Is(classified, ErrStoreUnavailable) || errors.Is(classified, ErrTimeout) {
		c.manager.logError(c.desc.Entity+"."+operation, "store_failure", err, fields...)
	}
	return classified
}

func referencedValues(desc *Descriptor, changes map[string]any) map[string]int64 {
	if len(desc.ForeignKeys) == 0 {
		return nil
	}
	values := make(map[string]int64, len(desc.ForeignKeys))
	for _, fk := range desc.ForeignKeys {
		switch value := changes[fk.Column].(type) {
		case int64:
			values[fk.Column] = value
		case *int64:
			if value != nil {
				values[fk.Column] = *value
			}
		}
	}
	return values
}

func monotonic(created, now time.Time) time.Time {
	if now.Before(created) {
		return created
	}
	return now
}
