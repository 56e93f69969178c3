package model

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const opManagerNew = "model.manager.new"

// ManagerConfig wires the process-wide handles the entity controllers share.
type ManagerConfig struct {
	Database         *gorm.DB
	Synchronizer     *Synchronizer
	Clock            func() time.Time
	Logger           *zap.Logger
	OperationTimeout time.Duration
}

// Manager owns the primary store handle and exposes one controller per entity.
type Manager struct {
	db      *gorm.DB
	sync    *Synchronizer
	clock   func() time.Time
	logger  *zap.Logger
	timeout time.Duration

	Authors *Authors
	Posts   *Posts
	Edits   *Edits
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Database == nil {
		return nil, newStoreError(opManagerNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	m := &Manager{
		db:      cfg.Database,
		sync:    cfg.Synchronizer,
		clock:   clock,
		logger:  logger,
		timeout: cfg.OperationTimeout,
	}
	m.Authors = newAuthors(m)
	m.Posts = newPosts(m)
	m.Edits = newEdits(m)
	return m, nil
}

// Synchronizer returns the cache synchronizer, which may be nil.
func (m *Manager) Synchronizer() *Synchronizer {
	return m.sync
}

// DB exposes the store handle for health checks.
func (m *Manager) DB() *gorm.DB {
	return m.db
}

func (m *Manager) now() time.Time {
	return m.clock().UTC()
}

func (m *Manager) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.timeout)
}

func (m *Manager) afterMutation(ctx context.Context, entity string) {
	if m.sync == nil {
		return
	}
	m.sync.Trigger(ctx, entity)
}

func (m *Manager) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	m.logger.Error("model operation failed", attrs...)
}
