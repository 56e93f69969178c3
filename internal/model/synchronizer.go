package model

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/inkwell/internal/cachestore"
)

const (
	opRefresh      = "model.synchronizer.refresh"
	opSnapshot     = "model.synchronizer.snapshot"
	opSynchronizer = "model.synchronizer.new"
	defaultRefresh = 10 * time.Second
)

var (
	errMissingCacheStore = errors.New("cache store is required")
	errUnknownEntity     = errors.New("entity is not registered for caching")
)

// Lister reads the full collection of one cached entity.
type Lister func(ctx context.Context) (any, error)

// SynchronizerConfig wires the cache store and refresh policy.
type SynchronizerConfig struct {
	Store          cachestore.Store
	Logger         *zap.Logger
	Async          bool
	RefreshTimeout time.Duration
}

// Synchronizer rewrites full JSON snapshots of cached entities after mutations.
// Refreshes of one entity are serialized; different entities refresh concurrently.
type Synchronizer struct {
	store          cachestore.Store
	logger         *zap.Logger
	async          bool
	refreshTimeout time.Duration

	listers *xsync.MapOf[string, Lister]
	locks   *xsync.MapOf[string, *sync.Mutex]
	pending sync.WaitGroup
}

func NewSynchronizer(cfg SynchronizerConfig) (*Synchronizer, error) {
	if cfg.Store == nil {
		return nil, newStoreError(opSynchronizer, "missing_store", errMissingCacheStore)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	timeout := cfg.RefreshTimeout
	if timeout <= 0 {
		timeout = defaultRefresh
	}
	return &Synchronizer{
		store:          cfg.Store,
		logger:         logger,
		async:          cfg.Async,
		refreshTimeout: timeout,
		listers:        xsync.NewMapOf[string, Lister](),
		locks:          xsync.NewMapOf[string, *sync.Mutex](),
	}, nil
}

// Register declares a cached entity and the function listing its collection.
func (s *Synchronizer) Register(entity string, lister Lister) {
	if s == nil {
		return
	}
	s.listers.Store(entity, lister)
}

// Entities returns the registered entity names.
func (s *Synchronizer) Entities() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, s.listers.Size())
	s.listers.Range(func(name string, _ Lister) bool {
		names = append(names, name)
		return true
	})
	return names
}

// Refresh re-lists the entity and replaces its snapshot.
func (s *Synchronizer) Refresh(ctx context.Context, entity string) error {
	lister, ok := s.listers.Load(entity)
	if !ok {
		return newStoreError(opRefresh, "unknown_entity", errUnknownEntity)
	}

	lock, _ := s.locks.LoadOrCompute(entity, func() *sync.Mutex { return &sync.Mutex{} })
	lock.Lock()
	defer lock.Unlock()

	records, err := lister(ctx)
	if err != nil {
		return newStoreError(opRefresh, "list_failed", err)
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return newStoreError(opRefresh, "encode_failed", err)
	}
	if err := s.store.Set(ctx, entity, payload); err != nil {
		return newStoreError(opRefresh, "store_failed", err)
	}
	return nil
}

// RefreshAll rebuilds every registered snapshot and reports every failure.
func (s *Synchronizer) RefreshAll(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var errs []error
	for _, entity := range s.Entities() {
		if err := s.Refresh(ctx, entity); err != nil {
			s.warn(entity, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Trigger refreshes after a mutation. Failures are logged and never returned.
func (s *Synchronizer) Trigger(ctx context.Context, entity string) {
	if s == nil {
		return
	}
	if _, ok := s.listers.Load(entity); !ok {
		return
	}
	if !s.async {
		if err := s.Refresh(ctx, entity); err != nil {
			s.warn(entity, err)
		}
		return
	}

	detached := context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		refreshCtx, cancel := context.WithTimeout(detached, s.refreshTimeout)
		defer cancel()
		if err := s.Refresh(refreshCtx, entity); err != nil {
			s.warn(entity, err)
		}
	}()
}

// Wait blocks until every asynchronous refresh dispatched so far has finished.
func (s *Synchronizer) Wait() {
	if s == nil {
		return
	}
	s.pending.Wait()
}

// Run refreshes all snapshots every interval until ctx is done.
// An interval of zero or less disables the loop.
func (s *Synchronizer) Run(ctx context.Context, interval time.Duration) {
	if s == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(ctx, s.refreshTimeout)
			_ = s.RefreshAll(refreshCtx)
			cancel()
		}
	}
}

// Snapshot returns the stored JSON for entity. ok is false when no snapshot
// exists or the cache cannot be reached.
func (s *Synchronizer) Snapshot(ctx context.Context, entity string) ([]byte, bool) {
	if s == nil {
		return nil, false
	}
	payload, err := s.store.Get(ctx, entity)
	if err != nil {
		if !errors.Is(err, cachestore.ErrCacheMiss) {
			s.logger.Warn("cache snapshot unavailable",
				zap.String("operation", opSnapshot),
				zap.String("entity", entity),
				zap.Error(err))
		}
		return nil, false
	}
	return payload, true
}

// CachedList decodes the snapshot of entity into a slice of E.
func CachedList[E any](ctx context.Context, s *Synchronizer, entity string) ([]E, bool) {
	payload, ok := s.Snapshot(ctx, entity)
	if !ok {
		return nil, false
	}
	records := make([]E, 0)
	if err := json.Unmarshal(payload, &records); err != nil {
		s.logger.Warn("cache snapshot undecodable",
			zap.String("operation", opSnapshot),
			zap.String("entity", entity),
			zap.Error(err))
		return nil, false
	}
	return records, true
}

func (s *Synchronizer) warn(entity string, err error) {
	s.logger.Warn("cache refresh failed",
		zap.String("operation", opRefresh),
		zap.String("entity", entity),
		zap.Error(err))
}
