// Package app opens the configured store and wires the grading services
// shared by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"log"

	"univ_erp/backend/internal/grading"
	"univ_erp/backend/internal/maintenance"
	"univ_erp/backend/internal/reconcile"
	"univ_erp/backend/internal/shared"
	"univ_erp/backend/internal/store"
	"univ_erp/backend/internal/store/memstore"
	"univ_erp/backend/internal/store/mongostore"
	"univ_erp/backend/internal/store/sqlstore"
	"univ_erp/backend/internal/undo"
)

// Services is the assembled grading engine
type Services struct {
	Config     *shared.ServiceConfig
	Store      store.Store
	Gate       *maintenance.Gate
	Ledger     *undo.Ledger
	Components *grading.ComponentCatalog
	Weights    *grading.WeightRegistry
	Marks      *grading.MarkStore
	Engine     *grading.Engine
	Reconciler *reconcile.Reconciler
}

// OpenStore connects to the backend named by cfg.Storage.Driver
func OpenStore(ctx context.Context, cfg *shared.ServiceConfig) (store.Store, error) {
	switch cfg.Storage.Driver {
	case shared.DriverMongo:
		return mongostore.Open(ctx, &cfg.MongoDB)
	case shared.DriverPostgres:
		return sqlstore.Open(ctx, cfg.Postgres)
	case shared.DriverMemory:
		log.Println("Warning: using the in-memory store; nothing will be persisted")
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// New wires every service on top of s
func New(cfg *shared.ServiceConfig, s store.Store) *Services {
	timeout := cfg.Storage.Timeout

	gate := maintenance.NewGate(s, s, timeout)
	ledger := undo.NewLedger(cfg.Grading.UndoCapacity, s, gate, s, timeout)
	weights := grading.NewWeightRegistry(s, s, gate, s, timeout)
	marks := grading.NewMarkStore(s, gate, timeout)
	engine := grading.NewEngine(grading.EngineConfig{
		FinalizeWithScaleNormalization: cfg.Grading.FinalizeWithScaleNormalization,
		Timeout:                        timeout,
	}, s, weights, marks, gate, ledger)

	return &Services{
		Config:     cfg,
		Store:      s,
		Gate:       gate,
		Ledger:     ledger,
		Components: grading.NewComponentCatalog(s, gate, s, timeout),
		Weights:    weights,
		Marks:      marks,
		Engine:     engine,
		Reconciler: reconcile.NewReconciler(s, gate, timeout),
	}
}

// Open is OpenStore followed by New
func Open(ctx context.Context, cfg *shared.ServiceConfig) (*Services, error) {
	s, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(cfg, s), nil
}

// Close releases the store
func (s *Services) Close(ctx context.Context) error {
	return s.Store.Close(ctx)
}
