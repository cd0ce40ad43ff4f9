package grading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"univ_erp/backend/internal/shared"
	"univ_erp/backend/internal/store"
)

// ComponentCatalog manages the global grading component master list
type ComponentCatalog struct {
	repo    store.ComponentRepository
	gate    WriteGate
	audit   store.AuditLog
	timeout time.Duration
}

// NewComponentCatalog creates a catalog. audit may be nil.
func NewComponentCatalog(repo store.ComponentRepository, gate WriteGate, audit store.AuditLog, timeout time.Duration) *ComponentCatalog {
	return &ComponentCatalog{repo: repo, gate: gate, audit: audit, timeout: orDefault(timeout)}
}

// List returns every component ordered by id
func (c *ComponentCatalog) List(ctx context.Context) ([]shared.GradingComponent, error) {
	queryCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	list, err := c.repo.ListComponents(queryCtx)
	if err != nil {
		return nil, shared.NewStorageError("list components", err)
	}
	return list, nil
}

// Create adds a component. Only admins may extend the master list.
func (c *ComponentCatalog) Create(ctx context.Context, name string) (shared.GradingComponent, error) {
	caller := shared.CallerFromContext(ctx)
	if !caller.IsPrivileged() {
		return shared.GradingComponent{}, &shared.PermissionError{Role: caller.Role, Operation: "create grading components"}
	}
	if err := c.gate.CheckWrite(ctx, "create component"); err != nil {
		return shared.GradingComponent{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return shared.GradingComponent{}, shared.NewValidationError("name", "component name is required")
	}
	if strings.ContainsAny(name, ",\"\r\n") {
		return shared.GradingComponent{}, shared.NewValidationError("name", "component name %q may not contain commas, quotes or line breaks", name)
	}

	queryCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	created, err := c.repo.CreateComponent(queryCtx, name)
	if err != nil {
		if errors.Is(err, shared.ErrValidation) {
			return shared.GradingComponent{}, err
		}
		return shared.GradingComponent{}, shared.NewStorageError("create component", err)
	}

	store.LogAuditEvent(ctx, c.audit, shared.ActionComponentCreate, fmt.Sprintf("component:%d", created.ID),
		map[string]interface{}{"name": created.Name})
	return created, nil
}
