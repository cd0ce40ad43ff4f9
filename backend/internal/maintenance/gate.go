// Package maintenance implements the process-wide read-only switch that every
// mutating grading operation consults before it touches storage.
package maintenance

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"univ_erp/backend/internal/shared"
	"univ_erp/backend/internal/store"
)

// State is the gate position
type State string

const (
	Running     State = "RUNNING"
	Maintenance State = "MAINTENANCE"
)

var (
	blockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grading_maintenance_blocked_total",
		Help: "Writes refused by the maintenance gate, by operation and reason",
	}, []string{"operation", "reason"})

	toggleTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grading_maintenance_toggle_total",
		Help: "Maintenance toggles by requested state and result",
	}, []string{"state", "result"})
)

// Gate reads and writes the maintenance flag held in the settings table.
type Gate struct {
	settings store.SettingsRepository
	audit    store.AuditLog
	timeout  time.Duration
	reads    singleflight.Group
}

// NewGate creates a gate over the settings repository. audit may be nil.
func NewGate(settings store.SettingsRepository, audit store.AuditLog, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gate{settings: settings, audit: audit, timeout: timeout}
}

// State reads the persisted flag. A missing row means Running.
// Concurrent callers share one read, so it is bounded by the gate timeout
// rather than by whichever caller started it.
func (g *Gate) State(ctx context.Context) (State, error) {
	v, err, _ := g.reads.Do(shared.SettingMaintenance, func() (interface{}, error) {
		queryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()

		value, ok, err := g.settings.GetSetting(queryCtx, shared.SettingMaintenance)
		if err != nil {
			return Running, shared.NewStorageError("read maintenance flag", err)
		}
		if !ok {
			return Running, nil
		}
		return parseState(value), nil
	})
	return v.(State), err
}

// SetState persists the requested state and verifies it by reading it back.
// Only privileged callers may toggle; the toggle itself is never blocked.
func (g *Gate) SetState(ctx context.Context, on bool) (State, error) {
	caller := shared.CallerFromContext(ctx)
	requested := Running
	value := shared.MaintenanceOff
	if on {
		requested = Maintenance
		value = shared.MaintenanceOn
	}

	if !caller.IsPrivileged() {
		toggleTotal.WithLabelValues(string(requested), "denied").Inc()
		return "", &shared.PermissionError{Role: caller.Role, Operation: "toggle maintenance mode"}
	}

	writeCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.settings.PutSetting(writeCtx, shared.SettingMaintenance, value, caller.UserID); err != nil {
		toggleTotal.WithLabelValues(string(requested), "error").Inc()
		return "", shared.NewStorageError("write maintenance flag", err)
	}

	// Re-read authoritatively; a concurrent toggle or a failed write shows up here.
	g.reads.Forget(shared.SettingMaintenance)
	persisted, err := g.State(ctx)
	if err != nil {
		toggleTotal.WithLabelValues(string(requested), "error").Inc()
		return "", err
	}
	if persisted != requested {
		toggleTotal.WithLabelValues(string(requested), "mismatch").Inc()
		return persisted, &shared.StateMismatchError{Key: shared.SettingMaintenance, Requested: string(requested), Persisted: string(persisted)}
	}

	toggleTotal.WithLabelValues(string(requested), "ok").Inc()
	log.Printf("[MaintenanceGate] %s set maintenance %s", caller.UserID, value)
	store.LogAuditEvent(ctx, g.audit, shared.ActionMaintenanceToggle, shared.SettingMaintenance, map[string]interface{}{"value": value})
	return persisted, nil
}

// CheckWrite must be called before any side effect of a mutating operation.
// Privileged callers always pass. For everyone else an unreadable flag is
// treated as maintenance.
func (g *Gate) CheckWrite(ctx context.Context, operation string) error {
	if shared.CallerFromContext(ctx).IsPrivileged() {
		return nil
	}

	state, err := g.State(ctx)
	if err != nil {
		blockedTotal.WithLabelValues(operation, "unreadable").Inc()
		log.Printf("[MaintenanceGate] Blocking %s: %v", operation, err)
		return &shared.MaintenanceBlockedError{Operation: operation, Cause: err}
	}
	if state == Maintenance {
		blockedTotal.WithLabelValues(operation, "maintenance").Inc()
		return &shared.MaintenanceBlockedError{Operation: operation}
	}
	return nil
}

func parseState(value string) State {
	if strings.EqualFold(strings.TrimSpace(value), shared.MaintenanceOn) {
		return Maintenance
	}
	return Running
}
