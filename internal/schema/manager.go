// Package schema versions the persisted store and applies pending migration
// steps at startup. Steps are ordered, idempotent and each runs in its own
// write transaction together with the version bump it performs, so a crash
// mid-migration leaves the store at the last fully applied version.
package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/counterbook/counterbook/internal/storage"
)

// ErrMigrationFailure indicates a migration step could not be applied. The
// engine treats it as fatal: it never runs against a half-migrated store.
var ErrMigrationFailure = errors.New("schema migration failure")

// Step is one ordered migration. Apply must be idempotent: re-running a step
// against a store that already has its shape is a no-op.
type Step struct {
	Version int
	Name    string
	Apply   func(ctx context.Context, tx storage.Tx) error
}

// Manager applies migration steps against a backend.
type Manager struct {
	backend storage.Backend
	steps   []Step
	log     *slog.Logger
}

// NewManager builds a Manager. Steps must carry strictly ascending versions.
func NewManager(backend storage.Backend, logger *slog.Logger, steps []Step) (*Manager, error) {
	prev := 0
	for _, s := range steps {
		if s.Version <= prev {
			return nil, fmt.Errorf("%w: step %q version %d not ascending", ErrMigrationFailure, s.Name, s.Version)
		}
		prev = s.Version
	}
	return &Manager{backend: backend, steps: steps, log: logger}, nil
}

// CurrentVersion reads the persisted schema version.
func (m *Manager) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.backend.WithRead(ctx, func(tx storage.Tx) error {
		v, err := tx.Meta().SchemaVersion(ctx)
		if err != nil {
			return err
		}
		version = v
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: read version: %w", ErrMigrationFailure, err)
	}
	return version, nil
}

// TargetVersion is the version a fully migrated store carries.
func (m *Manager) TargetVersion() int {
	if len(m.steps) == 0 {
		return 0
	}
	return m.steps[len(m.steps)-1].Version
}

// ApplyPending applies every step above the persisted version, in order.
// Each step commits atomically with its version bump; already applied steps
// are skipped, so running ApplyPending twice is a no-op.
func (m *Manager) ApplyPending(ctx context.Context) error {
	for _, step := range m.steps {
		applied := false
		err := m.backend.WithWrite(ctx, func(tx storage.Tx) error {
			version, err := tx.Meta().SchemaVersion(ctx)
			if err != nil {
				return err
			}
			if version >= step.Version {
				return nil
			}
			if err := step.Apply(ctx, tx); err != nil {
				return err
			}
			applied = true
			return tx.Meta().SetSchemaVersion(ctx, step.Version)
		})
		if err != nil {
			return fmt.Errorf("%w: step %q (v%d): %w", ErrMigrationFailure, step.Name, step.Version, err)
		}
		if applied {
			m.log.Info("schema step applied",
				slog.Int("version", step.Version),
				slog.String("name", step.Name))
		}
	}
	return nil
}
