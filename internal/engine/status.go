package engine

import (
	"context"

	"github.com/counterbook/counterbook/internal/storage"
)

// Status reports which backend carries the store and how far its schema has
// been migrated.
type Status struct {
	Backend        storage.Kind `json:"backend"`
	FallbackActive bool         `json:"fallback_active"`
	SchemaVersion  int          `json:"schema_version"`
	TargetVersion  int          `json:"target_version"`
	Migrated       bool         `json:"migrated"`
}

// DatabaseStatus reads the current backend and schema state.
func (e *Engine) DatabaseStatus(ctx context.Context) (Status, error) {
	version, err := e.mgr.CurrentVersion(ctx)
	if err != nil {
		return Status{}, err
	}
	kind := e.backend.Kind()
	return Status{
		Backend:        kind,
		FallbackActive: kind == storage.KindBadger,
		SchemaVersion:  version,
		TargetVersion:  e.mgr.TargetVersion(),
		Migrated:       version >= e.mgr.TargetVersion(),
	}, nil
}
