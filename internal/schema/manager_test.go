package schema

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/counterbook/counterbook/internal/storage"
	"github.com/counterbook/counterbook/internal/storage/badgerstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openBackend(t *testing.T) storage.Backend {
	t.Helper()
	backend, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestApplyPendingAdvancesToTarget(t *testing.T) {
	backend := openBackend(t)
	mgr, err := NewManager(backend, testLogger(), DefaultSteps(10))
	require.NoError(t, err)

	ctx := context.Background()
	v, err := mgr.CurrentVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, v)

	require.NoError(t, mgr.ApplyPending(ctx))

	v, err = mgr.CurrentVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, mgr.TargetVersion(), v)
	require.Equal(t, 5, v)
}

func TestApplyPendingIsIdempotent(t *testing.T) {
	backend := openBackend(t)

	applied := 0
	steps := []Step{{
		Version: 1,
		Name:    "counting",
		Apply: func(ctx context.Context, tx storage.Tx) error {
			applied++
			return nil
		},
	}}
	mgr, err := NewManager(backend, testLogger(), steps)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.ApplyPending(ctx))
	require.NoError(t, mgr.ApplyPending(ctx))
	require.Equal(t, 1, applied)
}

func TestApplyPendingStopsAtFailingStep(t *testing.T) {
	backend := openBackend(t)

	boom := errors.New("boom")
	steps := []Step{
		{
			Version: 1,
			Name:    "ok",
			Apply:   func(ctx context.Context, tx storage.Tx) error { return nil },
		},
		{
			Version: 2,
			Name:    "broken",
			Apply:   func(ctx context.Context, tx storage.Tx) error { return boom },
		},
	}
	mgr, err := NewManager(backend, testLogger(), steps)
	require.NoError(t, err)

	ctx := context.Background()
	err = mgr.ApplyPending(ctx)
	require.ErrorIs(t, err, ErrMigrationFailure)
	require.ErrorIs(t, err, boom)

	// The failed step's transaction was discarded; the store sits at v1.
	v, err := mgr.CurrentVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestNewManagerRejectsNonAscendingVersions(t *testing.T) {
	backend := openBackend(t)

	steps := []Step{
		{Version: 2, Name: "second", Apply: func(ctx context.Context, tx storage.Tx) error { return nil }},
		{Version: 1, Name: "first", Apply: func(ctx context.Context, tx storage.Tx) error { return nil }},
	}
	_, err := NewManager(backend, testLogger(), steps)
	require.ErrorIs(t, err, ErrMigrationFailure)
}
