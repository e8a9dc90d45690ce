package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundtrip-router/internal/database"
	"roundtrip-router/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "nested", "routes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRoute(name string, createdAt time.Time) *models.SavedRoute {
	start := models.Location{Lat: 35.6762, Lng: 139.7674}
	turn := models.Location{Lat: 35.6980, Lng: 139.7674}
	return &models.SavedRoute{
		Name:             name,
		RequestedMinutes: 30,
		PaceMinutesPerKm: 6,
		CreatedAt:        createdAt,
		Route: models.OptimizedRoute{
			StartLocation:            start,
			Waypoints:                []models.Location{turn},
			Path:                     []models.Location{start, turn, start},
			TotalDistanceKm:          4.85,
			EstimatedDurationMinutes: 29.1,
			Shape:                    models.ShapeOutAndBack,
			Score:                    9.5,
		},
	}
}

func TestRouteCreateAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	created, err := store.Routes().Create(ctx, sampleRoute("Morning run", time.Time{}))
	require.NoError(t, err)
	assert.True(t, database.ValidID(created.ID))
	assert.False(t, created.CreatedAt.IsZero())

	got, err := store.Routes().GetByID(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, "Morning run", got.Name)
	assert.Equal(t, 30.0, got.RequestedMinutes)
	assert.Equal(t, created.Route, got.Route)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
}

func TestRouteCreateDefaultsName(t *testing.T) {
	store := setupTestStore(t)

	created, err := store.Routes().Create(context.Background(), sampleRoute("  ", time.Time{}))
	require.NoError(t, err)
	assert.Equal(t, "30 min out-and-back", created.Name)
}

func TestRouteGetMissing(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Routes().GetByID(ctx, "0b6a2c1e-3d4f-4a5b-8c7d-9e0f1a2b3c4d")
	assert.ErrorIs(t, err, database.ErrNotFound)

	_, err = store.Routes().GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, database.ErrInvalidID)
}

func TestRouteListNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	for i, name := range []string{"first", "second", "third"} {
		_, err := store.Routes().Create(ctx, sampleRoute(name, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	routes, total, err := store.Routes().List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, routes, 2)
	assert.Equal(t, "third", routes[0].Name)
	assert.Equal(t, "second", routes[1].Name)

	routes, total, err = store.Routes().List(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, routes, 1)
	assert.Equal(t, "first", routes[0].Name)
}

func TestRouteListEmpty(t *testing.T) {
	store := setupTestStore(t)

	routes, total, err := store.Routes().List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NotNil(t, routes)
	assert.Empty(t, routes)
}

func TestRouteDelete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	created, err := store.Routes().Create(ctx, sampleRoute("to delete", time.Time{}))
	require.NoError(t, err)

	require.NoError(t, store.Routes().Delete(ctx, created.ID))

	_, err = store.Routes().GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.ErrorIs(t, store.Routes().Delete(ctx, created.ID), database.ErrNotFound)
}

func TestStoreReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.db")
	ctx := context.Background()

	store, err := New(path)
	require.NoError(t, err)
	created, err := store.Routes().Create(ctx, sampleRoute("persisted", time.Time{}))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Routes().GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Name)
	assert.Equal(t, path, reopened.GetDBPath())
}

func TestStoreHealthCheck(t *testing.T) {
	store := setupTestStore(t)
	assert.NoError(t, store.HealthCheck(context.Background()))
}
