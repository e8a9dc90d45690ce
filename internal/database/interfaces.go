package database

import (
	"context"

	"roundtrip-router/internal/models"
)

// DataStore is the interface for data persistence
type DataStore interface {
	Close() error
	HealthCheck(ctx context.Context) error
	Routes() RouteRepository
}

// RouteRepository handles saved route persistence
type RouteRepository interface {
	// List returns saved routes newest first, plus the total count
	List(ctx context.Context, limit, offset int) ([]models.SavedRoute, int, error)
	GetByID(ctx context.Context, id string) (*models.SavedRoute, error)
	Create(ctx context.Context, r *models.SavedRoute) (*models.SavedRoute, error)
	Delete(ctx context.Context, id string) error
}
