package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"roundtrip-router/internal/database"
	"roundtrip-router/internal/models"
)

type routeRepository struct {
	store *Store
}

const routeColumns = `id, name, requested_minutes, pace_minutes_per_km, route_json, created_at`

func (r *routeRepository) List(ctx context.Context, limit, offset int) ([]models.SavedRoute, int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	limit, offset = database.ClampPage(limit, offset)

	var total int
	if err := r.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM saved_routes`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count routes: %w", err)
	}

	query := `SELECT ` + routeColumns + `
	          FROM saved_routes
	          ORDER BY created_at DESC, id
	          LIMIT ? OFFSET ?`
	rows, err := r.store.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	routes := []models.SavedRoute{}
	for rows.Next() {
		route, err := scanRoute(rows)
		if err != nil {
			return nil, 0, err
		}
		routes = append(routes, *route)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating routes: %w", err)
	}

	return routes, total, nil
}

func (r *routeRepository) GetByID(ctx context.Context, id string) (*models.SavedRoute, error) {
	if !database.ValidID(id) {
		return nil, database.ErrInvalidID
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	row := r.store.db.QueryRowContext(ctx, `SELECT `+routeColumns+` FROM saved_routes WHERE id = ?`, id)
	route, err := scanRoute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	return route, err
}

func (r *routeRepository) Create(ctx context.Context, route *models.SavedRoute) (*models.SavedRoute, error) {
	saved, body, err := database.PrepareRoute(route, time.Now())
	if err != nil {
		return nil, err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	query := `INSERT INTO saved_routes
	          (id, name, requested_minutes, pace_minutes_per_km, shape, total_distance_km,
	           estimated_duration_minutes, fallback_used, route_json, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.store.db.ExecContext(ctx, query,
		saved.ID, saved.Name, saved.RequestedMinutes, saved.PaceMinutesPerKm,
		string(saved.Route.Shape), saved.Route.TotalDistanceKm, saved.Route.EstimatedDurationMinutes,
		saved.Route.FallbackUsed, string(body), saved.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert route: %w", err)
	}

	log.Printf("[SQLITE] Saved route: id=%s name=%q distance=%.3fkm", saved.ID, saved.Name, saved.Route.TotalDistanceKm)
	return saved, nil
}

func (r *routeRepository) Delete(ctx context.Context, id string) error {
	if !database.ValidID(id) {
		return database.ErrInvalidID
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	result, err := r.store.db.ExecContext(ctx, `DELETE FROM saved_routes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete route: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoute(row rowScanner) (*models.SavedRoute, error) {
	var route models.SavedRoute
	var body string
	if err := row.Scan(&route.ID, &route.Name, &route.RequestedMinutes, &route.PaceMinutesPerKm, &body, &route.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan route: %w", err)
	}
	if err := database.DecodeRoute([]byte(body), &route); err != nil {
		return nil, err
	}
	return &route, nil
}
