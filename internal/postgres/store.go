package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"roundtrip-router/internal/database"
	"roundtrip-router/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS saved_routes (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	requested_minutes DOUBLE PRECISION NOT NULL,
	pace_minutes_per_km DOUBLE PRECISION NOT NULL,
	shape TEXT NOT NULL,
	total_distance_km DOUBLE PRECISION NOT NULL,
	estimated_duration_minutes DOUBLE PRECISION NOT NULL,
	fallback_used BOOLEAN NOT NULL DEFAULT FALSE,
	route_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_saved_routes_created ON saved_routes(created_at DESC);
`

// Store is a PostgreSQL data store implementing database.DataStore
type Store struct {
	pool      *pgxpool.Pool
	routeRepo database.RouteRepository
}

// New connects to databaseURL and ensures the schema exists
func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: verify connection: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}

	log.Printf("[POSTGRES] Connected to %s/%s", cfg.ConnConfig.Host, cfg.ConnConfig.Database)
	return &Store{pool: pool, routeRepo: &routeRepository{pool: pool}}, nil
}

// Close releases the connection pool
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// HealthCheck verifies the database connection
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Routes() database.RouteRepository { return s.routeRepo }

var _ database.DataStore = (*Store)(nil)

type routeRepository struct {
	pool *pgxpool.Pool
}

const routeColumns = `id::text, name, requested_minutes, pace_minutes_per_km, route_json, created_at`

func (r *routeRepository) List(ctx context.Context, limit, offset int) ([]models.SavedRoute, int, error) {
	limit, offset = database.ClampPage(limit, offset)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM saved_routes`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository.ListRoutes: count: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT `+routeColumns+`
		FROM saved_routes
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("repository.ListRoutes: %w", err)
	}
	defer rows.Close()

	routes := []models.SavedRoute{}
	for rows.Next() {
		route, err := scanRoute(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repository.ListRoutes: %w", err)
		}
		routes = append(routes, *route)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repository.ListRoutes: %w", err)
	}
	return routes, total, nil
}

func (r *routeRepository) GetByID(ctx context.Context, id string) (*models.SavedRoute, error) {
	if !database.ValidID(id) {
		return nil, database.ErrInvalidID
	}

	row := r.pool.QueryRow(ctx, `SELECT `+routeColumns+` FROM saved_routes WHERE id = $1`, id)
	route, err := scanRoute(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository.GetRoute: %w", err)
	}
	return route, nil
}

func (r *routeRepository) Create(ctx context.Context, route *models.SavedRoute) (*models.SavedRoute, error) {
	saved, body, err := database.PrepareRoute(route, time.Now())
	if err != nil {
		return nil, err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO saved_routes
			(id, name, requested_minutes, pace_minutes_per_km, shape, total_distance_km,
			 estimated_duration_minutes, fallback_used, route_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		saved.ID, saved.Name, saved.RequestedMinutes, saved.PaceMinutesPerKm,
		string(saved.Route.Shape), saved.Route.TotalDistanceKm, saved.Route.EstimatedDurationMinutes,
		saved.Route.FallbackUsed, body, saved.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("repository.CreateRoute: %w", err)
	}

	log.Printf("[POSTGRES] Saved route: id=%s name=%q distance=%.3fkm", saved.ID, saved.Name, saved.Route.TotalDistanceKm)
	return saved, nil
}

func (r *routeRepository) Delete(ctx context.Context, id string) error {
	if !database.ValidID(id) {
		return database.ErrInvalidID
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM saved_routes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository.DeleteRoute: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

func scanRoute(row pgx.Row) (*models.SavedRoute, error) {
	var route models.SavedRoute
	var body []byte
	if err := row.Scan(&route.ID, &route.Name, &route.RequestedMinutes, &route.PaceMinutesPerKm, &body, &route.CreatedAt); err != nil {
		return nil, err
	}
	if err := database.DecodeRoute(body, &route); err != nil {
		return nil, err
	}
	return &route, nil
}
