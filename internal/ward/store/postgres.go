package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"freewalk/internal/ward"
	"freewalk/internal/ward/models"
	id "freewalk/pkg/domain"
)

// PostgresStore persists ward boundaries as GeoJSON MultiPolygon coordinates.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed ward store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ListWards(ctx context.Context) ([]models.Ward, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, boundary FROM wards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list wards: %w", err)
	}
	defer rows.Close()

	var wards []models.Ward
	for rows.Next() {
		var (
			w        models.Ward
			boundary []byte
		)
		if err := rows.Scan(&w.ID, &w.Name, &boundary); err != nil {
			return nil, fmt.Errorf("scan ward: %w", err)
		}
		w.Boundary, err = ward.DecodeGeometry("MultiPolygon", json.RawMessage(boundary))
		if err != nil {
			return nil, fmt.Errorf("decode ward %d boundary: %w", w.ID, err)
		}
		wards = append(wards, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wards: %w", err)
	}
	return wards, nil
}

// Upsert inserts a ward or replaces the boundary of the ward with the same name.
// The ward keeps its id across upserts.
func (s *PostgresStore) Upsert(ctx context.Context, w models.Ward) (id.WardID, error) {
	boundary, err := ward.EncodeGeometry(w.Boundary)
	if err != nil {
		return 0, err
	}
	query := `
		INSERT INTO wards (name, boundary)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET boundary = EXCLUDED.boundary
		RETURNING id
	`
	var wardID id.WardID
	if err := s.db.QueryRowContext(ctx, query, w.Name, []byte(boundary)).Scan(&wardID); err != nil {
		return 0, fmt.Errorf("upsert ward: %w", err)
	}
	return wardID, nil
}
