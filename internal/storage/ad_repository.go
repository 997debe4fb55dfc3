package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/usdt-market/internal/models"
)

const adColumns = `id, title, description, image, bg_color, link, active, created_at, updated_at`

// AdRepository handles ad persistence
type AdRepository struct {
	db       *PostgresDB
	counters *CounterRepository
}

// NewAdRepository creates a new ad repository
func NewAdRepository(db *PostgresDB, counters *CounterRepository) *AdRepository {
	return &AdRepository{db: db, counters: counters}
}

// List returns all ads ordered by id
func (r *AdRepository) List(ctx context.Context) ([]*models.Ad, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT `+adColumns+` FROM ads ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ads: %w", err)
	}
	defer rows.Close()

	ads := make([]*models.Ad, 0)
	for rows.Next() {
		a, err := scanAd(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ad: %w", err)
		}
		ads = append(ads, a)
	}
	return ads, rows.Err()
}

// Create inserts an ad. A zero ID is replaced by the next counter value.
func (r *AdRepository) Create(ctx context.Context, a *models.Ad) (*models.Ad, error) {
	if a.ID == 0 {
		id, err := r.counters.Next(ctx, CounterAd)
		if err != nil {
			return nil, err
		}
		a.ID = id
	}

	query := `
		INSERT INTO ads (id, title, description, image, bg_color, link, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING ` + adColumns

	created, err := scanAd(r.db.Pool().QueryRow(ctx, query, a.ID, a.Title, a.Description, a.Image, a.BgColor, a.Link, a.Active))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("ad %d: %w", a.ID, ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to create ad: %w", err)
	}
	return created, nil
}

// Update replaces the editable fields of the ad with the given id
func (r *AdRepository) Update(ctx context.Context, a *models.Ad) (*models.Ad, error) {
	query := `
		UPDATE ads SET title = $2, description = $3, image = $4, bg_color = $5, link = $6,
			active = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + adColumns

	updated, err := scanAd(r.db.Pool().QueryRow(ctx, query, a.ID, a.Title, a.Description, a.Image, a.BgColor, a.Link, a.Active))
	if err != nil {
		return nil, notFound(err, "ad")
	}
	return updated, nil
}

// SetActive toggles whether the ad is shown
func (r *AdRepository) SetActive(ctx context.Context, id int64, active bool) (*models.Ad, error) {
	query := `UPDATE ads SET active = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + adColumns

	a, err := scanAd(r.db.Pool().QueryRow(ctx, query, id, active))
	if err != nil {
		return nil, notFound(err, "ad")
	}
	return a, nil
}

// Delete removes an ad. Deleting a missing ad is not an error.
func (r *AdRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.Pool().Exec(ctx, `DELETE FROM ads WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete ad: %w", err)
	}
	return nil
}

func scanAd(row pgx.Row) (*models.Ad, error) {
	var a models.Ad
	if err := row.Scan(&a.ID, &a.Title, &a.Description, &a.Image, &a.BgColor, &a.Link, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
