package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/roomhaven/roomhaven/internal/search"
	"github.com/roomhaven/roomhaven/internal/storage"
	"github.com/roomhaven/roomhaven/pkg/types"
)

// ListingStore implements the search storage interfaces on SQLite.
type ListingStore struct {
	db *sql.DB
}

// NewListingStore opens a SQLite-backed listing store. The dsn is a file
// path or ":memory:". The schema is applied idempotently on startup.
func NewListingStore(dsn string) (*ListingStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &ListingStore{db: db}, nil
}

// GetDB returns the underlying database connection.
func (s *ListingStore) GetDB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *ListingStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// UpsertListing creates or replaces a listing together with its facet
// dimension rows. Used by fixtures and the dev ingest path.
func (s *ListingStore) UpsertListing(ctx context.Context, l *types.Listing, amenities, houseRules, languages []string) error {
	if l == nil || l.ID == "" {
		return storage.ErrInvalidInput
	}

	price, err := parseNullableReal(l.Price, "price")
	if err != nil {
		return err
	}
	avgRating, err := parseNullableReal(l.AvgRating, "avg_rating")
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin upsert tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC().UnixNano()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO listings (id, title, description, room_type, price, avg_rating,
			review_count, view_count, lat, lng, listing_created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			room_type = excluded.room_type,
			price = excluded.price,
			avg_rating = excluded.avg_rating,
			review_count = excluded.review_count,
			view_count = excluded.view_count,
			lat = excluded.lat,
			lng = excluded.lng,
			updated_at = excluded.updated_at`,
		l.ID, l.Title, l.Description, l.RoomType, price, avgRating,
		l.ReviewCount, l.ViewCount, l.Lat, l.Lng, l.CreatedAt.UTC().UnixNano(), now)
	if err != nil {
		return fmt.Errorf("sqlite: upsert listing %s: %w", l.ID, err)
	}

	for table, values := range map[string][]string{
		"listing_amenities":   amenities,
		"listing_house_rules": houseRules,
		"listing_languages":   languages,
	} {
		column := "name"
		if table == "listing_languages" {
			column = "code"
		}
		if _, err = tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE listing_id = ?", table), l.ID); err != nil {
			return fmt.Errorf("sqlite: clear %s for %s: %w", table, l.ID, err)
		}
		for _, v := range values {
			if _, err = tx.ExecContext(ctx, fmt.Sprintf(
				"INSERT OR IGNORE INTO %s (listing_id, %s) VALUES (?, ?)",
				table, column), l.ID, v); err != nil {
				return fmt.Errorf("sqlite: insert %s for %s: %w", table, l.ID, err)
			}
		}
	}

	return tx.Commit()
}

// RefreshRecommendedScores recomputes recommended_score for every listing,
// computing the score in Go so the formula has exactly one definition in
// this backend. Returns the number of rows updated.
func (s *ListingStore) RefreshRecommendedScores(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, COALESCE(avg_rating, 0), review_count, view_count, listing_created_at FROM listings")
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to load listings for score refresh: %w", err)
	}

	type scored struct {
		id    string
		score float64
	}
	var updates []scored
	now := time.Now().UTC()

	for rows.Next() {
		var id string
		var avgRating float64
		var reviewCount, viewCount int
		var createdAtNanos int64
		if err := rows.Scan(&id, &avgRating, &reviewCount, &viewCount, &createdAtNanos); err != nil {
			rows.Close()
			return 0, fmt.Errorf("sqlite: scan listing for score refresh: %w", err)
		}
		createdAt := time.Unix(0, createdAtNanos).UTC()
		updates = append(updates, scored{
			id:    id,
			score: search.ComputeRecommendedScore(avgRating, viewCount, reviewCount, createdAt, now),
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("sqlite: rows error during score refresh: %w", err)
	}
	rows.Close()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin score refresh tx: %w", err)
	}
	defer tx.Rollback()

	nowNanos := now.UnixNano()
	for _, u := range updates {
		if _, err := tx.ExecContext(ctx,
			"UPDATE listings SET recommended_score = ?, updated_at = ? WHERE id = ?",
			u.score, nowNanos, u.id); err != nil {
			return 0, fmt.Errorf("sqlite: update score for %s: %w", u.id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit score refresh: %w", err)
	}
	return len(updates), nil
}

// parseNullableReal converts a *string decimal to a driver-friendly value.
func parseNullableReal(s *string, field string) (interface{}, error) {
	if s == nil {
		return nil, nil
	}
	v, err := strconv.ParseFloat(*s, 64)
	if err != nil {
		return nil, fmt.Errorf("sqlite: invalid %s %q: %w", field, *s, err)
	}
	return v, nil
}

// formatReal renders a REAL column value the way the cursor and API layers
// expect decimals: shortest exact decimal representation.
func formatReal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// scanListingRows reads all rows of a listing query. The column order must
// match listingSelectColumns.
func scanListingRows(rows *sql.Rows) ([]types.Listing, error) {
	var listings []types.Listing
	for rows.Next() {
		var l types.Listing
		var price, avgRating, score sql.NullFloat64
		var createdAtNanos int64

		err := rows.Scan(
			&l.ID, &l.Title, &l.Description, &l.RoomType,
			&price, &avgRating, &l.ReviewCount, &l.ViewCount,
			&score, &l.Lat, &l.Lng, &createdAtNanos,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan listing row: %w", err)
		}

		if price.Valid {
			v := formatReal(price.Float64)
			l.Price = &v
		}
		if avgRating.Valid {
			v := formatReal(avgRating.Float64)
			l.AvgRating = &v
		}
		if score.Valid {
			v := formatReal(score.Float64)
			l.RecommendedScore = &v
		}
		l.CreatedAt = time.Unix(0, createdAtNanos).UTC()
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows error: %w", err)
	}
	return listings, nil
}
