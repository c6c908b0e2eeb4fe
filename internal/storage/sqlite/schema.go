// Package sqlite provides the SQLite implementation of the search storage
// interfaces. It is the development and test backend: functionally
// equivalent to the PostgreSQL provider for pagination and filtering, with
// simpler text matching (LIKE instead of full-text search) and no embedding
// similarity.
package sqlite

// Schema contains the SQL statements to create the database schema for
// SQLite. All statements are idempotent (IF NOT EXISTS).
//
// listing_created_at and updated_at are stored as unix nanoseconds so the
// keyset comparisons stay plain integer comparisons.
const Schema = `
CREATE TABLE IF NOT EXISTS listings (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    room_type TEXT NOT NULL DEFAULT 'entire_place',

    price REAL,
    avg_rating REAL,
    review_count INTEGER NOT NULL DEFAULT 0,
    view_count INTEGER NOT NULL DEFAULT 0,
    recommended_score REAL,

    lat REAL NOT NULL,
    lng REAL NOT NULL,

    listing_created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS listing_amenities (
    listing_id TEXT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    PRIMARY KEY (listing_id, name)
);

CREATE TABLE IF NOT EXISTS listing_house_rules (
    listing_id TEXT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    PRIMARY KEY (listing_id, name)
);

CREATE TABLE IF NOT EXISTS listing_languages (
    listing_id TEXT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
    code TEXT NOT NULL,
    PRIMARY KEY (listing_id, code)
);

CREATE INDEX IF NOT EXISTS idx_listings_recommended
    ON listings (recommended_score DESC, listing_created_at DESC, id ASC);
CREATE INDEX IF NOT EXISTS idx_listings_newest
    ON listings (listing_created_at DESC, id ASC);
CREATE INDEX IF NOT EXISTS idx_listings_price
    ON listings (price, listing_created_at DESC, id ASC);
CREATE INDEX IF NOT EXISTS idx_listings_rating
    ON listings (avg_rating DESC, review_count DESC, listing_created_at DESC, id ASC);
CREATE INDEX IF NOT EXISTS idx_listings_geo
    ON listings (lat, lng);

CREATE INDEX IF NOT EXISTS idx_listing_amenities_name ON listing_amenities (name);
CREATE INDEX IF NOT EXISTS idx_listing_house_rules_name ON listing_house_rules (name);
CREATE INDEX IF NOT EXISTS idx_listing_languages_code ON listing_languages (code);
`
