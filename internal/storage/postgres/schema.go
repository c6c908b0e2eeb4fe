// Package postgres provides the PostgreSQL implementation of the search
// storage interfaces.
package postgres

// Schema contains the SQL statements to create the database schema for
// PostgreSQL. All statements are idempotent (IF NOT EXISTS).
const Schema = `
-- Listings table: the search document. recommended_score is precomputed by
-- RefreshRecommendedScores and consumed by the recommended sort.
CREATE TABLE IF NOT EXISTS listings (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    room_type TEXT NOT NULL DEFAULT 'entire_place',

    price NUMERIC(12, 2),
    avg_rating NUMERIC(4, 2),
    review_count INTEGER NOT NULL DEFAULT 0,
    view_count INTEGER NOT NULL DEFAULT 0,
    recommended_score NUMERIC,

    lat DOUBLE PRECISION NOT NULL,
    lng DOUBLE PRECISION NOT NULL,

    listing_created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Facet dimension tables (one row per listing/value pair).
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

-- Keyset orderings always terminate in id ASC, so every sort mode walks one
-- of these composite indexes.
CREATE INDEX IF NOT EXISTS idx_listings_recommended
    ON listings (recommended_score DESC NULLS LAST, listing_created_at DESC, id ASC);
CREATE INDEX IF NOT EXISTS idx_listings_newest
    ON listings (listing_created_at DESC, id ASC);
CREATE INDEX IF NOT EXISTS idx_listings_price
    ON listings (price NULLS LAST, listing_created_at DESC, id ASC);
CREATE INDEX IF NOT EXISTS idx_listings_rating
    ON listings (avg_rating DESC NULLS LAST, review_count DESC, listing_created_at DESC, id ASC);
CREATE INDEX IF NOT EXISTS idx_listings_geo
    ON listings (lat, lng);

CREATE INDEX IF NOT EXISTS idx_listing_amenities_name ON listing_amenities (name);
CREATE INDEX IF NOT EXISTS idx_listing_house_rules_name ON listing_house_rules (name);
CREATE INDEX IF NOT EXISTS idx_listing_languages_code ON listing_languages (code);
`

// MigrationFTS adds full-text search support to the listings table using
// PostgreSQL's tsvector/GIN approach. A regular tsvector column (not
// GENERATED ALWAYS AS) is used for maximum compatibility across PostgreSQL
// versions; a trigger keeps it current. Safe to run multiple times.
const MigrationFTS = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'listings' AND column_name = 'search_vector'
    ) THEN
        ALTER TABLE listings ADD COLUMN search_vector tsvector;
    END IF;
END
$$;

-- Populate the search vector for any existing rows.
UPDATE listings
SET search_vector = to_tsvector('english', title || ' ' || description)
WHERE search_vector IS NULL;

-- Keep the search vector current on insert/update.
CREATE OR REPLACE FUNCTION listings_search_vector_update() RETURNS trigger AS $$
BEGIN
    NEW.search_vector := to_tsvector('english', NEW.title || ' ' || NEW.description);
    RETURN NEW;
END
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_listings_search_vector ON listings;
CREATE TRIGGER trg_listings_search_vector
    BEFORE INSERT OR UPDATE OF title, description ON listings
    FOR EACH ROW EXECUTE FUNCTION listings_search_vector_update();

CREATE INDEX IF NOT EXISTS idx_listings_search_vector ON listings USING GIN(search_vector);
`

// MigrationPgvector adds the embedding column used by SimilarListings.
// Applied only when the vector extension is available. Safe to run
// multiple times.
const MigrationPgvector = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'listings' AND column_name = 'embedding'
    ) THEN
        ALTER TABLE listings ADD COLUMN embedding vector(384);
    END IF;
END
$$;

-- ivfflat requires at least one row; guard index creation.
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM pg_indexes WHERE indexname = 'idx_listings_embedding_cosine'
    ) AND EXISTS (SELECT 1 FROM listings WHERE embedding IS NOT NULL LIMIT 1) THEN
        CREATE INDEX idx_listings_embedding_cosine
            ON listings USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
    END IF;
END
$$;
`
