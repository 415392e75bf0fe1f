package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store defines the catalog data operations.
type Store interface {
	EntriesByName(ctx context.Context, normalizedName string) ([]Entry, error)
	ListEntries(ctx context.Context) ([]Entry, error)
	EnsureEntry(ctx context.Context, nameFr, unitFr string) error
	InsertEntry(ctx context.Context, e *Entry) error
	UpdatePrice(ctx context.Context, id int64, currency Currency, price float64, packQty float64) error
	ConversionCategory(ctx context.Context, normalizedName string) (string, error)
	GenericConversionsFrom(ctx context.Context, fromUnit, category string) ([]UnitConversion, error)
	AllGenericConversions(ctx context.Context) ([]UnitConversion, error)
	SpecificConversion(ctx context.Context, ingredientName, fromUnit string) (*SpecificConversion, error)
	CreateSpecificConversion(ctx context.Context, sc *SpecificConversion) (bool, error)
	AllUnits(ctx context.Context) ([]Unit, error)
	Dedupe(ctx context.Context) (int, error)
	Transact(ctx context.Context, fn func(Store) error) error
}

// queryer is the subset of sqlx operations the store queries need, satisfied
// by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// PostgresStore implements Store for PostgreSQL. Queries run against q,
// which is the pool normally and a transaction inside Transact.
type PostgresStore struct {
	db *sqlx.DB
	q  queryer
}

// NewPostgresStore connects to the database, creates the catalog tables if
// they do not exist and seeds the units reference data.
func NewPostgresStore(dataSourceName string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s := &PostgresStore{db: db, q: db}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromDB wraps an existing connection, sharing it with other
// stores. The schema is still bootstrapped.
func NewPostgresStoreFromDB(db *sqlx.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db, q: db}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying connection so other stores can share it.
func (s *PostgresStore) DB() *sqlx.DB {
	return s.db
}

// Transact runs fn against a store whose queries share one transaction,
// committed when fn returns nil.
func (s *PostgresStore) Transact(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&PostgresStore{db: s.db, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ingredient_price_catalog (
		id SERIAL PRIMARY KEY,
		name_fr TEXT NOT NULL,
		name_fr_normalized TEXT NOT NULL,
		name_jp TEXT NOT NULL DEFAULT '',
		unit_fr TEXT NOT NULL DEFAULT '',
		unit_jp TEXT NOT NULL DEFAULT '',
		price_eur DOUBLE PRECISION,
		price_jpy DOUBLE PRECISION,
		pack_qty DOUBLE PRECISION NOT NULL DEFAULT 1.0,
		conversion_category TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_catalog_name_normalized
		ON ingredient_price_catalog (name_fr_normalized);

	CREATE TABLE IF NOT EXISTS unit_conversion (
		id SERIAL PRIMARY KEY,
		from_unit TEXT NOT NULL,
		to_unit TEXT NOT NULL,
		factor DOUBLE PRECISION NOT NULL CHECK (factor > 0),
		category TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS ingredient_specific_conversions (
		id SERIAL PRIMARY KEY,
		ingredient_name TEXT NOT NULL,
		from_unit TEXT NOT NULL,
		to_unit TEXT NOT NULL,
		factor DOUBLE PRECISION NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		UNIQUE (ingredient_name, from_unit)
	);

	CREATE TABLE IF NOT EXISTS units (
		code TEXT PRIMARY KEY,
		name_fr TEXT NOT NULL,
		name_jp TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create catalog tables: %w", err)
	}
	return s.seed()
}

// seed inserts the units reference rows and the base generic conversions.
// Existing rows are left untouched so user edits survive restarts.
func (s *PostgresStore) seed() error {
	units := []Unit{
		{Code: "g", NameFr: "g", NameJp: "g"},
		{Code: "kg", NameFr: "kg", NameJp: "kg"},
		{Code: "ml", NameFr: "ml", NameJp: "ml"},
		{Code: "l", NameFr: "L", NameJp: "L"},
		{Code: "cs", NameFr: "c. à soupe", NameJp: "大さじ"},
		{Code: "cc", NameFr: "c. à café", NameJp: "小さじ"},
		{Code: "tasse", NameFr: "tasse", NameJp: "カップ"},
		{Code: "piece", NameFr: "pièce", NameJp: "個"},
		{Code: "pincee", NameFr: "pincée", NameJp: "ひとつまみ"},
	}
	for _, u := range units {
		_, err := s.db.Exec(
			`INSERT INTO units (code, name_fr, name_jp) VALUES ($1, $2, $3) ON CONFLICT (code) DO NOTHING`,
			u.Code, u.NameFr, u.NameJp,
		)
		if err != nil {
			return fmt.Errorf("failed to seed unit %s: %w", u.Code, err)
		}
	}

	var count int
	if err := s.db.Get(&count, `SELECT COUNT(*) FROM unit_conversion`); err != nil {
		return fmt.Errorf("failed to count conversions: %w", err)
	}
	if count > 0 {
		return nil
	}
	conversions := []UnitConversion{
		{FromUnit: "g", ToUnit: "kg", Factor: 0.001, Category: "poids"},
		{FromUnit: "kg", ToUnit: "g", Factor: 1000, Category: "poids"},
		{FromUnit: "ml", ToUnit: "l", Factor: 0.001, Category: "volume"},
		{FromUnit: "l", ToUnit: "ml", Factor: 1000, Category: "volume"},
		{FromUnit: "cs", ToUnit: "ml", Factor: 15, Category: "volume"},
		{FromUnit: "cc", ToUnit: "ml", Factor: 5, Category: "volume"},
		{FromUnit: "tasse", ToUnit: "ml", Factor: 250, Category: "volume"},
		{FromUnit: "cs", ToUnit: "g", Factor: 15, Category: "poids"},
		{FromUnit: "cc", ToUnit: "g", Factor: 5, Category: "poids"},
	}
	for _, c := range conversions {
		_, err := s.db.Exec(
			`INSERT INTO unit_conversion (from_unit, to_unit, factor, category) VALUES ($1, $2, $3, $4)`,
			c.FromUnit, c.ToUnit, c.Factor, c.Category,
		)
		if err != nil {
			return fmt.Errorf("failed to seed conversion %s->%s: %w", c.FromUnit, c.ToUnit, err)
		}
	}
	return nil
}

const entryColumns = `id, name_fr, name_fr_normalized, name_jp, unit_fr, unit_jp, price_eur, price_jpy, pack_qty, conversion_category`

// EntriesByName returns every catalog row for a normalized ingredient name.
// An ingredient may be priced in several pack units, so callers must try
// all returned rows, not just the first.
func (s *PostgresStore) EntriesByName(ctx context.Context, normalizedName string) ([]Entry, error) {
	var entries []Entry
	err := s.q.SelectContext(ctx, &entries,
		`SELECT `+entryColumns+` FROM ingredient_price_catalog WHERE name_fr_normalized = $1 ORDER BY id`,
		normalizedName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog entries: %w", err)
	}
	return entries, nil
}

// ListEntries returns the whole catalog ordered by French name.
func (s *PostgresStore) ListEntries(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := s.q.SelectContext(ctx, &entries,
		`SELECT `+entryColumns+` FROM ingredient_price_catalog ORDER BY name_fr, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog entries: %w", err)
	}
	return entries, nil
}

// EnsureEntry creates a price-null catalog row for an ingredient seen in a
// recipe when no row exists yet for its normalized name.
func (s *PostgresStore) EnsureEntry(ctx context.Context, nameFr, unitFr string) error {
	normalized := NormalizeName(nameFr)
	var count int
	err := s.q.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM ingredient_price_catalog WHERE name_fr_normalized = $1`, normalized)
	if err != nil {
		return fmt.Errorf("failed to check catalog entry: %w", err)
	}
	if count > 0 {
		return nil
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO ingredient_price_catalog (name_fr, name_fr_normalized, unit_fr) VALUES ($1, $2, $3)`,
		nameFr, normalized, unitFr,
	)
	if err != nil {
		return fmt.Errorf("failed to create catalog entry: %w", err)
	}
	return nil
}

// InsertEntry saves a manually created catalog row. The normalized name is
// derived here so callers cannot desynchronize it.
func (s *PostgresStore) InsertEntry(ctx context.Context, e *Entry) error {
	if e.PackQty == 0 {
		e.PackQty = 1.0
	}
	e.NameFrNormalized = NormalizeName(e.NameFr)
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO ingredient_price_catalog
			(name_fr, name_fr_normalized, name_jp, unit_fr, unit_jp, price_eur, price_jpy, pack_qty, conversion_category)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		e.NameFr, e.NameFrNormalized, e.NameJp, e.UnitFr, e.UnitJp, e.PriceEUR, e.PriceJPY, e.PackQty, e.ConversionCategory,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to insert catalog entry: %w", err)
	}
	return nil
}

// UpdatePrice sets the price for one currency on a catalog row. A zero
// packQty keeps the stored pack quantity.
func (s *PostgresStore) UpdatePrice(ctx context.Context, id int64, currency Currency, price float64, packQty float64) error {
	if !currency.Valid() {
		return fmt.Errorf("invalid currency %q", currency)
	}
	column := "price_eur"
	if currency == JPY {
		column = "price_jpy"
	}
	query := `UPDATE ingredient_price_catalog SET ` + column + ` = $1 WHERE id = $2`
	args := []interface{}{price, id}
	if packQty > 0 {
		query = `UPDATE ingredient_price_catalog SET ` + column + ` = $1, pack_qty = $2 WHERE id = $3`
		args = []interface{}{price, packQty, id}
	}
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update price: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update price: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("catalog entry %d not found", id)
	}
	return nil
}

// ConversionCategory returns the conversion category recorded on any catalog
// row for the ingredient, empty when unclassified.
func (s *PostgresStore) ConversionCategory(ctx context.Context, normalizedName string) (string, error) {
	var category string
	err := s.q.GetContext(ctx, &category,
		`SELECT conversion_category FROM ingredient_price_catalog
		 WHERE name_fr_normalized = $1 AND conversion_category <> '' ORDER BY id LIMIT 1`,
		normalizedName,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to get conversion category: %w", err)
	}
	return category, nil
}

// GenericConversionsFrom returns every generic conversion edge leaving
// fromUnit in the given category. A from_unit may have several outgoing
// edges (cs->g and cs->kg), so all rows are returned.
func (s *PostgresStore) GenericConversionsFrom(ctx context.Context, fromUnit, category string) ([]UnitConversion, error) {
	var conversions []UnitConversion
	err := s.q.SelectContext(ctx, &conversions,
		`SELECT id, from_unit, to_unit, factor, category FROM unit_conversion
		 WHERE LOWER(from_unit) = LOWER($1) AND category = $2 ORDER BY id`,
		fromUnit, category,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get generic conversions: %w", err)
	}
	return conversions, nil
}

// AllGenericConversions returns the whole generic conversion table.
func (s *PostgresStore) AllGenericConversions(ctx context.Context) ([]UnitConversion, error) {
	var conversions []UnitConversion
	err := s.q.SelectContext(ctx, &conversions,
		`SELECT id, from_unit, to_unit, factor, category FROM unit_conversion ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list generic conversions: %w", err)
	}
	return conversions, nil
}

// SpecificConversion returns the ingredient-scoped conversion for the pair,
// nil when none exists.
func (s *PostgresStore) SpecificConversion(ctx context.Context, ingredientName, fromUnit string) (*SpecificConversion, error) {
	var sc SpecificConversion
	err := s.q.GetContext(ctx, &sc,
		`SELECT id, ingredient_name, from_unit, to_unit, factor, note
		 FROM ingredient_specific_conversions
		 WHERE ingredient_name = $1 AND LOWER(from_unit) = LOWER($2)`,
		ingredientName, fromUnit,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get specific conversion: %w", err)
	}
	return &sc, nil
}

// CreateSpecificConversion inserts an ingredient-scoped conversion. The
// uniqueness constraint on (ingredient_name, from_unit) makes concurrent
// auto-creation race-safe: the loser gets created=false and must re-read.
func (s *PostgresStore) CreateSpecificConversion(ctx context.Context, sc *SpecificConversion) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO ingredient_specific_conversions (ingredient_name, from_unit, to_unit, factor, note)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (ingredient_name, from_unit) DO NOTHING`,
		sc.IngredientName, sc.FromUnit, sc.ToUnit, sc.Factor, sc.Note,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create specific conversion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to create specific conversion: %w", err)
	}
	return n > 0, nil
}

// AllUnits returns the units reference table.
func (s *PostgresStore) AllUnits(ctx context.Context) ([]Unit, error) {
	var units []Unit
	err := s.q.SelectContext(ctx, &units, `SELECT code, name_fr, name_jp FROM units ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	return units, nil
}

// Dedupe merges catalog rows sharing a normalized name, keeping the most
// complete row per ChooseKeeper and deleting the rest. It returns the
// number of deleted rows.
func (s *PostgresStore) Dedupe(ctx context.Context) (int, error) {
	entries, err := s.ListEntries(ctx)
	if err != nil {
		return 0, err
	}
	groups := make(map[string][]Entry)
	for _, e := range entries {
		groups[e.NameFrNormalized] = append(groups[e.NameFrNormalized], e)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin dedupe transaction: %w", err)
	}
	defer tx.Rollback()

	deleted := 0
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		keeper := ChooseKeeper(group)
		for _, e := range group {
			if e.ID == keeper.ID {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM ingredient_price_catalog WHERE id = $1`, e.ID); err != nil {
				return 0, fmt.Errorf("failed to delete duplicate entry %d: %w", e.ID, err)
			}
			deleted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit dedupe: %w", err)
	}
	return deleted, nil
}
