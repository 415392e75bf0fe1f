package recipe

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/eppchris/recettes/internal/shopping"
)

// Store defines the recipe, event and shopping-list data operations.
type Store interface {
	GetRecipe(ctx context.Context, id int64) (*Recipe, error)
	ListRecipes(ctx context.Context) ([]Recipe, error)
	IngredientLines(ctx context.Context, recipeID int64, lang string) ([]IngredientLine, error)
	DistinctIngredients(ctx context.Context, lang string) ([]IngredientLine, error)
	GetEvent(ctx context.Context, id int64) (*Event, error)
	EventRecipes(ctx context.Context, eventID int64) ([]EventRecipe, error)
	SaveShoppingList(ctx context.Context, eventID int64, lang string, items []shopping.Item) (string, error)
	ShoppingList(ctx context.Context, listID string) ([]shopping.Item, error)
}

// PostgresStore implements Store for PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to the database and creates the recipe tables
// if they do not exist.
func NewPostgresStore(dataSourceName string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromDB wraps an existing connection, sharing it with the
// catalog store.
func NewPostgresStoreFromDB(db *sqlx.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying connection so other stores can share it.
func (s *PostgresStore) DB() *sqlx.DB {
	return s.db
}

func (s *PostgresStore) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS recipes (
		id SERIAL PRIMARY KEY,
		title_fr TEXT NOT NULL DEFAULT '',
		title_jp TEXT NOT NULL DEFAULT '',
		servings INTEGER NOT NULL DEFAULT 4
	);

	CREATE TABLE IF NOT EXISTS recipe_ingredients (
		id SERIAL PRIMARY KEY,
		recipe_id INTEGER NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
		lang TEXT NOT NULL DEFAULT 'fr',
		name TEXT NOT NULL,
		quantity DOUBLE PRECISION,
		unit TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS events (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		date_iso TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS event_recipes (
		event_id INTEGER NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		recipe_id INTEGER NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
		servings_multiplier DOUBLE PRECISION NOT NULL DEFAULT 1.0,
		position INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (event_id, recipe_id)
	);

	CREATE TABLE IF NOT EXISTS shopping_list_items (
		id SERIAL PRIMARY KEY,
		list_id TEXT NOT NULL,
		event_id INTEGER NOT NULL,
		lang TEXT NOT NULL DEFAULT 'fr',
		ingredient_name TEXT NOT NULL,
		total_quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
		purchase_unit TEXT NOT NULL DEFAULT '',
		source_recipes JSONB NOT NULL DEFAULT '[]',
		notes TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_shopping_list_items_list
		ON shopping_list_items (list_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create recipe tables: %w", err)
	}
	return nil
}

// GetRecipe retrieves a recipe by id, nil when not found.
func (s *PostgresStore) GetRecipe(ctx context.Context, id int64) (*Recipe, error) {
	var r Recipe
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title_fr, title_jp, servings FROM recipes WHERE id = $1`, id,
	).Scan(&r.ID, &r.TitleFr, &r.TitleJp, &r.Servings)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get recipe: %w", err)
	}
	return &r, nil
}

// ListRecipes returns all recipes ordered by French title.
func (s *PostgresStore) ListRecipes(ctx context.Context) ([]Recipe, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title_fr, title_jp, servings FROM recipes ORDER BY title_fr, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	defer rows.Close()

	var recipes []Recipe
	for rows.Next() {
		var r Recipe
		if err := rows.Scan(&r.ID, &r.TitleFr, &r.TitleJp, &r.Servings); err != nil {
			return nil, fmt.Errorf("failed to scan recipe row: %w", err)
		}
		recipes = append(recipes, r)
	}
	return recipes, rows.Err()
}

// IngredientLines returns a recipe's ingredient rows for one language
// translation, in position order.
func (s *PostgresStore) IngredientLines(ctx context.Context, recipeID int64, lang string) ([]IngredientLine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recipe_id, lang, name, quantity, unit, notes, position
		 FROM recipe_ingredients WHERE recipe_id = $1 AND lang = $2 ORDER BY position, id`,
		recipeID, lang,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get ingredient lines: %w", err)
	}
	defer rows.Close()
	return scanLines(rows)
}

// DistinctIngredients returns one line per distinct ingredient name across
// all recipes, used to sync the price catalog.
func (s *PostgresStore) DistinctIngredients(ctx context.Context, lang string) ([]IngredientLine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT ON (name) id, recipe_id, lang, name, quantity, unit, notes, position
		 FROM recipe_ingredients WHERE lang = $1 ORDER BY name, id`,
		lang,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get distinct ingredients: %w", err)
	}
	defer rows.Close()
	return scanLines(rows)
}

func scanLines(rows *sql.Rows) ([]IngredientLine, error) {
	var lines []IngredientLine
	for rows.Next() {
		var l IngredientLine
		var qty sql.NullFloat64
		if err := rows.Scan(&l.ID, &l.RecipeID, &l.Lang, &l.Name, &qty, &l.Unit, &l.Notes, &l.Position); err != nil {
			return nil, fmt.Errorf("failed to scan ingredient row: %w", err)
		}
		if qty.Valid {
			l.Quantity = qty.Float64
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// GetEvent retrieves an event by id, nil when not found.
func (s *PostgresStore) GetEvent(ctx context.Context, id int64) (*Event, error) {
	var e Event
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, date_iso FROM events WHERE id = $1`, id,
	).Scan(&e.ID, &e.Name, &e.DateISO)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &e, nil
}

// EventRecipes returns the recipes included in an event in position order,
// with their titles joined in.
func (s *PostgresStore) EventRecipes(ctx context.Context, eventID int64) ([]EventRecipe, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT er.event_id, er.recipe_id, er.servings_multiplier, er.position, r.title_fr, r.title_jp
		 FROM event_recipes er
		 JOIN recipes r ON r.id = er.recipe_id
		 WHERE er.event_id = $1
		 ORDER BY er.position, er.recipe_id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get event recipes: %w", err)
	}
	defer rows.Close()

	var out []EventRecipe
	for rows.Next() {
		var er EventRecipe
		if err := rows.Scan(&er.EventID, &er.RecipeID, &er.ServingsMultiplier, &er.Position, &er.TitleFr, &er.TitleJp); err != nil {
			return nil, fmt.Errorf("failed to scan event recipe row: %w", err)
		}
		out = append(out, er)
	}
	return out, rows.Err()
}

// SaveShoppingList persists an aggregated list, one row per item with the
// contributing recipe lines serialized as JSON, and returns the list id.
func (s *PostgresStore) SaveShoppingList(ctx context.Context, eventID int64, lang string, items []shopping.Item) (string, error) {
	listID := uuid.NewString()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin shopping list transaction: %w", err)
	}
	defer tx.Rollback()

	for _, item := range items {
		sources, err := json.Marshal(item.SourceRecipes)
		if err != nil {
			return "", fmt.Errorf("failed to marshal source recipes: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO shopping_list_items
				(list_id, event_id, lang, ingredient_name, total_quantity, purchase_unit, source_recipes, notes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			listID, eventID, lang, item.Name, item.TotalQuantity, item.Unit, sources, item.Notes,
		)
		if err != nil {
			return "", fmt.Errorf("failed to save shopping list item: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit shopping list: %w", err)
	}
	return listID, nil
}

// ShoppingList retrieves a persisted list's items.
func (s *PostgresStore) ShoppingList(ctx context.Context, listID string) ([]shopping.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ingredient_name, total_quantity, purchase_unit, source_recipes, notes
		 FROM shopping_list_items WHERE list_id = $1 ORDER BY ingredient_name`,
		listID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get shopping list: %w", err)
	}
	defer rows.Close()

	var items []shopping.Item
	for rows.Next() {
		var item shopping.Item
		var sources []byte
		if err := rows.Scan(&item.Name, &item.TotalQuantity, &item.Unit, &sources, &item.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan shopping list row: %w", err)
		}
		if err := json.Unmarshal(sources, &item.SourceRecipes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal source recipes: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
