package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"nosh/nutrition"
)

// SQLite is the Store backed by a SQLite database file.
type SQLite struct {
	db   *sql.DB
	path string
}

type migration struct {
	version string
	sql     string
}

var migrations = []migration{
	{
		version: "0001_initial",
		sql: `
CREATE TABLE meals (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    label      TEXT NOT NULL,
    created_at TEXT NOT NULL,
    transcript TEXT NOT NULL DEFAULT '',
    pending    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX meals_user ON meals (user_id, created_at);

CREATE TABLE items (
    id             TEXT PRIMARY KEY,
    user_id        TEXT NOT NULL,
    meal_id        TEXT NOT NULL REFERENCES meals (id) ON DELETE CASCADE,
    logged_at      TEXT NOT NULL,
    name           TEXT NOT NULL,
    quantity       TEXT NOT NULL,
    calories       REAL NOT NULL,
    protein        REAL NOT NULL,
    carbs          REAL NOT NULL,
    fat            REAL NOT NULL,
    fiber          REAL NOT NULL,
    micronutrients TEXT NOT NULL DEFAULT ''
);
CREATE INDEX items_user ON items (user_id, logged_at);
CREATE INDEX items_meal ON items (meal_id);

CREATE TABLE goals (
    user_id  TEXT PRIMARY KEY,
    calories REAL NOT NULL,
    protein  REAL NOT NULL,
    carbs    REAL NOT NULL,
    fat      REAL NOT NULL,
    fiber    REAL NOT NULL
);`,
	},
}

// OpenSQLite connects to (or creates) the database at path and applies
// pending migrations.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &SQLite{db: db, path: path}
	if err := s.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) applyMigrations(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	for _, m := range migrations {
		var count int
		row := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", m.version)
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("record migration %s: %w", m.version, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) InsertMeal(ctx context.Context, user string, meal nutrition.MealGroup) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meals (id, user_id, label, created_at, transcript, pending)
         VALUES (?, ?, ?, ?, ?, ?)`,
		meal.ID, user, meal.Label, meal.CreatedAt.UTC().Format(time.RFC3339Nano),
		meal.Transcript, boolInt(meal.Pending),
	)
	if err != nil {
		return fmt.Errorf("insert meal: %w", err)
	}
	return nil
}

func (s *SQLite) DeleteMeal(ctx context.Context, user, mealID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM meals WHERE id = ? AND user_id = ?", mealID, user)
	if err != nil {
		return fmt.Errorf("delete meal: %w", err)
	}
	return affectedOrNotFound(res)
}

func (s *SQLite) UpdateMealTranscript(ctx context.Context, user, mealID, transcript string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE meals SET transcript = ? WHERE id = ? AND user_id = ?",
		transcript, mealID, user)
	if err != nil {
		return fmt.Errorf("update meal transcript: %w", err)
	}
	return affectedOrNotFound(res)
}

func (s *SQLite) SetMealPending(ctx context.Context, user, mealID string, pending bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE meals SET pending = ? WHERE id = ? AND user_id = ?",
		boolInt(pending), mealID, user)
	if err != nil {
		return fmt.Errorf("set meal pending: %w", err)
	}
	return affectedOrNotFound(res)
}

func (s *SQLite) InsertItem(ctx context.Context, user string, item nutrition.FoodItem) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items (id, user_id, meal_id, logged_at, name, quantity,
            calories, protein, carbs, fat, fiber, micronutrients)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, user, item.MealID, item.LoggedAt.UTC().Format(time.RFC3339Nano),
		item.Name, item.Quantity, item.Calories, item.Protein, item.Carbs,
		item.Fat, item.Fiber, item.Micronutrients,
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (s *SQLite) UpdateItem(ctx context.Context, user string, item nutrition.FoodItem) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET meal_id = ?, name = ?, quantity = ?, calories = ?,
            protein = ?, carbs = ?, fat = ?, fiber = ?, micronutrients = ?
         WHERE id = ? AND user_id = ?`,
		item.MealID, item.Name, item.Quantity, item.Calories, item.Protein,
		item.Carbs, item.Fat, item.Fiber, item.Micronutrients, item.ID, user,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return affectedOrNotFound(res)
}

func (s *SQLite) DeleteItem(ctx context.Context, user, itemID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM items WHERE id = ? AND user_id = ?", itemID, user)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return affectedOrNotFound(res)
}

func (s *SQLite) Meals(ctx context.Context, user string) ([]nutrition.MealGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, created_at, transcript, pending
         FROM meals WHERE user_id = ? ORDER BY created_at`, user)
	if err != nil {
		return nil, fmt.Errorf("query meals: %w", err)
	}
	defer rows.Close()

	var meals []nutrition.MealGroup
	for rows.Next() {
		var (
			m       nutrition.MealGroup
			created string
			pending int
		)
		if err := rows.Scan(&m.ID, &m.Label, &created, &m.Transcript, &pending); err != nil {
			return nil, fmt.Errorf("scan meal: %w", err)
		}
		if m.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse meal created_at %q: %w", created, err)
		}
		m.Pending = pending != 0
		meals = append(meals, m)
	}
	return meals, rows.Err()
}

func (s *SQLite) Items(ctx context.Context, user string) ([]nutrition.FoodItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, meal_id, logged_at, name, quantity, calories, protein,
            carbs, fat, fiber, micronutrients
         FROM items WHERE user_id = ? ORDER BY logged_at`, user)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []nutrition.FoodItem
	for rows.Next() {
		var (
			it     nutrition.FoodItem
			logged string
		)
		if err := rows.Scan(&it.ID, &it.MealID, &logged, &it.Name, &it.Quantity,
			&it.Calories, &it.Protein, &it.Carbs, &it.Fat, &it.Fiber,
			&it.Micronutrients); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if it.LoggedAt, err = time.Parse(time.RFC3339Nano, logged); err != nil {
			return nil, fmt.Errorf("parse item logged_at %q: %w", logged, err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *SQLite) Goals(ctx context.Context, user string) (*nutrition.Goals, error) {
	var g nutrition.Goals
	err := s.db.QueryRowContext(ctx,
		"SELECT calories, protein, carbs, fat, fiber FROM goals WHERE user_id = ?",
		user).Scan(&g.Calories, &g.Protein, &g.Carbs, &g.Fat, &g.Fiber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}
	return &g, nil
}

func (s *SQLite) SetGoals(ctx context.Context, user string, g nutrition.Goals) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO goals (user_id, calories, protein, carbs, fat, fiber)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT (user_id) DO UPDATE SET calories = excluded.calories,
            protein = excluded.protein, carbs = excluded.carbs,
            fat = excluded.fat, fiber = excluded.fiber`,
		user, g.Calories, g.Protein, g.Carbs, g.Fat, g.Fiber,
	)
	if err != nil {
		return fmt.Errorf("set goals: %w", err)
	}
	return nil
}

// ImportSnapshot inserts the whole snapshot in one transaction. Items
// referencing meals absent from the snapshot are imported under a
// synthesized placeholder meal so the cascade constraint holds.
func (s *SQLite) ImportSnapshot(ctx context.Context, user string, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	known := make(map[string]bool, len(snap.Meals))
	for _, m := range snap.Meals {
		known[m.ID] = true
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meals (id, user_id, label, created_at, transcript, pending)
             VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID, user, m.Label, m.CreatedAt.UTC().Format(time.RFC3339Nano),
			m.Transcript, boolInt(m.Pending)); err != nil {
			return fmt.Errorf("import meal %s: %w", m.ID, err)
		}
	}
	for _, it := range snap.Items {
		if !known[it.MealID] {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO meals (id, user_id, label, created_at, transcript, pending)
                 VALUES (?, ?, ?, ?, '', 0)`,
				it.MealID, user, "Imported meal",
				it.LoggedAt.UTC().Format(time.RFC3339Nano)); err != nil {
				return fmt.Errorf("import placeholder meal %s: %w", it.MealID, err)
			}
			known[it.MealID] = true
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO items (id, user_id, meal_id, logged_at, name, quantity,
                calories, protein, carbs, fat, fiber, micronutrients)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID, user, it.MealID, it.LoggedAt.UTC().Format(time.RFC3339Nano),
			it.Name, it.Quantity, it.Calories, it.Protein, it.Carbs, it.Fat,
			it.Fiber, it.Micronutrients); err != nil {
			return fmt.Errorf("import item %s: %w", it.ID, err)
		}
	}
	if snap.Goals != nil {
		g := snap.Goals
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO goals (user_id, calories, protein, carbs, fat, fiber)
             VALUES (?, ?, ?, ?, ?, ?)
             ON CONFLICT (user_id) DO UPDATE SET calories = excluded.calories,
                protein = excluded.protein, carbs = excluded.carbs,
                fat = excluded.fat, fiber = excluded.fiber`,
			user, g.Calories, g.Protein, g.Carbs, g.Fat, g.Fiber); err != nil {
			return fmt.Errorf("import goals: %w", err)
		}
	}
	return tx.Commit()
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
