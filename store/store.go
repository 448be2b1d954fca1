// Package store persists meals, food items, and goals. The Tracker only
// depends on the Store interface; SQLite is the hosted collaborator,
// Local is the on-device cache that predates it, and Memory backs tests.
package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"nosh/nutrition"
)

var (
	// ErrNotFound reports a missing meal, item, or goals record.
	ErrNotFound = errors.New("store: not found")

	// ErrImportDone reports that the local data was already migrated.
	ErrImportDone = errors.New("store: import already completed")
)

// Snapshot is a full per-user dump, used for bulk import.
type Snapshot struct {
	Meals []nutrition.MealGroup `json:"meals"`
	Items []nutrition.FoodItem  `json:"items"`
	Goals *nutrition.Goals      `json:"goals,omitempty"`
}

// Store is the persistence collaborator. Every operation is scoped to an
// opaque user id; implementations must not leak data across users.
type Store interface {
	InsertMeal(ctx context.Context, user string, meal nutrition.MealGroup) error
	DeleteMeal(ctx context.Context, user, mealID string) error
	UpdateMealTranscript(ctx context.Context, user, mealID, transcript string) error
	SetMealPending(ctx context.Context, user, mealID string, pending bool) error

	InsertItem(ctx context.Context, user string, item nutrition.FoodItem) error
	UpdateItem(ctx context.Context, user string, item nutrition.FoodItem) error
	DeleteItem(ctx context.Context, user, itemID string) error

	Meals(ctx context.Context, user string) ([]nutrition.MealGroup, error)
	Items(ctx context.Context, user string) ([]nutrition.FoodItem, error)

	Goals(ctx context.Context, user string) (*nutrition.Goals, error)
	SetGoals(ctx context.Context, user string, g nutrition.Goals) error

	ImportSnapshot(ctx context.Context, user string, snap Snapshot) error

	Close() error
}

func sortByTime[T any](s []T, at func(T) time.Time) {
	sort.SliceStable(s, func(i, j int) bool { return at(s[i]).Before(at(s[j])) })
}
