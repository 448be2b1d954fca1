package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"nosh/nutrition"
)

const testUser = "user-1"

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "nosh.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testMeal(id string, at time.Time) nutrition.MealGroup {
	return nutrition.MealGroup{ID: id, Label: "Lunch", CreatedAt: at, Pending: true}
}

func testItem(id, mealID string, at time.Time) nutrition.FoodItem {
	return nutrition.FoodItem{
		FoodEntry: nutrition.FoodEntry{
			Name: "oatmeal", Quantity: "1 cup",
			Calories: 150, Protein: 5, Carbs: 27, Fat: 3, Fiber: 4,
			Micronutrients: "iron 2mg",
		},
		ID: id, MealID: mealID, LoggedAt: at,
	}
}

func TestSQLiteMealLifecycle(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	if err := s.InsertMeal(ctx, testUser, testMeal("m1", now)); err != nil {
		t.Fatalf("InsertMeal: %v", err)
	}
	if err := s.UpdateMealTranscript(ctx, testUser, "m1", "a cup of oatmeal"); err != nil {
		t.Fatalf("UpdateMealTranscript: %v", err)
	}
	if err := s.SetMealPending(ctx, testUser, "m1", false); err != nil {
		t.Fatalf("SetMealPending: %v", err)
	}

	meals, err := s.Meals(ctx, testUser)
	if err != nil {
		t.Fatalf("Meals: %v", err)
	}
	if len(meals) != 1 {
		t.Fatalf("meals = %d, want 1", len(meals))
	}
	got := meals[0]
	if got.Transcript != "a cup of oatmeal" || got.Pending {
		t.Errorf("meal = %+v after updates", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}

	if err := s.DeleteMeal(ctx, testUser, "m1"); err != nil {
		t.Fatalf("DeleteMeal: %v", err)
	}
	if err := s.DeleteMeal(ctx, testUser, "m1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteMeal = %v, want ErrNotFound", err)
	}
}

func TestSQLiteDeleteMealCascadesItems(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.InsertMeal(ctx, testUser, testMeal("m1", now)); err != nil {
		t.Fatalf("InsertMeal: %v", err)
	}
	if err := s.InsertItem(ctx, testUser, testItem("i1", "m1", now)); err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	if err := s.DeleteMeal(ctx, testUser, "m1"); err != nil {
		t.Fatalf("DeleteMeal: %v", err)
	}

	items, err := s.Items(ctx, testUser)
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("items = %d after meal delete, want 0", len(items))
	}
}

func TestSQLiteItemRoundTrip(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	if err := s.InsertMeal(ctx, testUser, testMeal("m1", now)); err != nil {
		t.Fatalf("InsertMeal: %v", err)
	}
	item := testItem("i1", "m1", now)
	if err := s.InsertItem(ctx, testUser, item); err != nil {
		t.Fatalf("InsertItem: %v", err)
	}

	item.Quantity = "2 cups"
	item.Calories = 300
	if err := s.UpdateItem(ctx, testUser, item); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	items, err := s.Items(ctx, testUser)
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	got := items[0]
	if got.Quantity != "2 cups" || got.Calories != 300 || got.Micronutrients != "iron 2mg" {
		t.Errorf("item = %+v", got)
	}
	if !got.LoggedAt.Equal(now) {
		t.Errorf("LoggedAt = %v, want %v", got.LoggedAt, now)
	}
}

func TestSQLiteUserScoping(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.InsertMeal(ctx, "alice", testMeal("m1", now)); err != nil {
		t.Fatalf("InsertMeal: %v", err)
	}
	meals, err := s.Meals(ctx, "bob")
	if err != nil {
		t.Fatalf("Meals: %v", err)
	}
	if len(meals) != 0 {
		t.Errorf("bob sees %d of alice's meals", len(meals))
	}
	if err := s.DeleteMeal(ctx, "bob", "m1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-user delete = %v, want ErrNotFound", err)
	}
}

func TestSQLiteGoalsUpsert(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	if _, err := s.Goals(ctx, testUser); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Goals before set = %v, want ErrNotFound", err)
	}
	if err := s.SetGoals(ctx, testUser, nutrition.Goals{Calories: 2000, Protein: 120}); err != nil {
		t.Fatalf("SetGoals: %v", err)
	}
	if err := s.SetGoals(ctx, testUser, nutrition.Goals{Calories: 1800, Protein: 130}); err != nil {
		t.Fatalf("SetGoals update: %v", err)
	}

	g, err := s.Goals(ctx, testUser)
	if err != nil {
		t.Fatalf("Goals: %v", err)
	}
	if g.Calories != 1800 || g.Protein != 130 {
		t.Errorf("goals = %+v, want the updated record", g)
	}
}

func TestSQLiteImportSynthesizesMissingMeal(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	snap := Snapshot{
		Meals: []nutrition.MealGroup{testMeal("m1", now)},
		Items: []nutrition.FoodItem{
			testItem("i1", "m1", now),
			testItem("i2", "ghost-meal", now),
		},
		Goals: &nutrition.Goals{Calories: 2000},
	}
	if err := s.ImportSnapshot(ctx, testUser, snap); err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}

	meals, err := s.Meals(ctx, testUser)
	if err != nil {
		t.Fatalf("Meals: %v", err)
	}
	if len(meals) != 2 {
		t.Fatalf("meals = %d, want the real meal plus a placeholder", len(meals))
	}
	items, err := s.Items(ctx, testUser)
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("items = %d, want 2", len(items))
	}
	if g, err := s.Goals(ctx, testUser); err != nil || g.Calories != 2000 {
		t.Errorf("goals = %+v, %v", g, err)
	}
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nosh.db")
	ctx := context.Background()

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := s.InsertMeal(ctx, testUser, testMeal("m1", time.Now().UTC())); err != nil {
		t.Fatalf("InsertMeal: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	meals, err := s.Meals(ctx, testUser)
	if err != nil {
		t.Fatalf("Meals: %v", err)
	}
	if len(meals) != 1 {
		t.Errorf("meals after reopen = %d, want 1", len(meals))
	}
}
